// Package tracker measures how long a learner is actually engaged with a
// review session, as opposed to how long the session has been open.
//
// Every input event opens an activity window of Threshold length. Time inside
// a window counts as active while the host has focus and the session is not
// paused; time after a window closes is idle until the next event.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultThreshold is how long after the last input the learner still counts
// as active.
const DefaultThreshold = 30 * time.Second

// ActivityKind names the kind of input that was observed.
type ActivityKind string

const (
	ActivityInput   ActivityKind = "input"
	ActivityPointer ActivityKind = "pointer"
	ActivityScroll  ActivityKind = "scroll"
)

// Summary is the final report of a tracker.
type Summary struct {
	ActiveTime time.Duration `json:"active_time"`
	WallTime   time.Duration `json:"wall_time"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
}

// ActiveMinutes returns the active time in minutes.
func (s Summary) ActiveMinutes() float64 {
	return s.ActiveTime.Minutes()
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the inactivity threshold. Non-positive values are ignored.
func WithThreshold(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.threshold = d
		}
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tracker accumulates active time. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	clock     func() time.Time
	threshold time.Duration
	logger    *zap.Logger

	startedAt    time.Time
	lastActivity time.Time
	counted      time.Duration
	// mark is the instant up to which active time has been accrued.
	mark time.Time

	blurred bool
	paused  bool
	stopped bool
	summary Summary

	watchers map[int]context.CancelFunc
	nextID   int
	wg       sync.WaitGroup
}

// New starts a tracker. Starting counts as activity.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		clock:     time.Now,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
		watchers:  make(map[int]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(t)
	}
	now := t.clock()
	t.startedAt = now
	t.lastActivity = now
	t.mark = now
	return t
}

// Threshold returns the inactivity threshold.
func (t *Tracker) Threshold() time.Duration {
	return t.threshold
}

func (t *Tracker) accruing() bool {
	return !t.blurred && !t.paused && !t.stopped
}

// settle accrues active time up to now. Must be called with mu held.
func (t *Tracker) settle(now time.Time) {
	if !t.accruing() {
		return
	}
	end := t.lastActivity.Add(t.threshold)
	if now.Before(end) {
		end = now
	}
	if end.After(t.mark) {
		t.counted += end.Sub(t.mark)
		t.mark = end
	}
}

// restart moves the accrual mark to now without counting the gap.
func (t *Tracker) restart(now time.Time) {
	if now.After(t.mark) {
		t.mark = now
	}
}

// Activity records an input event. Events while paused or stopped are
// ignored; an event while blurred implies the host regained focus.
func (t *Tracker) Activity(kind ActivityKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused || t.stopped {
		return
	}
	now := t.clock()
	if t.blurred {
		t.blurred = false
		t.restart(now)
	}
	t.settle(now)
	t.restart(now)
	if now.After(t.lastActivity) {
		t.lastActivity = now
	}
	t.logger.Debug("Activity", zap.String("kind", string(kind)))
}

// Focus records that the host regained focus.
func (t *Tracker) Focus() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.blurred {
		return
	}
	t.blurred = false
	t.restart(t.clock())
}

// Blur records that the host lost focus. Accrual stops until Focus.
func (t *Tracker) Blur() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.blurred {
		return
	}
	t.settle(t.clock())
	t.blurred = true
}

// Pause stops accrual until Resume.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused {
		return
	}
	t.settle(t.clock())
	t.paused = true
}

// Resume restarts accrual. Resuming counts as activity.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paused || t.stopped {
		return
	}
	now := t.clock()
	t.paused = false
	t.restart(now)
	if now.After(t.lastActivity) {
		t.lastActivity = now
	}
}

// Paused reports whether accrual is paused.
func (t *Tracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// ActiveTime returns the active time so far. It never decreases.
func (t *Tracker) ActiveTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.settle(t.clock())
	return t.counted
}

// ActiveMinutes returns ActiveTime in minutes.
func (t *Tracker) ActiveMinutes() float64 {
	return t.ActiveTime().Minutes()
}

// Tick is the cooperative polling hook for hosts that refresh a display.
// It returns the current active time.
func (t *Tracker) Tick() time.Duration {
	return t.ActiveTime()
}

// Watch delivers the active time every interval until ctx is done or the
// tracker is stopped, then closes the channel. Values are dropped while the
// receiver is not ready.
func (t *Tracker) Watch(ctx context.Context, every time.Duration) <-chan time.Duration {
	ch := make(chan time.Duration, 1)

	t.mu.Lock()
	if t.stopped || every <= 0 {
		t.mu.Unlock()
		close(ch)
		return ch
	}
	ctx, cancel := context.WithCancel(ctx)
	id := t.nextID
	t.nextID++
	t.watchers[id] = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer close(ch)
		defer t.unwatch(id)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- t.ActiveTime():
				default:
				}
			}
		}
	}()
	return ch
}

func (t *Tracker) unwatch(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.watchers[id]; ok {
		cancel()
		delete(t.watchers, id)
	}
}

// Stop ends tracking, tears down every watcher and returns the summary.
// Later calls return the same summary.
func (t *Tracker) Stop() Summary {
	t.mu.Lock()
	if t.stopped {
		s := t.summary
		t.mu.Unlock()
		return s
	}
	now := t.clock()
	t.settle(now)
	t.stopped = true
	t.summary = Summary{
		ActiveTime: t.counted,
		WallTime:   now.Sub(t.startedAt),
		StartedAt:  t.startedAt,
		EndedAt:    now,
	}
	for _, cancel := range t.watchers {
		cancel()
	}
	s := t.summary
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Debug("Tracker stopped",
		zap.Duration("active", s.ActiveTime),
		zap.Duration("wall", s.WallTime))
	return s
}

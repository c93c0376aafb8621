package main

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Reminder periodically checks for due words and logs a reminder.
type Reminder struct {
	scheduler *gocron.Scheduler
	service   *VocabService
	interval  time.Duration
	logger    *zap.Logger
	notify    func(due int)
}

// NewReminder creates a reminder checking every interval.
func NewReminder(svc *VocabService, interval time.Duration, logger *zap.Logger) *Reminder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reminder{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   svc,
		interval:  interval,
		logger:    logger.Named("reminder"),
	}
	r.notify = func(due int) {
		r.logger.Info("Words are due for review", zap.Int("due", due))
	}
	return r
}

// Start schedules the check and runs it once immediately.
func (r *Reminder) Start() error {
	if r.interval <= 0 {
		return fmt.Errorf("reminder interval must be positive, got %s", r.interval)
	}
	if _, err := r.scheduler.Every(r.interval).Do(r.check); err != nil {
		return fmt.Errorf("error scheduling reminder: %w", err)
	}
	r.scheduler.StartAsync()
	return nil
}

// Stop terminates the scheduled check.
func (r *Reminder) Stop() {
	r.scheduler.Stop()
}

// check counts the due words and notifies when there are any.
func (r *Reminder) check() {
	words, err := r.service.DueWords()
	if err != nil {
		r.logger.Error("Error checking due words", zap.Error(err))
		return
	}
	if len(words) == 0 {
		r.logger.Debug("No words due")
		return
	}
	r.notify(len(words))
}

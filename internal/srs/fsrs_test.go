package srs

import (
	"testing"
	"time"

	gofsrs "github.com/open-spaced-repetition/go-fsrs"
)

func TestNewFSRSSchedulerWithParams(t *testing.T) {
	params := gofsrs.DefaultParam()
	params.RequestRetention = 0.8

	s := NewFSRSScheduler(WithFSRSParameters(params))
	if s.parameters.RequestRetention != 0.8 {
		t.Fatalf("Expected RequestRetention 0.8, got %f", s.parameters.RequestRetention)
	}
}

func TestFSRSSchedule(t *testing.T) {
	s := NewFSRSScheduler()
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		quality       Quality
		expectedState gofsrs.State
		expectedReps  int
		minInterval   int
		maxInterval   int
	}{
		{
			name:          "New word blackout",
			quality:       QualityBlackout,
			expectedState: gofsrs.Learning,
			expectedReps:  0,
			minInterval:   MinInterval,
			maxInterval:   MinInterval,
		},
		{
			name:          "New word hesitant",
			quality:       QualityHesitant,
			expectedState: gofsrs.Learning,
			expectedReps:  1,
			minInterval:   MinInterval,
			maxInterval:   60,
		},
		{
			name:          "New word instant",
			quality:       QualityInstant,
			expectedState: gofsrs.Review,
			expectedReps:  1,
			minInterval:   3 * 24 * 60,
			maxInterval:   MaxInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := s.Schedule(NewState(now), Review{Quality: tt.quality, ReviewedAt: now})

			if next.Memory == nil {
				t.Fatal("Expected FSRS memory to be recorded")
			}
			if next.Memory.State != tt.expectedState {
				t.Errorf("Expected state %v, got %v", tt.expectedState, next.Memory.State)
			}
			if next.Repetitions != tt.expectedReps {
				t.Errorf("Expected %d repetitions, got %d", tt.expectedReps, next.Repetitions)
			}
			if next.Interval < tt.minInterval || next.Interval > tt.maxInterval {
				t.Errorf("Interval %d outside [%d, %d]", next.Interval, tt.minInterval, tt.maxInterval)
			}
			expectedDue := now.Add(time.Duration(next.Interval) * time.Minute)
			if !next.NextReview.Equal(expectedDue) {
				t.Errorf("NextReview %v, expected %v", next.NextReview, expectedDue)
			}
			if len(next.History) != 1 {
				t.Errorf("Expected one history entry, got %d", len(next.History))
			}
		})
	}
}

func TestFSRSSchedule_CarriesMemoryForward(t *testing.T) {
	s := NewFSRSScheduler()
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	first := s.Schedule(NewState(now), Review{Quality: QualityInstant, ReviewedAt: now})
	later := first.NextReview
	second := s.Schedule(first, Review{Quality: QualityInstant, ReviewedAt: later})

	if second.Memory.Reps <= first.Memory.Reps {
		t.Errorf("Expected FSRS reps to grow, got %d then %d", first.Memory.Reps, second.Memory.Reps)
	}
	if second.Interval <= first.Interval {
		t.Errorf("Expected interval to grow after two easy reviews, got %d then %d", first.Interval, second.Interval)
	}
}

func TestRatingFor(t *testing.T) {
	expected := map[Quality]gofsrs.Rating{
		QualityBlackout:    gofsrs.Again,
		QualityIncorrect:   gofsrs.Again,
		QualityHinted:      gofsrs.Hard,
		QualityHesitant:    gofsrs.Good,
		QualityComfortable: gofsrs.Easy,
		QualityInstant:     gofsrs.Easy,
	}
	for q, want := range expected {
		if got := ratingFor(q); got != want {
			t.Errorf("ratingFor(%v) = %v, want %v", q, got, want)
		}
	}
}

package analytics

import (
	"sort"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/danieldreier/mcp-vocab/internal/storage"
)

const (
	// RecentReviewWindow is how many of the latest reviews feed accuracy.
	RecentReviewWindow = 100
	// MatureInterval is the interval, in minutes, from which a word counts
	// as mature (21 days).
	MatureInterval = 21 * 24 * 60
)

// Overview is the dashboard summary of a vocabulary.
type Overview struct {
	TotalWords    int     `json:"total_words"`
	DueWords      int     `json:"due_words"`
	MatureWords   int     `json:"mature_words"`
	ReviewsToday  int     `json:"reviews_today"`
	RetentionRate float64 `json:"retention_rate"`
	Streak        int     `json:"streak"`
}

// BuildUserStats derives the adaptive scheduler's input from the review log.
// Accuracy covers the most recent RecentReviewWindow reviews; reviews without
// a category take the category of their word. It returns nil when there is
// no history, which makes the adaptive scheduler use plain SM-2.
func BuildUserStats(reviews []storage.ReviewLog, words []storage.Word, now time.Time) *srs.UserStats {
	if len(reviews) == 0 {
		return nil
	}

	categories := make(map[string]string, len(words))
	for _, w := range words {
		categories[w.ID] = w.Category
	}

	sorted := make([]storage.ReviewLog, len(reviews))
	copy(sorted, reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	recent := sorted
	if len(recent) > RecentReviewWindow {
		recent = recent[len(recent)-RecentReviewWindow:]
	}

	type tally struct{ correct, total int }
	var overall tally
	byCategory := make(map[string]*tally)
	for _, r := range recent {
		overall.total++
		if r.IsCorrect {
			overall.correct++
		}

		category := r.Category
		if category == "" {
			category = categories[r.WordID]
		}
		if category == "" {
			continue
		}
		c, ok := byCategory[category]
		if !ok {
			c = &tally{}
			byCategory[category] = c
		}
		c.total++
		if r.IsCorrect {
			c.correct++
		}
	}

	stats := &srs.UserStats{
		Accuracy:     float64(overall.correct) / float64(overall.total),
		Streak:       Streak(sorted, now),
		TotalReviews: len(sorted),
	}
	if len(byCategory) > 0 {
		stats.CategoryAccuracy = make(map[string]float64, len(byCategory))
		for category, c := range byCategory {
			stats.CategoryAccuracy[category] = float64(c.correct) / float64(c.total)
		}
	}
	return stats
}

// Streak counts consecutive calendar days with at least one review, ending
// today, or yesterday when nothing has been reviewed yet today. Days follow
// now's location.
func Streak(reviews []storage.ReviewLog, now time.Time) int {
	days := make(map[time.Time]bool)
	for _, r := range reviews {
		days[startOfDay(r.Timestamp.In(now.Location()))] = true
	}

	day := startOfDay(now)
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for days[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Summarize computes the vocabulary overview at now. RetentionRate is the
// percentage of today's reviews that were correct.
func Summarize(words []storage.Word, reviews []storage.ReviewLog, now time.Time) Overview {
	today := startOfDay(now)

	o := Overview{TotalWords: len(words)}
	for _, w := range words {
		if w.SRS.IsDue(now) {
			o.DueWords++
		}
		if w.SRS.Interval >= MatureInterval {
			o.MatureWords++
		}
	}

	correct := 0
	for _, r := range reviews {
		if !r.Timestamp.Before(today) {
			o.ReviewsToday++
			if r.IsCorrect {
				correct++
			}
		}
	}
	if o.ReviewsToday > 0 {
		o.RetentionRate = float64(correct) / float64(o.ReviewsToday) * 100.0
	}
	o.Streak = Streak(reviews, now)
	return o
}

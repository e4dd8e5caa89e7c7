package session

import (
	"math"

	"github.com/davidkendallcasey/cuecard/internal/domain"
)

// Summary aggregates the grade events of one session.
type Summary struct {
	Graded  int
	ByScore [6]int // index 1..5; index 0 unused
	Quality int    // percentage, 0-100
}

// Summarize derives the end-of-session statistics from the results list.
// Quality is sum(scores) / (count * 5), as a percentage rounded to the
// nearest integer. An empty session has quality 0.
func Summarize(results []domain.GradeEvent) Summary {
	var sum Summary
	var total int
	for _, ev := range results {
		if !domain.ValidGrade(ev.Score) {
			continue
		}
		sum.Graded++
		sum.ByScore[ev.Score]++
		total += ev.Score
	}
	if sum.Graded > 0 {
		sum.Quality = int(math.Round(float64(total) / float64(sum.Graded*5) * 100))
	}
	return sum
}

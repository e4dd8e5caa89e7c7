package domain

// Card is the scheduling view of a flashcard. ID is a content fingerprint,
// unique across the store. ConfidenceScore is the most recent grade (0 means
// never graded). LastSeenAt is the epoch-millisecond timestamp of the most
// recent grading event, 0 if never graded.
type Card struct {
	ID              string
	Front           string
	Back            string
	ConfidenceScore int
	LastSeenAt      int64
}

// GradeEvent records a single user-supplied score for one card during a
// session. Score is 1 (lowest confidence) to 5 (mastered).
type GradeEvent struct {
	CardID string
	Score  int
}

// Tier is a partition of the card pool by confidence score.
type Tier int

const (
	TierLow      Tier = iota // scores 0-2
	TierMedium               // scores 3-4
	TierMastered             // score 5
)

// TierOf maps a confidence score to its review tier.
func TierOf(score int) Tier {
	switch {
	case score <= 2:
		return TierLow
	case score <= 4:
		return TierMedium
	default:
		return TierMastered
	}
}

// ValidGrade reports whether score is an acceptable grade for a review.
// 0 is not a grade: it only marks a card as never graded.
func ValidGrade(score int) bool {
	return score >= 1 && score <= 5
}

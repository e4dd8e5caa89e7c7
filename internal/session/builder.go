package session

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/davidkendallcasey/cuecard/internal/domain"
)

// Per-tier shares of the session queue. Low-confidence cards dominate so
// that a session always leans on the material the user knows least.
const (
	lowShare      = 0.60
	mediumShare   = 0.30
	masteredShare = 0.10
)

// Builder constructs study queues. The random source is injectable so tests
// can pin the permutation; NewBuilder(nil) seeds from the clock.
type Builder struct {
	rng *rand.Rand
}

// NewBuilder returns a Builder using the given random source, or a
// time-seeded one if rng is nil.
func NewBuilder(rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Builder{rng: rng}
}

// Build selects and orders at most intensity cards from pool according to
// the confidence-based review policy: the pool is partitioned into low,
// medium and mastered tiers, each tier is ordered oldest-seen-first with a
// random order among equal timestamps, and the tiers contribute round(60%),
// round(30%) and round(10%) of intensity respectively. When a tier holds
// fewer cards than its quota the shortfall is topped up from the remaining
// cards, lowest tier first, so the queue only comes up short of intensity
// when the whole pool does. The output keeps the tiers as contiguous
// blocks: low, then medium, then mastered.
//
// Build never fails: an empty pool or non-positive intensity yields an
// empty queue. It has no side effects beyond consuming the random source.
func (b *Builder) Build(pool []domain.Card, intensity int) []domain.Card {
	if intensity <= 0 || len(pool) == 0 {
		return nil
	}

	var low, medium, mastered []domain.Card
	for _, c := range pool {
		switch domain.TierOf(c.ConfidenceScore) {
		case domain.TierLow:
			low = append(low, c)
		case domain.TierMedium:
			medium = append(medium, c)
		case domain.TierMastered:
			mastered = append(mastered, c)
		}
	}

	b.arrange(low)
	b.arrange(medium)
	b.arrange(mastered)

	nLow := min(roundHalfUp(float64(intensity)*lowShare), len(low))
	nMedium := min(roundHalfUp(float64(intensity)*mediumShare), len(medium))
	nMastered := min(roundHalfUp(float64(intensity)*masteredShare), len(mastered))

	// A tier short of its quota leaves room; fill it from whatever is
	// left, lowest tier first, so a fresh all-low deck still yields a
	// full-length session.
	extra := intensity - (nLow + nMedium + nMastered)
	for _, tier := range []struct {
		taken *int
		avail int
	}{{&nLow, len(low)}, {&nMedium, len(medium)}, {&nMastered, len(mastered)}} {
		if extra <= 0 {
			break
		}
		room := min(tier.avail-*tier.taken, extra)
		*tier.taken += room
		extra -= room
	}

	queue := make([]domain.Card, 0, intensity)
	queue = append(queue, low[:nLow]...)
	queue = append(queue, medium[:nMedium]...)
	queue = append(queue, mastered[:nMastered]...)

	// Rounding can push the quota sum one or two past intensity.
	if len(queue) > intensity {
		queue = queue[:intensity]
	}
	return queue
}

// arrange shuffles the tier and then stable-sorts it by LastSeenAt
// ascending. The shuffle before the stable sort gives a random relative
// order among cards sharing a timestamp, which matters most for fresh decks
// where every LastSeenAt is zero and insertion order would otherwise leak
// through.
func (b *Builder) arrange(cards []domain.Card) {
	b.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].LastSeenAt < cards[j].LastSeenAt
	})
}

// roundHalfUp rounds to the nearest integer with halves rounding up, so
// per-tier counts are deterministic for a given intensity.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

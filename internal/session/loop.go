package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidkendallcasey/cuecard/internal/domain"
)

var (
	// ErrInvalidTransition is returned for actions that are not legal in
	// the current state, e.g. grading while the front is showing.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrSessionOver is returned for any action after the session has
	// completed or been exited.
	ErrSessionOver = errors.New("session is over")
)

// Side is the face of the card currently presented.
type Side int

const (
	SideFront Side = iota
	SideBack
)

// GradeStore persists a single grading event. Implemented by storage.DB;
// kept narrow so the loop is testable without a database.
type GradeStore interface {
	RecordGrade(ctx context.Context, cardID string, score int, seenAt time.Time) error
}

// Session steps through a fixed queue of cards, collecting one grade per
// card. Each grade is written through the store before the session's
// visible state advances. Not safe for concurrent use; the caller serializes
// access (one session active at a time).
type Session struct {
	queue   []domain.Card
	store   GradeStore
	now     func() time.Time
	index   int
	side    Side
	results []domain.GradeEvent
	over    bool
}

// New starts a session over queue, presenting the first card front-side up.
// A session over an empty queue is immediately over.
func New(queue []domain.Card, store GradeStore) *Session {
	return &Session{
		queue: queue,
		store: store,
		now:   time.Now,
		over:  len(queue) == 0,
	}
}

// Current returns the card being presented and which side is showing.
// ok is false once the session is over.
func (s *Session) Current() (card domain.Card, side Side, ok bool) {
	if s.over {
		return domain.Card{}, SideFront, false
	}
	return s.queue[s.index], s.side, true
}

// Reveal flips the current card. It is a pure toggle: revealing an
// already-revealed card turns it front-side up again. No score is recorded.
func (s *Session) Reveal() error {
	if s.over {
		return ErrSessionOver
	}
	if s.side == SideFront {
		s.side = SideBack
	} else {
		s.side = SideFront
	}
	return nil
}

// Grade records score for the current card and advances to the next card,
// or ends the session if the queue is exhausted. It is only legal while the
// back is showing; anywhere else it changes nothing and reports
// ErrInvalidTransition.
//
// The grade is appended to the in-memory results and written through the
// store before Grade returns. If the write fails the session still
// advances and the event stays in the results (the user did grade the
// card), and the store error is returned so the caller can surface a
// warning. Nothing is rolled back or retried.
func (s *Session) Grade(ctx context.Context, score int) error {
	if s.over {
		return ErrSessionOver
	}
	if s.side != SideBack {
		return ErrInvalidTransition
	}
	if !domain.ValidGrade(score) {
		return fmt.Errorf("grade %d outside 1-5: %w", score, ErrInvalidTransition)
	}

	card := s.queue[s.index]
	s.results = append(s.results, domain.GradeEvent{CardID: card.ID, Score: score})

	writeErr := s.store.RecordGrade(ctx, card.ID, score, s.now())

	s.index++
	s.side = SideFront
	if s.index == len(s.queue) {
		s.over = true
	}

	if writeErr != nil {
		return fmt.Errorf("recording grade for card %s: %w", card.ID, writeErr)
	}
	return nil
}

// Exit abandons the session. Grades already recorded stay persisted; the
// remaining cards are simply never presented. Exiting an over session is a
// no-op.
func (s *Session) Exit() {
	s.over = true
}

// Over reports whether the session has completed or been exited.
func (s *Session) Over() bool {
	return s.over
}

// Results returns the grade events collected so far, in grading order.
func (s *Session) Results() []domain.GradeEvent {
	return s.results
}

// Remaining returns the number of cards not yet graded.
func (s *Session) Remaining() int {
	return len(s.queue) - s.index
}

// Len returns the total queue length.
func (s *Session) Len() int {
	return len(s.queue)
}

package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/davidkendallcasey/cuecard/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDeckAndGroupLifecycle(t *testing.T) {
	db := openTestDB(t)

	groupID, err := db.CreateGroup("Languages")
	if err != nil {
		t.Fatalf("CreateGroup() returned an unexpected error: %v", err)
	}

	deckID, err := db.CreateDeck("Spanish", sql.NullInt64{Int64: groupID, Valid: true}, sql.NullInt64{})
	if err != nil {
		t.Fatalf("CreateDeck() returned an unexpected error: %v", err)
	}

	deck, err := db.FindDeckByName("Spanish")
	if err != nil {
		t.Fatalf("FindDeckByName() returned an unexpected error: %v", err)
	}
	if deck == nil || deck.ID != deckID {
		t.Fatalf("expected to find deck %d, got %+v", deckID, deck)
	}
	if !deck.GroupID.Valid || deck.GroupID.Int64 != groupID {
		t.Errorf("expected deck in group %d, got %+v", groupID, deck.GroupID)
	}

	if missing, err := db.FindDeckByName("French"); err != nil || missing != nil {
		t.Errorf("expected nil for a missing deck, got %+v err=%v", missing, err)
	}

	// Deleting the group ungroups the deck rather than deleting it.
	if err := db.DeleteGroup(groupID); err != nil {
		t.Fatalf("DeleteGroup() returned an unexpected error: %v", err)
	}
	deck, err = db.FindDeckByName("Spanish")
	if err != nil || deck == nil {
		t.Fatalf("deck should survive group deletion: deck=%+v err=%v", deck, err)
	}
	if deck.GroupID.Valid {
		t.Errorf("expected deck to be ungrouped, got group %d", deck.GroupID.Int64)
	}
}

func TestCardsForScopeAndOverviews(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckA, err := db.CreateDeck("A", sql.NullInt64{}, sql.NullInt64{})
	if err != nil {
		t.Fatal(err)
	}
	deckB, err := db.CreateDeck("B", sql.NullInt64{}, sql.NullInt64{})
	if err != nil {
		t.Fatal(err)
	}

	cards := []struct {
		id    string
		deck  int64
		score int
	}{
		{"card-1", deckA, 0},
		{"card-2", deckA, 3},
		{"card-3", deckA, 5},
		{"card-4", deckB, 1},
	}
	for _, c := range cards {
		if err := db.UpsertCard(domain.Card{ID: c.id, Front: "f", Back: "b"}, c.deck); err != nil {
			t.Fatalf("UpsertCard(%s) returned an unexpected error: %v", c.id, err)
		}
		if c.score > 0 {
			if err := db.RecordGrade(ctx, c.id, c.score, time.Now()); err != nil {
				t.Fatalf("RecordGrade(%s) returned an unexpected error: %v", c.id, err)
			}
		}
	}

	t.Run("single deck scope", func(t *testing.T) {
		pool, err := db.CardsForScope(ctx, []int64{deckA})
		if err != nil {
			t.Fatalf("CardsForScope() returned an unexpected error: %v", err)
		}
		if len(pool) != 3 {
			t.Fatalf("expected 3 cards in deck A, got %d", len(pool))
		}
	})

	t.Run("multi deck scope", func(t *testing.T) {
		pool, err := db.CardsForScope(ctx, []int64{deckA, deckB})
		if err != nil {
			t.Fatalf("CardsForScope() returned an unexpected error: %v", err)
		}
		if len(pool) != 4 {
			t.Fatalf("expected 4 cards across both decks, got %d", len(pool))
		}
	})

	t.Run("empty scope", func(t *testing.T) {
		pool, err := db.CardsForScope(ctx, nil)
		if err != nil || pool != nil {
			t.Fatalf("expected empty pool for empty scope, got %d cards err=%v", len(pool), err)
		}
	})

	t.Run("overview tier counts", func(t *testing.T) {
		overviews, err := db.ListDeckOverviews()
		if err != nil {
			t.Fatalf("ListDeckOverviews() returned an unexpected error: %v", err)
		}
		if len(overviews) != 2 {
			t.Fatalf("expected 2 decks, got %d", len(overviews))
		}
		var a DeckOverview
		for _, o := range overviews {
			if o.Name == "A" {
				a = o
			}
		}
		if a.Total != 3 || a.Low != 1 || a.Medium != 1 || a.Mastered != 1 {
			t.Errorf("unexpected tier counts for deck A: %+v", a)
		}
	})
}

func TestRecordGrade(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck("Only", sql.NullInt64{}, sql.NullInt64{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertCard(domain.Card{ID: "card-x", Front: "f", Back: "b"}, deckID); err != nil {
		t.Fatal(err)
	}

	seenAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if err := db.RecordGrade(ctx, "card-x", 4, seenAt); err != nil {
		t.Fatalf("RecordGrade() returned an unexpected error: %v", err)
	}

	pool, err := db.CardsForScope(ctx, []int64{deckID})
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected 1 card, got %d", len(pool))
	}
	card := pool[0]
	if card.ConfidenceScore != 4 {
		t.Errorf("expected confidence score 4, got %d", card.ConfidenceScore)
	}
	if card.LastSeenAt != seenAt.UnixMilli() {
		t.Errorf("expected last seen %d, got %d", seenAt.UnixMilli(), card.LastSeenAt)
	}

	// Regrading moves the timestamp forward.
	later := seenAt.Add(time.Hour)
	if err := db.RecordGrade(ctx, "card-x", 2, later); err != nil {
		t.Fatalf("RecordGrade() returned an unexpected error: %v", err)
	}
	pool, _ = db.CardsForScope(ctx, []int64{deckID})
	if pool[0].ConfidenceScore != 2 || pool[0].LastSeenAt != later.UnixMilli() {
		t.Errorf("expected regrade to 2 at %d, got %d at %d",
			later.UnixMilli(), pool[0].ConfidenceScore, pool[0].LastSeenAt)
	}

	t.Run("unknown card", func(t *testing.T) {
		if err := db.RecordGrade(ctx, "no-such-card", 3, time.Now()); err == nil {
			t.Error("expected an error grading an unknown card")
		}
	})

	t.Run("invalid score", func(t *testing.T) {
		if err := db.RecordGrade(ctx, "card-x", 0, time.Now()); err == nil {
			t.Error("expected an error for score 0")
		}
	})
}

func TestUpsertPreservesSchedulingState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck("Only", sql.NullInt64{}, sql.NullInt64{})
	if err != nil {
		t.Fatal(err)
	}
	card := domain.Card{ID: "stable-id", Front: "f", Back: "b"}
	if err := db.UpsertCard(card, deckID); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordGrade(ctx, "stable-id", 5, time.Now()); err != nil {
		t.Fatal(err)
	}

	// A re-import upserts the same fingerprint again.
	if err := db.UpsertCard(card, deckID); err != nil {
		t.Fatalf("UpsertCard() returned an unexpected error on re-import: %v", err)
	}

	pool, err := db.CardsForScope(ctx, []int64{deckID})
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected 1 card after re-import, got %d", len(pool))
	}
	if pool[0].ConfidenceScore != 5 || pool[0].LastSeenAt == 0 {
		t.Errorf("re-import reset scheduling state: %+v", pool[0])
	}
}

func TestDeleteSourceCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sourceID, err := db.InsertSource("/tmp/decks", "local")
	if err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}
	deckID, err := db.CreateDeck("Imported", sql.NullInt64{}, sql.NullInt64{Int64: sourceID, Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertCard(domain.Card{ID: "imported-card", Front: "f", Back: "b"}, deckID); err != nil {
		t.Fatal(err)
	}

	ids, err := db.CardIDsBySource(sourceID)
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected 1 card for source, got %d err=%v", len(ids), err)
	}

	if err := db.DeleteSource(sourceID); err != nil {
		t.Fatalf("DeleteSource() returned an unexpected error: %v", err)
	}

	if deck, _ := db.FindDeckByName("Imported"); deck != nil {
		t.Error("expected the source's deck to be deleted with it")
	}
	pool, err := db.CardsForScope(ctx, []int64{deckID})
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 0 {
		t.Errorf("expected the source's cards to be deleted, got %d", len(pool))
	}
}

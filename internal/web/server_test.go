package web

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/davidkendallcasey/cuecard/internal/domain"
	"github.com/davidkendallcasey/cuecard/internal/importer"
	"github.com/davidkendallcasey/cuecard/internal/storage"
)

func newTestServer(t *testing.T, cards int) (*Server, int64) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	deckID, err := db.CreateDeck("Test", sql.NullInt64{}, sql.NullInt64{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < cards; i++ {
		card := domain.Card{ID: fmt.Sprintf("card-%d", i), Front: "f", Back: "b"}
		if err := db.UpsertCard(card, deckID); err != nil {
			t.Fatal(err)
		}
	}

	return NewServer(db, importer.New(db, t.TempDir()), 20), deckID
}

func postForm(srv *Server, path, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestStartSessionPresentsFirstCard(t *testing.T) {
	srv, deckID := newTestServer(t, 10)

	w := postForm(srv, "/session/start", fmt.Sprintf("deck=%d&intensity=10", deckID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Card 1 of 10") {
		t.Errorf("expected the first card front, got: %s", w.Body.String())
	}
}

// Each request runs on its own goroutine, so a double-submitted start form
// exercises the builder concurrently; its random source must stay behind
// the session lock.
func TestConcurrentSessionStarts(t *testing.T) {
	srv, deckID := newTestServer(t, 50)
	form := fmt.Sprintf("deck=%d&intensity=20", deckID)

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postForm(srv, "/session/start", form).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, code)
		}
	}

	// The last start to win the lock left a live session behind.
	if w := postForm(srv, "/session/reveal", ""); w.Code != http.StatusOK {
		t.Errorf("expected a live session after concurrent starts, got %d", w.Code)
	}
}

func TestGradeFlowOverHTTP(t *testing.T) {
	srv, deckID := newTestServer(t, 2)

	if w := postForm(srv, "/session/start", fmt.Sprintf("deck=%d&intensity=5", deckID)); w.Code != http.StatusOK {
		t.Fatalf("start failed: %d", w.Code)
	}

	// Grading with the front showing is rejected.
	if w := postForm(srv, "/session/grade", "score=4"); w.Code != http.StatusConflict {
		t.Errorf("expected 409 grading an unrevealed card, got %d", w.Code)
	}

	if w := postForm(srv, "/session/reveal", ""); w.Code != http.StatusOK {
		t.Fatalf("reveal failed: %d", w.Code)
	}
	if w := postForm(srv, "/session/grade", "score=4"); w.Code != http.StatusOK {
		t.Fatalf("grade failed: %d", w.Code)
	}

	// Second card, then the summary.
	if w := postForm(srv, "/session/reveal", ""); w.Code != http.StatusOK {
		t.Fatalf("reveal failed: %d", w.Code)
	}
	w := postForm(srv, "/session/grade", "score=5")
	if w.Code != http.StatusOK {
		t.Fatalf("grade failed: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Session complete") {
		t.Errorf("expected the session summary, got: %s", w.Body.String())
	}
}

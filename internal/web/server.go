package web

import (
	"database/sql"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/davidkendallcasey/cuecard/internal/importer"
	"github.com/davidkendallcasey/cuecard/internal/session"
	"github.com/davidkendallcasey/cuecard/internal/storage"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// UI bounds for the session length; the builder itself never assumes them.
const (
	minIntensity = 5
	maxIntensity = 100
)

// Server holds the dependencies for the HTTP server. One study session is
// active at a time; mu serializes all session transitions so a double-posted
// grade cannot be applied twice.
type Server struct {
	db        *storage.DB
	router    *http.ServeMux
	builder   *session.Builder
	importer  *importer.Importer
	templates *template.Template

	mu               sync.Mutex
	session          *session.Session
	defaultIntensity int
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, im *importer.Importer, defaultIntensity int) *Server {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	s := &Server{
		db:               db,
		router:           http.NewServeMux(),
		builder:          session.NewBuilder(nil),
		importer:         im,
		templates:        tpl,
		defaultIntensity: defaultIntensity,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("Failed to create sub-filesystem for static assets: %v", err)
	}
	s.router.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.HandleFunc("/", s.handleGetDecks())

	// HTMX-based session routes
	s.router.HandleFunc("/session/start", s.handleStartSession())
	s.router.HandleFunc("/session/reveal", s.handleReveal())
	s.router.HandleFunc("/session/grade", s.handleGrade())
	s.router.HandleFunc("/session/exit", s.handleExitSession())

	// Deck and group management routes
	s.router.HandleFunc("/groups", s.handleGroups())
	s.router.HandleFunc("/groups/", s.handleDeleteGroup())
	s.router.HandleFunc("/decks/", s.handleDeckActions())

	// Source management routes
	s.router.HandleFunc("/sources", s.handleSources())
	s.router.HandleFunc("/sources/", s.handleDeleteSource())
	s.router.HandleFunc("/sync", s.handlePostSync())
}

// deckPageData feeds the deck list page and its fragment.
type deckPageData struct {
	Decks            []storage.DeckOverview
	Groups           []storage.Group
	DefaultIntensity int
}

func (s *Server) deckPageData() (deckPageData, error) {
	decks, err := s.db.ListDeckOverviews()
	if err != nil {
		return deckPageData{}, err
	}
	groups, err := s.db.ListGroups()
	if err != nil {
		return deckPageData{}, err
	}
	return deckPageData{Decks: decks, Groups: groups, DefaultIntensity: s.defaultIntensity}, nil
}

// handleGetDecks renders the deck overview page, the entry point for
// starting a session.
func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data, err := s.deckPageData()
		if err != nil {
			log.Printf("Error getting deck overviews: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.templates.ExecuteTemplate(w, "decks", data)
	}
}

// cardView feeds the card front/back fragments.
type cardView struct {
	Front    string
	Back     string
	Position int
	Total    int
	Warning  string
}

func (s *Server) currentCardView(warning string) (cardView, bool) {
	card, _, ok := s.session.Current()
	if !ok {
		return cardView{}, false
	}
	return cardView{
		Front:    card.Front,
		Back:     card.Back,
		Position: s.session.Len() - s.session.Remaining() + 1,
		Total:    s.session.Len(),
		Warning:  warning,
	}, true
}

// handleStartSession builds the queue for the chosen decks and presents the
// first card. Intensity is clamped to the UI bounds and the pool size.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad form", http.StatusBadRequest)
			return
		}

		var deckIDs []int64
		for _, raw := range r.PostForm["deck"] {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, "Invalid deck ID", http.StatusBadRequest)
				return
			}
			deckIDs = append(deckIDs, id)
		}
		if len(deckIDs) == 0 {
			http.Error(w, "Pick at least one deck", http.StatusBadRequest)
			return
		}

		intensity := s.defaultIntensity
		if raw := r.PostFormValue("intensity"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid intensity", http.StatusBadRequest)
				return
			}
			intensity = n
		}

		pool, err := s.db.CardsForScope(r.Context(), deckIDs)
		if err != nil {
			log.Printf("Error getting cards for session scope: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if len(pool) == 0 {
			s.templates.ExecuteTemplate(w, "no_cards", nil)
			return
		}

		intensity = clamp(intensity, minIntensity, maxIntensity)
		if intensity > len(pool) {
			intensity = len(pool)
		}

		// The builder's random source is not safe for concurrent use, so
		// building happens under the session lock too.
		s.mu.Lock()
		defer s.mu.Unlock()
		queue := s.builder.Build(pool, intensity)
		s.session = session.New(queue, s.db)

		view, ok := s.currentCardView("")
		if !ok {
			s.templates.ExecuteTemplate(w, "no_cards", nil)
			return
		}
		s.templates.ExecuteTemplate(w, "card_front", view)
	}
}

// handleReveal flips the current card.
func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.session == nil {
			http.Error(w, "No active session", http.StatusConflict)
			return
		}
		if err := s.session.Reveal(); err != nil {
			http.Error(w, "No card to reveal", http.StatusConflict)
			return
		}

		view, _ := s.currentCardView("")
		_, side, _ := s.session.Current()
		if side == session.SideBack {
			s.templates.ExecuteTemplate(w, "card_back", view)
		} else {
			s.templates.ExecuteTemplate(w, "card_front", view)
		}
	}
}

// handleGrade records the score for the revealed card and presents the next
// card, or the session summary once the queue is exhausted. A failed store
// write does not roll the session back; the user sees a warning instead.
func (s *Server) handleGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		score, err := strconv.Atoi(r.PostFormValue("score"))
		if err != nil {
			http.Error(w, "Invalid score", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.session == nil {
			http.Error(w, "No active session", http.StatusConflict)
			return
		}

		var warning string
		if err := s.session.Grade(r.Context(), score); err != nil {
			switch {
			case isTransitionError(err):
				http.Error(w, "Grade not allowed now", http.StatusConflict)
				return
			default:
				// Store failure: the grade stays in the session results.
				slog.Warn("Failed to persist grade", "error", err)
				warning = "The grade could not be saved; it still counts toward this session's summary."
			}
		}

		if s.session.Over() {
			s.renderSummary(w, false)
			return
		}
		view, _ := s.currentCardView(warning)
		s.templates.ExecuteTemplate(w, "card_front", view)
	}
}

// handleExitSession abandons the session. Grades already persisted stay.
func (s *Server) handleExitSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.session == nil {
			http.Error(w, "No active session", http.StatusConflict)
			return
		}
		s.session.Exit()
		s.renderSummary(w, true)
	}
}

// summaryView feeds the end-of-session fragment.
type summaryView struct {
	Abandoned bool
	Graded    int
	Quality   int
	Buckets   []scoreBucket
}

type scoreBucket struct {
	Score int
	Count int
}

func (s *Server) renderSummary(w http.ResponseWriter, abandoned bool) {
	sum := session.Summarize(s.session.Results())
	view := summaryView{
		Abandoned: abandoned,
		Graded:    sum.Graded,
		Quality:   sum.Quality,
	}
	for score := 1; score <= 5; score++ {
		view.Buckets = append(view.Buckets, scoreBucket{Score: score, Count: sum.ByScore[score]})
	}
	s.session = nil
	s.templates.ExecuteTemplate(w, "summary", view)
}

// handleGroups creates a group and re-renders the deck list.
func (s *Server) handleGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimSpace(r.PostFormValue("name"))
		if name == "" {
			http.Error(w, "Group name cannot be empty", http.StatusBadRequest)
			return
		}
		if _, err := s.db.CreateGroup(name); err != nil {
			log.Printf("Error creating group: %v", err)
			http.Error(w, "Failed to create group", http.StatusInternalServerError)
			return
		}
		s.renderDeckList(w)
	}
}

// handleDeleteGroup deletes a group; its decks become ungrouped.
func (s *Server) handleDeleteGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/groups/"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid group ID", http.StatusBadRequest)
			return
		}
		if err := s.db.DeleteGroup(id); err != nil {
			log.Printf("Error deleting group %d: %v", id, err)
			http.Error(w, "Failed to delete group", http.StatusInternalServerError)
			return
		}
		s.renderDeckList(w)
	}
}

// handleDeckActions covers per-deck management: DELETE removes the deck,
// POST .../group moves it into (or out of) a group.
func (s *Server) handleDeckActions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/decks/")
		idStr, action, _ := strings.Cut(rest, "/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid deck ID", http.StatusBadRequest)
			return
		}

		switch {
		case r.Method == http.MethodDelete && action == "":
			if err := s.db.DeleteDeck(id); err != nil {
				log.Printf("Error deleting deck %d: %v", id, err)
				http.Error(w, "Failed to delete deck", http.StatusInternalServerError)
				return
			}
		case r.Method == http.MethodPost && action == "group":
			var groupID sql.NullInt64
			if raw := r.PostFormValue("group"); raw != "" {
				gid, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					http.Error(w, "Invalid group ID", http.StatusBadRequest)
					return
				}
				groupID = sql.NullInt64{Int64: gid, Valid: true}
			}
			if err := s.db.AssignDeckToGroup(id, groupID); err != nil {
				log.Printf("Error assigning deck %d: %v", id, err)
				http.Error(w, "Failed to move deck", http.StatusInternalServerError)
				return
			}
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.renderDeckList(w)
	}
}

func (s *Server) renderDeckList(w http.ResponseWriter) {
	data, err := s.deckPageData()
	if err != nil {
		log.Printf("Error getting deck overviews: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.templates.ExecuteTemplate(w, "deck_list", data)
}

// handlePostSync triggers a manual sync and re-renders the source list.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := s.importer.SyncAll(); err != nil {
			log.Printf("Error running sync: %v", err)
			http.Error(w, "Sync failed", http.StatusInternalServerError)
			return
		}

		sources, err := s.db.GetAllSources()
		if err != nil {
			log.Printf("Error getting sources after sync: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		data := map[string]interface{}{
			"Sources": sources,
		}

		// Render both the success message and the updated list
		s.templates.ExecuteTemplate(w, "sync_success", nil)
		s.templates.ExecuteTemplate(w, "source_list", data)
	}
}

// handleSources handles both GET and POST for the sources page.
func (s *Server) handleSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSources(w, r)
		case http.MethodPost:
			s.handlePostSource(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// handleGetSources renders the source management page.
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllSources()
	if err != nil {
		log.Printf("Error getting sources: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	data := map[string]interface{}{
		"Sources": sources,
	}
	s.templates.ExecuteTemplate(w, "sources", data)
}

// handlePostSource adds a new source and re-renders the source list.
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.PostFormValue("path"))
	if path == "" {
		http.Error(w, "Path cannot be empty", http.StatusBadRequest)
		return
	}

	if _, err := s.importer.AddSource(path); err != nil {
		log.Printf("Error inserting new source: %v", err)
		http.Error(w, "Failed to add source", http.StatusInternalServerError)
		return
	}

	sources, err := s.db.GetAllSources()
	if err != nil {
		log.Printf("Error getting sources after add: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	data := map[string]interface{}{
		"Sources": sources,
	}
	s.templates.ExecuteTemplate(w, "source_list", data)
}

// handleDeleteSource deletes a source and re-renders the source list.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		idStr := strings.TrimPrefix(r.URL.Path, "/sources/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid source ID", http.StatusBadRequest)
			return
		}

		if err := s.db.DeleteSource(id); err != nil {
			log.Printf("Error deleting source %d: %v", id, err)
			http.Error(w, "Failed to delete source", http.StatusInternalServerError)
			return
		}

		sources, err := s.db.GetAllSources()
		if err != nil {
			log.Printf("Error getting sources after delete: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		data := map[string]interface{}{
			"Sources": sources,
		}
		s.templates.ExecuteTemplate(w, "source_list", data)
	}
}

func isTransitionError(err error) bool {
	return errors.Is(err, session.ErrInvalidTransition) || errors.Is(err, session.ErrSessionOver)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/davidkendallcasey/cuecard/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Group is an optional folder grouping decks.
type Group struct {
	ID   int64
	Name string
}

// Deck is a named collection of cards, optionally belonging to a group and
// optionally owned by an imported source.
type Deck struct {
	ID       int64
	Name     string
	GroupID  sql.NullInt64
	SourceID sql.NullInt64
}

// DeckOverview is a deck together with its per-tier card counts.
type DeckOverview struct {
	Deck
	GroupName sql.NullString
	Total     int
	Low       int
	Medium    int
	Mastered  int
}

// Source represents a deck source, either a local path or a git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// CreateGroup inserts a new group and returns its ID.
func (db *DB) CreateGroup(name string) (int64, error) {
	res, err := db.conn.Exec(`INSERT INTO groups (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert group %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for group %s: %w", name, err)
	}
	return id, nil
}

// ListGroups retrieves all groups ordered by name.
func (db *DB) ListGroups() ([]Group, error) {
	rows, err := db.conn.Query(`SELECT id, name FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// RenameGroup updates a group's name.
func (db *DB) RenameGroup(id int64, name string) error {
	_, err := db.conn.Exec(`UPDATE groups SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename group %d: %w", id, err)
	}
	return nil
}

// DeleteGroup removes a group. Decks in the group are kept and become
// ungrouped.
func (db *DB) DeleteGroup(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group %d: %w", id, err)
	}
	return nil
}

// CreateDeck inserts a new deck and returns its ID.
func (db *DB) CreateDeck(name string, groupID, sourceID sql.NullInt64) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO decks (name, group_id, source_id)
		VALUES (?, ?, ?)
	`, name, groupID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deck %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for deck %s: %w", name, err)
	}
	return id, nil
}

// FindDeckByName retrieves a deck by its name, or nil if it does not exist.
func (db *DB) FindDeckByName(name string) (*Deck, error) {
	var d Deck
	row := db.conn.QueryRow(`
		SELECT id, name, group_id, source_id
		FROM decks WHERE name = ?
	`, name)

	err := row.Scan(&d.ID, &d.Name, &d.GroupID, &d.SourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Deck not found
		}
		return nil, fmt.Errorf("failed to find deck by name %s: %w", name, err)
	}
	return &d, nil
}

// AssignDeckToGroup moves a deck into a group; a null groupID ungroups it.
func (db *DB) AssignDeckToGroup(deckID int64, groupID sql.NullInt64) error {
	_, err := db.conn.Exec(`UPDATE decks SET group_id = ? WHERE id = ?`, groupID, deckID)
	if err != nil {
		return fmt.Errorf("failed to assign deck %d to group: %w", deckID, err)
	}
	return nil
}

// DeleteDeck removes a deck and, through the schema's cascade, its cards.
func (db *DB) DeleteDeck(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	return nil
}

// ListDeckOverviews retrieves all decks with their per-tier card counts,
// grouped decks first, ordered by group then deck name.
func (db *DB) ListDeckOverviews() ([]DeckOverview, error) {
	rows, err := db.conn.Query(`
		SELECT d.id, d.name, d.group_id, d.source_id, g.name,
			COUNT(c.id),
			COALESCE(SUM(CASE WHEN c.confidence_score <= 2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.confidence_score BETWEEN 3 AND 4 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.confidence_score = 5 THEN 1 ELSE 0 END), 0)
		FROM decks d
		LEFT JOIN groups g ON g.id = d.group_id
		LEFT JOIN cards c ON c.deck_id = d.id
		GROUP BY d.id
		ORDER BY g.name IS NULL, g.name, d.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deck overviews: %w", err)
	}
	defer rows.Close()

	var overviews []DeckOverview
	for rows.Next() {
		var o DeckOverview
		if err := rows.Scan(
			&o.ID,
			&o.Name,
			&o.GroupID,
			&o.SourceID,
			&o.GroupName,
			&o.Total,
			&o.Low,
			&o.Medium,
			&o.Mastered,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deck overview row: %w", err)
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

// UpsertCard inserts a card into a deck. If the fingerprint already exists
// the card is re-homed to the deck but its confidence score and last-seen
// timestamp are preserved.
func (db *DB) UpsertCard(card domain.Card, deckID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO cards (id, deck_id, front, back, confidence_score, last_seen_at)
		VALUES (?, ?, ?, ?, 0, 0)
		ON CONFLICT(id) DO UPDATE SET deck_id = excluded.deck_id
	`, card.ID, deckID, card.Front, card.Back)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

// DeleteCard removes a card from the database by its fingerprint.
func (db *DB) DeleteCard(id string) error {
	_, err := db.conn.Exec(`DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// CardIDsBySource retrieves the fingerprints of every card belonging to a
// deck owned by the given source.
func (db *DB) CardIDsBySource(sourceID int64) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT c.id
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE d.source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card ID for source ID %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CardsForScope retrieves the eligible card pool for one or more decks.
func (db *DB) CardsForScope(ctx context.Context, deckIDs []int64) ([]domain.Card, error) {
	if len(deckIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(deckIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(deckIDs))
	for i, id := range deckIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, front, back, confidence_score, last_seen_at
		FROM cards WHERE deck_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for scope: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.Front, &c.Back, &c.ConfidenceScore, &c.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// RecordGrade persists a single grading event: it sets the card's new
// confidence score and last-seen timestamp and appends to the review log,
// in one transaction. Grading an unknown card is an error and writes
// nothing.
func (db *DB) RecordGrade(ctx context.Context, cardID string, score int, seenAt time.Time) error {
	if !domain.ValidGrade(score) {
		return fmt.Errorf("invalid grade %d for card %s", score, cardID)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin grade transaction: %w", err)
	}
	defer tx.Rollback()

	millis := seenAt.UnixMilli()
	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET confidence_score = ?, last_seen_at = ?
		WHERE id = ?
	`, score, millis, cardID)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", cardID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check grade update for card %s: %w", cardID, err)
	}
	if affected == 0 {
		return fmt.Errorf("cannot grade unknown card %s", cardID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_log (card_id, score, reviewed_at)
		VALUES (?, ?, ?)
	`, cardID, score, millis); err != nil {
		return fmt.Errorf("failed to append review log for card %s: %w", cardID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grade for card %s: %w", cardID, err)
	}
	return nil
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path, or nil
// if it does not exist.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source and, through the schema's cascades, its
// decks and cards.
func (db *DB) DeleteSource(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

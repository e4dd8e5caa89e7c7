package importer

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidkendallcasey/cuecard/internal/fingerprint"
	"github.com/davidkendallcasey/cuecard/internal/gitsource"
	"github.com/davidkendallcasey/cuecard/internal/parser"
	"github.com/davidkendallcasey/cuecard/internal/storage"
)

// Importer reconciles deck sources into the card store. One deck per
// markdown file; card identity is the content fingerprint, so unchanged
// cards keep their confidence score and last-seen timestamp across runs.
type Importer struct {
	db       *storage.DB
	reposDir string
}

// New returns an Importer that checks git sources out under reposDir.
func New(db *storage.DB, reposDir string) *Importer {
	return &Importer{db: db, reposDir: reposDir}
}

// IsGitPath reports whether a source path should be treated as a git URL.
func IsGitPath(path string) bool {
	return strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// AddSource registers a source if it is not already known and returns it.
func (im *Importer) AddSource(path string) (*storage.Source, error) {
	existing, err := im.db.FindSourceByPath(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sourceType := "local"
	if IsGitPath(path) {
		sourceType = "git"
	}
	id, err := im.db.InsertSource(path, sourceType)
	if err != nil {
		return nil, err
	}
	return &storage.Source{ID: id, Path: path, Type: sourceType}, nil
}

// SyncAll iterates over all registered sources and reconciles each one.
// Per-source failures are logged and skipped so one broken source cannot
// block the rest.
func (im *Importer) SyncAll() error {
	slog.Info("Starting sync process for all sources...")
	sources, err := im.db.GetAllSources()
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured")
		return nil
	}

	for _, source := range sources {
		if err := im.SyncSource(source); err != nil {
			slog.Error("Error syncing source", "id", source.ID, "path", source.Path, "error", err)
		}
	}
	slog.Info("Sync process complete.")
	return nil
}

// SyncSource reconciles a single source: git sources are cloned or pulled
// first, then the checkout (or local directory) is walked for deck files.
func (im *Importer) SyncSource(source storage.Source) error {
	slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	dir := source.Path
	if source.Type == "git" {
		if err := os.MkdirAll(im.reposDir, 0o755); err != nil {
			return fmt.Errorf("failed to create repos directory: %w", err)
		}
		localPath, err := localPathForGitURL(im.reposDir, source.Path)
		if err != nil {
			return err
		}
		if err := gitsource.Sync(source.Path, localPath); err != nil {
			return err
		}
		dir = localPath
	}

	return im.reconcile(source, dir)
}

// reconcile walks dir for markdown deck files, upserts every card found and
// deletes cards that no longer appear in the source.
func (im *Importer) reconcile(source storage.Source, dir string) error {
	foundCardIDs := make(map[string]bool)
	var parsed, upsertErrors int

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		deck, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			slog.Warn("Failed to parse deck file", "path", path, "error", parseErr)
			return nil
		}
		if len(deck.Cards) == 0 {
			return nil
		}

		deckID, deckErr := im.ensureDeck(deckName(deck.Title, path), source.ID)
		if deckErr != nil {
			return deckErr
		}

		for _, card := range deck.Cards {
			card.ID = fingerprint.Hash(card.Front, card.Back)
			foundCardIDs[card.ID] = true
			parsed++
			if err := im.db.UpsertCard(card, deckID); err != nil {
				slog.Warn("Failed to upsert card", "id", card.ID, "error", err)
				upsertErrors++
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk source directory %s: %w", dir, walkErr)
	}

	existingIDs, err := im.db.CardIDsBySource(source.ID)
	if err != nil {
		return err
	}

	var orphaned int
	for _, id := range existingIDs {
		if !foundCardIDs[id] {
			orphaned++
			if err := im.db.DeleteCard(id); err != nil {
				slog.Warn("Failed to delete orphaned card", "id", id, "error", err)
			}
		}
	}

	if err := im.db.UpdateSourceLastScanned(source.ID); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"parsed_cards", parsed,
		"orphaned_deleted", orphaned,
		"errors", upsertErrors,
	)
	return nil
}

// ensureDeck finds or creates the deck a file's cards belong to.
func (im *Importer) ensureDeck(name string, sourceID int64) (int64, error) {
	deck, err := im.db.FindDeckByName(name)
	if err != nil {
		return 0, err
	}
	if deck != nil {
		return deck.ID, nil
	}
	return im.db.CreateDeck(name, sql.NullInt64{}, sql.NullInt64{Int64: sourceID, Valid: true})
}

// deckName prefers the file's `# ` heading, falling back to the file name.
func deckName(title, path string) string {
	if title != "" {
		return title
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func localPathForGitURL(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}

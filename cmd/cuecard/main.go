package main

import (
	"log"
	"net/http"
	"os"

	"github.com/davidkendallcasey/cuecard/internal/config"
	"github.com/davidkendallcasey/cuecard/internal/importer"
	"github.com/davidkendallcasey/cuecard/internal/storage"
	"github.com/davidkendallcasey/cuecard/internal/web"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	log.Printf("Database opened successfully: %s", cfg.DB)

	im := importer.New(db, cfg.Repos)

	// Register configured sources and pull everything in before serving.
	for _, path := range cfg.Sources {
		if _, err := im.AddSource(path); err != nil {
			log.Fatalf("Failed to register source %s: %v", path, err)
		}
	}
	if err := im.SyncAll(); err != nil {
		log.Fatalf("Failed to sync sources: %v", err)
	}

	server := web.NewServer(db, im, cfg.Intensity)
	log.Printf("Listening on http://%s", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, server); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

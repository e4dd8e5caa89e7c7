package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "CUECARD_"

// Config holds the runtime settings. Values are layered: flag defaults,
// then the YAML config file, then CUECARD_* environment variables, then
// explicitly set flags.
type Config struct {
	Listen    string   `koanf:"listen" validate:"required,hostname_port"`
	DB        string   `koanf:"db" validate:"required"`
	Repos     string   `koanf:"repos" validate:"required"`
	Intensity int      `koanf:"intensity" validate:"min=5,max=100"`
	Sources   []string `koanf:"sources" validate:"dive,required"`
}

// Flags returns the flag set the binary exposes; its defaults seed the
// configuration.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("cuecard", pflag.ContinueOnError)
	f.String("config", "", "Path to a YAML config file")
	f.String("listen", "localhost:8484", "Address for the web UI to listen on")
	f.String("db", "cuecard.db", "Path to the SQLite database file")
	f.String("repos", "repos", "Directory git deck sources are checked out under")
	f.Int("intensity", 20, "Default session length, 5-100 cards")
	f.StringSlice("sources", nil, "Deck sources (directories or git URLs) to register at startup")
	return f
}

// Load builds the configuration from the parsed flag set.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// posflag fills the gaps with flag defaults and lets explicitly set
	// flags override everything.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

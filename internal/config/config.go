// Package config loads roomchat settings from ROOMCHAT_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds client settings. Command-line flags default to these values.
type Config struct {
	Host     string   `env:"ROOMCHAT_HOST"      envDefault:"localhost:8000"`
	Secure   bool     `env:"ROOMCHAT_SECURE"`
	Rooms    []string `env:"ROOMCHAT_ROOMS"     envDefault:"lobby,general,random" envSeparator:","`
	Room     string   `env:"ROOMCHAT_ROOM"`
	DataPath string   `env:"ROOMCHAT_DATA_PATH"`
	History  int      `env:"ROOMCHAT_HISTORY"   envDefault:"50"`
	LogFile  string   `env:"ROOMCHAT_LOG_FILE"`
	LogLevel string   `env:"ROOMCHAT_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NormalizeRooms trims, drops empty entries and removes duplicates while
// keeping the first occurrence order.
func NormalizeRooms(rooms []string) []string {
	seen := make(map[string]struct{}, len(rooms))
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const envPrefix = "LOANLEDGER_"

// PurgeScope controls which derived ledger entries a regeneration replaces.
type PurgeScope string

const (
	// PurgeAll replaces every derived entry the user has.
	PurgeAll PurgeScope = "all"
	// PurgeYear replaces only the current calendar year's derived entries.
	PurgeYear PurgeScope = "year"
)

// Config holds the server settings read from the environment.
type Config struct {
	Addr        string
	DBDriver    string
	DBDSN       string
	RedisAddr   string
	LockTTL     time.Duration
	Location    *time.Location
	PurgeScope  PurgeScope
	DefaultUser string
	LogLevel    zerolog.Level
}

// Load reads LOANLEDGER_* variables, falling back to defaults for unset ones.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(envPrefix + key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Addr:        get("ADDR", ":8080"),
		DBDriver:    get("DB_DRIVER", "sqlite3"),
		DBDSN:       get("DB_DSN", "loanledger.db"),
		RedisAddr:   get("REDIS_ADDR", ""),
		PurgeScope:  PurgeScope(get("PURGE_SCOPE", string(PurgeYear))),
		DefaultUser: get("DEFAULT_USER", "default"),
	}

	switch cfg.DBDriver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported %sDB_DRIVER %q", envPrefix, cfg.DBDriver)
	}

	switch cfg.PurgeScope {
	case PurgeAll, PurgeYear:
	default:
		return nil, fmt.Errorf("unsupported %sPURGE_SCOPE %q", envPrefix, cfg.PurgeScope)
	}

	ttl, err := time.ParseDuration(get("LOCK_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid %sLOCK_TTL: %w", envPrefix, err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%sLOCK_TTL must be positive", envPrefix)
	}
	cfg.LockTTL = ttl

	loc, err := time.LoadLocation(get("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid %sTIMEZONE: %w", envPrefix, err)
	}
	cfg.Location = loc

	level, err := zerolog.ParseLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid %sLOG_LEVEL: %w", envPrefix, err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

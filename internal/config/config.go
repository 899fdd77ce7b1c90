package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
)

// Profile selects which HTTP surface the server exposes.
type Profile string

const (
	// Ephemeral serves the unauthenticated JSON API over an in-memory list.
	Ephemeral Profile = "ephemeral"
	// Persistent serves the session-authenticated API and HTML views.
	Persistent Profile = "persistent"
)

// Backend names a store implementation.
type Backend string

const (
	Memory Backend = "memory"
	SQLite Backend = "sqlite"
	Mongo  Backend = "mongo"
)

type Config struct {
	Port    string  `env:"PORT" envDefault:"3000"`
	Profile Profile `env:"PROFILE" envDefault:"ephemeral"`
	// Backend defaults to memory for the ephemeral profile and sqlite otherwise.
	Backend Backend `env:"BACKEND"`

	DBPath        string `env:"DB_PATH" envDefault:"expenses.db"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"expensetracker"`

	Session Session

	ScopeMutationsToOwner bool `env:"SCOPE_MUTATIONS_TO_OWNER" envDefault:"true"`
	MemoryMonotonicIDs    bool `env:"MEMORY_MONOTONIC_IDS" envDefault:"false"`

	AdminUser     string `env:"ADMIN_USER"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	Log Log
}

type Session struct {
	Secret          string        `env:"SESSION_SECRET"`
	Duration        time.Duration `env:"SESSION_DURATION" envDefault:"720h"`
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	SecureCookie    bool          `env:"SECURE_COOKIE" envDefault:"false"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		if c.Profile == Persistent {
			c.Backend = SQLite
		} else {
			c.Backend = Memory
		}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	if !slices.Contains([]Profile{Ephemeral, Persistent}, c.Profile) {
		problems = append(problems, fmt.Sprintf("invalid profile '%s': must be %s or %s", c.Profile, Ephemeral, Persistent))
	}
	if !slices.Contains([]Backend{Memory, SQLite, Mongo}, c.Backend) {
		problems = append(problems, fmt.Sprintf("invalid backend '%s': must be one of memory, sqlite, mongo", c.Backend))
	}

	if c.Profile == Persistent {
		if c.Backend == Memory {
			problems = append(problems, "persistent profile needs a sqlite or mongo backend")
		}
		if c.Session.Secret == "" {
			problems = append(problems, "SESSION_SECRET is required for the persistent profile")
		} else if len(c.Session.Secret) < 32 {
			problems = append(problems, "SESSION_SECRET must be at least 32 bytes")
		}
		if c.Session.Duration < time.Minute {
			problems = append(problems, fmt.Sprintf("invalid session duration %v: must be at least 1 minute", c.Session.Duration))
		}
		if c.Session.CleanupInterval < time.Second {
			problems = append(problems, fmt.Sprintf("invalid session cleanup interval %v: must be at least 1 second", c.Session.CleanupInterval))
		}
		if (c.AdminUser == "") != (c.AdminPassword == "") {
			problems = append(problems, "ADMIN_USER and ADMIN_PASSWORD must be set together")
		}
	}

	if c.Backend == SQLite && c.DBPath == "" {
		problems = append(problems, "DB_PATH cannot be empty when using sqlite backend")
	}
	if c.Backend == Mongo {
		if !strings.HasPrefix(c.MongoURI, "mongodb://") && !strings.HasPrefix(c.MongoURI, "mongodb+srv://") {
			problems = append(problems, fmt.Sprintf("invalid MONGO_URI '%s': must start with mongodb:// or mongodb+srv://", c.MongoURI))
		}
		if c.MongoDatabase == "" {
			problems = append(problems, "MONGO_DATABASE cannot be empty when using mongo backend")
		}
	}

	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/filtergraph/internal/errs"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades the journal schema to version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order on databases whose user_version is behind.
// schema.sql always describes version 0.
var migrations = []migration{
	{
		version: 1,
		name:    "events by code",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_events_session_code ON events(session_id, code)`,
	},
}

// SchemaVersion is the user_version of a fully migrated journal.
var SchemaVersion = migrations[len(migrations)-1].version

// synchronousModes maps the accepted synchronous settings to the value
// SQLite reports back for them.
var synchronousModes = map[string]string{
	"off":    "0",
	"normal": "1",
	"full":   "2",
	"extra":  "3",
}

// Store is the durable journal for graph sessions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	busyTimeout time.Duration
	synchronous string
	logger      *slog.Logger
}

// WithBusyTimeout sets how long a write waits on a locked database.
// Default 5s.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *openConfig) { c.busyTimeout = d }
}

// WithSynchronous sets the SQLite synchronous mode: off, normal, full or
// extra. Default normal.
func WithSynchronous(mode string) Option {
	return func(c *openConfig) { c.synchronous = strings.ToLower(mode) }
}

// WithLogger sets the store's logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *openConfig) { c.logger = l }
}

// Open creates or opens the journal at path, applies pragmas, checks that
// SQLite accepted them and migrates the schema. Opening an existing journal
// is idempotent.
//
// Pass ":memory:" for a private in-memory journal; with a single pooled
// connection it lives exactly as long as the Store. In-memory journals
// cannot use WAL and report journal_mode "memory".
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openConfig{
		busyTimeout: 5 * time.Second,
		synchronous: "normal",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, ok := synchronousModes[cfg.synchronous]; !ok {
		return nil, errs.InvalidArgument("store.open", fmt.Sprintf("unknown synchronous mode %q", cfg.synchronous))
	}
	if cfg.busyTimeout < 0 {
		return nil, errs.InvalidArgument("store.open", "busy timeout must not be negative")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" is per
	// connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: cfg.logger}
	if err := s.configure(cfg, path == ":memory:"); err != nil {
		db.Close()
		return nil, err
	}
	from, err := s.migrate()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.logger.Debug("journal opened",
		"path", path,
		"synchronous", cfg.synchronous,
		"busy_timeout", cfg.busyTimeout,
		"schema_from", from,
		"schema", SchemaVersion)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// configure sets the journal pragmas and reads each one back.
func (s *Store) configure(cfg openConfig, inMemory bool) error {
	journalMode := "wal"
	if inMemory {
		journalMode = "memory"
	}
	settings := []struct {
		name, value, want string
	}{
		{"journal_mode", "WAL", journalMode},
		{"synchronous", strings.ToUpper(cfg.synchronous), synchronousModes[cfg.synchronous]},
		{"busy_timeout", strconv.FormatInt(cfg.busyTimeout.Milliseconds(), 10), strconv.FormatInt(cfg.busyTimeout.Milliseconds(), 10)},
		{"foreign_keys", "ON", "1"},
	}
	for _, p := range settings {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", p.name, err)
		}
		got, err := s.pragma(p.name)
		if err != nil {
			return err
		}
		if !strings.EqualFold(got, p.want) {
			return errs.Unexpected("store.open",
				fmt.Sprintf("pragma %s = %q, want %q", p.name, got, p.want), nil)
		}
	}
	return nil
}

// migrate applies the base schema and every migration newer than the
// stored user_version. It returns the version the journal started at.
func (s *Store) migrate() (int, error) {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return 0, fmt.Errorf("failed to execute schema: %w", err)
	}

	raw, err := s.pragma("user_version")
	if err != nil {
		return 0, err
	}
	from, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse user_version %q: %w", raw, err)
	}
	if from > SchemaVersion {
		return from, fmt.Errorf("journal schema %d is newer than supported %d", from, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= from {
			continue
		}
		if _, err := s.db.Exec(m.stmt); err != nil {
			return from, fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return from, fmt.Errorf("set user_version %d: %w", m.version, err)
		}
		s.logger.Info("journal migrated", "version", m.version, "migration", m.name)
	}
	return from, nil
}

func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}

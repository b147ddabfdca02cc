// Package store keeps a local SQLite log of occupancy transitions so recent
// sessions survive restarts and broker or database outages.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultRecentLimit is the number of events Recent returns when limit <= 0.
const DefaultRecentLimit = 50

// EventLog records occupancy events.
type EventLog interface {
	Record(ctx context.Context, e logic.Event) error
	Recent(ctx context.Context, limit int) ([]logic.Event, error)
	Close() error
}

// Store is an EventLog backed by a SQLite file.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (creating if needed) the database at path and applies any
// pending schema migrations.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// tick loop and HTTP readers share one connection
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: s.log}
	// m is not closed: that would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, error) {
	var v uint
	err := s.db.QueryRow(`SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Record appends an event.
func (s *Store) Record(ctx context.Context, e logic.Event) error {
	var dist sql.NullFloat64
	if e.Valid {
		dist = sql.NullFloat64{Float64: e.DistanceCM, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (timestamp_ns, state, distance_cm, session_seconds) VALUES (?, ?, ?, ?)`,
		e.Timestamp.UnixNano(), string(e.State), dist, int64(e.Session/time.Second),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]logic.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp_ns, state, distance_cm, session_seconds
		   FROM events
		  ORDER BY timestamp_ns DESC, id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []logic.Event
	for rows.Next() {
		var (
			ts      int64
			state   string
			dist    sql.NullFloat64
			session int64
		)
		if err := rows.Scan(&ts, &state, &dist, &session); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, logic.Event{
			Timestamp:  time.Unix(0, ts).UTC(),
			State:      logic.State(state),
			DistanceCM: dist.Float64,
			Valid:      dist.Valid,
			Session:    time.Duration(session) * time.Second,
		})
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	log *zap.SugaredLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("migrate: "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

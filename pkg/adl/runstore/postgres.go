package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
)

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Validate reports the first invalid field.
func (c PostgresConfig) Validate() error {
	if c.URL == "" {
		return errors.New("postgres url is required")
	}
	if c.PingTimeout < 0 {
		return errors.New("postgres ping timeout must be >= 0")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("postgres connection limits must be >= 0")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("postgres max idle conns must be <= max open conns")
	}
	return nil
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.PingTimeout == 0 {
		c.PingTimeout = 2 * time.Second
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

// PostgresStore persists run records to PostgreSQL through pgx.
type PostgresStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewPostgresStore connects, pings and ensures the runs table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS adl_runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			data BYTEA NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adl_runs (run_id, status, started_at, finished_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			data = EXCLUDED.data
	`, rec.RunID, string(rec.Status), rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.Data)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rec := Record{RunID: runID}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status, started_at, finished_at, data FROM adl_runs
		WHERE run_id = $1
	`, runID).Scan(&status, &rec.StartedAt, &rec.FinishedAt, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	rec.Status = scheduler.Status(status)
	rec.StartedAt = rec.StartedAt.UTC()
	rec.FinishedAt = rec.FinishedAt.UTC()
	return &rec, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, status, started_at, finished_at, octet_length(data)
		FROM adl_runs
		ORDER BY started_at, run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var (
			info   Info
			status string
		)
		if err := rows.Scan(&info.RunID, &status, &info.StartedAt, &info.FinishedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan run info: %w", err)
		}
		info.Status = scheduler.Status(status)
		info.StartedAt = info.StartedAt.UTC()
		info.FinishedAt = info.FinishedAt.UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM adl_runs WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

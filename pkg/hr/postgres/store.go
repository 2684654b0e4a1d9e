// Package postgres provides PostgreSQL storage for days-off balances.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // postgres driver

	"github.com/txn2/secure-agent/pkg/hr"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements hr.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// Config configures the PostgreSQL days-off store.
type Config struct {
	DSN          string
	MaxOpenConns int
}

// Open connects to PostgreSQL, runs pending migrations, and returns a Store.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db), nil
}

// New creates a Store over an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DaysOff implements hr.Store.
func (s *Store) DaysOff(ctx context.Context, person string) (int, error) {
	query, args, err := psq.
		Select("days_off").
		From("days_off_balances").
		Where(sq.Eq{"person_name": person}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}

	var days int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&days); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, hr.ErrNotFound
		}
		return 0, fmt.Errorf("querying days off: %w", err)
	}
	return days, nil
}

// SetDaysOff inserts or updates a person's balance.
func (s *Store) SetDaysOff(ctx context.Context, person string, days int) error {
	query, args, err := psq.
		Insert("days_off_balances").
		Columns("person_name", "days_off").
		Values(person, days).
		Suffix("ON CONFLICT (person_name) DO UPDATE SET days_off = EXCLUDED.days_off").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting days off: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Verify interface compliance.
var _ hr.Store = (*Store)(nil)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sentilytics/internal/core"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed preference and product history store
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sentilytics.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	// Preferences are small string values scoped to an owner (user ID)
	preferencesTable := `
	CREATE TABLE IF NOT EXISTS preferences (
		owner TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (owner, key)
	);`

	// Product history feeds the analytics comparison table
	historyTable := `
	CREATE TABLE IF NOT EXISTS product_history (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		review_count INTEGER NOT NULL,
		positive INTEGER NOT NULL,
		negative INTEGER NOT NULL,
		overall_rating REAL NOT NULL,
		analyzed_at DATETIME NOT NULL
	);`

	historyIndex := `CREATE INDEX IF NOT EXISTS idx_product_history_owner ON product_history (owner, analyzed_at);`

	for _, stmt := range []string{preferencesTable, historyTable, historyIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key for owner. The bool is false when
// no value exists.
func (s *Store) Get(ctx context.Context, owner, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE owner = ? AND key = ?`, owner, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key for owner, replacing any previous value.
func (s *Store) Set(ctx context.Context, owner, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO preferences (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// Delete removes keys for owner. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, owner string, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM preferences WHERE owner = ? AND key = ?`, owner, key); err != nil {
			return fmt.Errorf("failed to delete preference %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// RecordProduct appends a product analysis snapshot to owner's history.
func (s *Store) RecordProduct(ctx context.Context, owner string, p core.ProductSnapshot) error {
	analyzedAt := p.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO product_history (id, owner, name, review_count, positive, negative, overall_rating, analyzed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), owner, p.Name, p.ReviewCount, p.Positive, p.Negative, p.OverallRating, analyzedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record product %s: %w", p.Name, err)
	}
	return nil
}

// ListProducts returns owner's product history, oldest first.
func (s *Store) ListProducts(ctx context.Context, owner string) ([]core.ProductSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT name, review_count, positive, negative, overall_rating, analyzed_at
	FROM product_history WHERE owner = ? ORDER BY analyzed_at ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []core.ProductSnapshot
	for rows.Next() {
		var p core.ProductSnapshot
		if err := rows.Scan(&p.Name, &p.ReviewCount, &p.Positive, &p.Negative, &p.OverallRating, &p.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats holds row counts for the health endpoint
type Stats struct {
	PreferenceCount int `json:"preferenceCount"`
	ProductCount    int `json:"productCount"`
}

// GetStats returns row counts
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM preferences`).Scan(&stats.PreferenceCount); err != nil {
		return nil, fmt.Errorf("failed to count preferences: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_history`).Scan(&stats.ProductCount); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	return stats, nil
}

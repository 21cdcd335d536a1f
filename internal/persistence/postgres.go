// Package persistence provides the Postgres implementation of the
// preference and product history store
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sentilytics/internal/core"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDB stores preferences and product history in PostgreSQL
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, maxOpenConns int) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(min(5, maxOpenConns))
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Get returns the value stored under key for owner.
func (p *PostgresDB) Get(ctx context.Context, owner, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE owner = $1 AND key = $2`, owner, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key for owner, replacing any previous value.
func (p *PostgresDB) Set(ctx context.Context, owner, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO preferences (owner, key, value, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		owner, key, value)
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// Delete removes keys for owner. Missing keys are ignored.
func (p *PostgresDB) Delete(ctx context.Context, owner string, keys ...string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM preferences WHERE owner = $1 AND key = $2`, owner, key); err != nil {
			return fmt.Errorf("failed to delete preference %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// RecordProduct appends a product analysis snapshot to owner's history.
func (p *PostgresDB) RecordProduct(ctx context.Context, owner string, s core.ProductSnapshot) error {
	analyzedAt := s.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO product_history (id, owner, name, review_count, positive, negative, overall_rating, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), owner, s.Name, s.ReviewCount, s.Positive, s.Negative, s.OverallRating, analyzedAt)
	if err != nil {
		return fmt.Errorf("failed to record product %s: %w", s.Name, err)
	}
	return nil
}

// ListProducts returns owner's product history, oldest first.
func (p *PostgresDB) ListProducts(ctx context.Context, owner string) ([]core.ProductSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name, review_count, positive, negative, overall_rating, analyzed_at
		FROM product_history WHERE owner = $1 ORDER BY analyzed_at ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []core.ProductSnapshot
	for rows.Next() {
		var s core.ProductSnapshot
		if err := rows.Scan(&s.Name, &s.ReviewCount, &s.Positive, &s.Negative, &s.OverallRating, &s.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	"sentilytics/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockID serializes concurrent `migrate up` runs and server starts.
const migrationLockID = 7305911

// Migration is one numbered SQL file under migrations/, named
// NNN_description.sql.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports whether a known migration has been applied.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// MigrationManager applies the embedded schema to a PostgresDB.
type MigrationManager struct {
	db     *PostgresDB
	source fs.FS
	log    *slog.Logger
}

// NewMigrationManager creates a manager for the embedded migrations.
func NewMigrationManager(db *PostgresDB) *MigrationManager {
	return &MigrationManager{
		db:     db,
		source: migrationFiles,
		log:    logger.Get().With("component", "migrations"),
	}
}

// Migrate applies every pending migration in version order, one transaction each.
func (m *MigrationManager) Migrate(ctx context.Context) error {
	pending, err := m.pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		m.log.Info("Schema is up to date")
		return nil
	}

	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %03d (%s): %w", mig.Version, mig.Description, err)
		}
	}
	m.log.Info("Schema migrated", "applied", len(pending))
	return nil
}

// Status lists every known migration and whether it has been applied.
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	known, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, len(known))
	for i, mig := range known {
		out[i] = MigrationStatus{
			Version:     mig.Version,
			Description: mig.Description,
			Applied:     applied[mig.Version],
		}
	}
	return out, nil
}

func (m *MigrationManager) pending(ctx context.Context) ([]Migration, error) {
	known, applied, err := m.state(ctx)
	if err != nil {
		return nil, err
	}
	return pendingMigrations(known, applied), nil
}

// state reads the embedded migrations and the versions recorded in the database.
func (m *MigrationManager) state(ctx context.Context) ([]Migration, map[int]bool, error) {
	known, err := m.loadMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	if _, err := m.db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	rows, err := m.db.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, err
		}
		applied[v] = true
	}
	return known, applied, rows.Err()
}

// loadMigrations returns the migrations in source sorted by version. Files
// that do not follow the naming scheme are skipped with a warning; two files
// with the same version are an error.
func (m *MigrationManager) loadMigrations() ([]Migration, error) {
	names, err := fs.Glob(m.source, "migrations/*.sql")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var out []Migration
	for _, name := range names {
		version, desc, ok := parseMigrationName(path.Base(name))
		if !ok {
			m.log.Warn("Skipping migration with invalid name", "file", name)
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Description: desc, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// parseMigrationName splits "001_initial_schema.sql" into 1 and "initial schema".
func parseMigrationName(name string) (int, string, bool) {
	stem, ok := strings.CutSuffix(name, ".sql")
	if !ok {
		return 0, "", false
	}
	num, desc, ok := strings.Cut(stem, "_")
	if !ok || desc == "" {
		return 0, "", false
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", false
	}
	return version, strings.ReplaceAll(desc, "_", " "), true
}

func pendingMigrations(known []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, mig := range known {
		if !applied[mig.Version] {
			out = append(out, mig)
		}
	}
	return out
}

// apply runs mig and records it in one transaction. The advisory lock keeps a
// second migrator from applying the same version concurrently.
func (m *MigrationManager) apply(ctx context.Context, mig Migration) error {
	m.log.Info("Applying migration", "version", mig.Version, "description", mig.Description)

	tx, err := m.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING`,
		mig.Version, mig.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		m.log.Info("Migration already applied by another process", "version", mig.Version)
		return nil
	}

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	return tx.Commit()
}

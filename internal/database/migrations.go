package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// migrationLockKey identifies the session advisory lock held while migrating
const migrationLockKey int64 = 0x53544e44

const schemaMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		title VARCHAR(500),
		checksum VARCHAR(64),
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)
`

// Migration is one versioned up script
type Migration struct {
	Version  string
	Title    string
	SQL      string
	Checksum string
}

// Migrator applies the SQL scripts of a migration source in version order
type Migrator struct {
	db     *sql.DB
	source fs.FS
}

// NewMigrator reads migrations from dir when it names an existing directory
// and from embedded otherwise.
func NewMigrator(db *sql.DB, embedded fs.FS, dir string) *Migrator {
	source := embedded
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			slog.Info("Using migrations from disk", "dir", dir)
			source = os.DirFS(dir)
		}
	}
	return &Migrator{db: db, source: source}
}

// Up applies every pending migration and returns how many ran. The batch runs
// on a single connection holding a session advisory lock, so API instances
// started together apply each script exactly once.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	pending, err := loadMigrations(m.source)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return 0, fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedChecksums(ctx, conn)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	if err := verifyChecksums(applied, pending); err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range pending {
		if _, done := applied[migration.Version]; done {
			continue
		}
		if err := apply(ctx, conn, migration); err != nil {
			return count, fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
		slog.Info("Applied migration", "version", migration.Version, "title", migration.Title)
		count++
	}
	return count, nil
}

func apply(ctx context.Context, conn *sql.Conn, migration Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			slog.Error("Failed to rollback migration", "version", migration.Version, "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("migration SQL failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, title, checksum) VALUES ($1, $2, $3)`,
		migration.Version, migration.Title, migration.Checksum,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// appliedChecksums maps applied versions to their recorded checksum
func appliedChecksums(ctx context.Context, conn *sql.Conn) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, COALESCE(checksum, '') FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// verifyChecksums fails when a script that already ran has been edited since.
// Rows recorded without a checksum are not compared.
func verifyChecksums(applied map[string]string, migrations []Migration) error {
	var changed []string
	for _, migration := range migrations {
		recorded, ok := applied[migration.Version]
		if !ok || recorded == "" || recorded == migration.Checksum {
			continue
		}
		changed = append(changed, fmt.Sprintf("%s (%s): recorded %s, found %s",
			migration.Version, migration.Title, recorded, migration.Checksum))
	}
	if len(changed) == 0 {
		return nil
	}
	return fmt.Errorf("applied migrations have been modified, restore them and add a new migration instead: %s",
		strings.Join(changed, "; "))
}

// loadMigrations reads the NNN_title.up.sql scripts at the root of fsys.
// Down scripts and other files are ignored.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, title, ok := parseMigrationName(entry.Name())
		if !ok {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s: %s and %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Title:    title,
			SQL:      string(content),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseMigrationName(name string) (version, title string, ok bool) {
	base, isUp := strings.CutSuffix(name, ".up.sql")
	if !isUp {
		return "", "", false
	}
	version, rest, found := strings.Cut(base, "_")
	if !found || version == "" || rest == "" {
		return "", "", false
	}
	return version, strings.ReplaceAll(rest, "_", " "), true
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

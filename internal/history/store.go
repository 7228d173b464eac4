// Package history persists delivered notifications in a local SQLite
// cache so the bell list survives restarts and offline gaps.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lingodesk/bellhop/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a notification id is not in the cache.
var ErrNotFound = errors.New("history: notification not found")

// Store is a SQLite-backed notification cache.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the cache database at path, enables WAL
// mode, and applies pending schema migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single writer avoids SQLITE_BUSY on the modernc driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the cache database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type row struct {
	ID            string       `db:"id"`
	Kind          string       `db:"kind"`
	Title         string       `db:"title"`
	Message       string       `db:"message"`
	EntityType    string       `db:"entity_type"`
	EntityID      string       `db:"entity_id"`
	ActionURL     string       `db:"action_url"`
	RequiresSound bool         `db:"requires_sound"`
	CreatedAt     time.Time    `db:"created_at"`
	ReadAt        sql.NullTime `db:"read_at"`
}

func (r row) toDomain() domain.Notification {
	n := domain.Notification{
		ID:            r.ID,
		Kind:          domain.Kind(r.Kind),
		Title:         r.Title,
		Message:       r.Message,
		EntityType:    r.EntityType,
		EntityID:      r.EntityID,
		ActionURL:     r.ActionURL,
		RequiresSound: r.RequiresSound,
		CreatedAt:     r.CreatedAt,
	}
	if r.ReadAt.Valid {
		readAt := r.ReadAt.Time
		n.ReadAt = &readAt
	}
	return n
}

const insertQuery = `
	INSERT OR IGNORE INTO notifications (
		id, kind, title, message, entity_type, entity_id,
		action_url, requires_sound, created_at, read_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save stores a delivered notification. Saving an already-cached id
// is a no-op, matching at-most-once delivery.
func (s *Store) Save(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx, insertQuery,
		n.ID, string(n.Kind), n.Title, n.Message, n.EntityType, n.EntityID,
		n.ActionURL, n.RequiresSound, n.CreatedAt.UTC(), nullTime(n.ReadAt),
	)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", n.ID, err)
	}
	return nil
}

// Replace stores a REST snapshot, overwriting cached rows with the
// server's view (including read state).
func (s *Store) Replace(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, kind, title, message, entity_type, entity_id,
			action_url, requires_sound, created_at, read_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare replace statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range notifications {
		if _, err := stmt.ExecContext(ctx,
			n.ID, string(n.Kind), n.Title, n.Message, n.EntityType, n.EntityID,
			n.ActionURL, n.RequiresSound, n.CreatedAt.UTC(), nullTime(n.ReadAt),
		); err != nil {
			return fmt.Errorf("replace notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// List returns cached notifications, newest first.
func (s *Store) List(ctx context.Context, limit, offset int, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id, kind, title, message, entity_type, entity_id,
		action_url, requires_sound, created_at, read_at
		FROM notifications`
	if unreadOnly {
		query += ` WHERE read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, r.toDomain())
	}
	return notifications, nil
}

// MarkRead records the read timestamp for one notification.
func (s *Store) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM notifications WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark read %s: %w", id, err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		// Already read: idempotent no-op.
	}
	return nil
}

// MarkAllRead records the read timestamp for every unread notification
// and returns the number affected.
func (s *Store) MarkAllRead(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE read_at IS NULL`, at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(affected), nil
}

// UnreadCount returns the number of cached unread notifications.
func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE read_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

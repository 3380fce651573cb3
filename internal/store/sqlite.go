// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides thread/participant persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers; appends rely on it for seq assignment.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS participants (
			id           TEXT PRIMARY KEY,
			role         TEXT NOT NULL,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			CHECK (role IN ('customer', 'seller'))
		);

		CREATE INDEX IF NOT EXISTS idx_participants_role ON participants(role);

		CREATE TABLE IF NOT EXISTS threads (
			id               TEXT PRIMARY KEY,
			customer_id      TEXT NOT NULL,
			seller_id        TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'active',
			created_at       TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,

			UNIQUE(customer_id, seller_id),
			CHECK (status IN ('active', 'archived'))
		);

		CREATE INDEX IF NOT EXISTS idx_threads_customer_activity
			ON threads(customer_id, last_activity_at);

		CREATE INDEX IF NOT EXISTS idx_threads_seller_activity
			ON threads(seller_id, last_activity_at);

		CREATE TABLE IF NOT EXISTS messages (
			id        TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			seq       INTEGER NOT NULL,
			sender_id TEXT NOT NULL,
			content   TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			read      INTEGER NOT NULL DEFAULT 0,

			UNIQUE(thread_id, seq),
			FOREIGN KEY (thread_id) REFERENCES threads(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_seq
			ON messages(thread_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "threads",
			column: "status",
			apply:  `ALTER TABLE threads ADD COLUMN status TEXT NOT NULL DEFAULT 'active'`,
		},
		{
			table:  "messages",
			column: "read",
			apply:  `ALTER TABLE messages ADD COLUMN read INTEGER NOT NULL DEFAULT 0`,
		},
	}

	for _, m := range migrations {
		var exists int
		check := fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = ?`, m.table)
		err := s.db.QueryRow(check, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping checks that the database connection is usable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint violation.
// CHECK and NOT NULL failures are not matched.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const threadColumns = `id, customer_id, seller_id, status, created_at, last_activity_at`

func scanThread(row rowScanner) (*Thread, error) {
	var thread Thread
	var status, createdAtStr, lastActivityStr string

	if err := row.Scan(
		&thread.ID,
		&thread.CustomerID,
		&thread.SellerID,
		&status,
		&createdAtStr,
		&lastActivityStr,
	); err != nil {
		return nil, err
	}
	thread.Status = ThreadStatus(status)

	var err error
	thread.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	thread.LastActivityAt, err = parseTime(lastActivityStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	return &thread, nil
}

// CreateThread creates a new thread in the database.
// If a thread for the same customer/seller pair already exists,
// it returns ErrDuplicateThread.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *Thread) error {
	if thread.Status == "" {
		thread.Status = ThreadStatusActive
	}
	if thread.LastActivityAt.IsZero() {
		thread.LastActivityAt = thread.CreatedAt
	}

	query := `
		INSERT INTO threads (id, customer_id, seller_id, status, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.CustomerID,
		thread.SellerID,
		string(thread.Status),
		formatTime(thread.CreatedAt),
		formatTime(thread.LastActivityAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateThread
		}
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("created thread", "id", thread.ID, "customer_id", thread.CustomerID, "seller_id", thread.SellerID)
	return nil
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = ?`

	thread, err := scanThread(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	return thread, nil
}

// FindThread retrieves the thread for a customer/seller pair.
// This uses the UNIQUE(customer_id, seller_id) index.
// Returns ErrNotFound if the pair has no thread yet.
func (s *SQLiteStore) FindThread(ctx context.Context, customerID, sellerID string) (*Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE customer_id = ? AND seller_id = ?`

	thread, err := scanThread(s.db.QueryRowContext(ctx, query, customerID, sellerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread by participants: %w", err)
	}
	return thread, nil
}

// ListThreadsForUser retrieves the threads a user participates in, most recent
// activity first. If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListThreadsForUser(ctx context.Context, userID string, limit int) ([]*Thread, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT ` + threadColumns + `
		FROM threads
		WHERE customer_id = ? OR seller_id = ?
		ORDER BY last_activity_at DESC, id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	threads := make([]*Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread rows: %w", err)
	}

	return threads, nil
}

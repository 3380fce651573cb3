// ABOUTME: Message append and listing for conversation threads
// ABOUTME: Appends are transactional and assign per-thread seq and monotonic timestamps

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateContent checks that content is non-empty after trimming and no
// longer than MaxContentLength runes.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidContent)
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidContent, MaxContentLength)
	}
	return nil
}

// AppendMessage appends a message to a thread in a single transaction.
// The message gets the next seq and a timestamp strictly after the previous
// message in the thread, and the thread's last_activity_at is updated.
// Returns ErrNotFound, ErrInvalidSender, ErrInvalidContent or ErrThreadArchived
// without writing anything.
func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID, senderID, content string) (*Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var customerID, sellerID, status string
	err = tx.QueryRowContext(ctx,
		`SELECT customer_id, seller_id, status FROM threads WHERE id = ?`, threadID,
	).Scan(&customerID, &sellerID, &status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	if senderID == "" || (senderID != customerID && senderID != sellerID) {
		return nil, ErrInvalidSender
	}
	if ThreadStatus(status) == ThreadStatusArchived {
		return nil, ErrThreadArchived
	}

	var lastSeq int64
	var lastTimestampStr string
	err = tx.QueryRowContext(ctx,
		`SELECT seq, timestamp FROM messages WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID,
	).Scan(&lastSeq, &lastTimestampStr)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying last message: %w", err)
	}

	timestamp := s.now().UTC()
	if lastTimestampStr != "" {
		last, err := parseTime(lastTimestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last message timestamp: %w", err)
		}
		if !timestamp.After(last) {
			timestamp = last.Add(1)
		}
	}

	msg := &Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Seq:       lastSeq + 1,
		SenderID:  senderID,
		Content:   content,
		Timestamp: timestamp,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, seq, sender_id, content, timestamp, read)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, msg.ID, msg.ThreadID, msg.Seq, msg.SenderID, msg.Content, formatTime(msg.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE threads SET last_activity_at = ? WHERE id = ?`,
		formatTime(msg.Timestamp), threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating thread activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended message", "id", msg.ID, "thread_id", threadID, "seq", msg.Seq)
	return msg, nil
}

const messageColumns = `id, thread_id, seq, sender_id, content, timestamp, read`

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var timestampStr string
	var read int

	if err := row.Scan(&msg.ID, &msg.ThreadID, &msg.Seq, &msg.SenderID, &msg.Content, &timestampStr, &read); err != nil {
		return nil, err
	}

	var err error
	msg.Timestamp, err = parseTime(timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message timestamp: %w", err)
	}
	msg.Read = read != 0
	return &msg, nil
}

// GetMessage retrieves a single message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ListMessages returns messages of a thread in append order, starting after
// afterSeq (0 for the beginning). If limit is 0 or negative, all remaining
// messages are returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string, afterSeq int64, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE thread_id = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{threadID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// ABOUTME: Participant entity store methods for customer/seller identity metadata
// ABOUTME: Participants are upserted from validated token claims and never change role

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertParticipant records a participant if it is unknown and refreshes its
// display name otherwise. An existing participant's role is never changed; the
// stored record is returned so callers can detect a role mismatch.
func (s *SQLiteStore) UpsertParticipant(ctx context.Context, p *Participant) (*Participant, error) {
	if !p.Role.Valid() {
		return nil, fmt.Errorf("invalid participant role %q", p.Role)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := `
		INSERT INTO participants (id, role, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name
		WHERE participants.role = excluded.role
	`
	if _, err := s.db.ExecContext(ctx, query, p.ID, string(p.Role), p.DisplayName, formatTime(createdAt)); err != nil {
		return nil, fmt.Errorf("upserting participant: %w", err)
	}

	return s.GetParticipant(ctx, p.ID)
}

// GetParticipant retrieves a participant by identity ID.
// Returns ErrNotFound if the participant doesn't exist.
func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	query := `SELECT id, role, display_name, created_at FROM participants WHERE id = ?`

	p, err := scanParticipant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}
	return p, nil
}

// ListParticipants lists participants ordered by display name.
// An empty role lists everyone.
func (s *SQLiteStore) ListParticipants(ctx context.Context, role Role) ([]*Participant, error) {
	query := `SELECT id, role, display_name, created_at FROM participants`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY display_name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participant rows: %w", err)
	}
	return participants, nil
}

func scanParticipant(row rowScanner) (*Participant, error) {
	var p Participant
	var role, createdAtStr string
	if err := row.Scan(&p.ID, &role, &p.DisplayName, &createdAtStr); err != nil {
		return nil, err
	}
	p.Role = Role(role)

	var err error
	p.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing participant created_at: %w", err)
	}
	return &p, nil
}

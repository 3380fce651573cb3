// ABOUTME: Gate validates bearer tokens and records the caller as a participant
// ABOUTME: Shared by the HTTP middleware and the live channel handshake

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/souk-gateway/internal/store"
)

var (
	// ErrRoleMismatch is returned when a token claims a role different from
	// the one already recorded for its subject.
	ErrRoleMismatch = errors.New("token role does not match participant role")

	// ErrUnavailable is returned when the participant store cannot be reached.
	// The token itself may be valid.
	ErrUnavailable = errors.New("authentication unavailable")
)

// Gate turns a raw token into an authenticated Identity.
type Gate struct {
	verifier     TokenVerifier
	participants store.ParticipantStore
	logger       *slog.Logger
}

// NewGate creates a Gate. If logger is nil, slog.Default() is used.
func NewGate(verifier TokenVerifier, participants store.ParticipantStore, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier:     verifier,
		participants: participants,
		logger:       logger.With("component", "auth"),
	}
}

// Authenticate verifies the token and upserts the participant it names.
// The returned Identity carries the stored display name. Any error means the
// caller is unauthenticated.
func (g *Gate) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	id, err := g.verifier.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	stored, err := g.participants.UpsertParticipant(ctx, &store.Participant{
		ID:          id.ID,
		Role:        id.Role,
		DisplayName: id.DisplayName,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: recording participant: %v", ErrUnavailable, err)
	}

	if stored.Role != id.Role {
		g.logger.Warn("token role mismatch",
			"participant_id", id.ID,
			"token_role", id.Role,
			"stored_role", stored.Role,
		)
		return Identity{}, ErrRoleMismatch
	}

	id.DisplayName = stored.DisplayName
	return id, nil
}

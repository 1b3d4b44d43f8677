package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/models"
)

type SpaceRequestStore struct {
	q db.DBTX
}

func NewSpaceRequestStore(q db.DBTX) *SpaceRequestStore {
	return &SpaceRequestStore{q: q}
}

func (s *SpaceRequestStore) Create(ctx context.Context, r *models.SpaceRequest) error {
	query := `
		INSERT INTO space_requests (id, space_id, inviter_id, invited_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`

	err := s.q.QueryRow(ctx, query, r.ID, r.SpaceID, r.InviterID, r.InvitedID, r.Role).Scan(&r.CreatedAt)
	if err != nil {
		return mapWriteErr("insert space request", err)
	}
	return nil
}

func (s *SpaceRequestStore) GetByID(ctx context.Context, requestID uuid.UUID) (*models.SpaceRequest, error) {
	query := `
		SELECT id, space_id, inviter_id, invited_id, role, created_at
		FROM space_requests
		WHERE id = $1`

	return s.getOne(ctx, "get space request", query, requestID)
}

func (s *SpaceRequestStore) FindPending(ctx context.Context, spaceID, invitedID uuid.UUID) (*models.SpaceRequest, error) {
	query := `
		SELECT id, space_id, inviter_id, invited_id, role, created_at
		FROM space_requests
		WHERE space_id = $1 AND invited_id = $2`

	return s.getOne(ctx, "find space request", query, spaceID, invitedID)
}

func (s *SpaceRequestStore) getOne(ctx context.Context, op, query string, args ...any) (*models.SpaceRequest, error) {
	var r models.SpaceRequest
	err := s.q.QueryRow(ctx, query, args...).Scan(&r.ID, &r.SpaceID, &r.InviterID, &r.InvitedID, &r.Role, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &r, nil
}

func (s *SpaceRequestStore) ListForInvitee(ctx context.Context, userID uuid.UUID) ([]models.SpaceInvite, error) {
	query := `
		SELECT r.id, r.space_id, r.inviter_id, r.invited_id, r.role, r.created_at, s.name
		FROM space_requests r
		JOIN spaces s ON s.id = r.space_id
		WHERE r.invited_id = $1
		ORDER BY r.created_at DESC`

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list space requests: %w", err)
	}
	defer rows.Close()

	invites := make([]models.SpaceInvite, 0)
	for rows.Next() {
		var inv models.SpaceInvite
		if err := rows.Scan(
			&inv.ID, &inv.SpaceID, &inv.InviterID, &inv.InvitedID, &inv.Role, &inv.CreatedAt, &inv.SpaceName,
		); err != nil {
			return nil, fmt.Errorf("scan space request: %w", err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate space requests: %w", err)
	}
	return invites, nil
}

func (s *SpaceRequestStore) Delete(ctx context.Context, requestID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM space_requests WHERE id = $1`, requestID); err != nil {
		return fmt.Errorf("delete space request: %w", err)
	}
	return nil
}

func (s *SpaceRequestStore) DeleteFor(ctx context.Context, spaceID, invitedID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `DELETE FROM space_requests WHERE space_id = $1 AND invited_id = $2`, spaceID, invitedID)
	if err != nil {
		return fmt.Errorf("delete space requests for user: %w", err)
	}
	return nil
}

func (s *SpaceRequestStore) DeleteBySpace(ctx context.Context, spaceID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM space_requests WHERE space_id = $1`, spaceID); err != nil {
		return fmt.Errorf("delete space requests: %w", err)
	}
	return nil
}

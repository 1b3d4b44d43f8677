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

type StatusStore struct {
	q db.DBTX
}

func NewStatusStore(q db.DBTX) *StatusStore {
	return &StatusStore{q: q}
}

func (s *StatusStore) Upsert(ctx context.Context, userID uuid.UUID, connID string, spaceID *uuid.UUID) error {
	query := `
		INSERT INTO user_status (user_id, conn_id, space_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET conn_id = EXCLUDED.conn_id, space_id = EXCLUDED.space_id`

	if _, err := s.q.Exec(ctx, query, userID, connID, spaceID); err != nil {
		return mapWriteErr("upsert user status", err)
	}
	return nil
}

func (s *StatusStore) SetSpace(ctx context.Context, userID uuid.UUID, connID string, spaceID *uuid.UUID) (bool, error) {
	tag, err := s.q.Exec(ctx, `UPDATE user_status SET space_id = $3 WHERE user_id = $1 AND conn_id = $2`, userID, connID, spaceID)
	if err != nil {
		return false, mapWriteErr("set status space", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *StatusStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserStatus, error) {
	var st models.UserStatus
	err := s.q.QueryRow(ctx, `SELECT user_id, space_id, conn_id FROM user_status WHERE user_id = $1`, userID).
		Scan(&st.UserID, &st.SpaceID, &st.ConnectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user status: %w", err)
	}
	return &st, nil
}

func (s *StatusStore) Delete(ctx context.Context, userID uuid.UUID, connID string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM user_status WHERE user_id = $1 AND conn_id = $2`, userID, connID); err != nil {
		return fmt.Errorf("delete user status: %w", err)
	}
	return nil
}

func (s *StatusStore) ListFor(ctx context.Context, userIDs []uuid.UUID) ([]models.UserStatus, error) {
	out := make([]models.UserStatus, 0, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := s.q.Query(ctx, `SELECT user_id, space_id FROM user_status WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list user status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.UserStatus
		if err := rows.Scan(&st.UserID, &st.SpaceID); err != nil {
			return nil, fmt.Errorf("scan user status: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user status: %w", err)
	}
	return out, nil
}

func (s *StatusStore) ClearSpace(ctx context.Context, spaceID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `UPDATE user_status SET space_id = NULL WHERE space_id = $1`, spaceID); err != nil {
		return fmt.Errorf("clear space status: %w", err)
	}
	return nil
}

func (s *StatusStore) DeleteAll(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM user_status`); err != nil {
		return fmt.Errorf("delete all user status: %w", err)
	}
	return nil
}

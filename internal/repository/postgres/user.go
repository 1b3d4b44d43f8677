package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type UserStore struct {
	q db.DBTX
}

func NewUserStore(q db.DBTX) *UserStore {
	return &UserStore{q: q}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, display_name, nickname, avatar_url, email, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`

	err := s.q.QueryRow(ctx, query, u.ID, u.DisplayName, u.Nickname, u.AvatarURL, u.Email).Scan(&u.CreatedAt)
	if err != nil {
		return mapWriteErr("insert user", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, display_name, nickname, avatar_url, email, created_at
		FROM users
		WHERE id = $1`

	var u models.User
	err := s.q.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.DisplayName,
		&u.Nickname,
		&u.AvatarURL,
		&u.Email,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET display_name = $2, nickname = $3, avatar_url = $4, email = $5
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, u.ID, u.DisplayName, u.Nickname, u.AvatarURL, u.Email)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for friends, requests, memberships and status.
func (s *UserStore) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

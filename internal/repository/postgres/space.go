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

type SpaceStore struct {
	q db.DBTX
}

func NewSpaceStore(q db.DBTX) *SpaceStore {
	return &SpaceStore{q: q}
}

const spaceColumns = `s.id, s.name, s.theme, s.password_hash, s.url, s.created_at`

func scanSpace(row pgx.Row, sp *models.Space) error {
	return row.Scan(&sp.ID, &sp.Name, &sp.Theme, &sp.PasswordHash, &sp.URL, &sp.CreatedAt)
}

func (s *SpaceStore) Create(ctx context.Context, sp *models.Space) error {
	query := `
		INSERT INTO spaces (id, name, theme, password_hash, url, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`

	err := s.q.QueryRow(ctx, query, sp.ID, sp.Name, sp.Theme, sp.PasswordHash, sp.URL).Scan(&sp.CreatedAt)
	if err != nil {
		return mapWriteErr("insert space", err)
	}
	return nil
}

func (s *SpaceStore) GetByID(ctx context.Context, spaceID uuid.UUID) (*models.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM spaces s WHERE s.id = $1`

	var sp models.Space
	if err := scanSpace(s.q.QueryRow(ctx, query, spaceID), &sp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get space: %w", err)
	}
	return &sp, nil
}

func (s *SpaceStore) Update(ctx context.Context, spaceID uuid.UUID, name string, theme models.Theme) error {
	tag, err := s.q.Exec(ctx, `UPDATE spaces SET name = $2, theme = $3 WHERE id = $1`, spaceID, name, theme)
	if err != nil {
		return fmt.Errorf("update space: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LockForUpdate takes a row lock on the space so concurrent membership
// changes that count owners run one after the other.
func (s *SpaceStore) LockForUpdate(ctx context.Context, spaceID uuid.UUID) error {
	var id uuid.UUID
	err := s.q.QueryRow(ctx, `SELECT id FROM spaces WHERE id = $1 FOR UPDATE`, spaceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock space: %w", err)
	}
	return nil
}

func (s *SpaceStore) Delete(ctx context.Context, spaceID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM spaces WHERE id = $1`, spaceID); err != nil {
		return fmt.Errorf("delete space: %w", err)
	}
	return nil
}

func (s *SpaceStore) OwnerHasSpaceNamed(ctx context.Context, ownerID uuid.UUID, name string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM spaces s
			JOIN space_members m ON m.space_id = s.id
			WHERE m.user_id = $1 AND m.role = 'owner' AND s.name = $2
		)`

	var exists bool
	if err := s.q.QueryRow(ctx, query, ownerID, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check owned space name: %w", err)
	}
	return exists, nil
}

func (s *SpaceStore) ListOwned(ctx context.Context, userID uuid.UUID) ([]models.Space, error) {
	query := `
		SELECT ` + spaceColumns + `
		FROM spaces s
		JOIN space_members m ON m.space_id = s.id
		WHERE m.user_id = $1 AND m.role = 'owner'
		ORDER BY s.created_at DESC`

	return s.list(ctx, "list owned spaces", query, userID)
}

func (s *SpaceStore) ListInvited(ctx context.Context, userID uuid.UUID) ([]models.Space, error) {
	query := `
		SELECT ` + spaceColumns + `
		FROM spaces s
		JOIN space_members m ON m.space_id = s.id
		WHERE m.user_id = $1 AND m.role <> 'owner'
		ORDER BY s.created_at DESC`

	return s.list(ctx, "list invited spaces", query, userID)
}

func (s *SpaceStore) list(ctx context.Context, op, query string, args ...any) ([]models.Space, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	spaces := make([]models.Space, 0)
	for rows.Next() {
		var sp models.Space
		if err := scanSpace(rows, &sp); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return spaces, nil
}

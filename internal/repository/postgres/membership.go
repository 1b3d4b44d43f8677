package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
)

type MembershipStore struct {
	q db.DBTX
}

func NewMembershipStore(q db.DBTX) *MembershipStore {
	return &MembershipStore{q: q}
}

func (s *MembershipStore) Add(ctx context.Context, m *models.SpaceMember) error {
	query := `
		INSERT INTO space_members (space_id, user_id, role, last_connection)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.q.Exec(ctx, query, m.SpaceID, m.UserID, m.Role, m.LastConnection); err != nil {
		return mapWriteErr("add member", err)
	}
	return nil
}

func (s *MembershipStore) Get(ctx context.Context, spaceID, userID uuid.UUID) (*models.SpaceMember, error) {
	query := `
		SELECT space_id, user_id, role, last_connection
		FROM space_members
		WHERE space_id = $1 AND user_id = $2`

	var m models.SpaceMember
	err := s.q.QueryRow(ctx, query, spaceID, userID).Scan(&m.SpaceID, &m.UserID, &m.Role, &m.LastConnection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) UpdateRole(ctx context.Context, spaceID, userID uuid.UUID, role models.Role) error {
	tag, err := s.q.Exec(ctx, `UPDATE space_members SET role = $3 WHERE space_id = $1 AND user_id = $2`, spaceID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *MembershipStore) Remove(ctx context.Context, spaceID, userID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM space_members WHERE space_id = $1 AND user_id = $2`, spaceID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *MembershipStore) DeleteBySpace(ctx context.Context, spaceID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM space_members WHERE space_id = $1`, spaceID); err != nil {
		return fmt.Errorf("delete space members: %w", err)
	}
	return nil
}

func (s *MembershipStore) ListProfiles(ctx context.Context, spaceID uuid.UUID) ([]models.SpaceMemberProfile, error) {
	query := `
		SELECT u.id, u.display_name, u.nickname, u.avatar_url, u.email, u.created_at,
		       m.role, m.last_connection
		FROM space_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.space_id = $1
		ORDER BY u.display_name, u.id`

	rows, err := s.q.Query(ctx, query, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.SpaceMemberProfile, 0)
	for rows.Next() {
		var p models.SpaceMemberProfile
		if err := rows.Scan(
			&p.ID, &p.DisplayName, &p.Nickname, &p.AvatarURL, &p.Email, &p.CreatedAt,
			&p.Role, &p.LastConnection,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (s *MembershipStore) CountOwners(ctx context.Context, spaceID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT count(*) FROM space_members WHERE space_id = $1 AND role = 'owner'`, spaceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

func (s *MembershipStore) TouchLastConnection(ctx context.Context, spaceID, userID uuid.UUID, at time.Time) error {
	_, err := s.q.Exec(ctx, `UPDATE space_members SET last_connection = $3 WHERE space_id = $1 AND user_id = $2`, spaceID, userID, at)
	if err != nil {
		return fmt.Errorf("touch last connection: %w", err)
	}
	return nil
}

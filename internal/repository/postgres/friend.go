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

type FriendStore struct {
	q db.DBTX
}

func NewFriendStore(q db.DBTX) *FriendStore {
	return &FriendStore{q: q}
}

// Add writes both directions in a single statement, so a partial pair is
// never visible even outside a transaction.
func (s *FriendStore) Add(ctx context.Context, userID, friendID uuid.UUID) error {
	query := `
		INSERT INTO friends (user_id, friend_id, created_at)
		VALUES ($1, $2, now()), ($2, $1, now())`

	if _, err := s.q.Exec(ctx, query, userID, friendID); err != nil {
		return mapWriteErr("insert friendship", err)
	}
	return nil
}

func (s *FriendStore) Remove(ctx context.Context, userID, friendID uuid.UUID) error {
	query := `
		DELETE FROM friends
		WHERE (user_id = $1 AND friend_id = $2)
		   OR (user_id = $2 AND friend_id = $1)`

	if _, err := s.q.Exec(ctx, query, userID, friendID); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

func (s *FriendStore) Exists(ctx context.Context, userID, friendID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friends
			WHERE user_id = $1 AND friend_id = $2
		)`

	var exists bool
	if err := s.q.QueryRow(ctx, query, userID, friendID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

func (s *FriendStore) ListIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.q.Query(ctx, `SELECT friend_id FROM friends WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan friend ids: %w", err)
	}
	if ids == nil {
		ids = make([]uuid.UUID, 0)
	}
	return ids, nil
}

func (s *FriendStore) List(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	query := `
		SELECT u.id, u.display_name, u.nickname, u.avatar_url, u.email, u.created_at
		FROM friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY u.display_name, u.id`

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Nickname, &u.AvatarURL, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends: %w", err)
	}
	return users, nil
}

type FriendRequestStore struct {
	q db.DBTX
}

func NewFriendRequestStore(q db.DBTX) *FriendRequestStore {
	return &FriendRequestStore{q: q}
}

func (s *FriendRequestStore) Create(ctx context.Context, r *models.FriendRequest) error {
	query := `
		INSERT INTO friend_requests (id, requester_id, addressee_id, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at`

	if err := s.q.QueryRow(ctx, query, r.ID, r.RequesterID, r.AddresseeID).Scan(&r.CreatedAt); err != nil {
		return mapWriteErr("insert friend request", err)
	}
	return nil
}

func (s *FriendRequestStore) GetByID(ctx context.Context, requestID uuid.UUID) (*models.FriendRequest, error) {
	query := `
		SELECT id, requester_id, addressee_id, created_at
		FROM friend_requests
		WHERE id = $1`

	return s.getOne(ctx, "get friend request", query, requestID)
}

func (s *FriendRequestStore) FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error) {
	query := `
		SELECT id, requester_id, addressee_id, created_at
		FROM friend_requests
		WHERE (requester_id = $1 AND addressee_id = $2)
		   OR (requester_id = $2 AND addressee_id = $1)
		LIMIT 1`

	return s.getOne(ctx, "find friend request", query, a, b)
}

func (s *FriendRequestStore) getOne(ctx context.Context, op, query string, args ...any) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := s.q.QueryRow(ctx, query, args...).Scan(&r.ID, &r.RequesterID, &r.AddresseeID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &r, nil
}

func (s *FriendRequestStore) ListIncoming(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	query := `
		SELECT id, requester_id, addressee_id, created_at
		FROM friend_requests
		WHERE addressee_id = $1
		ORDER BY created_at DESC`

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()

	out := make([]models.FriendRequest, 0)
	for rows.Next() {
		var r models.FriendRequest
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.AddresseeID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}
	return out, nil
}

func (s *FriendRequestStore) Delete(ctx context.Context, requestID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM friend_requests WHERE id = $1`, requestID); err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}

func (s *FriendRequestStore) DeleteBetween(ctx context.Context, a, b uuid.UUID) error {
	query := `
		DELETE FROM friend_requests
		WHERE (requester_id = $1 AND addressee_id = $2)
		   OR (requester_id = $2 AND addressee_id = $1)`

	if _, err := s.q.Exec(ctx, query, a, b); err != nil {
		return fmt.Errorf("delete friend requests: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/repository"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements repository.Store on a pgx pool. Inside WithTx the same
// stores run on the transaction instead.
type Store struct {
	pool *pgxpool.Pool
	q    db.DBTX
	inTx bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Users() repository.UserRepository     { return NewUserStore(s.q) }
func (s *Store) Friends() repository.FriendRepository { return NewFriendStore(s.q) }
func (s *Store) FriendRequests() repository.FriendRequestRepository {
	return NewFriendRequestStore(s.q)
}
func (s *Store) Spaces() repository.SpaceRepository          { return NewSpaceStore(s.q) }
func (s *Store) Members() repository.MemberRepository        { return NewMembershipStore(s.q) }
func (s *Store) Requests() repository.SpaceRequestRepository { return NewSpaceRequestStore(s.q) }
func (s *Store) Statuses() repository.StatusRepository       { return NewStatusStore(s.q) }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, inTx: true})
	})
}

// mapWriteErr translates constraint violations into repository sentinels
// while keeping the driver error in the chain.
func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrDuplicate, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, repository.ErrMissingReference, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ repository.Store = (*Store)(nil)

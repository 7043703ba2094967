package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRegistryFull is returned when a bounded store has no room for a new user.
var ErrRegistryFull = errors.New("identity registry full")

// Store persists identity records. Get reports absence through found rather
// than a sentinel key.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, userID uint32) (rec Record, found bool, err error)
}

const createIdentityKeys = `CREATE TABLE IF NOT EXISTS identity_keys (
    user_id    BIGINT PRIMARY KEY,
    public_key BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed store and ensures its table exists.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createIdentityKeys); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Put upserts the record; the last write wins.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `INSERT INTO identity_keys (user_id, public_key, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET public_key = EXCLUDED.public_key, updated_at = EXCLUDED.updated_at`,
		int64(rec.UserID), int64(rec.PublicKey), rec.UpdatedAt.UTC())
	return err
}

// Get fetches the record for userID.
func (s *PostgresStore) Get(ctx context.Context, userID uint32) (Record, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT public_key, updated_at FROM identity_keys WHERE user_id = $1`, int64(userID))
	var (
		publicKey int64
		updatedAt time.Time
	)
	if err := row.Scan(&publicKey, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	// Keys are stored bit-for-bit in a signed column.
	return Record{UserID: userID, PublicKey: uint64(publicKey), UpdatedAt: updatedAt.UTC()}, true, nil
}

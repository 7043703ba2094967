package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists posts and the follow graph.
type Repository interface {
	AddPost(ctx context.Context, post Post) error
	Follow(ctx context.Context, follower, followee uint32) error
	Unfollow(ctx context.Context, follower, followee uint32) error
	Following(ctx context.Context, follower uint32) ([]uint32, error)
	// Timeline returns posts by any of authors, newest first.
	Timeline(ctx context.Context, authors []uint32, limit int) ([]Post, error)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS feed_posts (
    id         UUID PRIMARY KEY,
    author     BIGINT NOT NULL,
    body       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_posts_author_created ON feed_posts (author, created_at DESC);
CREATE TABLE IF NOT EXISTS feed_follows (
    follower BIGINT NOT NULL,
    followee BIGINT NOT NULL,
    PRIMARY KEY (follower, followee)
);`

// PostgresRepository stores the feed in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL and makes
// sure its tables exist.
func NewPostgresRepository(ctx context.Context, db *pgxpool.Pool) (*PostgresRepository, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create feed schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) AddPost(ctx context.Context, post Post) error {
	_, err := r.db.Exec(ctx, `INSERT INTO feed_posts (id, author, body, created_at) VALUES ($1, $2, $3, $4)`,
		post.ID, int64(post.Author), post.Body, post.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) Follow(ctx context.Context, follower, followee uint32) error {
	_, err := r.db.Exec(ctx, `INSERT INTO feed_follows (follower, followee) VALUES ($1, $2)
        ON CONFLICT DO NOTHING`, int64(follower), int64(followee))
	return err
}

func (r *PostgresRepository) Unfollow(ctx context.Context, follower, followee uint32) error {
	_, err := r.db.Exec(ctx, `DELETE FROM feed_follows WHERE follower = $1 AND followee = $2`, int64(follower), int64(followee))
	return err
}

func (r *PostgresRepository) Following(ctx context.Context, follower uint32) ([]uint32, error) {
	rows, err := r.db.Query(ctx, `SELECT followee FROM feed_follows WHERE follower = $1 ORDER BY followee`, int64(follower))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uint32
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, uint32(id))
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Timeline(ctx context.Context, authors []uint32, limit int) ([]Post, error) {
	ids := make([]int64, len(authors))
	for i, a := range authors {
		ids[i] = int64(a)
	}
	rows, err := r.db.Query(ctx, `SELECT id, author, body, created_at FROM feed_posts
        WHERE author = ANY($1) ORDER BY created_at DESC LIMIT $2`, ids, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var (
			p         Post
			id        uuid.UUID
			author    int64
			createdAt time.Time
		)
		if err := rows.Scan(&id, &author, &p.Body, &createdAt); err != nil {
			return nil, err
		}
		p.ID = id
		p.Author = uint32(author)
		p.CreatedAt = createdAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit caps how many posts a feed request returns.
const DefaultLimit = 20

var (
	ErrEmptyPost   = errors.New("post body is empty")
	ErrPostTooLong = errors.New("post body too long")
	ErrSelfFollow  = errors.New("cannot follow yourself")
)

// Service exposes feed operations for logged-in users.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds a feed service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Post publishes body on behalf of author.
func (s *Service) Post(ctx context.Context, author uint32, body string) (Post, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Post{}, ErrEmptyPost
	}
	if len(body) > MaxBodyLength {
		return Post{}, ErrPostTooLong
	}
	post := Post{ID: uuid.New(), Author: author, Body: body, CreatedAt: time.Now().UTC()}
	if err := s.repo.AddPost(ctx, post); err != nil {
		return Post{}, err
	}
	s.logger.Debug("feed.post", "user_id", author, "post_id", post.ID.String())
	return post, nil
}

// Follow adds followee to the follower's feed.
func (s *Service) Follow(ctx context.Context, follower, followee uint32) error {
	if follower == followee {
		return ErrSelfFollow
	}
	return s.repo.Follow(ctx, follower, followee)
}

// Unfollow removes followee from the follower's feed.
func (s *Service) Unfollow(ctx context.Context, follower, followee uint32) error {
	return s.repo.Unfollow(ctx, follower, followee)
}

// Following lists whom userID follows.
func (s *Service) Following(ctx context.Context, userID uint32) ([]uint32, error) {
	return s.repo.Following(ctx, userID)
}

// Feed returns the user's own posts and those of everyone they follow,
// newest first.
func (s *Service) Feed(ctx context.Context, userID uint32, limit int) ([]Post, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	following, err := s.repo.Following(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, append(following, userID), limit)
}

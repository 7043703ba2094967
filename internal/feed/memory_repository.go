package feed

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	posts   []Post
	follows map[uint32]map[uint32]struct{}
}

// NewMemoryRepository constructs an in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{follows: make(map[uint32]map[uint32]struct{})}
}

func (r *memoryRepository) AddPost(_ context.Context, post Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post)
	return nil
}

func (r *memoryRepository) Follow(_ context.Context, follower, followee uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.follows[follower]
	if !ok {
		set = make(map[uint32]struct{})
		r.follows[follower] = set
	}
	set[followee] = struct{}{}
	return nil
}

func (r *memoryRepository) Unfollow(_ context.Context, follower, followee uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.follows[follower], followee)
	return nil
}

func (r *memoryRepository) Following(_ context.Context, follower uint32) ([]uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.follows[follower]))
	for id := range r.follows[follower] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memoryRepository) Timeline(_ context.Context, authors []uint32, limit int) ([]Post, error) {
	wanted := make(map[uint32]struct{}, len(authors))
	for _, a := range authors {
		wanted[a] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Post
	// Posts are appended in order, so walking backwards yields newest first.
	for i := len(r.posts) - 1; i >= 0 && len(out) < limit; i-- {
		if _, ok := wanted[r.posts[i].Author]; ok {
			out = append(out, r.posts[i])
		}
	}
	return out, nil
}

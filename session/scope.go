package session

import (
	"context"
	"errors"
	"sync"

	"github.com/lac-hong-legacy/lms_api/model"
)

var (
	ErrNoUser      = errors.New("no signed-in user")
	ErrScopeClosed = errors.New("session scope closed")
)

// Scope is everything owned by one bound (device, user) session: the local
// progress cache, explicit completion toggles, and per-course completion state.
// Once closed every operation fails with ErrScopeClosed.
type Scope struct {
	userID   string
	deviceID string
	cache    ProgressCache

	mu       sync.RWMutex
	closed   bool
	toggles  map[string]map[string]bool
	complete map[string]bool
	done     chan struct{}
}

func NewScope(deviceID, userID string, cache ProgressCache) *Scope {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Scope{
		userID:   userID,
		deviceID: deviceID,
		cache:    cache,
		toggles:  make(map[string]map[string]bool),
		complete: make(map[string]bool),
		done:     make(chan struct{}),
	}
}

func (s *Scope) UserID() string   { return s.userID }
func (s *Scope) DeviceID() string { return s.deviceID }

// Done is closed when the scope is torn down.
func (s *Scope) Done() <-chan struct{} { return s.done }

func (s *Scope) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrScopeClosed
	}
	return nil
}

func (s *Scope) CacheGet(ctx context.Context, key string) (*model.ProgressRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrScopeClosed
	}
	return s.cache.Get(ctx, key)
}

func (s *Scope) CacheSet(ctx context.Context, key string, rec model.ProgressRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrScopeClosed
	}
	return s.cache.Set(ctx, key, rec)
}

func (s *Scope) CacheDelete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrScopeClosed
	}
	return s.cache.Delete(ctx, key)
}

func (s *Scope) SetToggle(courseID, itemID string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrScopeClosed
	}

	items, ok := s.toggles[courseID]
	if !ok {
		items = make(map[string]bool)
		s.toggles[courseID] = items
	}
	if done {
		items[itemID] = true
	} else {
		delete(items, itemID)
	}
	return nil
}

// Toggles returns a copy of the explicit completions for courseID.
func (s *Scope) Toggles(courseID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrScopeClosed
	}

	out := make(map[string]bool, len(s.toggles[courseID]))
	for id, v := range s.toggles[courseID] {
		out[id] = v
	}
	return out, nil
}

// CompletionEdge records the latest completion state for courseID and reports
// whether it just moved from incomplete to complete.
func (s *Scope) CompletionEdge(courseID string, complete bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrScopeClosed
	}

	was := s.complete[courseID]
	s.complete[courseID] = complete
	return complete && !was, nil
}

// ResetCompletion forgets the recorded completion state for courseID so the
// next evaluation can report the edge again.
func (s *Scope) ResetCompletion(courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		delete(s.complete, courseID)
	}
}

// close marks the scope closed and drops its cache. Calling it twice is a no-op.
func (s *Scope) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.toggles = nil
	s.complete = nil
	close(s.done)
	s.mu.Unlock()

	return s.cache.Clear(ctx)
}

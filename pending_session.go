package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPendingSessionTTL bounds how long a password check stays usable
const DefaultPendingSessionTTL = 5 * time.Minute

// DefaultMaxSecondFactorAttempts is the number of invalid codes accepted
// before the pending session is discarded
const DefaultMaxSecondFactorAttempts = 5

// PendingSession links a successful password check to the second factor
type PendingSession struct {
	Handle    string    `json:"handle"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Expired reports whether the session is past its deadline at t
func (p *PendingSession) Expired(t time.Time) bool {
	return !t.Before(p.ExpiresAt)
}

// NewPendingSessionHandle returns an unguessable opaque handle
func NewPendingSessionHandle() string {
	return uuid.NewString()
}

// MemorySessionStore keeps pending sessions in process memory. Use it for
// single instance deployments; multiple instances need a shared store.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*PendingSession
	now      func() time.Time
}

var _ PendingSessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*PendingSession),
		now:      time.Now,
	}
}

// WithClock overrides the time source
func (s *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemorySessionStore) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*PendingSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultPendingSessionTTL
	}

	now := s.now()
	ps := &PendingSession{
		Handle:    NewPendingSessionHandle(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)
	s.sessions[ps.Handle] = ps

	out := *ps
	return &out, nil
}

func (s *MemorySessionStore) Get(ctx context.Context, handle string) (*PendingSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ps, err := s.liveLocked(handle)
	if err != nil {
		return nil, err
	}

	out := *ps
	return &out, nil
}

func (s *MemorySessionStore) RecordFailure(ctx context.Context, handle string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ps, err := s.liveLocked(handle)
	if err != nil {
		return 0, err
	}

	ps.Attempts++
	return ps.Attempts, nil
}

func (s *MemorySessionStore) Consume(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveLocked(handle); err != nil {
		return err
	}

	delete(s.sessions, handle)
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, handle)
	return nil
}

// Len returns the number of live sessions
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(s.now())
	return len(s.sessions)
}

func (s *MemorySessionStore) liveLocked(handle string) (*PendingSession, error) {
	ps, ok := s.sessions[handle]
	if !ok {
		return nil, ErrNoPendingSession
	}

	if ps.Expired(s.now()) {
		delete(s.sessions, handle)
		return nil, ErrNoPendingSession
	}

	return ps, nil
}

func (s *MemorySessionStore) sweepLocked(now time.Time) {
	for handle, ps := range s.sessions {
		if ps.Expired(now) {
			delete(s.sessions, handle)
		}
	}
}

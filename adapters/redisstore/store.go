// Package redisstore keeps pending login sessions in Redis so every instance
// behind a load balancer sees the same phase one hand-offs.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	auth "github.com/goliatone/go-totp-auth"
)

const DefaultKeyPrefix = "auth:pending:"

const (
	fieldUserID    = "user_id"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// recordFailure never recreates a key that expired between Get and the
// increment.
var recordFailure = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// Store implements auth.PendingSessionStore
type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ auth.PendingSessionStore = (*Store)(nil)

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(handle string) string {
	return s.prefix + handle
}

func (s *Store) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*auth.PendingSession, error) {
	if ttl <= 0 {
		ttl = auth.DefaultPendingSessionTTL
	}

	now := s.now().UTC()
	ps := &auth.PendingSession{
		Handle:    auth.NewPendingSessionHandle(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	key := s.key(ps.Handle)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUserID, userID.String(),
			fieldCreatedAt, now.UnixNano(),
			fieldExpiresAt, ps.ExpiresAt.UnixNano(),
			fieldAttempts, 0,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis create pending session: %w", err)
	}

	return ps, nil
}

func (s *Store) Get(ctx context.Context, handle string) (*auth.PendingSession, error) {
	if handle == "" {
		return nil, auth.ErrNoPendingSession
	}

	values, err := s.client.HGetAll(ctx, s.key(handle)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get pending session: %w", err)
	}

	if len(values) == 0 {
		return nil, auth.ErrNoPendingSession
	}

	ps, err := decode(handle, values)
	if err != nil {
		return nil, err
	}

	if ps.Expired(s.now()) {
		return nil, auth.ErrNoPendingSession
	}

	return ps, nil
}

func (s *Store) RecordFailure(ctx context.Context, handle string) (int, error) {
	n, err := recordFailure.Run(ctx, s.client, []string{s.key(handle)}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis record failure: %w", err)
	}

	if n < 0 {
		return 0, auth.ErrNoPendingSession
	}

	return n, nil
}

// Consume deletes the session. DEL reports the removal to exactly one
// caller, which is what makes phase two single use across instances.
func (s *Store) Consume(ctx context.Context, handle string) error {
	n, err := s.client.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return fmt.Errorf("redis consume pending session: %w", err)
	}

	if n != 1 {
		return auth.ErrNoPendingSession
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	if err := s.client.Del(ctx, s.key(handle)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete pending session: %w", err)
	}
	return nil
}

func decode(handle string, values map[string]string) (*auth.PendingSession, error) {
	userID, err := uuid.Parse(values[fieldUserID])
	if err != nil {
		return nil, fmt.Errorf("redis pending session %s: bad user id: %w", handle, err)
	}

	created, _ := strconv.ParseInt(values[fieldCreatedAt], 10, 64)
	expires, err := strconv.ParseInt(values[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis pending session %s: bad expiry: %w", handle, err)
	}
	attempts, _ := strconv.Atoi(values[fieldAttempts])

	return &auth.PendingSession{
		Handle:    handle,
		UserID:    userID,
		CreatedAt: time.Unix(0, created).UTC(),
		ExpiresAt: time.Unix(0, expires).UTC(),
		Attempts:  attempts,
	}, nil
}

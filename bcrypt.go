package auth

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHashCost is the bcrypt work factor used for new hashes
const PasswordHashCost = 12

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// PasswordHasher runs bcrypt with a bounded number of concurrent workers
// so hashing bursts cannot starve the process.
type PasswordHasher struct {
	sem *semaphore.Weighted

	// dummy is compared against when the user does not exist
	dummyOnce sync.Once
	dummy     string
	dummyErr  error
}

// NewPasswordHasher creates a hasher allowing workers concurrent
// operations. Zero or less means GOMAXPROCS.
func NewPasswordHasher(workers int) *PasswordHasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &PasswordHasher{
		sem: semaphore.NewWeighted(int64(workers)),
	}
}

// Hash hashes password once a worker slot is free
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	return HashPassword(password)
}

// Compare checks password against hash once a worker slot is free
func (h *PasswordHasher) Compare(ctx context.Context, password, hash string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	return ComparePasswordAndHash(password, hash)
}

// CompareDummy burns the same work as Compare without a real hash
func (h *PasswordHasher) CompareDummy(ctx context.Context, password string) {
	dummy, err := h.dummyHash()
	if err != nil {
		return
	}
	_ = h.Compare(ctx, password, dummy)
}

// dummyHash is built on first use
func (h *PasswordHasher) dummyHash() (string, error) {
	h.dummyOnce.Do(func() {
		h.dummy, h.dummyErr = HashPassword("not-a-real-password")
	})
	return h.dummy, h.dummyErr
}

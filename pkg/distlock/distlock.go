package distlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when another holder owns the lock.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrLockLost is returned when releasing or extending a lease whose
	// lock has expired or changed hands.
	ErrLockLost = errors.New("lock lost")
)

// releaseScript deletes the key only while the token still matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript refreshes the TTL only while the token still matches.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Locker acquires distributed locks on a Redis instance.
type Locker struct {
	client redis.UniversalClient
}

// New creates a Locker over an existing Redis client.
func New(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Lease is one acquired lock held until released, extended, or expired.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Lock attempts to acquire the named lock for ttl. Returns ErrNotAcquired
// without waiting when another holder owns it.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lease{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if this lease still holds it.
func (l *Lease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockLost
	}
	return nil
}

// Extend refreshes the lease's TTL if this lease still holds the lock.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	extended, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if extended == 0 {
		return ErrLockLost
	}
	return nil
}

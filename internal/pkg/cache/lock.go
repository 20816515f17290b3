package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another instance")

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired elsewhere is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is an acquired lock. Release it when done.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Locker hands out expiring mutual-exclusion locks shared by all instances.
type Locker struct {
	client *redis.Client
}

func NewLocker(c *redis.Client) *Locker {
	return &Locker{client: c}
}

// Acquire takes key for ttl or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

func (lk *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err()
}

package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLock locks the §5 priority-swap critical section via Redis SET NX
// with a TTL, so a crashed API replica doesn't hold the swap lock forever.
// Ownership is a random token checked by a release/extend Lua script, so one
// replica's Release can never drop a lock another replica has since
// acquired (e.g. after this replica's own acquisition expired under load).
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a new priority-swap lock backed by Redis.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to acquire the lock. Returns true if successful.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("distlock: acquire %s: %w", l.key, err)
	}
	return acquired, nil
}

// releaseScript deletes the key only if it still holds this lock's token,
// so a lock this process let expire and another process then acquired is
// never deleted out from under the new owner.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Release releases the lock only if we still own it.
func (l *RedisLock) Release(ctx context.Context) error {
	_, err := redis.NewScript(releaseScript).Run(ctx, l.client, []string{l.key}, l.token).Result()
	return err
}

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Extend refreshes the lock's TTL for a priority swap that's taking longer
// than the initial TTL (e.g. stuck behind a slow advisory-lock fallback on
// another replica). Returns nil on success, error if the lock is no longer
// owned or Redis fails.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	_, err := redis.NewScript(extendScript).Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	return err
}

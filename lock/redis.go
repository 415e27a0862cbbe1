package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultPollInterval = 25 * time.Millisecond
	DefaultPrefix       = "registration:lock:"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a TokenLocker backed by SET NX with an owner value. Keys
// are hashed so activation keys never reach the redis keyspace.
type RedisLocker struct {
	client       redis.Cmdable
	ttl          time.Duration
	pollInterval time.Duration
	prefix       string
	logger       registration.Logger
}

var _ registration.TokenLocker = (*RedisLocker)(nil)

type Option func(*RedisLocker)

func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

func WithLogger(logger registration.Logger) Option {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewRedisLocker(client redis.Cmdable, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:       client,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
		prefix:       DefaultPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Lock blocks until the lock for token is held or ctx is done. The lock
// expires after the TTL if unlock is never called.
func (l *RedisLocker) Lock(ctx context.Context, token string) (func(), error) {
	key := l.key(token)
	owner := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to acquire redis lock")
		}

		if ok {
			return func() { l.unlock(key, owner) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "timed out waiting for redis lock")
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlock(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil && l.logger != nil {
		l.logger.Warn("failed to release redis lock", "error", err)
	}
}

func (l *RedisLocker) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return l.prefix + hex.EncodeToString(sum[:])
}

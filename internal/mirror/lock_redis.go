package mirror

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockTTL  = 30 * time.Second
	redisLockPoll = 50 * time.Millisecond
)

// releaseScript deletes the lock only when it is still ours; a lock that
// expired and was re-acquired by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes mirror work across processes using SET NX with a
// TTL. Suitable when several replicas project onto the same destination.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "ndsregistry:mirror:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(redisLockPoll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, name, token, redisLockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				releaseScript.Run(ctx, l.client, []string{name}, token)
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

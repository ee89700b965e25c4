package mirror

import (
	"context"
	"hash/fnv"
	"sync"
)

const lockShards = 128

// Locker serializes mirror work per key. Acquire blocks until the lock is
// held or ctx expires; the returned release must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ShardedLocker is the in-process Locker: keys hash onto a fixed set of
// mutexes. Distinct keys may share a shard and serialize unnecessarily, which
// is harmless; the same key always lands on the same shard.
type ShardedLocker struct {
	shards [lockShards]chan struct{}
}

func NewShardedLocker() *ShardedLocker {
	l := &ShardedLocker{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *ShardedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	shard := l.shards[shardIndex(key)]
	select {
	case shard <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-shard })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % lockShards)
}

package idem

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/gacha/xerrors"
)

const (
	lockSuffix   = ":lock"
	resultSuffix = ":result"
)

// Store 幂等记录的存储后端
//
// 一个 key 有两种状态：处理中（持有锁）与已完成（有结果）。SetResult 写入结果的同时释放锁。
type Store interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	SetResult(ctx context.Context, key string, val []byte, ttl time.Duration) error
	GetResult(ctx context.Context, key string) ([]byte, error)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	prefix  string
	now     func() time.Time
	locks   map[string]time.Time
	results map[string]memoryEntry
}

func newMemoryStore(prefix string, now func() time.Time) *memoryStore {
	return &memoryStore{
		prefix:  prefix,
		now:     now,
		locks:   make(map[string]time.Time),
		results: make(map[string]memoryEntry),
	}
}

func (ms *memoryStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	lockKey := ms.prefix + key + lockSuffix
	now := ms.now()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if exp, ok := ms.locks[lockKey]; ok && exp.After(now) {
		return false, nil
	}
	ms.locks[lockKey] = now.Add(ttl)
	return true, nil
}

func (ms *memoryStore) Unlock(_ context.Context, key string) error {
	ms.mu.Lock()
	delete(ms.locks, ms.prefix+key+lockSuffix)
	ms.mu.Unlock()
	return nil
}

func (ms *memoryStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	ms.results[ms.prefix+key+resultSuffix] = memoryEntry{
		value:     append([]byte(nil), val...),
		expiresAt: ms.now().Add(ttl),
	}
	delete(ms.locks, ms.prefix+key+lockSuffix)
	ms.mu.Unlock()
	return nil
}

func (ms *memoryStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resultKey := ms.prefix + key + resultSuffix

	ms.mu.Lock()
	defer ms.mu.Unlock()
	entry, ok := ms.results[resultKey]
	if !ok {
		return nil, ErrResultNotFound
	}
	if !entry.expiresAt.After(ms.now()) {
		delete(ms.results, resultKey)
		return nil, ErrResultNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

type redisStore struct {
	client *redis.Client
	prefix string
}

func newRedisStore(client *redis.Client, prefix string) *redisStore {
	return &redisStore{client: client, prefix: prefix}
}

func (rs *redisStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := rs.client.SetNX(ctx, rs.prefix+key+lockSuffix, "1", ttl).Result()
	if err != nil && err != redis.Nil {
		return false, xerrors.Wrap(err, "idem: acquire lock")
	}
	return ok, nil
}

func (rs *redisStore) Unlock(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.prefix+key+lockSuffix).Err(); err != nil {
		return xerrors.Wrap(err, "idem: release lock")
	}
	return nil
}

func (rs *redisStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, rs.prefix+key+resultSuffix, val, ttl)
	pipe.Del(ctx, rs.prefix+key+lockSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Wrap(err, "idem: set result")
	}
	return nil
}

func (rs *redisStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.client.Get(ctx, rs.prefix+key+resultSuffix).Bytes()
	if err == redis.Nil {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: get result")
	}
	return val, nil
}

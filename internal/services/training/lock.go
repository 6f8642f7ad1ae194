package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker grants exclusive use of a lineage. TryLock never waits; unlock is
// only valid when acquired is true.
type Locker interface {
	TryLock(ctx context.Context, lineage string) (unlock func(), acquired bool, err error)
}

// LocalLocker serialises training runs inside one process
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker creates an in-process lineage lock
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// TryLock acquires the lineage if nobody in this process holds it
func (l *LocalLocker) TryLock(ctx context.Context, lineage string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lineage] {
		return nil, false, nil
	}
	l.held[lineage] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, lineage)
			l.mu.Unlock()
		})
	}, true, nil
}

// redisLockClient is the subset of redis.Cmdable the lock uses
type redisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Delete or extend only when the caller still owns the key
const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	extendScript  = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

// RedisLocker shares lineage locks between replicas. Each lock is a key
// holding the owner's UUID with a TTL that is renewed while held.
type RedisLocker struct {
	client redisLockClient
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewRedisLocker creates a lock backed by client
func NewRedisLocker(client redisLockClient, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "sdc:training:lock:", log: log}
}

// TryLock sets the lineage key if absent and starts renewing it
func (l *RedisLocker) TryLock(ctx context.Context, lineage string) (func(), bool, error) {
	key := l.prefix + lineage
	owner := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, owner, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn("failed to release training lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, true, nil
}

func (l *RedisLocker) renew(key, owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := l.client.Eval(ctx, extendScript, []string{key}, owner, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.log.Warn("failed to renew training lock", zap.String("key", key), zap.Error(err))
				continue
			}
			if n == 0 {
				l.log.Error("training lock lost", zap.String("key", key))
				return
			}
		}
	}
}

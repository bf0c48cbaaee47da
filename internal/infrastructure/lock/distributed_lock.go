package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis 分布式锁
//
// 加锁：SET key token NX EX ttl，token 标识持有者
// 释放：Lua 脚本比对 token 后删除，避免删掉别人在锁过期后重新拿到的锁

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
	// ErrLockContention 锁被其它实例持有，定时任务据此跳过本轮，不算失败
	ErrLockContention = errors.New("锁被其它实例持有")
)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

// NewDistributedLock value 为空时生成随机 token
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	if value == "" {
		value = uuid.NewString()
	}
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞加锁，按固定间隔重试
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只删除自己持有的锁；返回是否真正释放
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// NewAccountLock 用户流水写锁，同一账户的写入串行
func NewAccountLock(client *redis.Client, accountID string) *DistributedLock {
	key := fmt.Sprintf("ledger:lock:account:%s", accountID)
	return NewDistributedLock(client, key, "", 30*time.Second)
}

// NewJobLock 定时任务互斥锁，ttl 必须大于任务最长执行时间
func NewJobLock(client *redis.Client, jobName string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("job:lock:%s", jobName)
	return NewDistributedLock(client, key, "", ttl)
}

// RunExclusive 拿到锁才执行 fn，拿不到返回 ErrLockContention，不等待
func RunExclusive(ctx context.Context, client *redis.Client, jobName string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l := NewJobLock(client, jobName, ttl)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("获取任务锁失败: %w", err)
	}
	if !ok {
		return ErrLockContention
	}
	defer func() {
		// 任务执行期间 ctx 可能已取消，释放锁用独立的 ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = l.Unlock(releaseCtx)
	}()
	return fn(ctx)
}

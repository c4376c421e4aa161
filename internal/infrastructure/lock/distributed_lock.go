package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 多实例部署时，定时任务通过 Redis 锁保证同一时刻只有一个实例执行。
// 锁只用于减少重复扫描，数据正确性由数据库条件更新保证。

var ErrLockHeld = errors.New("锁已被其他实例持有")

// unlockScript 校验持有者后再删除，避免误删别人的锁
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 基于 SET NX EX 的分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// NewJobLock 定时任务锁，value 为实例标识
func NewJobLock(client *redis.Client, job, owner string, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, fmt.Sprintf("job:lock:%s", job), owner, expiration)
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

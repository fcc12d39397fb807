// Package lock 切分任务的占用标记, 防止两个进程同时切同一个文件.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrClaimed = errors.New("file is claimed by another worker")

// Claimer 抢占失败返回 false, 不是错误
type Claimer interface {
	Claim(ctx context.Context, path string) (bool, error)
	Release(ctx context.Context, path string) error
}

type claimStore interface {
	ClaimSplit(ctx context.Context, path string, ttl time.Duration) (bool, error)
	ReleaseSplit(ctx context.Context, path string) error
}

// StoreClaimer 基于元数据库 split_state 字段的比较并交换
type StoreClaimer struct {
	store claimStore
	ttl   time.Duration
}

func NewStoreClaimer(store claimStore, ttl time.Duration) *StoreClaimer {
	return &StoreClaimer{store: store, ttl: ttl}
}

func (c *StoreClaimer) Claim(ctx context.Context, path string) (bool, error) {
	return c.store.ClaimSplit(ctx, path, c.ttl)
}

func (c *StoreClaimer) Release(ctx context.Context, path string) error {
	return c.store.ReleaseSplit(ctx, path)
}

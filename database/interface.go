package database

import (
	"context"
	"time"

	"github.com/jing2uo/spt2db/model"
)

// MetaStore 文件/切片元数据, 幂等依赖 path 唯一约束和标签
type MetaStore interface {
	Connect() error
	Close() error
	InitSchema() error

	// InsertFile 路径已存在时返回 false, 不覆盖
	InsertFile(ctx context.Context, rec *model.FileRecord) (bool, error)
	GetFile(ctx context.Context, path string) (*model.FileRecord, error)
	FindFiles(ctx context.Context, f model.FileFilter) ([]model.FileRecord, error)
	CountFiles(ctx context.Context, f model.FileFilter) (int64, error)
	DistinctFiles(ctx context.Context, field string, f model.FileFilter) ([]string, error)
	CountFilesBy(ctx context.Context, field string, f model.FileFilter) ([]model.KeyCount, error)
	CountTags(ctx context.Context, f model.FileFilter) ([]model.KeyCount, error)
	UpdateFile(ctx context.Context, path string, ops ...model.UpdateOp) error
	// DeleteFile 只删记录 (含标签和切片记录), 快照文件由调用方先删
	DeleteFile(ctx context.Context, path string) error

	// ClaimSplit split_state 的比较并交换, 过期的占用可以被抢占
	ClaimSplit(ctx context.Context, path string, ttl time.Duration) (bool, error)
	ReleaseSplit(ctx context.Context, path string) error

	InsertSplits(ctx context.Context, recs []model.SplitRecord) error
	FindSplits(ctx context.Context, f model.SplitFilter) ([]model.SplitRecord, error)
	UpdateSplit(ctx context.Context, id string, ops ...model.UpdateOp) error
	DeleteSplits(ctx context.Context, filePath string) (int64, error)

	ArtifactRefs(ctx context.Context) ([]model.ArtifactRef, error)
}

// KlineStore K线落库: 按 (合约, 周期) 先删后批量插入
type KlineStore interface {
	Connect() error
	Close() error
	InitSchema() error

	ReplaceBars(ctx context.Context, table *model.TableMeta, instrument, level string, bars []model.KlineBar, batchSize int) error
	QueryBars(ctx context.Context, table *model.TableMeta, instrument, level string) ([]model.KlineBar, error)
}

// TickImporter 把快照导入按品种路由的 tick 表
type TickImporter interface {
	ImportTicks(ctx context.Context, category, filePath, artifactAbs string) (int64, error)
}

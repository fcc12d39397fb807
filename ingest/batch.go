package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/lock"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/utils"
)

type BatchReport struct {
	Total    int
	Outcomes map[Outcome]int
	Errors   []error
	Duration time.Duration
}

func (r *BatchReport) Count(o Outcome) int {
	return r.Outcomes[o]
}

type fileFunc func(ctx context.Context, path string, force bool) (Outcome, error)

// runBatch 按过滤条件取出文件, 并发执行, 单个文件的错误不影响其它文件
func runBatch(ctx context.Context, env *Env, filter model.FileFilter, force bool, fn fileFunc) (*BatchReport, error) {
	recs, err := env.Meta.FindFiles(ctx, filter)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(recs))
	for i := range recs {
		paths[i] = recs[i].Path
	}

	report := &BatchReport{Total: len(paths), Outcomes: make(map[Outcome]int)}
	var mu sync.Mutex

	pipeline := utils.NewPipeline[string, Outcome](utils.WithConcurrency(env.Cfg.Concurrency))
	result, err := pipeline.Run(ctx, paths,
		func(ctx context.Context, path string) ([]Outcome, error) {
			outcome, err := fn(ctx, path, force)
			if errors.Is(err, lock.ErrClaimed) {
				return []Outcome{OutcomeClaimed}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return []Outcome{outcome}, nil
		},
		func(rows []Outcome) error {
			mu.Lock()
			defer mu.Unlock()
			for _, o := range rows {
				report.Outcomes[o]++
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	report.Errors = result.Errors
	report.Duration = result.Duration
	for _, e := range result.Errors {
		env.Log.Error("batch item failed", zap.Error(e))
	}
	return report, nil
}

// ConvertFiles 对已登记的文件重新转换
func (c *Converter) ConvertFiles(ctx context.Context, filter model.FileFilter, force bool) (*BatchReport, error) {
	return runBatch(ctx, c.Env, filter, force, c.Convert)
}

package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/spt"
	"github.com/jing2uo/spt2db/utils"
)

type ImportReport struct {
	Discovered int
	Inserted   int64
	Outcomes   map[Outcome]int
	Errors     []error
	Duration   time.Duration
}

// Importer 发现原始文件, 登记元数据, 再逐个转换
type Importer struct {
	*Env
	conv *Converter
}

func NewImporter(env *Env) *Importer {
	return &Importer{Env: env, conv: NewConverter(env)}
}

func (im *Importer) Run(ctx context.Context, filter spt.DiscoverFilter, force bool) (*ImportReport, error) {
	files, err := spt.Discover(im.Cfg.RawRoot, filter)
	if err != nil {
		return nil, err
	}
	im.Log.Info("discovered raw files", zap.Int("files", len(files)), zap.String("root", im.Cfg.RawRoot))

	report := &ImportReport{Discovered: len(files), Outcomes: make(map[Outcome]int)}
	var inserted atomic.Int64
	var mu sync.Mutex

	pipeline := utils.NewPipeline[spt.RawFile, Outcome](utils.WithConcurrency(im.Cfg.Concurrency))
	result, err := pipeline.Run(ctx, files,
		func(ctx context.Context, rf spt.RawFile) ([]Outcome, error) {
			ok, err := im.Meta.InsertFile(ctx, spt.NewFileRecord(rf))
			if err != nil {
				return nil, err
			}
			if ok {
				inserted.Add(1)
			}

			outcome, err := im.conv.Convert(ctx, rf.Path, force)
			if err != nil {
				return nil, fmt.Errorf("convert %s: %w", rf.Path, err)
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

	report.Inserted = inserted.Load()
	report.Errors = result.Errors
	report.Duration = result.Duration
	for _, e := range result.Errors {
		im.Log.Error("import failed", zap.Error(e))
	}
	return report, nil
}

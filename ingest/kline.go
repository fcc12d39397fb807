package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jing2uo/spt2db/calc"
	"github.com/jing2uo/spt2db/database"
	"github.com/jing2uo/spt2db/model"
)

// KlineBuilder 按合约汇总有效文件的快照, 生成各周期 K 线
type KlineBuilder struct {
	*Env
	store    database.KlineStore
	exporter database.TickImporter
	levels   []calc.Level
}

func NewKlineBuilder(env *Env, store database.KlineStore, levels []string) (*KlineBuilder, error) {
	b := &KlineBuilder{Env: env, store: store}
	for _, s := range levels {
		l, err := calc.ParseLevel(s)
		if err != nil {
			return nil, err
		}
		b.levels = append(b.levels, l)
	}
	if len(b.levels) == 0 {
		return nil, fmt.Errorf("no kline levels configured")
	}
	return b, nil
}

// WithTickExport 生成 K 线的同时把快照导入按品种分表的 tick 表
func (b *KlineBuilder) WithTickExport(exporter database.TickImporter) *KlineBuilder {
	b.exporter = exporter
	return b
}

func (b *KlineBuilder) sourceFilter(scope model.FileFilter) model.FileFilter {
	f, _ := model.ViewFilter(model.ViewFilesValid)
	f = f.Merge(scope)
	f.HasArtifact = true
	return f
}

// Instruments 范围内有有效快照的合约
func (b *KlineBuilder) Instruments(ctx context.Context, scope model.FileFilter) ([]string, error) {
	return b.Meta.DistinctFiles(ctx, "instrument", b.sourceFilter(scope))
}

// BuildAll 合约之间并发, 单个合约失败不影响其它合约
func (b *KlineBuilder) BuildAll(ctx context.Context, scope model.FileFilter) (map[string]int, []error, error) {
	instruments, err := b.Instruments(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	results := make([]map[string]int, len(instruments))
	errs := make([]error, len(instruments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Cfg.Concurrency)
	for i, inst := range instruments {
		g.Go(func() error {
			counts, err := b.Build(gctx, inst, scope)
			if err != nil {
				errs[i] = fmt.Errorf("kline %s: %w", inst, err)
				b.Log.Error("kline failed", zap.String("instrument", inst), zap.Error(err))
				return nil
			}
			results[i] = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	total := make(map[string]int)
	for _, counts := range results {
		for level, n := range counts {
			total[level] += n
		}
	}
	var failed []error
	for _, e := range errs {
		if e != nil {
			failed = append(failed, e)
		}
	}
	return total, failed, nil
}

// Build 返回每个周期写入的 K 线数量
func (b *KlineBuilder) Build(ctx context.Context, instrument string, scope model.FileFilter) (map[string]int, error) {
	start := time.Now()

	f := b.sourceFilter(scope)
	f.Instrument = instrument
	files, err := b.Meta.FindFiles(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return map[string]int{}, nil
	}

	kind := files[0].Kind()
	var rows []model.Tick
	for i := range files {
		t, err := b.Artifacts.Read(*files[i].ZipPath, kind)
		if err != nil {
			return nil, fmt.Errorf("load artifact %s: %w", *files[i].ZipPath, err)
		}
		rows = append(rows, t.Rows...)

		if b.exporter != nil {
			if _, err := b.exporter.ImportTicks(ctx, files[i].Category, files[i].Path, b.Artifacts.Abs(*files[i].ZipPath)); err != nil {
				return nil, fmt.Errorf("export ticks %s: %w", files[i].Path, err)
			}
		}
	}

	table := model.NewTickTable(kind, rows)
	table.SortByTime()

	if replaced, std := calc.CleanOpenInterest(table.Rows); replaced > 0 {
		b.Log.Info("replaced open interest outliers",
			zap.String("instrument", instrument),
			zap.Int("replaced", replaced),
			zap.Float64("std", std))
	}

	counts := make(map[string]int, len(b.levels))
	for _, level := range b.levels {
		bars := calc.Resample(table.Rows, kind, level, b.Cfg.KlineOffset.Duration)
		for i := range bars {
			bars[i].Category = files[0].Category
		}

		if err := b.store.ReplaceBars(ctx, level.Table(), instrument, level.Name, bars, b.Cfg.BatchSize); err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			b.Log.Warn("empty kline", zap.String("instrument", instrument), zap.String("level", level.Name))
		}
		counts[level.Name] = len(bars)
		b.Metrics.Bar(level.Name, len(bars))
	}

	b.Log.Info("kline built",
		zap.String("instrument", instrument),
		zap.Int("files", len(files)),
		zap.Int("ticks", table.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return counts, nil
}

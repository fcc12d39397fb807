package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/calc"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/spt"
)

const stageConvert = "convert"

// 强制重转时先摘掉的标签
var convertResetTags = []string{
	model.TagEmptyDF, model.TagLoadDFFail, model.TagTimeError, model.TagTooSmall,
}

// Converter 原始 spt 文件 -> 整文件 parquet 快照
type Converter struct {
	*Env
}

func NewConverter(env *Env) *Converter {
	return &Converter{Env: env}
}

func (c *Converter) Convert(ctx context.Context, path string, force bool) (outcome Outcome, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
		}
		c.finish(stageConvert, path, outcome, start)
	}()

	rec, err := c.Meta.GetFile(ctx, path)
	if err != nil {
		return OutcomeFailed, err
	}

	// 中金所等市场不处理
	if c.Cfg.SkipMarket(model.Market(rec.Market)) {
		return OutcomeSkipped, nil
	}

	dst := spt.FileArtifactPath(rec)
	log := c.Log.With(zap.String("path", path))

	if !force {
		if rec.HasAnyTag(model.TagEmptyDF, model.TagLoadDFFail) {
			log.Warn("file tagged as unreadable, skip", zap.Strings("tags", rec.Tags))
			return OutcomeSkipped, nil
		}
		if c.Artifacts.Exists(dst) {
			log.Debug("artifact already exists", zap.String("artifact", dst))
			return OutcomeSkipped, nil
		}
	} else {
		if err := c.Meta.UpdateFile(ctx, path, model.PullTags(convertResetTags...)...); err != nil {
			return OutcomeFailed, err
		}
	}

	raw, err := c.Reader.ReadFile(c.rawPath(path), rec.Kind())
	if err != nil {
		var lf *spt.LoadFailure
		if errors.As(err, &lf) {
			log.Error("load raw file failed", zap.Error(err))
			return OutcomeLoadFail, c.Meta.UpdateFile(ctx, path, model.AddTag(model.TagLoadDFFail))
		}
		return OutcomeFailed, err
	}
	if err := c.Meta.UpdateFile(ctx, path, model.Set("line_num", int64(raw.LineNum))); err != nil {
		return OutcomeFailed, err
	}

	table := raw.Table
	cleaned := c.Cleaner.Clean(table)
	c.dropped(cleaned)

	if table.Len() == 0 {
		log.Error("no rows left after cleaning",
			zap.Int("line_num", raw.LineNum),
			zap.Int("out_of_range", cleaned.OutOfRange),
			zap.Int("negative_volume", cleaned.NegativeVolume))
		return OutcomeEmpty, c.Meta.UpdateFile(ctx, path,
			model.AddTag(model.TagEmptyDF), model.Set("doc_num", int64(0)))
	}

	table.SortByTime()
	first, last := table.Rows[0].UpdateTime, table.Rows[table.Len()-1].UpdateTime
	timeOps := []model.UpdateOp{
		model.Set("start_time", first),
		model.Set("end_time", last),
		model.Set("diff_sec", last.Sub(first).Seconds()),
	}

	if unknown := c.Classifier.ClassifyCoarse(table); unknown > 0 {
		log.Error("ticks outside trading hours", zap.Int("unknown", unknown))
		ops := append(timeOps, model.AddTag(model.TagTimeError), model.Set("doc_num", int64(0)))
		return OutcomeTimeError, c.Meta.UpdateFile(ctx, path, ops...)
	}

	// 时间字段随统计量一起写回
	outcome = OutcomeDone
	var ops []model.UpdateOp
	if table.Len() < c.Cfg.MinRows {
		outcome = OutcomeTooSmall
		ops = append(ops, model.AddTag(model.TagTooSmall))
	}

	n, err := c.Artifacts.Write(dst, table)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("write artifact for %s: %w", path, err)
	}

	ops = append(ops,
		model.Set("zip_path", dst),
		model.Set("zip_line_num", int64(n)),
		model.Set("zip_ver", int64(c.Artifacts.Version())),
	)
	ops = append(ops, summaryOps(calc.Summarize(table))...)
	if err := c.Meta.UpdateFile(ctx, path, ops...); err != nil {
		return OutcomeFailed, err
	}

	fields := []zap.Field{
		zap.Int("rows", n),
		zap.Int("line_num", raw.LineNum),
		zap.Duration("elapsed", time.Since(start)),
	}
	if cleaned.OutOfRange > 0 {
		fields = append(fields, zap.Int("out_of_range", cleaned.OutOfRange))
	}
	if cleaned.NegativeVolume > 0 {
		fields = append(fields, zap.Int("negative_volume", cleaned.NegativeVolume))
	}
	log.Info("converted", fields...)
	return outcome, nil
}

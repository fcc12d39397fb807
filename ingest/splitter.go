package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/calc"
	"github.com/jing2uo/spt2db/lock"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/spt"
)

const stageSplit = "split"

// 重新切分前摘掉的标签
var splitResetTags = []string{model.TagSplited, model.TagDupTime, model.TagTimeNoMs}

// Splitter 整文件快照 -> 按 (交易日, 时段) 的分片
type Splitter struct {
	*Env
}

func NewSplitter(env *Env) *Splitter {
	return &Splitter{Env: env}
}

type partKey struct {
	day     string
	session model.Session
}

type partition struct {
	key  partKey
	rows []model.Tick
}

func (s *Splitter) Split(ctx context.Context, path string, force bool) (outcome Outcome, err error) {
	start := time.Now()
	defer func() {
		if err != nil && !errors.Is(err, lock.ErrClaimed) {
			outcome = OutcomeFailed
		}
		s.finish(stageSplit, path, outcome, start)
	}()

	rec, err := s.Meta.GetFile(ctx, path)
	if err != nil {
		return OutcomeFailed, err
	}
	log := s.Log.With(zap.String("path", path))

	if rec.HasAnyTag(model.TagTooSmall, model.TagInvalidDay) || rec.ZipPath == nil {
		return OutcomeSkipped, nil
	}
	if !force && rec.HasTag(model.TagSplited) {
		return OutcomeSkipped, nil
	}

	claimed, err := s.Claimer.Claim(ctx, path)
	if err != nil {
		return OutcomeFailed, err
	}
	if !claimed {
		return OutcomeClaimed, fmt.Errorf("split %s: %w", path, lock.ErrClaimed)
	}
	defer func() {
		// 释放用独立的 context, 调用方取消后也要清掉占用
		if rerr := s.Claimer.Release(context.WithoutCancel(ctx), path); rerr != nil {
			log.Error("release claim failed", zap.Error(rerr))
		}
	}()

	table, err := s.Artifacts.Read(*rec.ZipPath, rec.Kind())
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load artifact %s: %w", *rec.ZipPath, err)
	}

	if err := s.dropSplits(ctx, rec); err != nil {
		return OutcomeFailed, err
	}

	cleaned, err := s.Cleaner.CleanForSplit(table)
	s.dropped(cleaned)
	switch {
	case errors.Is(err, spt.ErrTimeNoMs):
		log.Warn("sub-second resolution lost", zap.Int("distinct", cleaned.SubSecondValues))
		return OutcomeTimeNoMs, s.Meta.UpdateFile(ctx, path, model.AddTag(model.TagTimeNoMs))
	case errors.Is(err, spt.ErrDupTime):
		log.Warn("too many duplicate timestamps", zap.Int("dropped", cleaned.DupTime))
		return OutcomeDupTime, s.Meta.UpdateFile(ctx, path, model.AddTag(model.TagDupTime))
	case err != nil:
		return OutcomeFailed, err
	}
	if cleaned.DupRows > 0 || cleaned.DupTime > 0 {
		log.Info("dropped duplicates",
			zap.Int("dup_rows", cleaned.DupRows),
			zap.Int("dup_time", cleaned.DupTime),
			zap.Int("left", table.Len()))
	}

	if unknown := s.Classifier.Classify(table); unknown > 0 {
		log.Error("ticks outside every session window", zap.Int("unknown", unknown))
		return OutcomeUnclassified, fmt.Errorf("%s: %w: %d rows", path, spt.ErrUnclassified, unknown)
	}

	// 分片记录落库前失败, 删掉本次已写的分片文件
	var written []string
	committed := false
	defer func() {
		if committed {
			return
		}
		for _, zip := range written {
			if rerr := s.Artifacts.Remove(zip); rerr != nil {
				log.Error("remove partial split failed", zap.String("artifact", zip), zap.Error(rerr))
			}
		}
	}()

	var splits []model.SplitRecord
	for _, p := range s.partition(table) {
		if len(p.rows) < s.Cfg.MinRows {
			log.Debug("partition too small",
				zap.String("day", p.key.day),
				zap.String("session", string(p.key.session)),
				zap.Int("rows", len(p.rows)))
			continue
		}

		written = append(written, spt.SplitArtifactPath(rec, p.key.day, p.key.session))
		sr, err := s.writePart(rec, table.Kind, p)
		if err != nil {
			return OutcomeFailed, err
		}
		splits = append(splits, *sr)
	}

	if err := s.Meta.InsertSplits(ctx, splits); err != nil {
		return OutcomeFailed, err
	}
	committed = true
	if err := s.Meta.UpdateFile(ctx, path,
		model.AddTag(model.TagSplited),
		model.Set("doc_num", int64(len(splits))),
	); err != nil {
		return OutcomeFailed, err
	}

	s.Metrics.Split(len(splits))
	log.Info("split",
		zap.Int("rows", table.Len()),
		zap.Int("splits", len(splits)),
		zap.Duration("elapsed", time.Since(start)))
	return OutcomeDone, nil
}

// dropSplits 删除旧分片的文件和记录, 并重置父记录的切分状态
func (s *Splitter) dropSplits(ctx context.Context, rec *model.FileRecord) error {
	old, err := s.Meta.FindSplits(ctx, model.SplitFilter{FilePath: rec.Path})
	if err != nil {
		return err
	}
	for _, sr := range old {
		if err := s.Artifacts.Remove(sr.ZipPath); err != nil {
			return fmt.Errorf("remove split %s: %w", sr.ZipPath, err)
		}
	}
	if n, err := s.Meta.DeleteSplits(ctx, rec.Path); err != nil {
		return err
	} else if n > 0 {
		s.Log.Info("deleted previous splits", zap.String("path", rec.Path), zap.Int64("splits", n))
	}

	ops := append(model.PullTags(splitResetTags...), model.Set("doc_num", int64(0)))
	return s.Meta.UpdateFile(ctx, rec.Path, ops...)
}

// partition 输入已按时间排序, 分组保持首次出现的顺序, 组内仍然有序
func (s *Splitter) partition(t *model.TickTable) []partition {
	index := make(map[partKey]int)
	var parts []partition

	for i := range t.Rows {
		k := partKey{
			day:     s.Classifier.TradingDay(t.Rows[i].UpdateTime),
			session: t.Rows[i].Session,
		}
		j, ok := index[k]
		if !ok {
			j = len(parts)
			index[k] = j
			parts = append(parts, partition{key: k})
		}
		parts[j].rows = append(parts[j].rows, t.Rows[i])
	}
	return parts
}

func (s *Splitter) writePart(rec *model.FileRecord, kind model.SeriesKind, p partition) (*model.SplitRecord, error) {
	part := model.NewTickTable(kind, p.rows)
	dst := spt.SplitArtifactPath(rec, p.key.day, p.key.session)

	n, err := s.Artifacts.Write(dst, part)
	if err != nil {
		return nil, fmt.Errorf("write split %s: %w", dst, err)
	}

	return &model.SplitRecord{
		ID:         uuid.NewString(),
		FilePath:   rec.Path,
		Market:     rec.Market,
		Category:   rec.Category,
		Instrument: rec.Instrument,
		SubID:      rec.SubID,
		Year:       p.key.day[:4],
		Month:      p.key.day[:6],
		Day:        p.key.day,
		Session:    string(p.key.session),
		ZipPath:    dst,
		ZipLineNum: int64(n),
		ZipVer:     int64(s.Artifacts.Version()),
		Summary:    calc.Summarize(part),

		IsDominant:    rec.IsDominant,
		Is2ndDominant: rec.Is2ndDominant,
	}, nil
}

// SplitFiles 批量切分
func (s *Splitter) SplitFiles(ctx context.Context, filter model.FileFilter, force bool) (*BatchReport, error) {
	return runBatch(ctx, s.Env, filter, force, s.Split)
}

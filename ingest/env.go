// Package ingest 把 spt 原始文件变成快照、分片和 K 线, 每一步的结果都记录在元数据库里.
package ingest

import (
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/artifact"
	"github.com/jing2uo/spt2db/config"
	"github.com/jing2uo/spt2db/database"
	"github.com/jing2uo/spt2db/lock"
	"github.com/jing2uo/spt2db/metrics"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/spt"
)

// Outcome 单个文件的处理结果, 也是 metrics 的 outcome 标签
type Outcome string

const (
	OutcomeDone         Outcome = "done"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeLoadFail     Outcome = "load_fail"
	OutcomeEmpty        Outcome = "empty"
	OutcomeTimeError    Outcome = "time_error"
	OutcomeTooSmall     Outcome = "too_small"
	OutcomeTimeNoMs     Outcome = "time_no_ms"
	OutcomeDupTime      Outcome = "dup_time"
	OutcomeUnclassified Outcome = "unclassified"
	OutcomeClaimed      Outcome = "claimed"
	OutcomeFailed       Outcome = "failed"
)

// Env 各阶段共享的依赖
type Env struct {
	Cfg        *config.Config
	Meta       database.MetaStore
	Artifacts  *artifact.Store
	Reader     *spt.Reader
	Cleaner    *spt.Cleaner
	Classifier *spt.Classifier
	Claimer    lock.Claimer
	Log        *zap.Logger
	Metrics    *metrics.Recorder
}

func NewEnv(cfg *config.Config, meta database.MetaStore, log *zap.Logger, rec *metrics.Recorder) (*Env, error) {
	if log == nil {
		log = zap.NewNop()
	}

	reader, err := spt.NewReader(cfg.Delimiter, cfg.Encoding, log)
	if err != nil {
		return nil, err
	}
	lo, hi, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	classifier, err := spt.NewClassifier(cfg.Sessions, cfg.TradingDayShift.Duration)
	if err != nil {
		return nil, err
	}
	store, err := artifact.NewStore(cfg.ArtifactRoot, cfg.ArtifactVersion)
	if err != nil {
		return nil, err
	}

	return &Env{
		Cfg:        cfg,
		Meta:       meta,
		Artifacts:  store,
		Reader:     reader,
		Cleaner:    spt.NewCleaner(lo, hi, cfg.MaxDupTime),
		Classifier: classifier,
		Claimer:    lock.NewStoreClaimer(meta, cfg.ClaimTTL.Duration),
		Log:        log,
		Metrics:    rec,
	}, nil
}

func (e *Env) rawPath(rel string) string {
	return filepath.Join(e.Cfg.RawRoot, filepath.FromSlash(rel))
}

func (e *Env) finish(stage string, path string, outcome Outcome, start time.Time) {
	e.Metrics.File(stage, string(outcome))
	e.Metrics.Observe(stage, time.Since(start).Seconds())
	e.Log.Debug("file processed",
		zap.String("stage", stage),
		zap.String("path", path),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)))
}

func (e *Env) dropped(res spt.CleanResult) {
	e.Metrics.Dropped("out_of_range", res.OutOfRange)
	e.Metrics.Dropped("negative_volume", res.NegativeVolume)
	e.Metrics.Dropped("dup_rows", res.DupRows)
	e.Metrics.Dropped("dup_time", res.DupTime)
}

// summaryOps 统计量写回记录
func summaryOps(s model.Summary) []model.UpdateOp {
	return []model.UpdateOp{
		model.Set("start_time", s.Start),
		model.Set("end_time", s.End),
		model.Set("diff_sec", s.DiffSec),
		model.Set("open", s.Open),
		model.Set("close", s.Close),
		model.Set("high", s.High),
		model.Set("low", s.Low),
		model.Set("mean", s.Mean),
		model.Set("volume_sum", s.VolumeSum),
		model.Set("open_interest", s.OpenInterest),
		model.Set("turnover", s.Turnover),
	}
}

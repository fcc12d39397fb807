package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/config"
	"github.com/jing2uo/spt2db/database"
	"github.com/jing2uo/spt2db/ingest"
	"github.com/jing2uo/spt2db/lock"
	"github.com/jing2uo/spt2db/logging"
	"github.com/jing2uo/spt2db/metrics"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/workflow"
)

// Options 命令行上的全局参数, 非零值覆盖配置文件
type Options struct {
	ConfigPath   string
	RawRoot      string
	ArtifactRoot string
	MetaDSN      string
	KlineDSN     string
	KlineType    string
	Concurrency  int
	LogLevel     string
}

// Scope 命令行上的范围过滤
type Scope struct {
	Market     int
	Category   string
	Instrument string
	Year       string
	Month      string
	Day        string
	Paths      []string
	Limit      int
}

func (s Scope) Filter() model.FileFilter {
	return model.FileFilter{
		Paths:      s.Paths,
		Market:     s.Market,
		Category:   s.Category,
		Instrument: s.Instrument,
		Year:       s.Year,
		Month:      s.Month,
		Day:        s.Day,
		Limit:      s.Limit,
	}
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.RawRoot != "" {
		cfg.RawRoot = opts.RawRoot
	}
	if opts.ArtifactRoot != "" {
		cfg.ArtifactRoot = opts.ArtifactRoot
	}
	if opts.MetaDSN != "" {
		cfg.MetaDB.DSN = opts.MetaDSN
	}
	if opts.KlineType != "" {
		cfg.KlineDB.Type = model.DBType(opts.KlineType)
	}
	if opts.KlineDSN != "" {
		cfg.KlineDB.DSN = opts.KlineDSN
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

// session 一次命令执行期间打开的资源
type session struct {
	cfg     *config.Config
	log     *zap.Logger
	rec     *metrics.Recorder
	meta    database.MetaStore
	kline   database.KlineStore
	env     *ingest.Env
	closers []func() error
	restore func()
}

func open(ctx context.Context, opts Options, withKline bool) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: log, rec: metrics.New(), restore: logging.SetGlobal(log)}

	if err := s.openStores(ctx, withKline); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) openStores(ctx context.Context, withKline bool) error {
	meta, err := database.NewMetaStore(s.cfg.MetaDB)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	if err := meta.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.closers = append(s.closers, meta.Close)
	if err := meta.InitSchema(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.meta = meta

	env, err := ingest.NewEnv(s.cfg, meta, s.log, s.rec)
	if err != nil {
		return err
	}
	s.env = env

	if s.cfg.Redis.Addr != "" {
		client, err := lock.NewRedisClient(ctx, s.cfg.Redis)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, client.Close)
		env.Claimer = lock.NewRedisClaimer(client, env.Claimer, s.cfg.ClaimTTL.Duration)
	}

	if !withKline {
		return nil
	}

	kline, shared, err := database.NewKlineStore(s.cfg.KlineDB, meta)
	if err != nil {
		return err
	}
	if !shared {
		if err := kline.Connect(); err != nil {
			return fmt.Errorf("failed to connect to kline database: %w", err)
		}
		s.closers = append(s.closers, kline.Close)
		if err := kline.InitSchema(); err != nil {
			return fmt.Errorf("failed to initialize kline schema: %w", err)
		}
	}
	s.kline = kline
	return nil
}

func (s *session) runtime() *workflow.Runtime {
	rt := &workflow.Runtime{Env: s.env, Kline: s.kline}
	// tick 导出优先跟随 K 线库
	for _, store := range []interface{}{s.kline, s.meta} {
		if ti, ok := store.(database.TickImporter); ok {
			rt.Exporter = ti
			break
		}
	}
	return rt
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg != nil && s.cfg.MetricsFile != "" {
		if err := s.rec.WriteFile(s.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	_ = s.log.Sync()
	if s.restore != nil {
		s.restore()
	}
	return errors.Join(errs...)
}

// runTasks 执行给定任务, 只要有任务失败就返回错误
func runTasks(ctx context.Context, s *session, names []string, args *workflow.TaskArgs) error {
	executor := workflow.NewTaskExecutor(s.runtime(), workflow.AllTasks())
	results, err := executor.Run(ctx, names, args)
	if err != nil {
		return fmt.Errorf("workflow execution failed: %w", err)
	}
	for _, name := range names {
		if r, ok := results[name]; ok && r.State == workflow.StateFailed {
			return fmt.Errorf("task %s failed: %w", name, r.Error)
		}
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/jing2uo/spt2db/workflow"
)

// Kline 从快照聚合 K 线, levels 为空时使用配置中的周期
func Kline(ctx context.Context, opts Options, scope Scope, levels string, exportTicks bool) error {
	parsed, err := workflow.ParseLevels(levels)
	if err != nil {
		return fmt.Errorf("invalid levels: %w", err)
	}

	s, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if exportTicks && s.runtime().Exporter == nil {
		return fmt.Errorf("meta database %s does not support tick export", s.cfg.MetaDB.Type)
	}

	args := &workflow.TaskArgs{
		Scope:       scope.Filter(),
		Levels:      parsed,
		ExportTicks: exportTicks,
	}
	return runTasks(ctx, s, []string{workflow.TaskKline.Name}, args)
}

// Dominant 重新计算主力 / 次主力标记
func Dominant(ctx context.Context, opts Options, scope Scope) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	return runTasks(ctx, s, []string{workflow.TaskDominant.Name}, &workflow.TaskArgs{Scope: scope.Filter()})
}

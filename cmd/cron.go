package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jing2uo/spt2db/spt"
	"github.com/jing2uo/spt2db/utils"
	"github.com/jing2uo/spt2db/workflow"
)

// Cron 依次执行 导入 -> 切分 / 主力 / K 线 -> 核对
func Cron(ctx context.Context, opts Options, scope Scope, fix bool) error {
	start := time.Now()

	s, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer s.Close()

	args := &workflow.TaskArgs{
		Discover: spt.DiscoverFilter{Year: scope.Year, Market: scope.Market, Category: scope.Category},
		Scope:    scope.Filter(),
		Today:    start,
		Extra:    map[string]interface{}{"fix": fix},
	}

	executor := workflow.NewTaskExecutor(s.runtime(), workflow.AllTasks())
	results, err := executor.Run(ctx, workflow.CronTasks(), args)
	if err != nil {
		return fmt.Errorf("workflow execution failed: %w", err)
	}

	failed := 0
	for _, name := range workflow.CronTasks() {
		r, ok := results[name]
		if !ok {
			continue
		}
		switch r.State {
		case workflow.StateFailed:
			failed++
			fmt.Printf("❌ %-9s %v\n", name, r.Error)
		case workflow.StateSkipped:
			fmt.Printf("⏭️  %-9s %s\n", name, r.Message)
		default:
			fmt.Printf("✅ %-9s %d\n", name, r.Rows)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d tasks failed", failed)
	}
	fmt.Printf("🚀 今日任务执行成功, 耗时 %s\n", utils.FormatDuration(time.Since(start)))
	return nil
}

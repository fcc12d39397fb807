package cmd

import (
	"context"
	"fmt"

	"github.com/jing2uo/spt2db/spt"
	"github.com/jing2uo/spt2db/workflow"
)

// Import 扫描原始目录, 登记新文件并转换为快照
func Import(ctx context.Context, opts Options, scope Scope, force bool) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	args := &workflow.TaskArgs{
		Discover: spt.DiscoverFilter{Year: scope.Year, Market: scope.Market, Category: scope.Category},
		Force:    force,
	}
	if err := runTasks(ctx, s, []string{workflow.TaskImport.Name}, args); err != nil {
		return err
	}
	fmt.Println("🚀 导入完成")
	return nil
}

// Convert 对已登记的文件重新转换, force 时包括被标为无效的文件
func Convert(ctx context.Context, opts Options, scope Scope, force bool) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	args := &workflow.TaskArgs{Scope: scope.Filter(), Force: force}
	return runTasks(ctx, s, []string{workflow.TaskConvert.Name}, args)
}

// Split 将快照按交易日和时段切分
func Split(ctx context.Context, opts Options, scope Scope, force bool) error {
	s, err := open(ctx, opts, false)
	if err != nil {
		return err
	}
	defer s.Close()

	args := &workflow.TaskArgs{Scope: scope.Filter(), Force: force}
	return runTasks(ctx, s, []string{workflow.TaskSplit.Name}, args)
}

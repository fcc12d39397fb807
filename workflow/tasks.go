package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/jing2uo/spt2db/ingest"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/utils"
)

var (
	TaskImport   *Task
	TaskConvert  *Task
	TaskSplit    *Task
	TaskDominant *Task
	TaskKline    *Task
	TaskCheck    *Task
)

func init() {
	TaskImport = &Task{
		Name:      "import",
		DependsOn: []string{},
		Executor:  executeImport,
	}

	TaskConvert = &Task{
		Name:      "convert",
		DependsOn: []string{},
		Executor:  executeConvert,
	}

	TaskSplit = &Task{
		Name:      "split",
		DependsOn: []string{"import"},
		Executor:  executeSplit,
		OnError:   ErrorModeSkip,
	}

	TaskDominant = &Task{
		Name:      "dominant",
		DependsOn: []string{"import"},
		Executor:  executeDominant,
	}

	TaskKline = &Task{
		Name:      "kline",
		DependsOn: []string{"import"},
		SkipIf: func(ctx context.Context, rt *Runtime, args *TaskArgs) bool {
			return rt.Kline == nil
		},
		Executor: executeKline,
		OnError:  ErrorModeSkip,
	}

	TaskCheck = &Task{
		Name:      "check",
		DependsOn: []string{"split", "kline"},
		Executor:  executeCheck,
		OnError:   ErrorModeSkip,
	}
}

// AllTasks 所有可执行的任务
func AllTasks() map[string]*Task {
	return map[string]*Task{
		TaskImport.Name:   TaskImport,
		TaskConvert.Name:  TaskConvert,
		TaskSplit.Name:    TaskSplit,
		TaskDominant.Name: TaskDominant,
		TaskKline.Name:    TaskKline,
		TaskCheck.Name:    TaskCheck,
	}
}

// CronTasks cron 依次执行的任务, convert 已包含在 import 中
func CronTasks() []string {
	return []string{
		TaskImport.Name,
		TaskSplit.Name,
		TaskDominant.Name,
		TaskKline.Name,
		TaskCheck.Name,
	}
}

func executeImport(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
	fmt.Printf("📦 开始扫描原始目录: %s\n", rt.Env.Cfg.RawRoot)
	if err := utils.CheckDirectory(rt.Env.Cfg.RawRoot); err != nil {
		return nil, err
	}

	report, err := ingest.NewImporter(rt.Env).Run(ctx, args.Discover, args.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to import raw files: %w", err)
	}

	fmt.Printf("🗂️  发现 %d 个文件, 新登记 %d 个, 耗时 %s\n",
		report.Discovered, report.Inserted, utils.FormatDuration(report.Duration))
	printOutcomes(report.Outcomes)

	if len(report.Errors) > 0 {
		fmt.Printf("⚠️  %d 个文件转换失败, 首个错误: %v\n", len(report.Errors), report.Errors[0])
	}
	if report.Discovered == 0 {
		fmt.Println("🌲 没有需要导入的文件")
		return &TaskResult{State: StateSkipped, Message: "no raw files"}, nil
	}
	return &TaskResult{State: StateCompleted, Rows: report.Discovered, Message: "raw files imported"}, nil
}

func executeConvert(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
	fmt.Printf("🐢 开始转换, 并发 %d\n", rt.Env.Cfg.Concurrency)

	report, err := ingest.NewConverter(rt.Env).ConvertFiles(ctx, args.Scope, args.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to convert files: %w", err)
	}
	return batchResult("convert", report)
}

func executeSplit(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
	fmt.Println("🔪 开始按交易日和时段切分")

	filter, _ := model.ViewFilter(model.ViewFilesValid)
	filter = filter.Merge(args.Scope)
	filter.HasArtifact = true

	report, err := ingest.NewSplitter(rt.Env).SplitFiles(ctx, filter, args.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to split files: %w", err)
	}
	return batchResult("split", report)
}

func executeDominant(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
	fmt.Println("👑 计算主力 / 次主力合约")

	report, err := ingest.MarkDominant(ctx, rt.Env, args.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to mark dominant: %w", err)
	}

	fmt.Printf("👑 %d 个文件, 主力 %d, 次主力 %d, 变更 %d\n",
		report.Files, report.Dominant, report.Second, report.Changed)
	return &TaskResult{State: StateCompleted, Rows: report.Changed, Message: "dominant marked"}, nil
}

func executeKline(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
	fmt.Println("📊 开始生成 K 线")

	levels := args.Levels
	if len(levels) == 0 {
		levels = rt.Env.Cfg.KlineLevels
	}
	builder, err := ingest.NewKlineBuilder(rt.Env, rt.Kline, levels)
	if err != nil {
		return nil, err
	}
	if args.ExportTicks && rt.Exporter != nil {
		builder.WithTickExport(rt.Exporter)
	}

	counts, failed, err := builder.BuildAll(ctx, args.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to build kline: %w", err)
	}

	total := 0
	for _, level := range levels {
		fmt.Printf("📊 %-6s %d 根\n", level, counts[level])
		total += counts[level]
	}
	if len(failed) > 0 {
		fmt.Printf("⚠️  %d 个合约失败, 首个错误: %v\n", len(failed), failed[0])
		return &TaskResult{State: StateFailed, Rows: total, Error: failed[0]}, nil
	}
	return &TaskResult{State: StateCompleted, Rows: total, Message: "kline built"}, nil
}

func executeCheck(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
	fmt.Println("🔍 核对元数据与快照文件")

	fix, _ := args.Extra["fix"].(bool)
	report, err := ingest.NewChecker(rt.Env).Check(ctx, fix)
	if err != nil {
		return nil, err
	}

	fmt.Printf("🔍 快照 %d 个, 引用 %d 条, 缺失 %d, 孤儿 %d\n",
		report.Artifacts, report.Records, len(report.Missing), len(report.Orphans))
	if fix {
		fmt.Printf("🧹 删除孤儿 %d 个, 清理悬空引用 %d 条\n", report.RemovedOrphans, report.ClearedRefs)
	}
	return &TaskResult{State: StateCompleted, Rows: len(report.Missing) + len(report.Orphans), Message: "checked"}, nil
}

func batchResult(stage string, report *ingest.BatchReport) (*TaskResult, error) {
	fmt.Printf("✅ %s: %d 个文件, 耗时 %s\n", stage, report.Total, utils.FormatDuration(report.Duration))
	printOutcomes(report.Outcomes)

	if len(report.Errors) > 0 {
		fmt.Printf("⚠️  %d 个文件失败, 首个错误: %v\n", len(report.Errors), report.Errors[0])
		return &TaskResult{State: StateFailed, Rows: report.Total, Error: report.Errors[0]}, nil
	}
	return &TaskResult{State: StateCompleted, Rows: report.Total, Message: stage + " done"}, nil
}

func printOutcomes(outcomes map[ingest.Outcome]int) {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("   %-13s %d\n", k, outcomes[ingest.Outcome(k)])
	}
}

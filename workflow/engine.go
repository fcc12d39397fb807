package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jing2uo/spt2db/calc"
	"github.com/jing2uo/spt2db/database"
	"github.com/jing2uo/spt2db/ingest"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/spt"
)

type TaskState string

const (
	StateCompleted TaskState = "completed"
	StateSkipped   TaskState = "skipped"
	StateFailed    TaskState = "failed"
)

// TaskResult Rows 是任务自己统计的处理量, 含义由任务决定
type TaskResult struct {
	State   TaskState
	Rows    int
	Message string
	Error   error
}

// ErrorMode 任务失败后的处理: Stop 终止整次运行, Skip 只跳过依赖它的任务
type ErrorMode int

const (
	ErrorModeStop ErrorMode = iota
	ErrorModeSkip
)

// Runtime 任务共享的依赖, Kline 为空时 K 线相关任务跳过
type Runtime struct {
	Env      *ingest.Env
	Kline    database.KlineStore
	Exporter database.TickImporter
}

type TaskFunc func(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error)

// SkipCondition 返回 true 时任务记为跳过, 不算失败
type SkipCondition func(ctx context.Context, rt *Runtime, args *TaskArgs) bool

type Task struct {
	Name      string
	DependsOn []string
	Executor  TaskFunc
	SkipIf    SkipCondition
	OnError   ErrorMode
}

// TaskArgs 一次运行内所有任务共用的参数
type TaskArgs struct {
	Discover    spt.DiscoverFilter
	Scope       model.FileFilter
	Force       bool
	Levels      []string
	ExportTicks bool
	Today       time.Time
	Extra       map[string]interface{}
}

type TaskExecutor struct {
	rt    *Runtime
	tasks map[string]*Task
}

func NewTaskExecutor(rt *Runtime, tasks map[string]*Task) *TaskExecutor {
	return &TaskExecutor{
		rt:    rt,
		tasks: tasks,
	}
}

// Run 按依赖深度分批执行, 同一批内并发
// ErrorModeSkip 的任务失败后, 直接或间接依赖它的任务记为跳过
func (te *TaskExecutor) Run(ctx context.Context, taskNames []string, args *TaskArgs) (map[string]*TaskResult, error) {
	results := make(map[string]*TaskResult, len(taskNames))
	if len(taskNames) == 0 {
		return results, nil
	}

	waves, err := te.plan(taskNames)
	if err != nil {
		return results, fmt.Errorf("failed to resolve task dependencies: %w", err)
	}

	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		out := make([]*TaskResult, len(wave))
		var wg sync.WaitGroup
		for i, name := range wave {
			task := te.tasks[name]
			if dep := blockedBy(task, results); dep != "" {
				out[i] = &TaskResult{State: StateSkipped, Message: fmt.Sprintf("dependency %s failed", dep)}
				continue
			}
			if task.SkipIf != nil && task.SkipIf(ctx, te.rt, args) {
				out[i] = &TaskResult{State: StateSkipped, Message: "skipped by condition"}
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				out[i] = te.executeTask(ctx, task, args)
			}()
		}
		wg.Wait()

		for i, name := range wave {
			results[name] = out[i]
		}
		for i, name := range wave {
			if out[i].Error != nil && te.tasks[name].OnError == ErrorModeStop {
				return results, fmt.Errorf("task %s failed: %w", name, out[i].Error)
			}
		}
	}

	return results, nil
}

func (te *TaskExecutor) executeTask(ctx context.Context, task *Task, args *TaskArgs) *TaskResult {
	result, err := task.Executor(ctx, te.rt, args)
	switch {
	case err != nil:
		return &TaskResult{State: StateFailed, Error: err}
	case result == nil:
		return &TaskResult{State: StateCompleted}
	default:
		return result
	}
}

// blockedBy 返回第一个失败或被连带跳过的依赖, 没有则返回空串
func blockedBy(task *Task, results map[string]*TaskResult) string {
	for _, dep := range task.DependsOn {
		r, ok := results[dep]
		if !ok {
			continue
		}
		if r.State == StateFailed || (r.State == StateSkipped && strings.HasPrefix(r.Message, "dependency ")) {
			return dep
		}
	}
	return ""
}

// plan 按依赖深度把任务分批, 批内按名字排序
// 只看本次选中的任务之间的依赖, 没选中的依赖视为已满足
func (te *TaskExecutor) plan(taskNames []string) ([][]string, error) {
	selected := make(map[string]bool, len(taskNames))
	for _, name := range taskNames {
		if _, ok := te.tasks[name]; !ok {
			return nil, fmt.Errorf("task %s not found", name)
		}
		selected[name] = true
	}

	depth := make(map[string]int, len(selected))
	visiting := make(map[string]bool)

	var visit func(name string) (int, error)
	visit = func(name string) (int, error) {
		if d, ok := depth[name]; ok {
			return d, nil
		}
		if visiting[name] {
			return 0, fmt.Errorf("circular dependency detected at task %s", name)
		}
		visiting[name] = true

		d := 0
		for _, dep := range te.tasks[name].DependsOn {
			if !selected[dep] {
				continue
			}
			dd, err := visit(dep)
			if err != nil {
				return 0, err
			}
			d = max(d, dd+1)
		}

		visiting[name] = false
		depth[name] = d
		return d, nil
	}

	maxDepth := 0
	for name := range selected {
		d, err := visit(name)
		if err != nil {
			return nil, err
		}
		maxDepth = max(maxDepth, d)
	}

	waves := make([][]string, maxDepth+1)
	for name, d := range depth {
		waves[d] = append(waves[d], name)
	}
	for _, w := range waves {
		sort.Strings(w)
	}
	return waves, nil
}

func (te *TaskExecutor) GetTaskNames() []string {
	names := make([]string, 0, len(te.tasks))
	for name := range te.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (te *TaskExecutor) HasTask(name string) bool {
	_, exists := te.tasks[name]
	return exists
}

// ParseLevels 解析 "5min,1H,1d" 形式的周期列表, 空串返回 nil
func ParseLevels(levels string) ([]string, error) {
	if strings.TrimSpace(levels) == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Split(levels, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if _, err := calc.ParseLevel(p); err != nil {
			return nil, err
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jing2uo/spt2db/config"
	"github.com/jing2uo/spt2db/database/duckdb"
	"github.com/jing2uo/spt2db/ingest"
	"github.com/jing2uo/spt2db/model"
)

func okTask(name string, calls *atomic.Int32, deps ...string) *Task {
	return &Task{
		Name:      name,
		DependsOn: deps,
		Executor: func(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
			calls.Add(1)
			return &TaskResult{State: StateCompleted, Rows: 1}, nil
		},
	}
}

func failTask(name string, mode ErrorMode, deps ...string) *Task {
	return &Task{
		Name:      name,
		DependsOn: deps,
		OnError:   mode,
		Executor: func(ctx context.Context, rt *Runtime, args *TaskArgs) (*TaskResult, error) {
			return nil, errors.New(name + " broke")
		},
	}
}

func taskMap(tasks ...*Task) map[string]*Task {
	m := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		m[t.Name] = t
	}
	return m
}

func TestRunSkipsDependentsOfFailedTask(t *testing.T) {
	var calls atomic.Int32
	te := NewTaskExecutor(&Runtime{}, taskMap(
		okTask("a", &calls),
		failTask("b", ErrorModeSkip, "a"),
		okTask("c", &calls, "b"),
		okTask("d", &calls, "c"),
		okTask("e", &calls, "a"),
	))

	results, err := te.Run(context.Background(), []string{"a", "b", "c", "d", "e"}, &TaskArgs{})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, results["a"].State)
	assert.Equal(t, StateFailed, results["b"].State)
	assert.EqualError(t, results["b"].Error, "b broke")
	assert.Equal(t, StateSkipped, results["c"].State)
	assert.Equal(t, "dependency b failed", results["c"].Message)
	assert.Equal(t, StateSkipped, results["d"].State)
	assert.Equal(t, StateCompleted, results["e"].State)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunStopsOnError(t *testing.T) {
	var calls atomic.Int32
	te := NewTaskExecutor(&Runtime{}, taskMap(
		failTask("a", ErrorModeStop),
		okTask("b", &calls, "a"),
	))

	results, err := te.Run(context.Background(), []string{"a", "b"}, &TaskArgs{})
	assert.ErrorContains(t, err, "task a failed")
	assert.NotContains(t, results, "b")
	assert.Zero(t, calls.Load())
}

func TestRunSkipCondition(t *testing.T) {
	var calls atomic.Int32
	skipped := okTask("a", &calls)
	skipped.SkipIf = func(ctx context.Context, rt *Runtime, args *TaskArgs) bool { return args.Force }

	te := NewTaskExecutor(&Runtime{}, taskMap(skipped, okTask("b", &calls, "a")))
	results, err := te.Run(context.Background(), []string{"a", "b"}, &TaskArgs{Force: true})
	require.NoError(t, err)
	assert.Equal(t, StateSkipped, results["a"].State)
	assert.Equal(t, StateCompleted, results["b"].State)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunOnlySelectedDependencies(t *testing.T) {
	var calls atomic.Int32
	te := NewTaskExecutor(&Runtime{}, taskMap(okTask("a", &calls), okTask("b", &calls, "a")))

	results, err := te.Run(context.Background(), []string{"b"}, &TaskArgs{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, StateCompleted, results["b"].State)
}

func TestRunResolveErrors(t *testing.T) {
	var calls atomic.Int32
	te := NewTaskExecutor(&Runtime{}, taskMap(
		okTask("x", &calls, "y"),
		okTask("y", &calls, "x"),
	))

	_, err := te.Run(context.Background(), []string{"x", "y"}, &TaskArgs{})
	assert.ErrorContains(t, err, "circular dependency")

	_, err = te.Run(context.Background(), []string{"missing"}, &TaskArgs{})
	assert.ErrorContains(t, err, "task missing not found")

	results, err := te.Run(context.Background(), nil, &TaskArgs{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunCancelled(t *testing.T) {
	var calls atomic.Int32
	te := NewTaskExecutor(&Runtime{}, taskMap(okTask("a", &calls)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := te.Run(ctx, []string{"a"}, &TaskArgs{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels(" 5min, 1d,5min,, ")
	require.NoError(t, err)
	assert.Equal(t, []string{"5min", "1d"}, levels)

	levels, err = ParseLevels("  ")
	require.NoError(t, err)
	assert.Nil(t, levels)

	_, err = ParseLevels("5min,weekly")
	assert.Error(t, err)
}

func TestCronTasksRegistered(t *testing.T) {
	te := NewTaskExecutor(&Runtime{}, AllTasks())
	for _, name := range CronTasks() {
		assert.True(t, te.HasTask(name), name)
	}
	assert.Equal(t, []string{"check", "convert", "dominant", "import", "kline", "split"}, te.GetTaskNames())
}

func TestCronOnEmptyRawRoot(t *testing.T) {
	cfg := config.Default()
	cfg.RawRoot = t.TempDir()
	cfg.ArtifactRoot = t.TempDir()
	cfg.Concurrency = 1

	meta := duckdb.NewDriver(model.DBConfig{Type: model.DBTypeDuckDB})
	require.NoError(t, meta.Connect())
	t.Cleanup(func() { meta.Close() })
	require.NoError(t, meta.InitSchema())

	env, err := ingest.NewEnv(cfg, meta, zap.NewNop(), nil)
	require.NoError(t, err)

	te := NewTaskExecutor(&Runtime{Env: env}, AllTasks())
	results, err := te.Run(context.Background(), CronTasks(), &TaskArgs{Extra: map[string]interface{}{"fix": true}})
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, results["import"].State)
	assert.Equal(t, "no raw files", results["import"].Message)
	assert.Equal(t, StateCompleted, results["split"].State)
	assert.Equal(t, StateCompleted, results["dominant"].State)
	// 没有 K 线库
	assert.Equal(t, StateSkipped, results["kline"].State)
	assert.Equal(t, StateCompleted, results["check"].State)

	te = NewTaskExecutor(&Runtime{Env: env, Kline: meta, Exporter: meta}, AllTasks())
	results, err = te.Run(context.Background(), []string{"kline"}, &TaskArgs{Levels: []string{"5min"}, ExportTicks: true})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, results["kline"].State)
	assert.Zero(t, results["kline"].Rows)
}

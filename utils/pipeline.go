package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// PipelineResult 执行结果统计
type PipelineResult struct {
	TotalItems     int
	ProcessedItems int64
	OutputRows     int64
	Errors         []error
	Duration       time.Duration
}

// Pipeline 固定数量的 worker 并发处理输入, 结果由调用方 goroutine 串行消费
type Pipeline[I, O any] struct {
	workers int
	buffer  int
}

type PipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	concurrency int
}

func WithConcurrency(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewPipeline[I, O any](opts ...PipelineOption) *Pipeline[I, O] {
	cfg := &pipelineConfig{concurrency: runtime.NumCPU()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Pipeline[I, O]{
		workers: cfg.concurrency,
		buffer:  cfg.concurrency * 2,
	}
}

type itemResult[O any] struct {
	rows []O
	err  error
}

// Run 单个输入失败只记录错误; ctx 取消后不再开始新的输入, 返回已完成部分的统计和 ctx.Err()
func (p *Pipeline[I, O]) Run(
	ctx context.Context,
	inputs []I,
	process func(ctx context.Context, input I) ([]O, error),
	consume func(rows []O) error,
) (*PipelineResult, error) {
	start := time.Now()
	result := &PipelineResult{TotalItems: len(inputs)}
	if len(inputs) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	jobs := make(chan I)
	results := make(chan itemResult[O], p.buffer)

	go func() {
		defer close(jobs)
		for _, in := range inputs {
			select {
			case jobs <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range min(p.workers, len(inputs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- safeProcess(ctx, in, process)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			result.Errors = append(result.Errors, r.err)
			continue
		}
		result.ProcessedItems++
		if len(r.rows) == 0 {
			continue
		}
		if err := consume(r.rows); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("consume error: %w", err))
			continue
		}
		result.OutputRows += int64(len(r.rows))
	}

	result.Duration = time.Since(start)
	return result, ctx.Err()
}

// safeProcess panic 转成这个输入的错误
func safeProcess[I, O any](ctx context.Context, in I, fn func(context.Context, I) ([]O, error)) (r itemResult[O]) {
	defer func() {
		if v := recover(); v != nil {
			r = itemResult[O]{err: fmt.Errorf("panic processing input: %v", v)}
		}
	}()
	rows, err := fn(ctx, in)
	return itemResult[O]{rows: rows, err: err}
}

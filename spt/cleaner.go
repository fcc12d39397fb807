package spt

import (
	"errors"
	"fmt"
	"time"

	"github.com/jing2uo/spt2db/model"
)

var (
	ErrDupTime  = errors.New("too many duplicate timestamps")
	ErrTimeNoMs = errors.New("sub-second resolution lost")
)

const halfSecond = 500 * time.Millisecond

// CleanResult 各步骤丢弃的行数
type CleanResult struct {
	OutOfRange      int
	NegativeVolume  int
	DupRows         int
	DupTime         int
	SubSecondValues int
}

type Cleaner struct {
	minTime    time.Time
	maxTime    time.Time
	maxDupTime int
}

func NewCleaner(minTime, maxTime time.Time, maxDupTime int) *Cleaner {
	return &Cleaner{minTime: minTime, maxTime: maxTime, maxDupTime: maxDupTime}
}

// Clean 导入阶段: 范围过滤 + 负成交量
func (c *Cleaner) Clean(t *model.TickTable) CleanResult {
	return CleanResult{
		OutOfRange:     c.FilterRange(t),
		NegativeVolume: DropNegativeVolume(t),
	}
}

// CleanForSplit 切分阶段: 整行去重 -> 亚秒归一 -> 时间戳去重
// 归一化可能制造新的重复时间戳, 因此放在时间戳去重之前
func (c *Cleaner) CleanForSplit(t *model.TickTable) (CleanResult, error) {
	var res CleanResult

	res.DupRows = DedupRows(t)

	res.SubSecondValues = NormalizeSubSecond(t)
	if res.SubSecondValues < 2 {
		return res, fmt.Errorf("%w: %d distinct sub-second values", ErrTimeNoMs, res.SubSecondValues)
	}

	n, err := c.DedupTime(t)
	res.DupTime = n
	return res, err
}

// FilterRange 丢弃 (minTime, maxTime) 之外的行
func (c *Cleaner) FilterRange(t *model.TickTable) int {
	return filterRows(t, func(r *model.Tick) bool {
		return r.UpdateTime.After(c.minTime) && r.UpdateTime.Before(c.maxTime)
	})
}

func DropNegativeVolume(t *model.TickTable) int {
	return filterRows(t, func(r *model.Tick) bool {
		return r.LastVolume >= 0
	})
}

type rowKey struct {
	tick model.Tick
	ns   int64
}

// DedupRows 整行去重, 保留第一次出现
func DedupRows(t *model.TickTable) int {
	seen := make(map[rowKey]struct{}, len(t.Rows))
	return filterRows(t, func(r *model.Tick) bool {
		k := rowKey{tick: *r, ns: r.UpdateTime.UnixNano()}
		k.tick.UpdateTime = time.Time{}
		if _, ok := seen[k]; ok {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

// DedupTime 按时间排序后去掉重复时间戳, 保留第一次出现;
// 去掉的行超过阈值时不修改表并返回 ErrDupTime
func (c *Cleaner) DedupTime(t *model.TickTable) (int, error) {
	t.SortByTime()

	kept := make([]model.Tick, 0, len(t.Rows))
	for i := range t.Rows {
		if len(kept) > 0 && kept[len(kept)-1].UpdateTime.Equal(t.Rows[i].UpdateTime) {
			continue
		}
		kept = append(kept, t.Rows[i])
	}

	dropped := len(t.Rows) - len(kept)
	if dropped > c.maxDupTime {
		return dropped, fmt.Errorf("%w: %d rows share a timestamp", ErrDupTime, dropped)
	}
	t.Rows = kept
	return dropped, nil
}

// NormalizeSubSecond 亚秒部分取 {0, 500ms} 中较近的一个, 返回归一后的不同取值个数
func NormalizeSubSecond(t *model.TickTable) int {
	distinct := make(map[time.Duration]struct{}, 2)
	for i := range t.Rows {
		ts := t.Rows[i].UpdateTime
		sub := time.Duration(ts.Nanosecond())

		snapped := time.Duration(0)
		if sub >= halfSecond/2 {
			snapped = halfSecond
		}
		if sub != snapped {
			t.Rows[i].UpdateTime = ts.Add(snapped - sub)
		}
		distinct[snapped] = struct{}{}
	}
	return len(distinct)
}

func filterRows(t *model.TickTable, keep func(*model.Tick) bool) int {
	kept := t.Rows[:0]
	for i := range t.Rows {
		if keep(&t.Rows[i]) {
			kept = append(kept, t.Rows[i])
		}
	}
	dropped := len(t.Rows) - len(kept)
	t.Rows = kept
	return dropped
}

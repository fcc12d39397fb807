package calc

import (
	"time"

	"github.com/jing2uo/spt2db/model"
)

func ptr[T any](v T) *T {
	return &v
}

// Summarize 文件/切片的统计量, 输入须已按时间排序
// 指数序列没有成交额字段, turnover 留空
func Summarize(t *model.TickTable) model.Summary {
	if t.Len() == 0 {
		return model.Summary{}
	}

	first, last := t.Rows[0], t.Rows[t.Len()-1]
	high, low := first.LastPrice, first.LastPrice
	var sum, volume float64
	for i := range t.Rows {
		p := t.Rows[i].LastPrice
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
		sum += p
		volume += t.Rows[i].LastVolume
	}

	s := model.Summary{
		Start:        ptr(first.UpdateTime),
		End:          ptr(last.UpdateTime),
		DiffSec:      ptr(diffSeconds(first.UpdateTime, last.UpdateTime)),
		Open:         ptr(first.LastPrice),
		Close:        ptr(last.LastPrice),
		High:         ptr(high),
		Low:          ptr(low),
		Mean:         ptr(sum / float64(t.Len())),
		VolumeSum:    ptr(volume),
		OpenInterest: ptr(last.OpenInterest),
	}
	if t.Kind.HasPriceFields() {
		s.Turnover = ptr(last.Turnover)
	}
	return s
}

// TimeSpan 不要求有序, 返回最早/最晚时间
func TimeSpan(t *model.TickTable) (start, end time.Time, ok bool) {
	if t.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	start, end = t.Rows[0].UpdateTime, t.Rows[0].UpdateTime
	for i := range t.Rows {
		ts := t.Rows[i].UpdateTime
		if ts.Before(start) {
			start = ts
		}
		if ts.After(end) {
			end = ts
		}
	}
	return start, end, true
}

func diffSeconds(start, end time.Time) float64 {
	return end.Sub(start).Seconds()
}

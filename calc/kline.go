package calc

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/jing2uo/spt2db/model"
)

// 持仓量标准差超过该值才做异常值清洗
const openInterestStdLimit = 2e7

type Level struct {
	Name string
	Step time.Duration
}

var levelPattern = regexp.MustCompile(`^(\d+)(min|H|d)$`)

// ParseLevel 支持 Nmin / NH / Nd, 日线只支持 1d
func ParseLevel(s string) (Level, error) {
	m := levelPattern.FindStringSubmatch(s)
	if m == nil {
		return Level{}, fmt.Errorf("invalid kline level %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Level{}, fmt.Errorf("invalid kline level %q", s)
	}

	var unit time.Duration
	switch m[2] {
	case "min":
		unit = time.Minute
	case "H":
		unit = time.Hour
	case "d":
		if n != 1 {
			return Level{}, fmt.Errorf("only 1d is supported, got %q", s)
		}
		unit = 24 * time.Hour
	}

	step := time.Duration(n) * unit
	if step > 24*time.Hour || (24*time.Hour)%step != 0 {
		return Level{}, fmt.Errorf("kline level %q does not divide a day", s)
	}
	return Level{Name: s, Step: step}, nil
}

func (l Level) Daily() bool {
	return l.Step == 24*time.Hour
}

// Table 日线写 statis_day, 其他周期写 kline_bars
func (l Level) Table() *model.TableMeta {
	if l.Daily() {
		return model.TableStatisDay
	}
	return model.TableKline
}

// Floor 以当天零点为起点对齐
func (l Level) Floor(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.Add(t.Sub(midnight) / l.Step * l.Step)
}

// CleanOpenInterest 标准差过大时, 超过 2 倍标准差的持仓量用前一个值替换
// 第一行没有前值, 保持原样
func CleanOpenInterest(rows []model.Tick) (replaced int, std float64) {
	values := make([]float64, len(rows))
	for i := range rows {
		values[i] = float64(rows[i].OpenInterest)
	}
	std, ok := sampleStd(values)
	if !ok || std <= openInterestStdLimit {
		return 0, std
	}

	limit := 2 * std
	var prev int64
	havePrev := false
	for i := range rows {
		if float64(rows[i].OpenInterest) > limit {
			if havePrev {
				rows[i].OpenInterest = prev
				replaced++
			}
			continue
		}
		prev = rows[i].OpenInterest
		havePrev = true
	}
	return replaced, std
}

type bucket struct {
	start time.Time
	rows  []model.Tick
}

// Resample 按交易时间 (更新时间 + offset) 分桶聚合, 输入须已按时间排序
// 序列缺少某个聚合字段时 (指数) 整个桶丢弃
func Resample(rows []model.Tick, kind model.SeriesKind, level Level, offset time.Duration) []model.KlineBar {
	if len(rows) == 0 || !kind.HasPriceFields() {
		return nil
	}

	var buckets []bucket
	for i := range rows {
		start := level.Floor(rows[i].UpdateTime.Add(offset))
		n := len(buckets)
		if n == 0 || !buckets[n-1].start.Equal(start) {
			buckets = append(buckets, bucket{start: start})
			n++
		}
		buckets[n-1].rows = append(buckets[n-1].rows, rows[i])
	}

	bars := make([]model.KlineBar, 0, len(buckets))
	for _, b := range buckets {
		bars = append(bars, aggregate(b, level))
	}
	return bars
}

func aggregate(b bucket, level Level) model.KlineBar {
	first, last := b.rows[0], b.rows[len(b.rows)-1]

	bar := model.KlineBar{
		TradingTime:  b.start,
		Market:       int(first.Market),
		Instrument:   first.Instrument,
		Level:        level.Name,
		Open:         first.LastPrice,
		High:         last.HighestPrice,
		Low:          last.LowestPrice,
		Close:        last.LastPrice,
		PriceHigh:    first.LastPrice,
		PriceLow:     first.LastPrice,
		OpenPrice:    first.OpenPrice,
		AvePrice:     last.AvePrice,
		OpenInterest: last.OpenInterest,
		Turnover:     last.Turnover,
		TickNum:      int64(len(b.rows)),
	}

	volumes := make([]float64, len(b.rows))
	for i := range b.rows {
		r := &b.rows[i]
		bar.PriceHigh = math.Max(bar.PriceHigh, r.LastPrice)
		bar.PriceLow = math.Min(bar.PriceLow, r.LastPrice)
		bar.Volume += r.LastVolume
		bar.TurnoverCalc += r.LastPrice * r.LastVolume * 10
		volumes[i] = r.LastVolume
	}

	if std, ok := sampleStd(volumes); ok {
		bar.VolumeStd = std
	} else {
		bar.VolumeStd = 1.0
	}
	return bar
}

// sampleStd 样本标准差 (n-1), 少于两个值时无定义
func sampleStd(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), true
}

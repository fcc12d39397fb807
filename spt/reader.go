package spt

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/jing2uo/spt2db/model"
)

// 原始 spt 文件列序, 无表头
const (
	colInstrument = iota
	colMarket
	colLastPrice
	colLastVolume
	colHHMMSS
	colReserved
	colUpdateTime
	colAskPrice1
	colAskVolume1
	colBidPrice1
	colBidVolume1
	// 11-26 为 2~5 档买卖盘, 不保留
	colOpenInterest = 27
	colTurnover     = 28
	colAvePrice     = 29
	colInVol        = 30
	colOutVol       = 31
	colAttr1        = 32
	colVolume1      = 33
	colAttr2        = 34
	colVolume2      = 35
	colHighest      = 36
	colLowest       = 37
	colSettle       = 38
	colOpenPrice    = 39
	colMainID       = 40
	colFill         = 41

	NumColumns = 42
	// 早期文件没有 mainID 列
	NumColumnsLegacy = 41
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"20060102 15:04:05",
	"2006-01-02T15:04:05",
}

// LoadFailure 文件无法打开或完全无法解析
type LoadFailure struct {
	Path string
	Err  error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadFailure) Unwrap() error { return e.Err }

var errNoRows = errors.New("no parseable rows")

// RawResult LineNum 是范围过滤之前的行数
type RawResult struct {
	Table   *model.TickTable
	LineNum int
	Skipped int
}

type Reader struct {
	delimiter rune
	decoder   encoding.Encoding
	log       *zap.Logger
}

func NewReader(delimiter, enc string, log *zap.Logger) (*Reader, error) {
	if len(delimiter) != 1 {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}

	var decoder encoding.Encoding
	switch strings.ToLower(enc) {
	case "", "utf-8", "utf8":
	case "gbk":
		decoder = simplifiedchinese.GBK
	case "gb18030":
		decoder = simplifiedchinese.GB18030
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{delimiter: rune(delimiter[0]), decoder: decoder, log: log}, nil
}

// ReadFile 读取一个 spt 文件, 任何打开/解析层面的失败都返回 *LoadFailure
func (r *Reader) ReadFile(path string, kind model.SeriesKind) (*RawResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadFailure{Path: path, Err: err}
	}
	defer f.Close()

	res, err := r.Read(f, kind)
	if err != nil {
		return nil, &LoadFailure{Path: path, Err: err}
	}
	if res.Skipped > 0 {
		r.log.Warn("skipped malformed lines",
			zap.String("path", path),
			zap.Int("skipped", res.Skipped),
			zap.Int("rows", res.LineNum))
	}
	return res, nil
}

func (r *Reader) Read(src io.Reader, kind model.SeriesKind) (*RawResult, error) {
	if r.decoder != nil {
		src = transform.NewReader(src, r.decoder.NewDecoder())
	}

	cr := csv.NewReader(src)
	cr.Comma = r.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	res := &RawResult{}
	var rows []model.Tick

	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Skipped++
				continue
			}
			return nil, err
		}

		tick, err := parseRecord(record, kind)
		if err != nil {
			res.Skipped++
			if res.Skipped <= 3 {
				r.log.Debug("malformed line", zap.Int("line", line), zap.Error(err))
			}
			continue
		}
		rows = append(rows, tick)
	}

	if len(rows) == 0 {
		return nil, errNoRows
	}

	res.Table = model.NewTickTable(kind, rows)
	res.LineNum = len(rows)
	return res, nil
}

func parseRecord(rec []string, kind model.SeriesKind) (model.Tick, error) {
	if len(rec) != NumColumns && len(rec) != NumColumnsLegacy {
		return model.Tick{}, fmt.Errorf("expected %d columns, got %d", NumColumns, len(rec))
	}

	p := fieldParser{rec: rec}
	t := model.Tick{
		Instrument: strings.TrimSpace(rec[colInstrument]),
		HHMMSS:     strings.TrimSpace(rec[colHHMMSS]),
	}
	if t.Instrument == "" {
		return model.Tick{}, errors.New("empty instrument")
	}

	t.Market = model.Market(p.requiredInt(colMarket))
	t.LastPrice = p.requiredFloat(colLastPrice)
	t.LastVolume = p.requiredFloat(colLastVolume)
	t.UpdateTime = p.timestamp(colUpdateTime)

	t.AskPrice1 = p.float(colAskPrice1)
	t.AskVolume1 = p.float(colAskVolume1)
	t.BidPrice1 = p.float(colBidPrice1)
	t.BidVolume1 = p.float(colBidVolume1)
	t.OpenInterest = int64(p.float(colOpenInterest))

	if kind.HasPriceFields() {
		t.Turnover = p.float(colTurnover)
		t.AvePrice = p.float(colAvePrice)
		t.HighestPrice = p.float(colHighest)
		t.LowestPrice = p.float(colLowest)
		t.OpenPrice = p.float(colOpenPrice)
	}
	if kind == model.KindDominant && len(rec) == NumColumns {
		t.MainID = strings.TrimSpace(rec[colMainID])
	}

	if p.err != nil {
		return model.Tick{}, p.err
	}
	return t, nil
}

// fieldParser 记录第一个错误, 之后的解析直接跳过
type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) value(i int) string {
	return strings.TrimSpace(p.rec[i])
}

func (p *fieldParser) requiredFloat(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.value(i), 64)
	if err != nil {
		p.err = fmt.Errorf("column %d: %w", i, err)
	}
	return v
}

// float 空值按 0 处理
func (p *fieldParser) float(i int) float64 {
	if p.err != nil || p.value(i) == "" {
		return 0
	}
	return p.requiredFloat(i)
}

func (p *fieldParser) requiredInt(i int) int {
	if p.err != nil {
		return 0
	}
	s := p.value(i)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	// 部分厂商把整数写成 5.0
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("column %d: %w", i, err)
		return 0
	}
	return int(v)
}

func (p *fieldParser) timestamp(i int) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	t, err := ParseTimestamp(p.value(i))
	if err != nil {
		p.err = fmt.Errorf("column %d: %w", i, err)
	}
	return t
}

// ParseTimestamp 按墙上时间解析, 统一放在 UTC
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

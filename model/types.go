package model

import (
	"sort"
	"time"
)

// Market 交易所编号, 与原始文件 MarketID 列一致
type Market int

const (
	MarketSH    Market = 1
	MarketSZ    Market = 2
	MarketCFFEX Market = 3
	MarketSHFE  Market = 4
	MarketCZCE  Market = 5
	MarketDCE   Market = 6
)

func (m Market) String() string {
	switch m {
	case MarketSH:
		return "SH"
	case MarketSZ:
		return "SZ"
	case MarketCFFEX:
		return "CFFEX"
	case MarketSHFE:
		return "SHFE"
	case MarketCZCE:
		return "CZCE"
	case MarketDCE:
		return "DCE"
	default:
		return "UNKNOWN"
	}
}

// Session 交易时段
type Session string

const (
	SessionFam     Session = "fam"   // 早盘 09:00-10:15
	SessionBam     Session = "bam"   // 早盘 10:30-11:30
	SessionPm      Session = "pm"    // 午盘
	SessionNight   Session = "night" // 夜盘, 跨零点
	SessionUnknown Session = "unknown"
)

var Sessions = []Session{SessionFam, SessionBam, SessionPm, SessionNight}

// SeriesKind 由合约代码后四位区分: 具体月份合约 / 主力连续 / 指数
type SeriesKind int

const (
	KindContract SeriesKind = iota
	KindDominant
	KindIndex
)

const (
	SubIDIndex    = "0000"
	SubIDDominant = "9999"
)

func KindFromSubID(subID string) SeriesKind {
	switch subID {
	case SubIDIndex:
		return KindIndex
	case SubIDDominant:
		return KindDominant
	default:
		return KindContract
	}
}

// SubIDOf 合约代码后四位
func SubIDOf(instrument string) string {
	if len(instrument) <= 4 {
		return instrument
	}
	return instrument[len(instrument)-4:]
}

// 数据质量标签
const (
	TagEmptyDF      = "empty_df"
	TagLoadDFFail   = "load_df_fail"
	TagTooSmall     = "too_small"
	TagDupTime      = "dup_time"
	TagTimeNoMs     = "time_no_ms"
	TagTimeError    = "time_error"
	TagSplited      = "splited"
	TagInvalidDay   = "invalid_day"
	TagDiffSecError = "diff_sec_error"
)

var KnownTags = []string{
	TagEmptyDF, TagLoadDFFail, TagTooSmall, TagDupTime, TagTimeNoMs,
	TagTimeError, TagSplited, TagInvalidDay, TagDiffSecError,
}

// Tick 裁剪后的一条逐笔记录
type Tick struct {
	Instrument   string
	Market       Market
	LastPrice    float64
	LastVolume   float64
	HHMMSS       string
	UpdateTime   time.Time
	AskPrice1    float64
	AskVolume1   float64
	BidPrice1    float64
	BidVolume1   float64
	OpenInterest int64
	Turnover     float64
	AvePrice     float64
	HighestPrice float64
	LowestPrice  float64
	OpenPrice    float64
	MainID       string
	Session      Session
}

type TickTable struct {
	Kind SeriesKind
	Rows []Tick
}

func NewTickTable(kind SeriesKind, rows []Tick) *TickTable {
	return &TickTable{Kind: kind, Rows: rows}
}

func (t *TickTable) Len() int { return len(t.Rows) }

// Columns 按序列类型返回保留的列
func (t *TickTable) Columns() []string {
	return ColumnsFor(t.Kind)
}

var baseColumns = []string{
	"instrument", "market", "last_price", "last_volume", "hhmmss", "update_time",
	"ask_price1", "ask_volume1", "bid_price1", "bid_volume1",
	"open_interest",
}

func ColumnsFor(kind SeriesKind) []string {
	cols := append([]string{}, baseColumns...)
	switch kind {
	case KindIndex:
	case KindDominant:
		cols = append(cols, "turnover", "ave_price", "highest_price", "lowest_price", "open_price", "main_id")
	default:
		cols = append(cols, "turnover", "ave_price", "highest_price", "lowest_price", "open_price")
	}
	return append(cols, "session")
}

// HasPriceFields 指数序列没有成交额/最高最低/开盘价字段
func (k SeriesKind) HasPriceFields() bool {
	return k != KindIndex
}

// SortByTime 稳定排序, 同一时间戳保持原有先后
func (t *TickTable) SortByTime() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].UpdateTime.Before(t.Rows[j].UpdateTime)
	})
}

func (t *TickTable) Clone() *TickTable {
	rows := make([]Tick, len(t.Rows))
	copy(rows, t.Rows)
	return &TickTable{Kind: t.Kind, Rows: rows}
}

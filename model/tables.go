package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Summary 文件/切片共用的统计字段, 未计算时为 NULL
type Summary struct {
	Start        *time.Time `col:"start_time"`
	End          *time.Time `col:"end_time"`
	DiffSec      *float64   `col:"diff_sec"`
	Open         *float64   `col:"open"`
	Close        *float64   `col:"close"`
	High         *float64   `col:"high"`
	Low          *float64   `col:"low"`
	Mean         *float64   `col:"mean"`
	VolumeSum    *float64   `col:"volume_sum"`
	OpenInterest *int64     `col:"open_interest"`
	Turnover     *float64   `col:"turnover"`
}

// FileRecord 一个原始 spt 文件一条, path 唯一
type FileRecord struct {
	Path           string     `col:"path"`
	Market         int        `col:"market"`
	Category       string     `col:"category"`
	Instrument     string     `col:"instrument"`
	SubID          string     `col:"sub_id"`
	DataType       string     `col:"data_type"`
	Year           string     `col:"year"`
	Month          string     `col:"month"`
	Day            string     `col:"day"`
	Size           int64      `col:"size"`
	LineNum        *int64     `col:"line_num"`
	ZipPath        *string    `col:"zip_path"`
	ZipLineNum     *int64     `col:"zip_line_num"`
	ZipVer         *int64     `col:"zip_ver"`
	DocNum         int64      `col:"doc_num"`
	IsDominant     bool       `col:"is_dominant"`
	Is2ndDominant  bool       `col:"is_2nd_dominant"`
	SplitState     string     `col:"split_state"`
	SplitClaimedAt *time.Time `col:"split_claimed_at"`
	CreatedAt      time.Time  `col:"created_at"`
	UpdatedAt      time.Time  `col:"updated_at"`
	Summary

	Tags []string `col:"-"`
}

func (f *FileRecord) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (f *FileRecord) HasAnyTag(tags ...string) bool {
	for _, t := range tags {
		if f.HasTag(t) {
			return true
		}
	}
	return false
}

func (f *FileRecord) Kind() SeriesKind {
	return KindFromSubID(f.SubID)
}

// FileTag 标签单独成表, (path, tag) 主键保证集合语义
type FileTag struct {
	Path string `col:"path"`
	Tag  string `col:"tag"`
}

// SplitRecord 按 (交易日, 时段) 切出的一个分片
type SplitRecord struct {
	ID          string     `col:"id"`
	FilePath    string     `col:"file_path"`
	Market      int        `col:"market"`
	Category    string     `col:"category"`
	Instrument  string     `col:"instrument"`
	SubID       string     `col:"sub_id"`
	Year        string     `col:"year"`
	Month       string     `col:"month"`
	Day         string     `col:"day"`
	Session     string     `col:"session"`
	ZipPath     string     `col:"zip_path"`
	ZipLineNum  int64      `col:"zip_line_num"`
	ZipVer      int64      `col:"zip_ver"`
	FeatureNum  int64      `col:"feature_num"`
	FeatureTime *time.Time `col:"feature_time"`
	// 主力标记跟随父文件
	IsDominant    bool      `col:"is_dominant"`
	Is2ndDominant bool      `col:"is_2nd_dominant"`
	CreatedAt     time.Time `col:"created_at"`
	Summary

	Features []string `col:"-"`
}

type SplitFeature struct {
	SplitID string `col:"split_id"`
	Seq     int64  `col:"seq"`
	Name    string `col:"name"`
}

// KlineBar K线 / 日统计共用
type KlineBar struct {
	TradingTime  time.Time `col:"trading_time"`
	Market       int       `col:"market"`
	Category     string    `col:"category"`
	Instrument   string    `col:"instrument"`
	Level        string    `col:"level"`
	Open         float64   `col:"open"`
	High         float64   `col:"high"`
	Low          float64   `col:"low"`
	Close        float64   `col:"close"`
	PriceHigh    float64   `col:"price_high"`
	PriceLow     float64   `col:"price_low"`
	OpenPrice    float64   `col:"open_price"`
	AvePrice     float64   `col:"ave_price"`
	OpenInterest int64     `col:"open_interest"`
	Turnover     float64   `col:"turnover"`
	TurnoverCalc float64   `col:"turnover_calc"`
	Volume       float64   `col:"volume"`
	VolumeStd    float64   `col:"volume_std"`
	TickNum      int64     `col:"tick_num"`
}

// CategoryTick 按品种分表的 tick 行
type CategoryTick struct {
	FilePath     string    `col:"file_path"`
	Instrument   string    `col:"instrument"`
	Market       int       `col:"market"`
	LastPrice    float64   `col:"last_price"`
	LastVolume   float64   `col:"last_volume"`
	UpdateTime   time.Time `col:"update_time"`
	AskPrice1    float64   `col:"ask_price1"`
	AskVolume1   float64   `col:"ask_volume1"`
	BidPrice1    float64   `col:"bid_price1"`
	BidVolume1   float64   `col:"bid_volume1"`
	OpenInterest int64     `col:"open_interest"`
	Turnover     float64   `col:"turnover"`
	AvePrice     float64   `col:"ave_price"`
	HighestPrice float64   `col:"highest_price"`
	LowestPrice  float64   `col:"lowest_price"`
	OpenPrice    float64   `col:"open_price"`
	Session      string    `col:"session"`
}

// --- 表结构元数据 (TableMeta) ---

var TableFiles = SchemaFromStruct(
	"tick_files",
	FileRecord{},
	[]string{"category", "instrument", "day"},
).WithPrimaryKey("path")

var TableFileTags = SchemaFromStruct(
	"tick_file_tags",
	FileTag{},
	[]string{"path", "tag"},
).WithPrimaryKey("path", "tag")

var TableSplits = SchemaFromStruct(
	"tick_splits",
	SplitRecord{},
	[]string{"file_path", "day", "session"},
).WithPrimaryKey("id")

var TableSplitFeatures = SchemaFromStruct(
	"tick_split_features",
	SplitFeature{},
	[]string{"split_id", "seq"},
).WithPrimaryKey("split_id", "seq")

var TableKline = SchemaFromStruct(
	"kline_bars",
	KlineBar{},
	[]string{"instrument", "level", "trading_time"},
)

var TableStatisDay = SchemaFromStruct(
	"statis_day",
	KlineBar{},
	[]string{"instrument", "trading_time"},
)

// KlineTables K线存储端需要的表, ClickHouse 只建这两张
func KlineTables() []*TableMeta {
	return []*TableMeta{TableKline, TableStatisDay}
}

var categoryPattern = regexp.MustCompile(`^[A-Za-z]{1,4}$`)

// CategoryTable 品种 -> 物理表名的路由, 所有品种共用一套列定义
func CategoryTable(category string) (*TableMeta, error) {
	if !categoryPattern.MatchString(category) {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	name := "ticks_" + strings.ToLower(category)
	return buildMeta(name, CategoryTick{}, []string{"instrument", "update_time"}), nil
}

// Package artifact 负责 tick 快照在本地文件系统上的读写, 文件格式为 parquet.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/utils"
)

const featureSuffix = ".features"

// tickRow 落盘格式, 时间存成纳秒整数保证读写一致
type tickRow struct {
	Instrument   string  `parquet:"instrument,dict"`
	Market       int32   `parquet:"market"`
	LastPrice    float64 `parquet:"last_price"`
	LastVolume   float64 `parquet:"last_volume"`
	HHMMSS       string  `parquet:"hhmmss"`
	UpdateTime   int64   `parquet:"update_time"`
	AskPrice1    float64 `parquet:"ask_price1"`
	AskVolume1   float64 `parquet:"ask_volume1"`
	BidPrice1    float64 `parquet:"bid_price1"`
	BidVolume1   float64 `parquet:"bid_volume1"`
	OpenInterest int64   `parquet:"open_interest"`
	Turnover     float64 `parquet:"turnover"`
	AvePrice     float64 `parquet:"ave_price"`
	HighestPrice float64 `parquet:"highest_price"`
	LowestPrice  float64 `parquet:"lowest_price"`
	OpenPrice    float64 `parquet:"open_price"`
	MainID       string  `parquet:"main_id,dict"`
	Session      string  `parquet:"session,dict"`
}

func toRow(t *model.Tick) tickRow {
	return tickRow{
		Instrument:   t.Instrument,
		Market:       int32(t.Market),
		LastPrice:    t.LastPrice,
		LastVolume:   t.LastVolume,
		HHMMSS:       t.HHMMSS,
		UpdateTime:   t.UpdateTime.UnixNano(),
		AskPrice1:    t.AskPrice1,
		AskVolume1:   t.AskVolume1,
		BidPrice1:    t.BidPrice1,
		BidVolume1:   t.BidVolume1,
		OpenInterest: t.OpenInterest,
		Turnover:     t.Turnover,
		AvePrice:     t.AvePrice,
		HighestPrice: t.HighestPrice,
		LowestPrice:  t.LowestPrice,
		OpenPrice:    t.OpenPrice,
		MainID:       t.MainID,
		Session:      string(t.Session),
	}
}

func fromRow(r *tickRow) model.Tick {
	return model.Tick{
		Instrument:   r.Instrument,
		Market:       model.Market(r.Market),
		LastPrice:    r.LastPrice,
		LastVolume:   r.LastVolume,
		HHMMSS:       r.HHMMSS,
		UpdateTime:   time.Unix(0, r.UpdateTime).UTC(),
		AskPrice1:    r.AskPrice1,
		AskVolume1:   r.AskVolume1,
		BidPrice1:    r.BidPrice1,
		BidVolume1:   r.BidVolume1,
		OpenInterest: r.OpenInterest,
		Turnover:     r.Turnover,
		AvePrice:     r.AvePrice,
		HighestPrice: r.HighestPrice,
		LowestPrice:  r.LowestPrice,
		OpenPrice:    r.OpenPrice,
		MainID:       r.MainID,
		Session:      model.Session(r.Session),
	}
}

// Store 以 root 为根的快照目录, 记录里只保存相对路径
type Store struct {
	root    string
	version int
}

func NewStore(root string, version int) (*Store, error) {
	if _, err := utils.CodecFor(version); err != nil {
		return nil, err
	}
	if err := utils.CheckOutputDir(root); err != nil {
		return nil, err
	}
	return &Store{root: filepath.Clean(root), version: version}, nil
}

func (s *Store) Root() string { return s.root }

// Version 当前写入使用的压缩格式版本
func (s *Store) Version() int { return s.version }

func (s *Store) Abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *Store) Exists(rel string) bool {
	info, err := os.Stat(s.Abs(rel))
	return err == nil && info.Mode().IsRegular()
}

// Write 先写临时文件再 rename, 读者不会看到半个文件
func (s *Store) Write(rel string, t *model.TickTable) (int, error) {
	codec, err := utils.CodecFor(s.version)
	if err != nil {
		return 0, err
	}

	dst := s.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	tmp := dst + ".tmp"
	w, err := utils.NewParquetWriter[tickRow](tmp, codec)
	if err != nil {
		return 0, err
	}

	rows := make([]tickRow, len(t.Rows))
	for i := range t.Rows {
		rows[i] = toRow(&t.Rows[i])
	}

	if err := w.Write(rows); err != nil {
		w.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to publish %s: %w", rel, err)
	}
	return len(rows), nil
}

// Read 读取快照, kind 来自记录的 sub_id
func (s *Store) Read(rel string, kind model.SeriesKind) (*model.TickTable, error) {
	rows, err := utils.ReadParquet[tickRow](s.Abs(rel))
	if err != nil {
		return nil, err
	}

	ticks := make([]model.Tick, len(rows))
	for i := range rows {
		ticks[i] = fromRow(&rows[i])
	}
	return model.NewTickTable(kind, ticks), nil
}

// Remove 删除快照和它的特征目录, 并清理空目录; 文件不存在不算错误
func (s *Store) Remove(rel string) error {
	if err := utils.RemoveAndPrune(s.root, s.Abs(FeatureDir(rel))); err != nil {
		return err
	}
	err := utils.RemoveAndPrune(s.root, s.Abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List 全部快照的相对路径
func (s *Store) List() ([]string, error) {
	files, err := utils.ListFiles(s.root, ".parquet")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	result := files[:0]
	for _, f := range files {
		if strings.Contains(f, featureSuffix+"/") {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

// FeatureDir 分片特征文件目录: 去掉扩展名后加 .features
func FeatureDir(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + featureSuffix
}

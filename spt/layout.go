package spt

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/utils"
)

const (
	RawExt      = ".spt"
	ArtifactExt = ".parquet"
)

// RawFile 原始目录 {year}/{market}/{category}/{instrument}/{year}/{month}/{day}.spt 中的一个文件
type RawFile struct {
	Path       string // 相对 raw 根目录, 作为 FileRecord 主键
	Abs        string
	Market     int
	Category   string
	Instrument string
	Year       string
	Month      string
	Day        string
	Size       int64
}

type DiscoverFilter struct {
	Year     string
	Market   int
	Category string
}

func (f DiscoverFilter) match(r RawFile) bool {
	if f.Year != "" && f.Year != r.Year {
		return false
	}
	if f.Market != 0 && f.Market != r.Market {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, r.Category) {
		return false
	}
	return true
}

// ParseRawPath 从相对路径解析出市场/品种/合约/日期
func ParseRawPath(rel string) (RawFile, error) {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	if len(parts) != 7 {
		return RawFile{}, fmt.Errorf("unexpected raw layout %s: want 7 path segments, got %d", rel, len(parts))
	}
	if !strings.HasSuffix(parts[6], RawExt) {
		return RawFile{}, fmt.Errorf("not a %s file: %s", RawExt, rel)
	}

	market, err := strconv.Atoi(parts[1])
	if err != nil {
		return RawFile{}, fmt.Errorf("invalid market segment in %s: %w", rel, err)
	}
	if _, _, ok := utils.SplitInstrument(parts[3]); !ok {
		return RawFile{}, fmt.Errorf("invalid instrument segment in %s", rel)
	}

	return RawFile{
		Path:       rel,
		Market:     market,
		Category:   parts[2],
		Instrument: parts[3],
		Year:       parts[0],
		Month:      parts[5],
		Day:        strings.TrimSuffix(parts[6], RawExt),
	}, nil
}

// Discover 遍历 raw 根目录, 返回按路径排序的 spt 文件
func Discover(root string, filter DiscoverFilter) ([]RawFile, error) {
	var files []RawFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), RawExt) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rf, err := ParseRawPath(rel)
		if err != nil {
			// 目录里混入的其它文件不影响整体
			return nil
		}
		if !filter.match(rf) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rf.Abs = path
		rf.Size = info.Size()
		files = append(files, rf)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// NewFileRecord 首次发现文件时创建的元数据
func NewFileRecord(rf RawFile) *model.FileRecord {
	return &model.FileRecord{
		Path:       rf.Path,
		Market:     rf.Market,
		Category:   rf.Category,
		Instrument: rf.Instrument,
		SubID:      model.SubIDOf(rf.Instrument),
		DataType:   "tick",
		Year:       rf.Year,
		Month:      rf.Month,
		Day:        rf.Day,
		Size:       rf.Size,
	}
}

// ArtifactDir {market}/{category}/{instrument}/{month}
func ArtifactDir(market int, category, instrument, month string) string {
	return filepath.Join(strconv.Itoa(market), category, instrument, month)
}

// FileArtifactPath 整文件快照: .../{instrument}_{day}.parquet
func FileArtifactPath(rec *model.FileRecord) string {
	name := fmt.Sprintf("%s_%s%s", rec.Instrument, rec.Day, ArtifactExt)
	return filepath.Join(ArtifactDir(rec.Market, rec.Category, rec.Instrument, rec.Month), name)
}

// SplitArtifactPath 分片: .../{instrument}_{day}_{tradingDay}_{session}.parquet
func SplitArtifactPath(rec *model.FileRecord, tradingDay string, session model.Session) string {
	name := fmt.Sprintf("%s_%s_%s_%s%s", rec.Instrument, rec.Day, tradingDay, session, ArtifactExt)
	return filepath.Join(ArtifactDir(rec.Market, rec.Category, rec.Instrument, rec.Month), name)
}

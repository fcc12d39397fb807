package model

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// UpdateOp 字段级的原子更新, 一次 UpdateFile 调用内的所有操作在同一事务里执行
type UpdateOp interface {
	isUpdateOp()
}

type SetOp struct {
	Field string
	Value interface{}
}

type IncOp struct {
	Field string
	Delta int64
}

type AddTagOp struct{ Tag string }

type PullTagOp struct{ Tag string }

type PushFeatureOp struct{ Name string }

func (SetOp) isUpdateOp()         {}
func (IncOp) isUpdateOp()         {}
func (AddTagOp) isUpdateOp()      {}
func (PullTagOp) isUpdateOp()     {}
func (PushFeatureOp) isUpdateOp() {}

func Set(field string, value interface{}) UpdateOp { return SetOp{Field: field, Value: value} }
func Inc(field string, delta int64) UpdateOp       { return IncOp{Field: field, Delta: delta} }
func AddTag(tag string) UpdateOp                   { return AddTagOp{Tag: tag} }
func PullTag(tag string) UpdateOp                  { return PullTagOp{Tag: tag} }
func PushFeature(name string) UpdateOp             { return PushFeatureOp{Name: name} }

// PullTags 批量摘除
func PullTags(tags ...string) []UpdateOp {
	ops := make([]UpdateOp, len(tags))
	for i, t := range tags {
		ops[i] = PullTag(t)
	}
	return ops
}

// FileFilter 零值字段不参与过滤
type FileFilter struct {
	Paths      []string
	Market     int
	Category   string
	Instrument string
	Year       string
	Month      string
	Day        string

	TagsAll  []string // 必须全部带有
	TagsNone []string // 不能带有其中任何一个

	SubIDNotIn     []string
	HasArtifact    bool
	HasStats       bool
	Dominant       bool
	SecondDominant bool
	LineNumNull    bool

	Limit int
}

// ViewFilter 预定义视图对应的过滤条件
func ViewFilter(view ViewID) (FileFilter, error) {
	switch view {
	case ViewFilesValid:
		return FileFilter{TagsNone: InvalidTags}, nil
	case ViewFilesDf:
		return FileFilter{TagsNone: DfInvalidTags}, nil
	case ViewFilesMain:
		return FileFilter{
			TagsNone:    InvalidTags,
			SubIDNotIn:  SyntheticSubIDs,
			HasArtifact: true,
			HasStats:    true,
			Dominant:    true,
		}, nil
	case ViewFilesSub:
		return FileFilter{
			TagsNone:       InvalidTags,
			SubIDNotIn:     SyntheticSubIDs,
			HasArtifact:    true,
			HasStats:       true,
			SecondDominant: true,
		}, nil
	case ViewFilesWait:
		return FileFilter{LineNumNull: true}, nil
	default:
		return FileFilter{}, fmt.Errorf("view %s has no file filter", view)
	}
}

// Merge 在视图条件上叠加范围条件
func (f FileFilter) Merge(scope FileFilter) FileFilter {
	out := f
	if scope.Market != 0 {
		out.Market = scope.Market
	}
	if scope.Category != "" {
		out.Category = scope.Category
	}
	if scope.Instrument != "" {
		out.Instrument = scope.Instrument
	}
	if scope.Year != "" {
		out.Year = scope.Year
	}
	if scope.Month != "" {
		out.Month = scope.Month
	}
	if scope.Day != "" {
		out.Day = scope.Day
	}
	if len(scope.Paths) > 0 {
		out.Paths = scope.Paths
	}
	if scope.Limit > 0 {
		out.Limit = scope.Limit
	}
	return out
}

type SplitFilter struct {
	FilePath       string
	Category       string
	Instrument     string
	Day            string
	Session        string
	Dominant       bool
	SecondDominant bool
	Limit          int
}

// KeyCount 分组计数结果
type KeyCount struct {
	Key   string `col:"k"`
	Count int64  `col:"n"`
}

// ArtifactRef 记录引用的快照文件
type ArtifactRef struct {
	ZipPath string `col:"zip_path"`
	Owner   string `col:"owner"`
	Split   bool   `col:"is_split"`
}

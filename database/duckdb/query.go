package duckdb

import (
	"fmt"
	"strings"

	"github.com/jing2uo/spt2db/model"
)

// whereBuilder 收集条件和参数, 占位符统一用 ?
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) eq(col string, v string) {
	if v != "" {
		w.add(col+" = ?", v)
	}
}

func (w *whereBuilder) in(col string, not bool, values []string) {
	if len(values) == 0 {
		return
	}
	op := "IN"
	if not {
		op = "NOT IN"
	}
	w.add(fmt.Sprintf("%s %s (%s)", col, op, placeholders(len(values))), toArgs(values)...)
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// fileWhere 表别名固定为 f
func fileWhere(f model.FileFilter) *whereBuilder {
	w := &whereBuilder{}
	tags := model.TableFileTags.TableName

	w.in("f.path", false, f.Paths)
	if f.Market != 0 {
		w.add("f.market = ?", f.Market)
	}
	w.eq("f.category", f.Category)
	w.eq("f.instrument", f.Instrument)
	w.eq("f.year", f.Year)
	w.eq("f.month", f.Month)
	w.eq("f.day", f.Day)

	for _, tag := range f.TagsAll {
		w.add(fmt.Sprintf("EXISTS (SELECT 1 FROM %s t WHERE t.path = f.path AND t.tag = ?)", tags), tag)
	}
	if len(f.TagsNone) > 0 {
		w.add(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s t WHERE t.path = f.path AND t.tag IN (%s))",
			tags, placeholders(len(f.TagsNone))), toArgs(f.TagsNone)...)
	}

	w.in("f.sub_id", true, f.SubIDNotIn)
	if f.HasArtifact {
		w.add("f.zip_path IS NOT NULL")
	}
	if f.HasStats {
		w.add("f.high IS NOT NULL")
	}
	if f.Dominant {
		w.add("f.is_dominant")
	}
	if f.SecondDominant {
		w.add("f.is_2nd_dominant")
	}
	if f.LineNumNull {
		w.add("f.line_num IS NULL")
	}
	return w
}

func splitWhere(f model.SplitFilter) *whereBuilder {
	w := &whereBuilder{}
	w.eq("s.file_path", f.FilePath)
	w.eq("s.category", f.Category)
	w.eq("s.instrument", f.Instrument)
	w.eq("s.day", f.Day)
	w.eq("s.session", f.Session)
	if f.Dominant {
		w.add("s.is_dominant")
	}
	if f.SecondDominant {
		w.add("s.is_2nd_dominant")
	}
	return w
}

func limitSQL(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}

package duckdb

import (
	"fmt"
	"strings"

	"github.com/jing2uo/spt2db/model"
)

// mapType 将通用 DataType 转换为 DuckDB 的 SQL 类型
func (d *DuckDBDriver) mapType(dt model.DataType) string {
	switch dt {
	case model.TypeString:
		return "VARCHAR"
	case model.TypeFloat64:
		return "DOUBLE"
	case model.TypeInt64:
		return "BIGINT"
	case model.TypeBool:
		return "BOOLEAN"
	case model.TypeDate:
		return "DATE"
	case model.TypeDateTime:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func (d *DuckDBDriver) createTableInternal(meta *model.TableMeta) error {
	var colDefs []string
	for _, col := range meta.Columns {
		def := fmt.Sprintf("%s %s", col.Name, d.mapType(col.Type))
		if !col.Nullable {
			def += " NOT NULL"
		}
		colDefs = append(colDefs, def)
	}
	if len(meta.PrimaryKey) > 0 {
		colDefs = append(colDefs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(meta.PrimaryKey, ", ")))
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		meta.TableName, strings.Join(colDefs, ", "))

	if _, err := d.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", meta.TableName, err)
	}
	return nil
}

func sqlList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d *DuckDBDriver) registerViews() {
	files := model.TableFiles.TableName
	tags := model.TableFileTags.TableName

	noTags := func(list []string) string {
		return fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM %s t WHERE t.path = f.path AND t.tag IN (%s))",
			tags, sqlList(list))
	}

	createView := func(view model.ViewID, where string) func() error {
		return func() error {
			query := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT f.* FROM %s f WHERE %s`,
				view, files, where)
			_, err := d.db.Exec(query)
			return err
		}
	}

	mainWhere := func(flag string) string {
		return fmt.Sprintf(`%s
			AND f.zip_path IS NOT NULL
			AND f.high IS NOT NULL
			AND f.sub_id NOT IN (%s)
			AND f.%s`,
			noTags(model.InvalidTags), sqlList(model.SyntheticSubIDs), flag)
	}

	// 1. 有效文件: 排除非法交易日/过小/重复时间/无毫秒
	d.viewImpls[model.ViewFilesValid] = createView(model.ViewFilesValid, noTags(model.InvalidTags))

	// 2. 可加载的文件, 只排除过小的
	d.viewImpls[model.ViewFilesDf] = createView(model.ViewFilesDf, noTags(model.DfInvalidTags))

	// 3. 主力 / 次主力
	d.viewImpls[model.ViewFilesMain] = createView(model.ViewFilesMain, mainWhere("is_dominant"))
	d.viewImpls[model.ViewFilesSub] = createView(model.ViewFilesSub, mainWhere("is_2nd_dominant"))

	// 4. 已登记但还没导入
	d.viewImpls[model.ViewFilesWait] = createView(model.ViewFilesWait, "f.line_num IS NULL")

	// 5. 有效文件下的切片
	d.viewImpls[model.ViewSplitsValid] = func() error {
		query := fmt.Sprintf(`
			CREATE OR REPLACE VIEW %s AS
			SELECT s.*
			FROM %s s
			JOIN %s v ON v.path = s.file_path
		`, model.ViewSplitsValid, model.TableSplits.TableName, model.ViewFilesValid)
		_, err := d.db.Exec(query)
		return err
	}

	// 6. 主力 / 次主力的切片, 依赖 v_splits_valid
	splitView := func(view model.ViewID, flag string) func() error {
		return func() error {
			query := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s WHERE %s`,
				view, model.ViewSplitsValid, flag)
			_, err := d.db.Exec(query)
			return err
		}
	}
	d.viewImpls[model.ViewSplitsMain] = splitView(model.ViewSplitsMain, "is_dominant")
	d.viewImpls[model.ViewSplitsSub] = splitView(model.ViewSplitsSub, "is_2nd_dominant")
}

package duckdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jing2uo/spt2db/model"
)

// columnValues 按 col 标签取出结构体字段值, 指针解引用, nil 指针变成 NULL
func columnValues(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	rv := reflect.Indirect(reflect.ValueOf(v))
	collectValues(rv, out)
	return out
}

func collectValues(rv reflect.Value, out map[string]interface{}) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectValues(fv, out)
			continue
		}

		name := field.Tag.Get("col")
		if name == "-" || !field.IsExported() {
			continue
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		out[name] = plainValue(fv.Interface())
	}
}

// plainValue 解开指针, 交给驱动的只有基础类型
func plainValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}

func insertSQL(meta *model.TableMeta, rows int, suffix string) string {
	cols := meta.ColumnNames()
	tuple := "(" + placeholders(len(cols)) + ")"

	values := make([]string, rows)
	for i := range values {
		values[i] = tuple
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s",
		meta.TableName, strings.Join(cols, ", "), strings.Join(values, ", "), suffix)
}

func insertArgs(meta *model.TableMeta, v interface{}) []interface{} {
	values := columnValues(v)
	args := make([]interface{}, len(meta.Columns))
	for i, c := range meta.Columns {
		args[i] = values[c.Name]
	}
	return args
}

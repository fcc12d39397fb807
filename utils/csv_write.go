package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"reflect"
	"time"
)

// DateTimeLayout tick 时间带毫秒, ClickHouse 的 best_effort 也能解析
const DateTimeLayout = "2006-01-02 15:04:05.000"

var (
	timeType    = reflect.TypeOf(time.Time{})
	timePtrType = reflect.TypeOf((*time.Time)(nil))
)

// CSVWriter 按 col 标签写带表头的 CSV, 用于向 ClickHouse 批量导入
type CSVWriter[T any] struct {
	file          *os.File
	writer        *csv.Writer
	headerWritten bool
	columns       []csvColumn
}

type csvColumn struct {
	index  int
	header string
	layout string // 非空表示时间字段
}

// format 零值时间和 nil 指针写成空串
func (c csvColumn) format(v reflect.Value) string {
	if c.layout == "" {
		return fmt.Sprint(v.Interface())
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	t := v.Interface().(time.Time)
	if t.IsZero() {
		return ""
	}
	return t.Format(c.layout)
}

func NewCSVWriter[T any](filename string) (*CSVWriter[T], error) {
	cols, err := csvColumns[T]()
	if err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &CSVWriter[T]{
		file:    f,
		writer:  csv.NewWriter(f),
		columns: cols,
	}, nil
}

// csvColumns 解析 col / type 标签, col:"-" 跳过, type:"date" 只写日期
func csvColumns[T any]() ([]csvColumn, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("generic type T must be a struct")
	}

	var cols []csvColumn
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)

		name := field.Tag.Get("col")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		col := csvColumn{index: i, header: name}
		if field.Type == timeType || field.Type == timePtrType {
			col.layout = DateTimeLayout
			if field.Tag.Get("type") == "date" {
				col.layout = "2006-01-02"
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (cw *CSVWriter[T]) Write(data []T) error {
	if len(data) == 0 {
		return nil
	}

	if !cw.headerWritten {
		headers := make([]string, len(cw.columns))
		for i, col := range cw.columns {
			headers[i] = col.header
		}
		if err := cw.writer.Write(headers); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		cw.headerWritten = true
	}

	record := make([]string, len(cw.columns))
	for _, item := range data {
		val := reflect.ValueOf(item)
		if val.Kind() == reflect.Ptr {
			val = val.Elem()
		}
		for i, col := range cw.columns {
			record[i] = col.format(val.Field(col.index))
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return nil
}

func (cw *CSVWriter[T]) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("failed to flush: %w", err)
	}
	return cw.file.Close()
}

package model

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

type DataType int

const (
	TypeString DataType = iota
	TypeFloat64
	TypeInt64
	TypeBool
	TypeDate     // YYYY-MM-DD
	TypeDateTime // YYYY-MM-DD HH:MM:SS.ffffff
)

type Column struct {
	Name     string
	Type     DataType
	Nullable bool
}

type TableMeta struct {
	TableName  string
	Columns    []Column
	OrderByKey []string
	PrimaryKey []string
}

var (
	tableRegistry   []*TableMeta
	tableRegistryMu sync.Mutex
)

func registerTable(t *TableMeta) {
	tableRegistryMu.Lock()
	defer tableRegistryMu.Unlock()
	tableRegistry = append(tableRegistry, t)
}

// AllTables 返回当前所有已注册的表结构
func AllTables() []*TableMeta {
	tableRegistryMu.Lock()
	defer tableRegistryMu.Unlock()

	result := make([]*TableMeta, len(tableRegistry))
	copy(result, tableRegistry)
	return result
}

// HasColumn 用于校验更新操作里的字段名
func (m *TableMeta) HasColumn(name string) bool {
	for _, c := range m.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames 按声明顺序返回列名
func (m *TableMeta) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// WithPrimaryKey 设置主键, 返回自身方便链式声明
func (m *TableMeta) WithPrimaryKey(cols ...string) *TableMeta {
	m.PrimaryKey = cols
	return m
}

// SchemaFromStruct 通过反射生成 TableMeta 并自动注册
func SchemaFromStruct(tableName string, model interface{}, orderByKey []string) *TableMeta {
	meta := buildMeta(tableName, model, orderByKey)
	registerTable(meta)
	return meta
}

// buildMeta 只生成不注册, 按品种路由的动态表用它
func buildMeta(tableName string, model interface{}, orderByKey []string) *TableMeta {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return &TableMeta{
		TableName:  tableName,
		Columns:    structColumns(t),
		OrderByKey: orderByKey,
	}
}

var timeType = reflect.TypeOf(time.Time{})

func structColumns(t reflect.Type) []Column {
	var cols []Column

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// 嵌入的统计字段展开成同一张表的列
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			cols = append(cols, structColumns(field.Type)...)
			continue
		}

		colName := field.Tag.Get("col")
		if colName == "-" {
			continue
		}
		if colName == "" {
			colName = strings.ToLower(field.Name)
		}

		ft := field.Type
		nullable := false
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
			nullable = true
		}

		var dType DataType
		customType := field.Tag.Get("type")
		switch {
		case customType == "date":
			dType = TypeDate
		case customType == "datetime":
			dType = TypeDateTime
		default:
			switch ft.Kind() {
			case reflect.String:
				dType = TypeString
			case reflect.Float64, reflect.Float32:
				dType = TypeFloat64
			case reflect.Int, reflect.Int64, reflect.Int32, reflect.Uint32:
				dType = TypeInt64
			case reflect.Bool:
				dType = TypeBool
			case reflect.Struct:
				if ft == timeType {
					dType = TypeDateTime
				}
			default:
				dType = TypeString
			}
		}

		cols = append(cols, Column{Name: colName, Type: dType, Nullable: nullable})
	}

	return cols
}

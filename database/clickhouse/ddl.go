package clickhouse

import (
	"fmt"
	"strings"

	"github.com/jing2uo/spt2db/model"
)

var lowCardinality = map[string]bool{
	"instrument": true,
	"category":   true,
	"level":      true,
}

// mapType 针对 ClickHouse 进行类型优化
func (d *ClickHouseDriver) mapType(colName string, dt model.DataType) string {
	switch dt {
	case model.TypeString:
		if lowCardinality[strings.ToLower(colName)] {
			return "LowCardinality(String)"
		}
		return "String"
	case model.TypeFloat64:
		return "Float64"
	case model.TypeInt64:
		return "Int64"
	case model.TypeBool:
		return "Bool"
	case model.TypeDate:
		return "Date32"
	case model.TypeDateTime:
		// 交易时间按墙上时钟存, 不做时区换算
		return "DateTime64(3, 'UTC')"
	default:
		return "String"
	}
}

func (d *ClickHouseDriver) createTableInternal(meta *model.TableMeta) error {
	var colDefs []string
	for _, col := range meta.Columns {
		colDefs = append(colDefs, fmt.Sprintf("%s %s", col.Name, d.mapType(col.Name, col.Type)))
	}

	// MergeTree 必须有排序键
	orderBy := "tuple()"
	if len(meta.OrderByKey) > 0 {
		orderBy = "(" + strings.Join(meta.OrderByKey, ", ") + ")"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s
		) ENGINE = MergeTree()
		ORDER BY %s
	`, meta.TableName, strings.Join(colDefs, ", "), orderBy)

	_, err := d.db.Exec(query)
	return err
}

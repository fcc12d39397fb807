package database

import (
	"fmt"
	"net/url"

	"github.com/jing2uo/spt2db/database/clickhouse"
	"github.com/jing2uo/spt2db/database/duckdb"
	"github.com/jing2uo/spt2db/model"
)

// NewMetaStore 元数据只支持 DuckDB, ClickHouse 不适合频繁的字段级更新
func NewMetaStore(cfg model.DBConfig) (MetaStore, error) {
	switch cfg.Type {
	case model.DBTypeDuckDB, "":
		return duckdb.NewDriver(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported metadata db type: %s", cfg.Type)
	}
}

// NewKlineStore DuckDB 且未单独指定 DSN 时复用元数据库, shared 为 true 表示不需要单独 Connect/Close
func NewKlineStore(cfg model.DBConfig, meta MetaStore) (store KlineStore, shared bool, err error) {
	switch cfg.Type {
	case model.DBTypeDuckDB, "":
		if cfg.DSN == "" {
			if ks, ok := meta.(KlineStore); ok {
				return ks, true, nil
			}
		}
		return duckdb.NewDriver(cfg), false, nil
	case model.DBTypeClickHouse:
		u, err := url.Parse(cfg.DSN)
		if err != nil {
			return nil, false, fmt.Errorf("invalid clickhouse dsn: %w", err)
		}
		d, err := clickhouse.NewClickHouseDriver(u)
		if err != nil {
			return nil, false, err
		}
		return d, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported kline db type: %s", cfg.Type)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jing2uo/spt2db/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.MinRows)
	assert.Equal(t, 100, cfg.MaxDupTime)
	assert.Equal(t, 3*time.Hour+20*time.Minute, cfg.TradingDayShift.Duration)
	assert.Equal(t, 6*time.Hour, cfg.KlineOffset.Duration)
	assert.Equal(t, model.DBTypeDuckDB, cfg.MetaDB.Type)
	assert.True(t, cfg.SkipMarket(model.MarketCFFEX))
	assert.False(t, cfg.SkipMarket(model.MarketSHFE))

	lo, hi, err := cfg.DateRange()
	require.NoError(t, err)
	assert.Equal(t, 2000, lo.Year())
	assert.Equal(t, 2050, hi.Year())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spt2db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
raw_root: /data/spt
min_rows: 50
trading_day_shift: 4h
kline_levels: [5min, 1d]
sessions:
  night:
    start: "21:00"
    end: "02:30"
kline_db:
  type: clickhouse
  dsn: clickhouse://default:@localhost:9000/spt
`), 0644))

	t.Setenv(EnvPrefix+"CONCURRENCY", "3")
	t.Setenv(EnvPrefix+"ARTIFACT_ROOT", "/data/ticks")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/spt", cfg.RawRoot)
	assert.Equal(t, "/data/ticks", cfg.ArtifactRoot)
	assert.Equal(t, 50, cfg.MinRows)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 4*time.Hour, cfg.TradingDayShift.Duration)
	assert.Equal(t, []string{"5min", "1d"}, cfg.KlineLevels)
	assert.Equal(t, model.DBTypeClickHouse, cfg.KlineDB.Type)
	assert.Equal(t, Window{Start: "21:00", End: "02:30"}, cfg.Sessions["night"])
	// 未覆盖的时段保留默认值
	assert.Equal(t, Window{Start: "09:00", End: "10:15"}, cfg.Sessions["fam"])
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("claim_ttl: soon\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv(EnvPrefix+"BATCH_SIZE", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Concurrency = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Concurrency)

	cfg = Default()
	cfg.MinDate, cfg.MaxDate = "2030-01-01", "2020-01-01"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Delimiter = "\t\t"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	delete(cfg.Sessions, string(model.SessionBam))
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MinRows = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MinRows")

	cfg = Default()
	cfg.Sessions[string(model.SessionPm)] = Window{Start: "13:00", End: "25:61"}
	assert.Error(t, cfg.Validate())

	// 精确到秒的时段边界
	cfg = Default()
	cfg.Sessions[string(model.SessionPm)] = Window{Start: "13:00:00", End: "15:01:30"}
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Sessions[string(model.SessionPm)] = Window{Start: "13:00", End: "15:01:30:00"}
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RawRoot = ""
	assert.Error(t, cfg.Validate())
}

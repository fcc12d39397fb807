package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jing2uo/spt2db/config"
	"github.com/jing2uo/spt2db/database/duckdb"
	"github.com/jing2uo/spt2db/model"
	"github.com/jing2uo/spt2db/spt"
)

const (
	rawRB   = "2024/4/rb/rb2405/2024/202401/20240102.spt"
	rawRB2  = "2024/4/rb/rb2405/2024/202401/20240103.spt"
	rawRB10 = "2024/4/rb/rb2410/2024/202401/20240102.spt"
)

func newTestEnv(t *testing.T, tweak ...func(*config.Config)) *Env {
	t.Helper()
	cfg := config.Default()
	cfg.RawRoot = t.TempDir()
	cfg.ArtifactRoot = t.TempDir()
	cfg.Concurrency = 2
	for _, f := range tweak {
		f(cfg)
	}

	meta := duckdb.NewDriver(model.DBConfig{Type: model.DBTypeDuckDB})
	require.NoError(t, meta.Connect())
	t.Cleanup(func() { meta.Close() })
	require.NoError(t, meta.InitSchema())

	env, err := NewEnv(cfg, meta, zap.NewNop(), nil)
	require.NoError(t, err)
	return env
}

// tickLine 42 列原始记录, 只填用到的列
func tickLine(instrument string, market int, ts time.Time, price, volume float64, oi int64) string {
	f := make([]string, spt.NumColumns)
	for i := range f {
		f[i] = "0"
	}
	p := strconv.FormatFloat(price, 'f', -1, 64)
	f[0] = instrument
	f[1] = strconv.Itoa(market)
	f[2] = p
	f[3] = strconv.FormatFloat(volume, 'f', -1, 64)
	f[4] = ts.Format("150405")
	f[6] = ts.Format("2006-01-02 15:04:05.000")
	f[27] = strconv.FormatInt(oi, 10)
	f[28] = "1000"
	f[36] = p
	f[37] = p
	f[39] = p
	f[40] = instrument
	return strings.Join(f, ",")
}

func series(start time.Time, n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

func at(day, clock string) time.Time {
	t, err := time.Parse("20060102 15:04:05", day+" "+clock)
	if err != nil {
		panic(err)
	}
	return t
}

func linesFor(instrument string, market int, times []time.Time, oiBase int64) []string {
	out := make([]string, len(times))
	for i, ts := range times {
		out[i] = tickLine(instrument, market, ts, 3500+float64(i%10), float64(1+i%3), oiBase+int64(i))
	}
	return out
}

func writeRaw(t *testing.T, env *Env, rel string, lines []string) {
	t.Helper()
	abs := env.rawPath(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func register(t *testing.T, env *Env, rel string) {
	t.Helper()
	rf, err := spt.ParseRawPath(rel)
	require.NoError(t, err)
	_, err = env.Meta.InsertFile(context.Background(), spt.NewFileRecord(rf))
	require.NoError(t, err)
}

// prepare 写入原始文件并登记, 可选直接转换
func prepare(t *testing.T, env *Env, rel string, lines []string, convert bool) {
	t.Helper()
	writeRaw(t, env, rel, lines)
	register(t, env, rel)
	if convert {
		_, err := NewConverter(env).Convert(context.Background(), rel, false)
		require.NoError(t, err)
	}
}

func getFile(t *testing.T, env *Env, path string) *model.FileRecord {
	t.Helper()
	rec, err := env.Meta.GetFile(context.Background(), path)
	require.NoError(t, err)
	return rec
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	times := series(at("20240102", "09:00:00"), 250, 500*time.Millisecond)
	prepare(t, env, rawRB, linesFor("rb2405", 4, times, 1000), false)

	out, err := NewConverter(env).Convert(ctx, rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)

	rec := getFile(t, env, rawRB)
	assert.Empty(t, rec.Tags)
	require.NotNil(t, rec.LineNum)
	assert.Equal(t, int64(250), *rec.LineNum)
	require.NotNil(t, rec.ZipPath)
	assert.Equal(t, spt.FileArtifactPath(rec), *rec.ZipPath)
	assert.Equal(t, int64(250), *rec.ZipLineNum)
	assert.Equal(t, int64(2), *rec.ZipVer)
	require.NotNil(t, rec.Start)
	assert.True(t, times[0].Equal(*rec.Start))
	assert.True(t, times[249].Equal(*rec.End))
	require.NotNil(t, rec.OpenInterest)
	assert.Equal(t, int64(1249), *rec.OpenInterest)

	table, err := env.Artifacts.Read(*rec.ZipPath, rec.Kind())
	require.NoError(t, err)
	require.Equal(t, 250, table.Len())
	assert.Equal(t, model.SessionFam, table.Rows[0].Session)

	// 快照已存在
	out, err = NewConverter(env).Convert(ctx, rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
}

func TestConvertMinRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start := at("20240102", "09:00:00")
	prepare(t, env, rawRB, linesFor("rb2405", 4, series(start, 199, 500*time.Millisecond), 1000), false)
	prepare(t, env, rawRB2, linesFor("rb2405", 4, series(start.AddDate(0, 0, 1), 200, 500*time.Millisecond), 1000), false)

	out, err := NewConverter(env).Convert(ctx, rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTooSmall, out)
	rec := getFile(t, env, rawRB)
	assert.Equal(t, []string{model.TagTooSmall}, rec.Tags)
	// 行数不够也保留快照
	require.NotNil(t, rec.ZipPath)
	assert.True(t, env.Artifacts.Exists(*rec.ZipPath))

	out, err = NewConverter(env).Convert(ctx, rawRB2, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)
	assert.Empty(t, getFile(t, env, rawRB2).Tags)
}

func TestConvertTimeError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 05:00 回拨后落在 01:40, 不属于任何时段
	bad := series(at("20240102", "05:00:00"), 250, 500*time.Millisecond)
	prepare(t, env, rawRB, linesFor("rb2405", 4, bad, 1000), false)

	out, err := NewConverter(env).Convert(ctx, rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeError, out)

	rec := getFile(t, env, rawRB)
	assert.Equal(t, []string{model.TagTimeError}, rec.Tags)
	assert.Nil(t, rec.ZipPath)
	assert.Zero(t, rec.DocNum)
	require.NotNil(t, rec.Start)
	assert.True(t, bad[0].Equal(*rec.Start))

	// 修好原始文件后强制重转, 旧标签被摘掉
	good := series(at("20240102", "09:00:00"), 250, 500*time.Millisecond)
	writeRaw(t, env, rawRB, linesFor("rb2405", 4, good, 1000))
	out, err = NewConverter(env).Convert(ctx, rawRB, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)
	assert.Empty(t, getFile(t, env, rawRB).Tags)
}

func TestConvertLoadFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	prepare(t, env, rawRB, []string{"garbage", "more,garbage"}, false)

	out, err := NewConverter(env).Convert(ctx, rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoadFail, out)
	assert.Equal(t, []string{model.TagLoadDFFail}, getFile(t, env, rawRB).Tags)

	out, err = NewConverter(env).Convert(ctx, rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)

	out, err = NewConverter(env).Convert(ctx, rawRB, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoadFail, out)
	assert.Equal(t, []string{model.TagLoadDFFail}, getFile(t, env, rawRB).Tags)
}

func TestConvertEmptyAfterCleaning(t *testing.T) {
	env := newTestEnv(t)

	old := series(at("19990104", "09:00:00"), 10, time.Second)
	prepare(t, env, rawRB, linesFor("rb2405", 4, old, 1000), false)

	out, err := NewConverter(env).Convert(context.Background(), rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, out)

	rec := getFile(t, env, rawRB)
	assert.Equal(t, []string{model.TagEmptyDF}, rec.Tags)
	assert.Equal(t, int64(10), *rec.LineNum)
	assert.Nil(t, rec.ZipPath)
}

func TestConvertLogsDroppedRows(t *testing.T) {
	env := newTestEnv(t)
	core, logs := observer.New(zapcore.InfoLevel)
	env.Log = zap.New(core)

	lines := linesFor("rb2405", 4, morning("20240102", 250), 1000)
	lines = append(lines,
		tickLine("rb2405", 4, at("19990104", "09:00:00"), 3500, 1, 1000),
		tickLine("rb2405", 4, at("19990104", "09:00:01"), 3500, 1, 1000),
		tickLine("rb2405", 4, at("20240102", "09:30:00"), 3500, -1, 1000),
	)
	prepare(t, env, rawRB, lines, false)

	out, err := NewConverter(env).Convert(context.Background(), rawRB, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)

	entries := logs.FilterMessage("converted").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 250, fields["rows"])
	assert.EqualValues(t, 2, fields["out_of_range"])
	assert.EqualValues(t, 1, fields["negative_volume"])

	// 没有丢弃时不带计数
	logs.TakeAll()
	prepare(t, env, rawRB2, linesFor("rb2405", 4, morning("20240103", 250), 1000), true)
	entries = logs.FilterMessage("converted").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "out_of_range")
	assert.NotContains(t, entries[0].ContextMap(), "negative_volume")
}

func TestConvertSkipsMarket(t *testing.T) {
	env := newTestEnv(t)
	rel := "2024/3/IF/IF2403/2024/202401/20240102.spt"
	register(t, env, rel)

	out, err := NewConverter(env).Convert(context.Background(), rel, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	assert.Nil(t, getFile(t, env, rel).LineNum)
}

func TestConvertMissingRecord(t *testing.T) {
	env := newTestEnv(t)

	out, err := NewConverter(env).Convert(context.Background(), rawRB, false)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, OutcomeFailed, out)
}

func TestImporterRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start := at("20240102", "09:00:00")
	writeRaw(t, env, rawRB, linesFor("rb2405", 4, series(start, 250, 500*time.Millisecond), 1000))
	writeRaw(t, env, rawRB10, linesFor("rb2410", 4, series(start, 10, 500*time.Millisecond), 1000))
	require.NoError(t, os.WriteFile(filepath.Join(env.Cfg.RawRoot, "readme.txt"), []byte("x"), 0644))

	report, err := NewImporter(env).Run(ctx, spt.DiscoverFilter{}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, int64(2), report.Inserted)
	assert.Equal(t, 1, report.Outcomes[OutcomeDone])
	assert.Equal(t, 1, report.Outcomes[OutcomeTooSmall])
	assert.Empty(t, report.Errors)

	// 再次导入不重复登记, 已有快照跳过
	report, err = NewImporter(env).Run(ctx, spt.DiscoverFilter{}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Inserted)
	assert.Equal(t, 2, report.Outcomes[OutcomeSkipped])

	report, err = NewImporter(env).Run(ctx, spt.DiscoverFilter{Category: "m"}, false)
	require.NoError(t, err)
	assert.Zero(t, report.Discovered)
}

func TestConvertFilesBatch(t *testing.T) {
	env := newTestEnv(t)

	start := at("20240102", "09:00:00")
	prepare(t, env, rawRB, linesFor("rb2405", 4, series(start, 250, 500*time.Millisecond), 1000), false)
	prepare(t, env, rawRB10, linesFor("rb2410", 4, series(start, 250, 500*time.Millisecond), 1000), false)

	report, err := NewConverter(env).ConvertFiles(context.Background(), model.FileFilter{Instrument: "rb2410"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Count(OutcomeDone))
	assert.Nil(t, getFile(t, env, rawRB).ZipPath)
}

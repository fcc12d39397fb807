package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitInstrument(t *testing.T) {
	cases := []struct {
		code, category, subID string
		ok                    bool
	}{
		{"AG1406", "AG", "1406", true},
		{"rb9999", "rb", "9999", true},
		{"IF0000", "IF", "0000", true},
		{"SR905", "SR", "R905", true},
		{" m2405 ", "m", "2405", true},
		{"2405", "", "", false},
		{"ABCDE1234", "", "", false},
		{"rb24a5", "", "", false},
		{"12345", "", "", false},
	}
	for _, tc := range cases {
		category, subID, ok := SplitInstrument(tc.code)
		assert.Equal(t, tc.ok, ok, tc.code)
		assert.Equal(t, tc.category, category, tc.code)
		assert.Equal(t, tc.subID, subID, tc.code)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestRemoveAndPrune(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "4", "rb", "keep.parquet")
	gone := filepath.Join(root, "4", "rb", "rb2405", "202401", "a.parquet")
	touch(t, keep)
	touch(t, gone)

	require.NoError(t, RemoveAndPrune(root, gone))
	assert.NoFileExists(t, gone)
	assert.NoDirExists(t, filepath.Join(root, "4", "rb", "rb2405"))
	assert.FileExists(t, keep)
	assert.DirExists(t, root)

	// 不存在的文件不算错误
	require.NoError(t, RemoveAndPrune(root, gone))

	assert.Error(t, RemoveAndPrune(root, filepath.Join(root, "..", "elsewhere")))
	assert.Error(t, RemoveAndPrune(root, root))
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "x.parquet"))
	touch(t, filepath.Join(root, "b", "c", "y.parquet"))
	touch(t, filepath.Join(root, "b", "z.tmp"))

	files, err := ListFiles(root, ".parquet")
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{"a/x.parquet", "b/c/y.parquet"}, files)

	files, err = ListFiles(filepath.Join(root, "missing"), ".parquet")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCheckDirectories(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	touch(t, file)

	assert.NoError(t, CheckDirectory(root))
	assert.Error(t, CheckDirectory(file))
	assert.Error(t, CheckDirectory(filepath.Join(root, "missing")))

	out := filepath.Join(root, "out", "nested")
	require.NoError(t, CheckOutputDir(out))
	assert.DirExists(t, out)
	assert.Error(t, CheckOutputDir(file))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(2*time.Minute+5*time.Second+100*time.Millisecond))

	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "3.0 MiB", FormatBytes(3*1024*1024))
}

func TestPipelineRun(t *testing.T) {
	p := NewPipeline[int, int](WithConcurrency(3))

	var got []int
	result, err := p.Run(context.Background(), []int{1, 2, 3, 4, 5},
		func(ctx context.Context, n int) ([]int, error) {
			if n == 3 {
				return nil, errors.New("boom")
			}
			return []int{n, n * 10}, nil
		},
		func(rows []int) error {
			got = append(got, rows...)
			return nil
		},
	)
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalItems)
	assert.Equal(t, int64(4), result.ProcessedItems)
	assert.Equal(t, int64(8), result.OutputRows)
	require.Len(t, result.Errors, 1)
	assert.EqualError(t, result.Errors[0], "boom")

	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 4, 5, 10, 20, 40, 50}, got)
}

func TestPipelineConsumeError(t *testing.T) {
	p := NewPipeline[int, int](WithConcurrency(2))

	result, err := p.Run(context.Background(), []int{1, 2},
		func(ctx context.Context, n int) ([]int, error) { return []int{n}, nil },
		func(rows []int) error { return errors.New("disk full") },
	)
	require.NoError(t, err)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, int64(0), result.OutputRows)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	p := NewPipeline[int, int](WithConcurrency(1))
	result, err := p.Run(ctx, []int{1, 2, 3},
		func(ctx context.Context, n int) ([]int, error) {
			calls.Add(1)
			return []int{n}, nil
		},
		func(rows []int) error { return nil },
	)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int64(0), result.ProcessedItems)
}

func TestPipelineEmpty(t *testing.T) {
	p := NewPipeline[int, int]()
	result, err := p.Run(context.Background(), nil,
		func(ctx context.Context, n int) ([]int, error) { return nil, nil },
		func(rows []int) error { return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalItems)
	assert.Empty(t, result.Errors)
}

func TestPipelinePanic(t *testing.T) {
	p := NewPipeline[int, int](WithConcurrency(2))
	result, err := p.Run(context.Background(), []int{1, 2},
		func(ctx context.Context, n int) ([]int, error) {
			if n == 2 {
				panic("bad input")
			}
			return []int{n}, nil
		},
		func(rows []int) error { return nil },
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ProcessedItems)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "bad input")
}

type csvRow struct {
	Day    time.Time  `col:"day" type:"date"`
	At     time.Time  `col:"at"`
	Seen   *time.Time `col:"seen"`
	Name   string     `col:"name"`
	Count  int        `col:"count"`
	Hidden []string   `col:"-"`
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	w, err := NewCSVWriter[csvRow](path)
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 9, 30, 0, 500*int(time.Millisecond), time.UTC)
	require.NoError(t, w.Write([]csvRow{
		{Day: at, At: at, Seen: &at, Name: "rb2405", Count: 3},
		{Name: "a,b", Count: 0},
	}))
	require.NoError(t, w.Write(nil))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"day,at,seen,name,count\n"+
			"2024-01-02,2024-01-02 09:30:00.500,2024-01-02 09:30:00.500,rb2405,3\n"+
			",,,\"a,b\",0\n",
		string(data))
}

func TestCSVWriterRejectsNonStruct(t *testing.T) {
	_, err := NewCSVWriter[int](filepath.Join(t.TempDir(), "x.csv"))
	assert.Error(t, err)
}

type pqRow struct {
	Name  string  `parquet:"name"`
	Value float64 `parquet:"value"`
}

func TestParquetRoundTripAllCodecs(t *testing.T) {
	for _, v := range []int{CodecVersionSnappy, CodecVersionZstd} {
		codec, err := CodecFor(v)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "rows.parquet")
		w, err := NewParquetWriter[pqRow](path, codec)
		require.NoError(t, err)
		require.NoError(t, w.Write([]pqRow{{"a", 1.5}, {"b", 2}}))
		require.NoError(t, w.Close())

		rows, err := ReadParquet[pqRow](path)
		require.NoError(t, err)
		assert.Equal(t, []pqRow{{"a", 1.5}, {"b", 2}}, rows)
	}

	_, err := CodecFor(9)
	assert.Error(t, err)
}

func TestTempFile(t *testing.T) {
	name, err := TempFile("kline-*.csv")
	require.NoError(t, err)
	defer os.Remove(name)

	assert.FileExists(t, name)
	assert.True(t, strings.HasSuffix(name, ".csv"))
	assert.Contains(t, name, "spt2db-temp")
}

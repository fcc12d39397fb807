package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	r := New()
	r.File("convert", "done")
	r.File("convert", "done")
	r.Dropped("dup_time", 3)
	r.Dropped("dup_time", 0)
	r.Split(4)
	r.Bar("5min", 10)
	r.Observe("convert", 0.2)

	path := filepath.Join(t.TempDir(), "spt2db.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `spt2db_files_total{outcome="done",stage="convert"} 2`)
	assert.Contains(t, text, `spt2db_rows_dropped_total{reason="dup_time"} 3`)
	assert.Contains(t, text, "spt2db_split_artifacts_total 4")
	assert.Contains(t, text, `spt2db_kline_bars_total{level="5min"} 10`)
	assert.Contains(t, text, `spt2db_file_seconds_count{stage="convert"} 1`)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.File("convert", "done")
		r.Dropped("x", 1)
		r.Split(1)
		r.Bar("1d", 1)
		r.Observe("split", 1)
	})
	assert.NoError(t, r.WriteFile("/nonexistent/x.prom"))
}

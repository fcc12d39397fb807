package spt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jing2uo/spt2db/model"
)

func TestParseRawPath(t *testing.T) {
	rf, err := ParseRawPath("2024/4/rb/rb2405/2024/202401/20240102.spt")
	require.NoError(t, err)

	assert.Equal(t, RawFile{
		Path:       "2024/4/rb/rb2405/2024/202401/20240102.spt",
		Market:     4,
		Category:   "rb",
		Instrument: "rb2405",
		Year:       "2024",
		Month:      "202401",
		Day:        "20240102",
	}, rf)
}

func TestParseRawPathErrors(t *testing.T) {
	for _, p := range []string{
		"2024/4/rb/rb2405/20240102.spt",
		"2024/4/rb/rb2405/2024/202401/20240102.csv",
		"2024/x/rb/rb2405/2024/202401/20240102.spt",
		"2024/4/rb/2405/2024/202401/20240102.spt",
	} {
		_, err := ParseRawPath(p)
		assert.Error(t, err, p)
	}
}

func writeRaw(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, "2024/4/rb/rb2405/2024/202401/20240103.spt")
	writeRaw(t, root, "2024/4/rb/rb2405/2024/202401/20240102.spt")
	writeRaw(t, root, "2024/6/m/m2405/2024/202401/20240102.spt")
	writeRaw(t, root, "2024/4/rb/rb2405/2024/202401/readme.txt")
	writeRaw(t, root, "2023/4/rb/rb2305/2023/202301/20230103.spt")

	files, err := Discover(root, DiscoverFilter{})
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, "2023/4/rb/rb2305/2023/202301/20230103.spt", files[0].Path)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, filepath.Join(root, "2023/4/rb/rb2305/2023/202301/20230103.spt"), files[0].Abs)

	files, err = Discover(root, DiscoverFilter{Year: "2024", Category: "RB"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "20240102", files[0].Day)
	assert.Equal(t, "20240103", files[1].Day)

	files, err = Discover(root, DiscoverFilter{Market: 6})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "m2405", files[0].Instrument)
}

func TestNewFileRecord(t *testing.T) {
	rf, err := ParseRawPath("2024/4/rb/rb9999/2024/202401/20240102.spt")
	require.NoError(t, err)

	rec := NewFileRecord(rf)
	assert.Equal(t, "9999", rec.SubID)
	assert.Equal(t, model.KindDominant, rec.Kind())
	assert.Nil(t, rec.LineNum)
	assert.Nil(t, rec.ZipPath)
}

func TestArtifactPaths(t *testing.T) {
	rec := &model.FileRecord{
		Market:     4,
		Category:   "rb",
		Instrument: "rb2405",
		Month:      "202401",
		Day:        "20240102",
	}

	assert.Equal(t, filepath.Join("4", "rb", "rb2405", "202401", "rb2405_20240102.parquet"), FileArtifactPath(rec))
	assert.Equal(t,
		filepath.Join("4", "rb", "rb2405", "202401", "rb2405_20240102_20240101_night.parquet"),
		SplitArtifactPath(rec, "20240101", model.SessionNight))
}

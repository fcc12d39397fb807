package spt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jing2uo/spt2db/config"
	"github.com/jing2uo/spt2db/model"
)

func newTestClassifier(t *testing.T) *Classifier {
	cfg := config.Default()
	c, err := NewClassifier(cfg.Sessions, cfg.TradingDayShift.Duration)
	require.NoError(t, err)
	return c
}

func clock(day, hh, mm, ss int) time.Time {
	return time.Date(2024, 1, day, hh, mm, ss, 0, time.UTC)
}

func TestSessionOf(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		at   time.Time
		want model.Session
	}{
		{clock(2, 9, 0, 0), model.SessionFam},
		{clock(2, 10, 15, 0), model.SessionFam},
		{clock(2, 10, 20, 0), model.SessionUnknown},
		{clock(2, 10, 30, 0), model.SessionBam},
		{clock(2, 13, 0, 0), model.SessionPm},
		{clock(2, 15, 1, 0), model.SessionPm},
		{clock(2, 15, 1, 1), model.SessionUnknown},
		{clock(2, 21, 0, 0), model.SessionNight},
		{clock(3, 0, 0, 0), model.SessionNight},
		{clock(3, 2, 59, 59), model.SessionNight},
		{clock(3, 3, 0, 0), model.SessionNight},
		{clock(3, 3, 0, 1), model.SessionUnknown},
		{clock(2, 20, 59, 59), model.SessionUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.SessionOf(tc.at), tc.at.Format(time.TimeOnly))
	}
}

func TestSessionWindowWithSeconds(t *testing.T) {
	cfg := config.Default()
	cfg.Sessions[string(model.SessionPm)] = config.Window{Start: "13:00:00", End: "15:01:30"}
	require.NoError(t, cfg.Validate())

	c, err := NewClassifier(cfg.Sessions, cfg.TradingDayShift.Duration)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPm, c.SessionOf(clock(2, 15, 1, 30)))
	assert.Equal(t, model.SessionUnknown, c.SessionOf(clock(2, 15, 1, 31)))
}

func TestClassifyCountsUnknown(t *testing.T) {
	c := newTestClassifier(t)
	table := model.NewTickTable(model.KindContract, []model.Tick{
		{UpdateTime: clock(2, 9, 30, 0)},
		{UpdateTime: clock(2, 12, 0, 0)},
		{UpdateTime: clock(2, 22, 0, 0)},
	})

	assert.Equal(t, 1, c.Classify(table))
	assert.Equal(t, model.SessionFam, table.Rows[0].Session)
	assert.Equal(t, model.SessionUnknown, table.Rows[1].Session)
	assert.Equal(t, model.SessionNight, table.Rows[2].Session)
}

func TestCoarseSession(t *testing.T) {
	c := newTestClassifier(t)

	assert.Equal(t, model.SessionFam, c.CoarseSession(clock(2, 9, 0, 0)))
	assert.Equal(t, model.SessionBam, c.CoarseSession(clock(2, 10, 30, 0)))
	assert.Equal(t, model.SessionPm, c.CoarseSession(clock(2, 13, 30, 0)))
	assert.Equal(t, model.SessionNight, c.CoarseSession(clock(2, 21, 0, 0)))
	assert.Equal(t, model.SessionNight, c.CoarseSession(clock(3, 2, 0, 0)))
	assert.Equal(t, model.SessionUnknown, c.CoarseSession(clock(3, 5, 0, 0)))
}

func TestTradingDay(t *testing.T) {
	c := newTestClassifier(t)

	assert.Equal(t, "20240102", c.TradingDay(clock(2, 9, 0, 0)))
	assert.Equal(t, "20240102", c.TradingDay(clock(2, 23, 0, 0)))
	// 跨零点的夜盘仍属于前一天
	assert.Equal(t, "20240102", c.TradingDay(clock(3, 2, 30, 0)))
}

func TestNewClassifierErrors(t *testing.T) {
	sessions := config.Default().Sessions
	delete(sessions, string(model.SessionPm))
	_, err := NewClassifier(sessions, 0)
	assert.Error(t, err)

	sessions = config.Default().Sessions
	sessions[string(model.SessionPm)] = config.Window{Start: "13:00", End: "25:00"}
	_, err = NewClassifier(sessions, 0)
	assert.Error(t, err)
}

func TestParseClockWithSeconds(t *testing.T) {
	d, err := parseClock("15:01:30")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Hour+time.Minute+30*time.Second, d)
}

package calc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jing2uo/spt2db/model"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("5min")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, l.Step)
	assert.False(t, l.Daily())
	assert.Equal(t, model.TableKline, l.Table())

	l, err = ParseLevel("2H")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, l.Step)

	l, err = ParseLevel("1d")
	require.NoError(t, err)
	assert.True(t, l.Daily())
	assert.Equal(t, model.TableStatisDay, l.Table())

	for _, bad := range []string{"", "5m", "0min", "7min", "2d", "48H", "min"} {
		_, err := ParseLevel(bad)
		assert.Error(t, err, bad)
	}
}

func TestLevelFloor(t *testing.T) {
	l, err := ParseLevel("15min")
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 9, 14, 59, 999, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), l.Floor(at))

	day, err := ParseLevel("1d")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), day.Floor(at))
}

func tick(at time.Time, price, volume float64) model.Tick {
	return model.Tick{
		Instrument:   "rb2405",
		Market:       model.MarketSHFE,
		LastPrice:    price,
		LastVolume:   volume,
		UpdateTime:   at,
		HighestPrice: price + 10,
		LowestPrice:  price - 10,
		OpenPrice:    99,
	}
}

func TestResample(t *testing.T) {
	level, err := ParseLevel("5min")
	require.NoError(t, err)

	day := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	second := tick(day.Add(2*time.Minute), 104, 4)
	second.OpenInterest = 50
	second.Turnover = 999
	second.AvePrice = 102
	rows := []model.Tick{
		tick(day.Add(10*time.Second), 100, 2),
		second,
		tick(day.Add(6*time.Minute), 103, 1),
	}

	bars := Resample(rows, model.KindContract, level, 6*time.Hour)
	require.Len(t, bars, 2)

	b := bars[0]
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), b.TradingTime)
	assert.Equal(t, "rb2405", b.Instrument)
	assert.Equal(t, int(model.MarketSHFE), b.Market)
	assert.Equal(t, "5min", b.Level)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 104.0, b.Close)
	assert.Equal(t, 114.0, b.High)
	assert.Equal(t, 94.0, b.Low)
	assert.Equal(t, 104.0, b.PriceHigh)
	assert.Equal(t, 100.0, b.PriceLow)
	assert.Equal(t, 99.0, b.OpenPrice)
	assert.Equal(t, 102.0, b.AvePrice)
	assert.Equal(t, int64(50), b.OpenInterest)
	assert.Equal(t, 999.0, b.Turnover)
	assert.Equal(t, 6.0, b.Volume)
	assert.InDelta(t, 6160.0, b.TurnoverCalc, 1e-9)
	assert.InDelta(t, math.Sqrt2, b.VolumeStd, 1e-9)
	assert.Equal(t, int64(2), b.TickNum)
	assert.Empty(t, b.Category)

	assert.Equal(t, time.Date(2024, 1, 2, 9, 5, 0, 0, time.UTC), bars[1].TradingTime)
	assert.Equal(t, 1.0, bars[1].VolumeStd)
	assert.Equal(t, int64(1), bars[1].TickNum)
}

func TestResampleDailyCrossesMidnight(t *testing.T) {
	level, err := ParseLevel("1d")
	require.NoError(t, err)

	rows := []model.Tick{
		tick(time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC), 100, 1),
		tick(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), 101, 1),
		tick(time.Date(2024, 1, 3, 21, 0, 0, 0, time.UTC), 102, 1),
	}

	bars := Resample(rows, model.KindContract, level, 6*time.Hour)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].TradingTime)
	assert.Equal(t, int64(2), bars[0].TickNum)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), bars[1].TradingTime)
}

func TestResampleIndexHasNoBars(t *testing.T) {
	level, err := ParseLevel("5min")
	require.NoError(t, err)

	rows := []model.Tick{tick(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), 100, 1)}
	assert.Nil(t, Resample(rows, model.KindIndex, level, 0))
	assert.Nil(t, Resample(nil, model.KindContract, level, 0))
}

func oiRows(values ...int64) []model.Tick {
	rows := make([]model.Tick, len(values))
	for i, v := range values {
		rows[i].OpenInterest = v
	}
	return rows
}

func TestCleanOpenInterest(t *testing.T) {
	const normal = 1_000_000
	rows := oiRows(normal, normal+1, normal+2, normal+3, normal+4, 1_000_000_000, normal+6, normal+7, normal+8, normal+9)

	replaced, std := CleanOpenInterest(rows)
	assert.Equal(t, 1, replaced)
	assert.Greater(t, std, openInterestStdLimit)
	assert.Equal(t, int64(normal+4), rows[5].OpenInterest)
	assert.Equal(t, int64(normal+6), rows[6].OpenInterest)
}

func TestCleanOpenInterestKeepsFirstRow(t *testing.T) {
	const normal = 1_000_000
	rows := oiRows(1_000_000_000, normal, normal, normal, normal, normal, normal, normal, normal, normal)

	replaced, _ := CleanOpenInterest(rows)
	assert.Equal(t, 0, replaced)
	assert.Equal(t, int64(1_000_000_000), rows[0].OpenInterest)
}

func TestCleanOpenInterestSmallStd(t *testing.T) {
	rows := oiRows(100, 200, 50_000)

	replaced, std := CleanOpenInterest(rows)
	assert.Equal(t, 0, replaced)
	assert.Less(t, std, openInterestStdLimit)
	assert.Equal(t, int64(50_000), rows[2].OpenInterest)
}

package spt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jing2uo/spt2db/config"
	"github.com/jing2uo/spt2db/model"
)

var ErrUnclassified = errors.New("ticks outside every session window")

const dayLayout = "20060102"

type window struct {
	session model.Session
	start   time.Duration
	end     time.Duration
}

// contains 两端闭区间, start > end 时视为跨零点
func (w window) contains(tod time.Duration) bool {
	if w.start <= w.end {
		return tod >= w.start && tod <= w.end
	}
	return tod >= w.start || tod <= w.end
}

type Classifier struct {
	windows []window
	shift   time.Duration
}

func NewClassifier(sessions map[string]config.Window, shift time.Duration) (*Classifier, error) {
	c := &Classifier{shift: shift}
	for _, s := range model.Sessions {
		w, ok := sessions[string(s)]
		if !ok {
			return nil, fmt.Errorf("session window %s is not configured", s)
		}
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("session %s start: %w", s, err)
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("session %s end: %w", s, err)
		}
		c.windows = append(c.windows, window{session: s, start: start, end: end})
	}
	return c, nil
}

// parseClock 解析 HH:MM 或 HH:MM:SS
func parseClock(s string) (time.Duration, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, err
	}
	return timeOfDay(t), nil
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}

// SessionOf 按墙上时间判断所属时段
func (c *Classifier) SessionOf(t time.Time) model.Session {
	tod := timeOfDay(t)
	for _, w := range c.windows {
		if w.contains(tod) {
			return w.session
		}
	}
	return model.SessionUnknown
}

// Classify 填充每行的 Session, 返回 unknown 行数
func (c *Classifier) Classify(t *model.TickTable) int {
	unknown := 0
	for i := range t.Rows {
		s := c.SessionOf(t.Rows[i].UpdateTime)
		t.Rows[i].Session = s
		if s == model.SessionUnknown {
			unknown++
		}
	}
	return unknown
}

// CoarseSession 导入阶段的粗分类: 平移后按小时划分
func (c *Classifier) CoarseSession(t time.Time) model.Session {
	h := t.Add(-c.shift).Hour()
	switch {
	case h >= 4 && h <= 6:
		return model.SessionFam
	case h >= 7 && h <= 8:
		return model.SessionBam
	case h >= 9 && h <= 14:
		return model.SessionPm
	case h >= 15:
		return model.SessionNight
	default:
		return model.SessionUnknown
	}
}

func (c *Classifier) ClassifyCoarse(t *model.TickTable) int {
	unknown := 0
	for i := range t.Rows {
		s := c.CoarseSession(t.Rows[i].UpdateTime)
		t.Rows[i].Session = s
		if s == model.SessionUnknown {
			unknown++
		}
	}
	return unknown
}

// TradingDay 时间回拨 shift 后的日期, 跨零点的夜盘归到前一交易日
func (c *Classifier) TradingDay(t time.Time) string {
	return t.Add(-c.shift).Format(dayLayout)
}

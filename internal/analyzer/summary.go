package analyzer

import (
	"time"

	"firestige.xyz/pcaplens/internal/core"
)

// TimeFormat renders capture timestamps: UTC, microsecond precision.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// summary accumulates capture-wide timing during the pass.
type summary struct {
	earliest time.Time
	latest   time.Time
	packets  int
}

func (s *summary) observe(ts time.Time) {
	if s.packets == 0 {
		s.earliest, s.latest = ts, ts
	} else {
		if ts.Before(s.earliest) {
			s.earliest = ts
		}
		if ts.After(s.latest) {
			s.latest = ts
		}
	}
	s.packets++
}

// info derives the capture summary. An empty capture has no timestamps.
func (s *summary) info() core.CaptureInfo {
	if s.packets == 0 {
		return core.CaptureInfo{}
	}
	return core.CaptureInfo{
		StartTime:    s.earliest.UTC().Format(TimeFormat),
		EndTime:      s.latest.UTC().Format(TimeFormat),
		Duration:     s.latest.Sub(s.earliest).Seconds(),
		TotalPackets: s.packets,
	}
}

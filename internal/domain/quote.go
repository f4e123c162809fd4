package domain

import "time"

// QuotePoint is one derived mid/bid/ask sample. TS is seconds since epoch.
type QuotePoint struct {
	TS     float64  `json:"ts"`
	Mid    float64  `json:"mid"`
	Bid    float64  `json:"bid"`
	Ask    float64  `json:"ask"`
	Volume *float64 `json:"volume,omitempty"`
}

// Time converts the sample timestamp to a time.Time.
func (q QuotePoint) Time() time.Time {
	return EpochTime(q.TS)
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// EpochTime converts fractional epoch seconds back to a time.Time.
func EpochTime(ts float64) time.Time {
	return time.Unix(0, int64(ts*1e9))
}

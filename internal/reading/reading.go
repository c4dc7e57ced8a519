// Package reading turns exported temperature-controller files into an
// ordered series of readings.
package reading

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TimestampLayout is the layout of an export file's name stem (YYYYMMDD_HHMM).
const TimestampLayout = "20060102_1504"

var ErrBadFilename = errors.New("filename does not match " + TimestampLayout)

type Reading struct {
	Time    time.Time `json:"time"`
	Desired float64   `json:"desired"`
	Actual  float64   `json:"actual"`
	On      bool      `json:"on"`
}

// OnValue is the on/off flag as a plottable number.
func (r Reading) OnValue() float64 {
	if r.On {
		return 1
	}
	return 0
}

// ParseTimestamp derives a reading's time from its file name. Only the stem
// is used; the extension, if any, is ignored. The time is in the local zone.
func ParseTimestamp(name string) (time.Time, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	t, err := time.ParseInLocation(TimestampLayout, stem, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadFilename, base)
	}
	return t, nil
}

// Sort orders readings by time, oldest first. Readings with equal times keep
// their relative order.
func Sort(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Time.Before(readings[j].Time)
	})
}

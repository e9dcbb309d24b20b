package span

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Server-time shapes. Unlike the duration grammar, the minute segment must
// be exactly two digits ("17:9" is not a clock reading).
var (
	clockRe     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	dateClockRe = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})\s+(\d{1,2}):(\d{2})$`)
)

// ParseServerTime resolves in-game server clock text into the Span between
// now and that moment.
//
// Accepted shapes:
//   - "HH:MM": the next occurrence of that wall-clock time at or after
//     now; a time already passed today wraps to tomorrow.
//   - "D-M-YYYY HH:MM": an absolute moment, which must lie in the future.
//
// The target is interpreted in now's location. Seconds are never accepted
// and the result is truncated to whole minutes. Failures wrap
// ErrInvalidServerTime.
func ParseServerTime(text string, now time.Time) (Span, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidServerTime)
	}

	if m := clockRe.FindStringSubmatch(trimmed); m != nil {
		hour, minute, err := clockFields(m[1], m[2], trimmed)
		if err != nil {
			return 0, err
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if target.Before(now) {
			target = target.Add(24 * time.Hour)
		}
		return FromDuration(target.Sub(now)), nil
	}

	if m := dateClockRe.FindStringSubmatch(trimmed); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, minute, err := clockFields(m[4], m[5], trimmed)
		if err != nil {
			return 0, err
		}
		target := time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location())
		// time.Date normalizes out-of-range components ("31-2-..." rolls
		// into March); treat any rolled date as invalid instead.
		if target.Day() != day || target.Month() != time.Month(month) || target.Year() != year {
			return 0, fmt.Errorf("%w: no such date in %q", ErrInvalidServerTime, trimmed)
		}
		if !target.After(now) {
			return 0, fmt.Errorf("%w: %q is not in the future", ErrInvalidServerTime, trimmed)
		}
		return FromDuration(target.Sub(now)), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidServerTime, trimmed)
}

func clockFields(hs, ms, original string) (hour, minute int, err error) {
	hour, err = strconv.Atoi(hs)
	if err != nil || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour out of range in %q", ErrInvalidServerTime, original)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute out of range in %q", ErrInvalidServerTime, original)
	}
	return hour, minute, nil
}

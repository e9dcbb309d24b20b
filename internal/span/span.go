// Package span implements the human duration engine used by the reminder
// flow: a minute-precision elapsed span, a forgiving text grammar for it,
// and a resolver that turns in-game server clock times into spans.
package span

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalid reports duration text the grammar cannot parse.
	ErrInvalid = errors.New("invalid duration")
	// ErrInvalidServerTime reports server-time text the resolver cannot parse.
	ErrInvalidServerTime = errors.New("invalid server time")
)

// Span is a non-negative elapsed time with minute precision.
// The canonical value is the total number of minutes; seconds are dropped
// everywhere this type is produced.
type Span int64

const (
	minutesPerHour = 60
	minutesPerDay  = 24 * 60
)

// New builds a Span from day/hour/minute components. Components are not
// required to be normalized ("1h 90m" style input is fine).
func New(days, hours, minutes int) Span {
	return Span((int64(days)*24+int64(hours))*60 + int64(minutes))
}

// FromDuration truncates a time.Duration to whole minutes.
func FromDuration(d time.Duration) Span {
	if d < 0 {
		return 0
	}
	return Span(d / time.Minute)
}

// Minutes returns the canonical total-minutes value.
func (s Span) Minutes() int64 { return int64(s) }

// Std converts the span to a time.Duration.
func (s Span) Std() time.Duration { return time.Duration(s) * time.Minute }

func (s Span) IsZero() bool { return s <= 0 }

// String renders the span as "Xd Yh Zm", omitting zero units but always
// emitting at least the minutes ("0m", never the empty string). The unit
// order is fixed: days, hours, minutes.
func (s Span) String() string {
	total := int64(s)
	if total < 0 {
		total = 0
	}
	d := total / minutesPerDay
	rem := total % minutesPerDay
	h := rem / minutesPerHour
	m := rem % minutesPerHour

	var b strings.Builder
	if d > 0 {
		b.WriteString(strconv.FormatInt(d, 10))
		b.WriteString("d")
	}
	if h > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strconv.FormatInt(h, 10))
		b.WriteString("h")
	}
	if m > 0 || b.Len() == 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strconv.FormatInt(m, 10))
		b.WriteString("m")
	}
	return b.String()
}

package span

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Unit aliases are listed longest first so the regexp engine consumes
// "hours" before "h"; full consumption below then rejects leftovers.
var tokenRe = regexp.MustCompile(`(?i)(\d+)(days|day|d|hours|hour|hrs|hr|h|minutes|minute|mins|min|m)`)

// Colon syntax: optional day prefix, then H:MM. The hour segment is capped
// at two digits ("007:04" is invalid) but its value is unbounded, it is a
// span, not a wall clock.
var colonRe = regexp.MustCompile(`(?i)^(?:(\d+)d)?(\d{1,2}):(\d{1,2})$`)

// Parse converts human duration text into a Span.
//
// Three forms are tried in order:
//   - colon: "7:04", "1d 7:04", "1d7:04"
//   - tokens: "1h30m", "2 hours 5 min", "1d2h"
//   - bare integer: "45" (minutes)
//
// Whitespace is insignificant in the first two forms. Failures wrap
// ErrInvalid.
func Parse(text string) (Span, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalid)
	}
	compact := strings.Join(strings.Fields(trimmed), "")

	if m := colonRe.FindStringSubmatch(compact); m != nil {
		return parseColon(m, text)
	}
	if s, ok := parseTokens(compact); ok {
		return s, nil
	}
	if s, ok := parseBareMinutes(trimmed); ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalid, trimmed)
}

func parseColon(m []string, original string) (Span, error) {
	days := 0
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, original)
		}
		days = n
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, original)
	}
	minutes, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, original)
	}
	if minutes >= 60 {
		return 0, fmt.Errorf("%w: minutes must be < 60 in H:MM form (%q)", ErrInvalid, original)
	}
	return New(days, hours, minutes), nil
}

func parseTokens(compact string) (Span, bool) {
	var days, hours, minutes int
	matched := 0
	found := false

	for _, m := range tokenRe.FindAllStringSubmatch(compact, -1) {
		found = true
		matched += len(m[0])
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		switch strings.ToLower(m[2])[0] {
		case 'd':
			days += n
		case 'h':
			hours += n
		case 'm':
			minutes += n
		}
	}
	if !found {
		return 0, false
	}
	// Require full consumption: reject partial matches like "1m30".
	if matched != len(compact) {
		return 0, false
	}

	// Minute overflow folds into hours; hours never fold into days.
	if minutes >= 60 {
		hours += minutes / 60
		minutes %= 60
	}
	return New(days, hours, minutes), true
}

func parseBareMinutes(trimmed string) (Span, bool) {
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return Span(n), true
}

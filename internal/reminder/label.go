package reminder

import (
	"strconv"
	"time"
)

// Label builds the display label for a reminder: a custom task name is
// used verbatim, any other kind shows its capitalized name, and the
// low-order digits of the creation epoch become a short suffix so
// same-kind reminders created close together stay tellable apart.
func Label(kind Kind, taskName string, epoch int64) string {
	base := kind.Title()
	if kind == KindCustom && taskName != "" {
		base = taskName
	}
	return base + " #" + epochSuffix(epoch)
}

func epochSuffix(epoch int64) string {
	s := strconv.FormatInt(epoch, 10)
	if len(s) > 3 {
		s = s[len(s)-3:]
	}
	return s
}

// Display renders one listing line for a job identifier and its fire
// time. A malformed identifier or unrecognized kind degrades to a generic
// row instead of failing, so one bad key never aborts a whole listing.
// Heads-up rows are marked apart from main rows.
func Display(id string, fireAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	when := fireAt.In(loc).Format("Mon 15:04")

	decoded, ok := DecodeJobID(id)
	if !ok || decoded.Kind == KindUnknown {
		return "⏰ Unknown - " + when
	}

	label := Label(decoded.Kind, "", decoded.Epoch)
	if decoded.Role == RoleHeadsUp {
		return "🔔 " + label + " (heads-up) - " + when
	}
	return "⏰ " + label + " - " + when
}

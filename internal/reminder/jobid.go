package reminder

import (
	"strconv"
	"strings"
)

const (
	idPrefix = "lw"
	idSep    = ":"
	idFields = 6
)

// JobID is the structured form of a job identifier. The encoded shape is
// fixed at six colon-joined fields:
//
//	lw:<owner>:<chat>:<kind>:<epoch>:<role>
type JobID struct {
	OwnerID int64
	ChatID  int64
	Kind    Kind
	Epoch   int64
	Role    Role
}

// Encode renders the canonical identifier string.
func (id JobID) Encode() string {
	return strings.Join([]string{
		idPrefix,
		strconv.FormatInt(id.OwnerID, 10),
		strconv.FormatInt(id.ChatID, 10),
		string(id.Kind),
		strconv.FormatInt(id.Epoch, 10),
		string(id.Role),
	}, idSep)
}

// DecodeJobID parses an identifier string. It reports false, never an
// error, for anything that is not exactly six fields with the expected
// prefix, so listings can skip malformed or foreign keys.
//
// The kind is folded onto the closed Kind set here (KindUnknown when
// unrecognized); numeric fields are decoded best-effort with no range
// validation, callers judge them.
func DecodeJobID(s string) (JobID, bool) {
	parts := strings.Split(s, idSep)
	if len(parts) != idFields || parts[0] != idPrefix {
		return JobID{}, false
	}
	owner, _ := strconv.ParseInt(parts[1], 10, 64)
	chat, _ := strconv.ParseInt(parts[2], 10, 64)
	kind, _ := ParseKind(parts[3])
	epoch, _ := strconv.ParseInt(parts[4], 10, 64)
	return JobID{
		OwnerID: owner,
		ChatID:  chat,
		Kind:    kind,
		Epoch:   epoch,
		Role:    Role(parts[5]),
	}, true
}

package domain

import "strings"

// Status is the canonical due-diligence lifecycle stage. The backend's
// vocabulary has drifted across revisions ("finished", "Available",
// "confirmed", ...); CanonicalStatus folds every observed spelling into
// this one ordered enum.
type Status int

const (
	StatusNotAvailable Status = iota
	StatusQueued
	StatusRunning
	StatusGenerated
	StatusApproved
)

// Terminal reports whether no further automatic updates are expected.
// Approved is a backend annotation on top of Generated, not a separate
// lifecycle transition; both are terminal and editable.
func (s Status) Terminal() bool { return s >= StatusGenerated }

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusGenerated:
		return "generated"
	case StatusApproved:
		return "approved"
	default:
		return "not available"
	}
}

// CanonicalStatus maps a raw backend status string onto the enum. Unknown
// spellings map to not-available so the client never assumes a run it
// cannot name.
func CanonicalStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", " ")
	switch s {
	case "queued", "pending":
		return StatusQueued
	case "running", "in progress":
		return StatusRunning
	case "generated", "finished", "available", "done":
		return StatusGenerated
	case "approved", "confirmed":
		return StatusApproved
	default:
		return StatusNotAvailable
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Status) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	*s = CanonicalStatus(raw)
	return nil
}

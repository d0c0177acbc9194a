// Package availability caches whether a doctor has any bookable slot on a
// given date. Entries are tri-state: a key that was never fetched (or whose
// fetch failed) is Unknown, and callers treat Unknown as selectable.
package availability

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the cached availability of one (doctor, date) pair.
type State int

const (
	Unknown State = iota
	Available
	Unavailable
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name for JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState is the inverse of String. Unrecognised input is Unknown.
func ParseState(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "available":
		return Available
	case "unavailable":
		return Unavailable
	default:
		return Unknown
	}
}

// FromBool converts a definite backend answer.
func FromBool(available bool) State {
	if available {
		return Available
	}
	return Unavailable
}

// Selectable reports whether a date in this state may be picked. Only a
// confirmed Unavailable blocks selection.
func (s State) Selectable() bool {
	return s != Unavailable
}

// Key identifies one cache entry.
type Key struct {
	DoctorID int64
	Date     string
}

// String renders the key as "<doctorId>-<date>".
func (k Key) String() string {
	return fmt.Sprintf("%d-%s", k.DoctorID, k.Date)
}

// ParseKey is the inverse of Key.String.
func ParseKey(raw string) (Key, error) {
	idx := strings.IndexByte(raw, '-')
	if idx <= 0 {
		return Key{}, fmt.Errorf("availability: malformed key %q", raw)
	}
	id, err := strconv.ParseInt(raw[:idx], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("availability: malformed key %q: %w", raw, err)
	}
	return Key{DoctorID: id, Date: raw[idx+1:]}, nil
}

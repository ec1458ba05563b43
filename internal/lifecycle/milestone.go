// ABOUTME: Lifecycle milestones that trigger deferred callbacks
// ABOUTME: Text encoding uses the hyphenated names (e.g. logged-in)

package lifecycle

import "fmt"

// Milestone is a connection or auth event that drains the queue.
type Milestone uint8

const (
	MilestoneInvalid Milestone = iota
	MilestoneConnected
	MilestoneLoggedIn
	MilestoneLoggedOut
	MilestoneRouteChanged
)

var milestoneNames = [...]string{
	MilestoneConnected:    "connected",
	MilestoneLoggedIn:     "logged-in",
	MilestoneLoggedOut:    "logged-out",
	MilestoneRouteChanged: "route-changed",
}

func (m Milestone) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Milestone(%d)", uint8(m))
	}
	return milestoneNames[m]
}

// Valid reports whether m is a declared milestone.
func (m Milestone) Valid() bool {
	return m > MilestoneInvalid && int(m) < len(milestoneNames)
}

// ParseMilestone resolves a name such as "logged-in".
func ParseMilestone(s string) (Milestone, error) {
	for i, name := range milestoneNames {
		if name != "" && name == s {
			return Milestone(i), nil
		}
	}
	return MilestoneInvalid, fmt.Errorf("unknown lifecycle milestone %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Milestone) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("cannot encode invalid milestone %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Milestone) UnmarshalText(b []byte) error {
	parsed, err := ParseMilestone(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

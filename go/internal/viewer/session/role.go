package session

import (
	"fmt"
	"strings"
)

// Role is what a viewer may do in its room.
type Role string

const (
	// RoleGuest follows the room and never sends anything but join.
	RoleGuest Role = "guest"
	// RoleHost drives the room: navigation, lock, timer and laser pointer.
	RoleHost Role = "host"
	// RolePresenter shows the current and next slide and may navigate and
	// run the timer. It has no laser pointer.
	RolePresenter Role = "presenter"
)

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleGuest, RoleHost, RolePresenter:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// CanControl reports whether the role may navigate, lock and run the timer.
func (r Role) CanControl() bool {
	return r == RoleHost || r == RolePresenter
}

// CanPoint reports whether the role broadcasts a laser pointer.
func (r Role) CanPoint() bool {
	return r == RoleHost
}

// ShowsPointer reports whether the role displays the room's laser pointer.
func (r Role) ShowsPointer() bool {
	return r == RoleHost || r == RoleGuest
}

// ReportsPages reports whether the role tells the room how many pages the
// document has after each load.
func (r Role) ReportsPages() bool {
	return r == RoleHost
}

// ReloadsOnReset reports whether a reset event reloads the document.
func (r Role) ReloadsOnReset() bool {
	return r == RolePresenter
}

func (r Role) String() string { return string(r) }

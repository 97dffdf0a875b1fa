// Package robot provides the actuator handles, driver contract and
// configuration shared by the gripper control loops.
package robot

import "strconv"

// ID identifies one physical actuator controller.
type ID int

// String returns the decimal controller id.
func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// Role is the part an actuator plays in teleoperation.
type Role int

// Actuator roles for the gripper.
const (
	Leader   Role = iota // trigger, moved by the operator
	Follower             // gripper, mirrors the trigger
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case Leader:
		return "leader"
	case Follower:
		return "follower"
	default:
		return "unknown"
	}
}

// Part returns the physical part the role drives.
func (r Role) Part() string {
	switch r {
	case Leader:
		return "trigger"
	case Follower:
		return "gripper"
	default:
		return "unknown"
	}
}

// ParseRole accepts a role name or its part name.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "leader", "trigger":
		return Leader, true
	case "follower", "gripper":
		return Follower, true
	default:
		return 0, false
	}
}

// AllRoles returns all roles in display order.
func AllRoles() []Role {
	return []Role{Leader, Follower}
}

package rbac

import (
	"slices"

	"classroom-access/internal/auth"
)

// ResourceRole is a principal's relationship to one classroom.
type ResourceRole string

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleNonMember ResourceRole = "non_member"
	RoleStudent   ResourceRole = "student"
	RoleEducator  ResourceRole = "educator"
	RoleOwner     ResourceRole = "owner"
)

// Membership is the raw membership data of a classroom as stored by the
// persistence layer.
type Membership struct {
	ResourceID  string
	OwnerID     string
	EducatorIDs []string
	StudentIDs  []string
}

// RoleOf derives the principal's role in m. Owner takes precedence over
// educator, and educator over student, so each principal gets exactly one role
// even when the stored sets overlap. Admin privilege is not considered here.
func RoleOf(p *auth.Principal, m Membership) ResourceRole {
	if p == nil || p.ID == "" {
		return RoleNonMember
	}
	switch {
	case m.OwnerID != "" && m.OwnerID == p.ID:
		return RoleOwner
	case slices.Contains(m.EducatorIDs, p.ID):
		return RoleEducator
	case slices.Contains(m.StudentIDs, p.ID):
		return RoleStudent
	default:
		return RoleNonMember
	}
}

// IsPrivileged reports whether p owns or teaches the classroom.
func IsPrivileged(p *auth.Principal, m Membership) bool {
	r := RoleOf(p, m)
	return r == RoleOwner || r == RoleEducator
}

// IsMember reports whether p holds any role in the classroom.
func IsMember(p *auth.Principal, m Membership) bool {
	return RoleOf(p, m) != RoleNonMember
}

// CanManage is the usual call-site composition: admins or privileged members.
func CanManage(p *auth.Principal, m Membership) bool {
	return p != nil && (p.IsAdmin() || IsPrivileged(p, m))
}

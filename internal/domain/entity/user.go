package entity

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

func ValidRole(r Role) bool {
	return r.rank() > 0
}

// Includes reports whether r carries at least the privileges of other.
func (r Role) Includes(other Role) bool {
	return r.rank() >= other.rank() && other.rank() > 0
}

// IsOperator reports whether r may act on the operator dashboard.
func (r Role) IsOperator() bool {
	return r.Includes(RoleAdmin)
}

type User struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        Role      `json:"role"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt,omitempty"`

	TimestampInferred bool `json:"timestampInferred,omitempty"`
}

func (u User) RecordID() string { return u.UID }

// Actor is the authenticated identity on whose behalf a write is issued.
type Actor struct {
	UID  string
	Role Role
}

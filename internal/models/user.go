package models

import "time"

// UserMode mirrors the identity store's account restriction level. Read-only
// accounts are excluded from badge eligibility.
type UserMode string

const (
	ModeNormal   UserMode = "normal"
	ModeReadOnly UserMode = "read_only"
	ModeBanned   UserMode = "banned"
)

// User is the narrow projection of the identity store the rotation engine
// consumes. The full account model (wallet, profile, auth) lives elsewhere.
type User struct {
	ID             int64     `json:"id" db:"id"`
	Mode           UserMode  `json:"mode" db:"mode"`
	Reputation     int       `json:"reputation" db:"reputation"`
	AccountAgeDays int       `json:"account_age_days" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at" db:"last_active_at"`
}

// Restricted reports whether the account is excluded from holding badges.
func (u *User) Restricted() bool {
	return u.Mode != ModeNormal
}

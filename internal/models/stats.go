package models

import "time"

// ScopeStats is the daily per-scope performance aggregate produced by the
// stats job. Read-only reporting data, outside the engine's correctness core.
type ScopeStats struct {
	ID    int64     `json:"id" db:"id"`
	Scope Scope     `json:"scope" db:"-"`
	Day   time.Time `json:"day" db:"day"`

	BadgesCompleted int     `json:"badges_completed" db:"badges_completed"`
	BadgesAbandoned int     `json:"badges_abandoned" db:"badges_abandoned"`
	ActionsTaken    int     `json:"actions_taken" db:"actions_taken"`
	CompletionRate  float64 `json:"completion_rate" db:"completion_rate"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LeaderboardEntry ranks users by completed duties.
type LeaderboardEntry struct {
	UserID          int64 `json:"user_id" db:"user_id"`
	CompletedDuties int   `json:"completed_duties" db:"completed_duties"`
	ActionsTaken    int   `json:"actions_taken" db:"actions_taken"`
}

package models

import "time"

// Student is a child eligible for transport, owned by exactly one guardian.
// A student can be registered directly or materialised by an enrollment
// request when the guardian submits one for an unknown child.
type Student struct {
	ID         string    `db:"id" json:"id"`
	GuardianID string    `db:"guardian_id" json:"guardian_id"`
	FullName   string    `db:"full_name" json:"full_name"`
	GradeLevel string    `db:"grade_level" json:"grade_level"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

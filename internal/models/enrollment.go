package models

import "time"

// EnrollmentStatus describes the lifecycle of a transport subscription.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusEnded     EnrollmentStatus = "ENDED"
)

// Enrollment is the materialised transport subscription for a student. The
// workflow creates at most one per student; a vehicle is assigned later by
// an administrator.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	VehicleID     *string          `db:"vehicle_id" json:"vehicle_id,omitempty"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	MonthlyAmount int64            `db:"monthly_amount" json:"monthly_amount"`
	StartDate     time.Time        `db:"start_date" json:"start_date"`
	EndDate       time.Time        `db:"end_date" json:"end_date"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

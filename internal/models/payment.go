package models

import "time"

// PaymentStatus describes the settlement state of a payment record.
type PaymentStatus string

const (
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// PaymentMethod records how the invoice was settled. Payments are
// reconciled manually at the office, so CASH is the default.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

// Payment is one recorded invoice settlement tied to an enrollment. The
// (enrollment_id, amount, month, year) tuple is unique: it is the guard
// against duplicated confirmations.
type Payment struct {
	ID           string        `db:"id" json:"id"`
	EnrollmentID string        `db:"enrollment_id" json:"enrollment_id"`
	Amount       int64         `db:"amount" json:"amount"`
	Month        int           `db:"month" json:"month"`
	Year         int           `db:"year" json:"year"`
	PaidAt       time.Time     `db:"paid_at" json:"paid_at"`
	Method       PaymentMethod `db:"method" json:"method"`
	Status       PaymentStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// PaymentLedgerEntry is a payment joined with its enrollment context, used
// by the billing export.
type PaymentLedgerEntry struct {
	Payment
	StudentID    string `db:"student_id" json:"student_id"`
	StudentName  string `db:"student_name" json:"student_name"`
	GuardianID   string `db:"guardian_id" json:"guardian_id"`
	GuardianName string `db:"guardian_name" json:"guardian_name"`
}

// PaymentFilter constrains payment listing queries.
type PaymentFilter struct {
	EnrollmentID string
	Month        int
	Year         int
	Page         int
	PageSize     int
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

// ConfirmParams carries everything the settlement transaction writes.
type ConfirmParams struct {
	RequestID     string
	StudentID     string
	InvoiceAmount int64
	MonthlyAmount int64
	Method        models.PaymentMethod
	Month         int
	Year          int
	Now           time.Time
	EndDate       time.Time
}

// ConfirmResult reports what the settlement transaction actually did. On an
// idempotent retry all Created flags are false.
type ConfirmResult struct {
	Enrollment        models.Enrollment
	Payment           *models.Payment
	EnrollmentCreated bool
	PaymentCreated    bool
	AlreadyPaid       bool
}

// ConfirmationRepository executes the payment settlement as one database
// transaction: request to PAID, enrollment lookup-or-create, payment insert
// with duplicate suppression. Either everything commits or nothing does.
type ConfirmationRepository struct {
	db *sqlx.DB
}

// NewConfirmationRepository constructs the repository.
func NewConfirmationRepository(db *sqlx.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: db}
}

// Confirm settles an invoice. It returns sql.ErrNoRows when the request is
// neither awaiting payment nor already paid, so the caller can reject the
// confirmation as a state conflict. A request already at PAID is treated as
// a retry: the existing enrollment and payment are left untouched.
func (r *ConfirmationRepository) Confirm(ctx context.Context, params ConfirmParams) (*ConfirmResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin confirmation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result := &ConfirmResult{}

	moved, err := markPaid(ctx, tx, params.RequestID, params.Now)
	if err != nil {
		return nil, err
	}
	if !moved {
		var status models.RequestStatus
		if err := tx.GetContext(ctx, &status, "SELECT status FROM requests WHERE id = $1", params.RequestID); err != nil {
			return nil, err
		}
		if status != models.RequestStatusPaid {
			return nil, sql.ErrNoRows
		}
		result.AlreadyPaid = true
	}

	enrollment, created, err := lockOrCreateEnrollment(ctx, tx, params)
	if err != nil {
		return nil, err
	}
	result.Enrollment = *enrollment
	result.EnrollmentCreated = created

	payment, created, err := insertPaymentOnce(ctx, tx, enrollment.ID, params)
	if err != nil {
		return nil, err
	}
	result.Payment = payment
	result.PaymentCreated = created

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit confirmation tx: %w", err)
	}
	return result, nil
}

func markPaid(ctx context.Context, tx *sqlx.Tx, requestID string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE requests SET status = $2, processed_at = $3 WHERE id = $1 AND status = $4",
		requestID, models.RequestStatusPaid, now, models.RequestStatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark request paid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check mark paid rows: %w", err)
	}
	return rows > 0, nil
}

// lockOrCreateEnrollment fetches the student's enrollment with a row lock,
// creating it when none exists yet. The lock serialises concurrent
// confirmations touching the same student.
func lockOrCreateEnrollment(ctx context.Context, tx *sqlx.Tx, params ConfirmParams) (*models.Enrollment, bool, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE student_id = $1 FOR UPDATE"
	var enrollment models.Enrollment
	err := tx.GetContext(ctx, &enrollment, query, params.StudentID)
	if err == nil {
		return &enrollment, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lock enrollment: %w", err)
	}

	enrollment = models.Enrollment{
		ID:            uuid.NewString(),
		StudentID:     params.StudentID,
		Status:        models.EnrollmentStatusActive,
		MonthlyAmount: params.MonthlyAmount,
		StartDate:     params.Now,
		EndDate:       params.EndDate,
		CreatedAt:     params.Now,
		UpdatedAt:     params.Now,
	}
	const insert = `INSERT INTO enrollments (id, student_id, vehicle_id, status, monthly_amount, start_date, end_date, created_at, updated_at)
	VALUES (:id, :student_id, :vehicle_id, :status, :monthly_amount, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, &enrollment); err != nil {
		return nil, false, fmt.Errorf("create enrollment: %w", err)
	}
	return &enrollment, true, nil
}

// insertPaymentOnce records the settlement unless an identical payment
// already exists for the same enrollment, amount and billing period.
func insertPaymentOnce(ctx context.Context, tx *sqlx.Tx, enrollmentID string, params ConfirmParams) (*models.Payment, bool, error) {
	const lookup = `SELECT id, enrollment_id, amount, month, year, paid_at, method, status, created_at
	FROM payments WHERE enrollment_id = $1 AND amount = $2 AND month = $3 AND year = $4`
	var existing models.Payment
	err := tx.GetContext(ctx, &existing, lookup, enrollmentID, params.InvoiceAmount, params.Month, params.Year)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup payment: %w", err)
	}

	payment := models.Payment{
		ID:           uuid.NewString(),
		EnrollmentID: enrollmentID,
		Amount:       params.InvoiceAmount,
		Month:        params.Month,
		Year:         params.Year,
		PaidAt:       params.Now,
		Method:       params.Method,
		Status:       models.PaymentStatusPaid,
		CreatedAt:    params.Now,
	}
	const insert = `INSERT INTO payments (id, enrollment_id, amount, month, year, paid_at, method, status, created_at)
	VALUES (:id, :enrollment_id, :amount, :month, :year, :paid_at, :method, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, &payment); err != nil {
		return nil, false, fmt.Errorf("create payment: %w", err)
	}
	return &payment, true, nil
}

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

// PaymentRepository reads recorded payments. Inserts happen exclusively
// inside the payment confirmation transaction.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListByEnrollment returns all payments for an enrollment, newest first.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	const query = `SELECT id, enrollment_id, amount, month, year, paid_at, method, status, created_at
	FROM payments WHERE enrollment_id = $1 ORDER BY year DESC, month DESC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments by enrollment: %w", err)
	}
	return payments, nil
}

// ListLedger returns payments joined with student and guardian context for
// the billing export.
func (r *PaymentRepository) ListLedger(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentLedgerEntry, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.EnrollmentID != "" {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("p.enrollment_id = $%d", len(args)))
	}
	if filter.Month > 0 {
		args = append(args, filter.Month)
		conditions = append(conditions, fmt.Sprintf("p.month = $%d", len(args)))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("p.year = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT p.id, p.enrollment_id, p.amount, p.month, p.year, p.paid_at, p.method, p.status, p.created_at,
	       s.id AS student_id, s.full_name AS student_name,
	       g.id AS guardian_id, g.full_name AS guardian_name
	FROM payments p
	JOIN enrollments e ON e.id = p.enrollment_id
	JOIN students s ON s.id = e.student_id
	JOIN guardians g ON g.id = s.guardian_id` + clause + ` ORDER BY p.paid_at DESC`

	var entries []models.PaymentLedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list payment ledger: %w", err)
	}
	return entries, nil
}

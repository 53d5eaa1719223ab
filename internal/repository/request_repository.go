package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

const requestColumns = `id, kind, student_id, guardian_id, status, attributes,
       verification_code, invoice_amount, rejection_reason, processed_by, created_at, processed_at`

// RequestRepository persists enrollment request workflow data.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO requests
	(id, kind, student_id, guardian_id, status, attributes, verification_code, invoice_amount, rejection_reason, processed_by, created_at, processed_at)
	VALUES (:id, :kind, :student_id, :guardian_id, :status, :attributes, :verification_code, :invoice_amount, :rejection_reason, :processed_by, :created_at, :processed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := fmt.Sprintf("SELECT %s FROM requests WHERE id = $1", requestColumns)
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter, newest first, with a total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.GuardianID != "" {
		args = append(args, filter.GuardianID)
		conditions = append(conditions, fmt.Sprintf("guardian_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		requestColumns, clause, size, offset)
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM requests" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

// UpdateStatusParams groups the mutable columns of a plain transition.
type UpdateStatusParams struct {
	ID              string
	From            models.RequestStatus
	To              models.RequestStatus
	RejectionReason *string
	ProcessedBy     *string
	ProcessedAt     time.Time
}

// UpdateStatus performs a compare-and-set transition from one status to
// another. It returns sql.ErrNoRows when the request is no longer in the
// expected source status, so a concurrent writer loses cleanly.
func (r *RequestRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) error {
	const query = `UPDATE requests
	SET status = :to, rejection_reason = :rejection_reason, processed_by = :processed_by, processed_at = :processed_at
	WHERE id = :id AND status = :from`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"from":             params.From,
		"to":               params.To,
		"rejection_reason": params.RejectionReason,
		"processed_by":     params.ProcessedBy,
		"processed_at":     params.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StampPricingParams carries everything written when a request enters
// PENDING_PAYMENT.
type StampPricingParams struct {
	ID               string
	From             models.RequestStatus
	VerificationCode string
	InvoiceAmount    int64
	Attributes       models.RequestAttributes
	ProcessedBy      *string
	ProcessedAt      time.Time
}

// StampPricing moves a request into PENDING_PAYMENT and writes the
// verification code, invoice amount and priced attributes in one statement.
// The status guard plus the verification_code IS NULL guard make the stamp
// happen at most once per request.
func (r *RequestRepository) StampPricing(ctx context.Context, params StampPricingParams) error {
	const query = `UPDATE requests
	SET status = :to, verification_code = :verification_code, invoice_amount = :invoice_amount,
	    attributes = :attributes, processed_by = :processed_by, processed_at = :processed_at
	WHERE id = :id AND status = :from AND verification_code IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                params.ID,
		"from":              params.From,
		"to":                models.RequestStatusPendingPayment,
		"verification_code": params.VerificationCode,
		"invoice_amount":    params.InvoiceAmount,
		"attributes":        params.Attributes,
		"processed_by":      params.ProcessedBy,
		"processed_at":      params.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("stamp request pricing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check pricing stamp rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountEnrolledSiblings counts the guardian's other students that already
// count as enrolled: those with an active enrollment or an enrollment
// request at PAID or further. The current request is excluded by id.
func (r *RequestRepository) CountEnrolledSiblings(ctx context.Context, guardianID, studentID, excludeRequestID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT s.id) FROM students s
	WHERE s.guardian_id = $1 AND s.id <> $2 AND (
		EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = s.id AND e.status = $4)
		OR EXISTS (SELECT 1 FROM requests r WHERE r.student_id = s.id AND r.id <> $3 AND r.kind = $5 AND r.status IN ($6, $7))
	)`
	var count int
	err := r.db.GetContext(ctx, &count, query,
		guardianID, studentID, excludeRequestID,
		models.EnrollmentStatusActive, models.RequestKindEnrollment,
		models.RequestStatusPaid, models.RequestStatusValidated,
	)
	if err != nil {
		return 0, fmt.Errorf("count enrolled siblings: %w", err)
	}
	return count, nil
}

// CountByStudent returns how many requests reference a student.
func (r *RequestRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM requests WHERE student_id = $1", studentID); err != nil {
		return 0, fmt.Errorf("count requests by student: %w", err)
	}
	return count, nil
}

// DeletePending removes a request only while it is still PENDING. It
// returns sql.ErrNoRows when the request moved on in the meantime.
func (r *RequestRepository) DeletePending(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM requests WHERE id = $1 AND status = $2", id, models.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

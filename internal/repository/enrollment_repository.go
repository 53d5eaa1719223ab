package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

const enrollmentColumns = `id, student_id, vehicle_id, status, monthly_amount, start_date, end_date, created_at, updated_at`

// EnrollmentRepository reads materialised transport subscriptions. Writes
// happen exclusively inside the payment confirmation transaction.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// GetByID fetches an enrollment by identifier.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1"
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// GetByStudent fetches the enrollment backing a student, if any. A student
// has at most one.
func (r *EnrollmentRepository) GetByStudent(ctx context.Context, studentID string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE student_id = $1"
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

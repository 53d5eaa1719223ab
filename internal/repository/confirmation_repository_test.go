package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sba-transport-api/internal/models"
)

func confirmParams() ConfirmParams {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return ConfirmParams{
		RequestID:     "req-1",
		StudentID:     "student-1",
		InvoiceAmount: 360,
		MonthlyAmount: 360,
		Method:        models.PaymentMethodCash,
		Month:         3,
		Year:          2026,
		Now:           now,
		EndDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func enrollmentMockRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "student_id", "vehicle_id", "status", "monthly_amount",
		"start_date", "end_date", "created_at", "updated_at"}).
		AddRow(id, "student-1", nil, "ACTIVE", int64(360), now, now, now, now)
}

func paymentMockRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "enrollment_id", "amount", "month", "year",
		"paid_at", "method", "status", "created_at"}).
		AddRow(id, "enr-1", int64(360), 3, 2026, now, "CASH", "PAID", now)
}

func TestConfirmationCreatesEnrollmentAndPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewConfirmationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id")).
		WithArgs("student-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE enrollment_id")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Confirm(context.Background(), confirmParams())
	require.NoError(t, err)
	require.True(t, result.EnrollmentCreated)
	require.True(t, result.PaymentCreated)
	require.False(t, result.AlreadyPaid)
	require.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	require.Equal(t, int64(360), result.Payment.Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmationRetryIsIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewConfirmationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PAID"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id")).
		WithArgs("student-1").
		WillReturnRows(enrollmentMockRows("enr-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE enrollment_id")).
		WillReturnRows(paymentMockRows("pay-1"))
	mock.ExpectCommit()

	result, err := repo.Confirm(context.Background(), confirmParams())
	require.NoError(t, err)
	require.True(t, result.AlreadyPaid)
	require.False(t, result.EnrollmentCreated)
	require.False(t, result.PaymentCreated)
	require.Equal(t, "enr-1", result.Enrollment.ID)
	require.Equal(t, "pay-1", result.Payment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmationRejectsWrongState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewConfirmationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectRollback()

	_, err := repo.Confirm(context.Background(), confirmParams())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/repository"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
)

type confirmationStub struct {
	result *repository.ConfirmResult
	err    error
	params repository.ConfirmParams
	calls  int
}

func (c *confirmationStub) Confirm(ctx context.Context, params repository.ConfirmParams) (*repository.ConfirmResult, error) {
	c.calls++
	c.params = params
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type ledgerStub struct {
	entries []models.PaymentLedgerEntry
}

func (l *ledgerStub) ListLedger(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentLedgerEntry, error) {
	return l.entries, nil
}

func pricedRequest() *models.Request {
	code := "CODE1234"
	amount := int64(360)
	request := pendingEnrollmentRequest()
	request.Status = models.RequestStatusPendingPayment
	request.VerificationCode = &code
	request.InvoiceAmount = &amount
	request.Attributes.Pricing = &models.PricingBreakdown{
		BaseAmount: 400, DiscountRate: 0.10, DiscountAmount: 40, FinalAmount: 360, SiblingCount: 1,
	}
	return request
}

func newPaymentService(requests *requestRepoStub, confirmations *confirmationStub, gateway *gatewayStub) *PaymentService {
	return NewPaymentService(requests, confirmations, &ledgerStub{}, gateway, nil, nil, nil)
}

func TestPaymentConfirmSettlesInvoice(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pricedRequest()
	confirmations := &confirmationStub{result: &repository.ConfirmResult{
		Enrollment:        models.Enrollment{ID: "enr-1", StudentID: "student-1", Status: models.EnrollmentStatusActive},
		Payment:           &models.Payment{ID: "pay-1", Amount: 360},
		EnrollmentCreated: true,
		PaymentCreated:    true,
	}}
	gateway := &gatewayStub{}
	svc := newPaymentService(requests, confirmations, gateway)

	result, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "  code1234 "}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPaid, result.Request.Status)
	require.False(t, result.AlreadyPaid)
	require.Equal(t, "enr-1", result.Enrollment.ID)
	require.Equal(t, models.PaymentMethodCash, confirmations.params.Method)
	require.Equal(t, int64(360), confirmations.params.MonthlyAmount)
	require.Len(t, gateway.guardianNotes, 1)
	require.Contains(t, gateway.guardianNotes[0].Body, "sibling discount of 40 (10%)")
	require.Len(t, gateway.adminNotes, 1)
	require.Contains(t, gateway.adminNotes[0].Body, "Vehicle assignment is now required for student student-1")
}

func TestPaymentConfirmRetryDoesNotRenotify(t *testing.T) {
	requests := newRequestRepoStub()
	stored := pricedRequest()
	stored.Status = models.RequestStatusPaid
	requests.requests["req-1"] = stored
	confirmations := &confirmationStub{result: &repository.ConfirmResult{
		Enrollment:  models.Enrollment{ID: "enr-1"},
		Payment:     &models.Payment{ID: "pay-1", Amount: 360},
		AlreadyPaid: true,
	}}
	gateway := &gatewayStub{}
	svc := newPaymentService(requests, confirmations, gateway)

	result, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "CODE1234"}, adminActor())
	require.NoError(t, err)
	require.True(t, result.AlreadyPaid)
	require.Empty(t, gateway.guardianNotes)
	require.Empty(t, gateway.adminNotes)
}

func TestPaymentConfirmRejectsUnpricedRequest(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pendingEnrollmentRequest()
	svc := newPaymentService(requests, &confirmationStub{}, &gatewayStub{})

	// A request outside the payment window must not reveal whether a code
	// exists, so this is a state error rather than a code error.
	_, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "ANYTHING"}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPaymentConfirmRejectsMissingCode(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pricedRequest()
	svc := newPaymentService(requests, &confirmationStub{}, &gatewayStub{})

	_, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "   "}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrMissingCode.Code, appErrors.FromError(err).Code)
}

func TestPaymentConfirmRejectsWrongCode(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pricedRequest()
	confirmations := &confirmationStub{}
	svc := newPaymentService(requests, confirmations, &gatewayStub{})

	_, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "WRONG123"}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCode.Code, appErrors.FromError(err).Code)
	require.Zero(t, confirmations.calls)
}

func TestPaymentConfirmRejectsWrongState(t *testing.T) {
	requests := newRequestRepoStub()
	stored := pricedRequest()
	stored.Status = models.RequestStatusRejected
	requests.requests["req-1"] = stored
	svc := newPaymentService(requests, &confirmationStub{}, &gatewayStub{})

	_, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "CODE1234"}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "WRONG123"}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPaymentConfirmMapsConcurrentConflict(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pricedRequest()
	confirmations := &confirmationStub{err: sql.ErrNoRows}
	svc := newPaymentService(requests, confirmations, &gatewayStub{})

	_, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "CODE1234"}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPaymentConfirmByOwningGuardian(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pricedRequest()
	confirmations := &confirmationStub{result: &repository.ConfirmResult{
		Enrollment:     models.Enrollment{ID: "enr-1"},
		Payment:        &models.Payment{ID: "pay-1", Amount: 360},
		PaymentCreated: true,
	}}
	svc := newPaymentService(requests, confirmations, &gatewayStub{})

	result, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "CODE1234"}, guardianActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPaid, result.Request.Status)
}

func TestPaymentConfirmRejectsForeignGuardian(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pricedRequest()
	confirmations := &confirmationStub{}
	svc := newPaymentService(requests, confirmations, &gatewayStub{})

	other := &models.JWTClaims{UserID: "user-2", Role: models.RoleGuardian, GuardianID: "guardian-2"}
	_, err := svc.Confirm(context.Background(), "req-1",
		dto.ConfirmPaymentRequest{Code: "CODE1234"}, other)
	require.Error(t, err)
	require.Zero(t, confirmations.calls)
}

func TestPaymentLedgerRequiresAdmin(t *testing.T) {
	svc := NewPaymentService(newRequestRepoStub(), &confirmationStub{}, &ledgerStub{
		entries: []models.PaymentLedgerEntry{{Payment: models.Payment{ID: "pay-1"}}},
	}, &gatewayStub{}, nil, nil, nil)

	entries, err := svc.Ledger(context.Background(), dto.PaymentQuery{}, adminActor())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = svc.Ledger(context.Background(), dto.PaymentQuery{}, guardianActor())
	require.Error(t, err)
}

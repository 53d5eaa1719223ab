package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
)

func pendingEnrollmentRequest() *models.Request {
	return &models.Request{
		ID:         "req-1",
		Kind:       models.RequestKindEnrollment,
		StudentID:  "student-1",
		GuardianID: "guardian-1",
		Status:     models.RequestStatusPending,
		Attributes: models.RequestAttributes{
			TransportMode:      "ROUND_TRIP",
			SubscriptionPeriod: "MONTHLY",
		},
	}
}

func newWorkflow(requests *requestRepoStub, gateway *gatewayStub) *WorkflowService {
	return NewWorkflowService(requests, gateway, nil, nil, nil)
}

func TestWorkflowSendToPaymentStampsPricing(t *testing.T) {
	requests := newRequestRepoStub()
	requests.siblings = 1
	requests.requests["req-1"] = pendingEnrollmentRequest()
	gateway := &gatewayStub{}
	svc := newWorkflow(requests, gateway)

	result, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusPendingPayment}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPendingPayment, result.Status)
	require.NotNil(t, result.VerificationCode)
	require.Len(t, *result.VerificationCode, 8)
	require.NotNil(t, result.InvoiceAmount)
	require.Equal(t, int64(360), *result.InvoiceAmount)
	require.NotNil(t, result.Attributes.Pricing)
	require.Equal(t, 0.10, result.Attributes.Pricing.DiscountRate)
	require.Len(t, gateway.guardianNotes, 1)
	require.Contains(t, gateway.guardianNotes[0].Body, *result.VerificationCode)
}

func TestWorkflowSendToPaymentIsIdempotent(t *testing.T) {
	requests := newRequestRepoStub()
	code := "CODE1234"
	amount := int64(400)
	stored := pendingEnrollmentRequest()
	stored.Status = models.RequestStatusPendingPayment
	stored.VerificationCode = &code
	stored.InvoiceAmount = &amount
	requests.requests["req-1"] = stored
	gateway := &gatewayStub{}
	svc := newWorkflow(requests, gateway)

	result, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusPendingPayment}, adminActor())
	require.NoError(t, err)
	require.Equal(t, "CODE1234", *result.VerificationCode)
	require.Equal(t, int64(400), *result.InvoiceAmount)
	require.Empty(t, gateway.guardianNotes)
}

func TestWorkflowRejectRequiresReason(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pendingEnrollmentRequest()
	svc := newWorkflow(requests, &gatewayStub{})

	_, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusRejected}, adminActor())
	require.Error(t, err)

	result, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusRejected, Reason: "route full"}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, result.Status)
	require.Equal(t, "route full", *result.RejectionReason)
}

func TestWorkflowPaidIsNotReachableByTransition(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pendingEnrollmentRequest()
	svc := newWorkflow(requests, &gatewayStub{})

	_, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusPaid}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestWorkflowTerminalStatesAreFrozen(t *testing.T) {
	requests := newRequestRepoStub()
	stored := pendingEnrollmentRequest()
	stored.Status = models.RequestStatusRejected
	requests.requests["req-1"] = stored
	svc := newWorkflow(requests, &gatewayStub{})

	_, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusValidated}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestWorkflowRejectsUnknownEdge(t *testing.T) {
	requests := newRequestRepoStub()
	stored := pendingEnrollmentRequest()
	stored.Status = models.RequestStatusPaid
	requests.requests["req-1"] = stored
	svc := newWorkflow(requests, &gatewayStub{})

	_, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusProcessing}, adminActor())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestWorkflowRequiresAdminRole(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pendingEnrollmentRequest()
	svc := newWorkflow(requests, &gatewayStub{})

	_, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusProcessing}, guardianActor())
	require.Error(t, err)
}

func TestWorkflowProcessingNotifiesGuardian(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = pendingEnrollmentRequest()
	gateway := &gatewayStub{}
	svc := newWorkflow(requests, gateway)

	result, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusProcessing}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusProcessing, result.Status)
	require.Len(t, gateway.guardianNotes, 1)
	require.Equal(t, models.SeverityInfo, gateway.guardianNotes[0].Severity)
	require.Contains(t, gateway.guardianNotes[0].Body, "processed")
}

func TestWorkflowValidateNotifiesGuardian(t *testing.T) {
	requests := newRequestRepoStub()
	stored := pendingEnrollmentRequest()
	stored.Status = models.RequestStatusPaid
	requests.requests["req-1"] = stored
	gateway := &gatewayStub{}
	svc := newWorkflow(requests, gateway)

	result, err := svc.ApplyTransition(context.Background(), "req-1",
		dto.TransitionRequest{Status: models.RequestStatusValidated}, adminActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusValidated, result.Status)
	require.Len(t, gateway.guardianNotes, 1)
	require.Equal(t, models.SeveritySuccess, gateway.guardianNotes[0].Severity)
}

package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/pricing"
	"github.com/noah-isme/sba-transport-api/internal/repository"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
)

type workflowStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
	StampPricing(ctx context.Context, params repository.StampPricingParams) error
	CountEnrolledSiblings(ctx context.Context, guardianID, studentID, excludeRequestID string) (int, error)
}

// allowedTransitions lists the administrator-driven edges of the request
// state machine. PAID is reachable only through payment confirmation, so it
// never appears as a target here.
var allowedTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusPending: {
		models.RequestStatusProcessing,
		models.RequestStatusPendingPayment,
		models.RequestStatusValidated,
		models.RequestStatusRejected,
	},
	models.RequestStatusProcessing: {
		models.RequestStatusPendingPayment,
		models.RequestStatusValidated,
		models.RequestStatusRejected,
	},
	models.RequestStatusPendingPayment: {
		models.RequestStatusPendingPayment,
		models.RequestStatusRejected,
	},
	models.RequestStatusPaid: {
		models.RequestStatusValidated,
		models.RequestStatusRejected,
	},
}

// WorkflowService drives administrator transitions over requests, including
// the pricing stamp when a request is sent to payment.
type WorkflowService struct {
	requests workflowStore
	notifier NotificationGateway
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewWorkflowService constructs the service.
func NewWorkflowService(requests workflowStore, notifier NotificationGateway, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		requests: requests,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApplyTransition moves a request to the target status on behalf of an
// administrator. Repeating the transition to PENDING_PAYMENT is a no-op
// that returns the request with its original code and invoice untouched.
func (s *WorkflowService) ApplyTransition(ctx context.Context, id string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}
	target := models.RequestStatus(strings.ToUpper(string(req.Status)))
	if target == models.RequestStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "PAID is reached by confirming the payment, not by transition")
	}

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("request is already %s", request.Status))
	}
	if !transitionAllowed(request.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move from %s to %s", request.Status, target))
	}

	if target == models.RequestStatusPendingPayment {
		return s.sendToPayment(ctx, request, actor)
	}
	if target == models.RequestStatusRejected && strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required to reject a request")
	}
	return s.move(ctx, request, target, strings.TrimSpace(req.Reason), actor)
}

func (s *WorkflowService) move(ctx context.Context, request *models.Request, target models.RequestStatus, reason string, actor *models.JWTClaims) (*models.Request, error) {
	now := s.now()
	params := repository.UpdateStatusParams{
		ID:          request.ID,
		From:        request.Status,
		To:          target,
		ProcessedBy: &actor.UserID,
		ProcessedAt: now,
	}
	if target == models.RequestStatusRejected {
		params.RejectionReason = &reason
	} else {
		params.RejectionReason = request.RejectionReason
	}
	if err := s.requests.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "request changed concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}

	s.metrics.RecordTransition(string(params.From), string(target))
	request.Status = target
	request.ProcessedBy = &actor.UserID
	request.ProcessedAt = &now
	if params.RejectionReason != nil {
		request.RejectionReason = params.RejectionReason
	}

	s.invalidate(ctx, request.GuardianID)
	s.notifyOutcome(ctx, request, reason)
	return request, nil
}

// sendToPayment prices the request, generates the one-time verification
// code and stamps everything in a single compare-and-set. A request already
// at PENDING_PAYMENT keeps its stored code and amount.
func (s *WorkflowService) sendToPayment(ctx context.Context, request *models.Request, actor *models.JWTClaims) (*models.Request, error) {
	if request.Kind != models.RequestKindEnrollment {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only enrollment requests can be sent to payment")
	}
	if request.Status == models.RequestStatusPendingPayment {
		return request, nil
	}

	siblings, err := s.requests.CountEnrolledSiblings(ctx, request.GuardianID, request.StudentID, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrolled siblings")
	}

	mode := pricing.ParseMode(request.Attributes.TransportMode)
	period := pricing.ParsePeriod(request.Attributes.SubscriptionPeriod)
	quote := pricing.Compute(mode, period, siblings)

	code, err := generateVerificationCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}

	attributes := request.Attributes
	attributes.Pricing = &models.PricingBreakdown{
		BaseAmount:     quote.BaseAmount,
		DiscountRate:   quote.DiscountRate,
		DiscountAmount: quote.DiscountAmount,
		FinalAmount:    quote.FinalAmount,
		SiblingCount:   quote.SiblingCount,
	}

	now := s.now()
	err = s.requests.StampPricing(ctx, repository.StampPricingParams{
		ID:               request.ID,
		From:             request.Status,
		VerificationCode: code,
		InvoiceAmount:    quote.FinalAmount,
		Attributes:       attributes,
		ProcessedBy:      &actor.UserID,
		ProcessedAt:      now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race. If the winner also priced it, serve their result.
			current, loadErr := s.load(ctx, request.ID)
			if loadErr == nil && current.Status == models.RequestStatusPendingPayment {
				return current, nil
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "request changed concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to price request")
	}

	s.metrics.RecordTransition(string(request.Status), string(models.RequestStatusPendingPayment))
	request.Status = models.RequestStatusPendingPayment
	request.Attributes = attributes
	request.VerificationCode = &code
	request.InvoiceAmount = &quote.FinalAmount
	request.ProcessedBy = &actor.UserID
	request.ProcessedAt = &now

	s.invalidate(ctx, request.GuardianID)
	if s.notifier != nil {
		s.notifier.NotifyGuardian(ctx, request.GuardianID,
			"Enrollment approved, payment required",
			fmt.Sprintf("Amount due: %d. Present code %s at the office to settle the invoice.", quote.FinalAmount, code),
			models.SeverityInfo)
	}
	return request, nil
}

func (s *WorkflowService) notifyOutcome(ctx context.Context, request *models.Request, reason string) {
	if s.notifier == nil {
		return
	}
	switch request.Status {
	case models.RequestStatusProcessing:
		s.notifier.NotifyGuardian(ctx, request.GuardianID,
			"Request in review",
			"Your request is being processed by the administration.",
			models.SeverityInfo)
	case models.RequestStatusValidated:
		s.notifier.NotifyGuardian(ctx, request.GuardianID,
			"Request validated",
			"Your request has been validated.",
			models.SeveritySuccess)
	case models.RequestStatusRejected:
		s.notifier.NotifyGuardian(ctx, request.GuardianID,
			"Request rejected",
			fmt.Sprintf("Your request was rejected: %s", reason),
			models.SeverityWarning)
	}
}

func (s *WorkflowService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *WorkflowService) invalidate(ctx context.Context, guardianID string) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Invalidate(ctx, fmt.Sprintf("requests:guardian:%s:*", guardianID))
}

func transitionAllowed(from, to models.RequestStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateVerificationCode returns an 8 character one-time code. Bytes at
// or above the largest multiple of the alphabet size are discarded so every
// character is equally likely.
func generateVerificationCode() (string, error) {
	const limit = byte(256 - 256%len(codeAlphabet))
	out := make([]byte, 0, 8)
	buf := make([]byte, 16)
	for len(out) < 8 {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == 8 {
				break
			}
		}
	}
	return string(out), nil
}

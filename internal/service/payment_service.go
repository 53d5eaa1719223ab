package service

import (
	"context"
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

type paymentRequestReader interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
}

type confirmationStore interface {
	Confirm(ctx context.Context, params repository.ConfirmParams) (*repository.ConfirmResult, error)
}

type paymentLedger interface {
	ListLedger(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentLedgerEntry, error)
}

// PaymentService settles invoices. The whole settlement runs as one
// database transaction, so a crash can never leave a paid request without
// its enrollment or payment row.
type PaymentService struct {
	requests      paymentRequestReader
	confirmations confirmationStore
	ledger        paymentLedger
	notifier      NotificationGateway
	cache         *CacheService
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewPaymentService constructs the service.
func NewPaymentService(requests paymentRequestReader, confirmations confirmationStore, ledger paymentLedger, notifier NotificationGateway, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		requests:      requests,
		confirmations: confirmations,
		ledger:        ledger,
		notifier:      notifier,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Confirm verifies the presented code and settles the invoice. The owning
// guardian submits the code; administrators may record a confirmation on any
// request. A repeated confirmation with the same code succeeds without
// recording anything new and without re-notifying anyone.
func (s *PaymentService) Confirm(ctx context.Context, requestID string, req dto.ConfirmPaymentRequest, actor *models.JWTClaims) (*dto.ConfirmPaymentResult, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if err := scopeRequest(request, actor); err != nil {
		return nil, err
	}
	if request.Kind != models.RequestKindEnrollment {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only enrollment requests carry an invoice")
	}
	// The state check comes first so a request outside the payment window
	// never reveals whether a code was issued for it.
	if request.Status != models.RequestStatusPendingPayment && request.Status != models.RequestStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("request is %s, not awaiting payment", request.Status))
	}
	code := strings.TrimSpace(req.Code)
	if code == "" || request.VerificationCode == nil || request.InvoiceAmount == nil {
		return nil, appErrors.ErrMissingCode
	}
	if !strings.EqualFold(code, *request.VerificationCode) {
		return nil, appErrors.ErrInvalidCode
	}

	method := req.Method
	if method == "" {
		method = models.PaymentMethodCash
	}
	switch method {
	case models.PaymentMethodCash, models.PaymentMethodTransfer:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported payment method")
	}

	now := s.now()
	period := pricing.ParsePeriod(request.Attributes.SubscriptionPeriod)
	result, err := s.confirmations.Confirm(ctx, repository.ConfirmParams{
		RequestID:     request.ID,
		StudentID:     request.StudentID,
		InvoiceAmount: *request.InvoiceAmount,
		MonthlyAmount: pricing.MonthlyAmount(period, *request.InvoiceAmount),
		Method:        method,
		Month:         int(now.Month()),
		Year:          now.Year(),
		Now:           now,
		EndDate:       time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "request changed concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}

	request.Status = models.RequestStatusPaid
	if !result.AlreadyPaid {
		request.ProcessedAt = &now
	}

	if s.cache.Enabled() {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("requests:guardian:%s:*", request.GuardianID))
	}
	if result.PaymentCreated {
		s.metrics.RecordPaymentConfirmed()
	}
	if result.PaymentCreated && s.notifier != nil {
		s.notifier.NotifyGuardian(ctx, request.GuardianID,
			"Payment received",
			guardianPaymentBody(request),
			models.SeveritySuccess)
		s.notifier.NotifyAdmins(ctx,
			"Payment confirmed",
			fmt.Sprintf("Invoice of %d settled for request %s. Vehicle assignment is now required for student %s.",
				*request.InvoiceAmount, request.ID, request.StudentID),
			models.SeverityInfo)
	}

	return &dto.ConfirmPaymentResult{
		Request:     request,
		Enrollment:  result.Enrollment,
		Payment:     result.Payment,
		AlreadyPaid: result.AlreadyPaid,
	}, nil
}

// guardianPaymentBody summarizes the settlement for the guardian. The
// discount wording comes from the breakdown stored when the invoice was
// issued, so a retried confirmation reads the same.
func guardianPaymentBody(request *models.Request) string {
	amount := *request.InvoiceAmount
	breakdown := request.Attributes.Pricing
	if breakdown == nil || breakdown.DiscountAmount == 0 {
		return fmt.Sprintf("Your payment of %d has been recorded. Transport starts once validated.", amount)
	}
	return fmt.Sprintf("Your payment of %d has been recorded, including a sibling discount of %d (%.0f%%). Transport starts once validated.",
		amount, breakdown.DiscountAmount, breakdown.DiscountRate*100)
}

// Ledger returns payments joined with their enrollment context.
func (s *PaymentService) Ledger(ctx context.Context, query dto.PaymentQuery, actor *models.JWTClaims) ([]models.PaymentLedgerEntry, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}
	entries, err := s.ledger.ListLedger(ctx, models.PaymentFilter{
		EnrollmentID: query.EnrollmentID,
		Month:        query.Month,
		Year:         query.Year,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return entries, nil
}

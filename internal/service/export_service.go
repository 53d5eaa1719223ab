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
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
	"github.com/noah-isme/sba-transport-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type receiptRenderer interface {
	RenderReceipt(receipt export.Receipt) ([]byte, error)
}

// ExportService renders the payment ledger as CSV and invoice receipts as
// PDF documents.
type ExportService struct {
	requests  paymentRequestReader
	students  studentStore
	guardians guardianReader
	ledger    paymentLedger
	csv       csvRenderer
	pdf       receiptRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(requests paymentRequestReader, students studentStore, guardians guardianReader, ledger paymentLedger, csv csvRenderer, pdf receiptRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests:  requests,
		students:  students,
		guardians: guardians,
		ledger:    ledger,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
	}
}

var ledgerHeaders = []string{"payment_id", "paid_at", "student", "guardian", "amount", "month", "year", "method", "status"}

// PaymentsCSV renders the filtered payment ledger. Administrators only.
func (s *ExportService) PaymentsCSV(ctx context.Context, query dto.PaymentQuery, actor *models.JWTClaims) ([]byte, string, error) {
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, "", appErrors.ErrForbidden
	}

	entries, err := s.ledger.ListLedger(ctx, models.PaymentFilter{
		EnrollmentID: query.EnrollmentID,
		Month:        query.Month,
		Year:         query.Year,
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, map[string]string{
			"payment_id": entry.ID,
			"paid_at":    entry.PaidAt.UTC().Format(time.RFC3339),
			"student":    entry.StudentName,
			"guardian":   entry.GuardianName,
			"amount":     fmt.Sprintf("%d", entry.Amount),
			"month":      fmt.Sprintf("%d", entry.Month),
			"year":       fmt.Sprintf("%d", entry.Year),
			"method":     string(entry.Method),
			"status":     string(entry.Status),
		})
	}

	payload, err := s.csv.Render(export.Dataset{Headers: ledgerHeaders, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	filename := fmt.Sprintf("payments-%s.csv", time.Now().UTC().Format("20060102-150405"))
	return payload, filename, nil
}

// Receipt renders the invoice receipt for a priced request. Guardians may
// only fetch receipts for their own requests.
func (s *ExportService) Receipt(ctx context.Context, requestID string, actor *models.JWTClaims) ([]byte, string, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if err := scopeRequest(request, actor); err != nil {
		return nil, "", err
	}
	if request.InvoiceAmount == nil || request.Attributes.Pricing == nil {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, "request has not been priced yet")
	}

	student, err := s.students.GetByID(ctx, request.StudentID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	guardian, err := s.guardians.GetByID(ctx, request.GuardianID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}

	breakdown := request.Attributes.Pricing
	lines := []export.ReceiptLine{
		{Label: "Guardian", Value: guardian.FullName},
		{Label: "Student", Value: student.FullName},
		{Label: "Transport mode", Value: request.Attributes.TransportMode},
		{Label: "Subscription", Value: request.Attributes.SubscriptionPeriod},
		{Label: "Base amount", Value: fmt.Sprintf("%d", breakdown.BaseAmount)},
		{Label: "Sibling discount", Value: fmt.Sprintf("-%d (%.0f%%)", breakdown.DiscountAmount, breakdown.DiscountRate*100)},
	}
	footnote := ""
	if request.Status == models.RequestStatusPendingPayment && request.VerificationCode != nil {
		footnote = fmt.Sprintf("Present verification code %s at the school office to settle this invoice.", *request.VerificationCode)
	} else {
		footnote = fmt.Sprintf("Invoice settled. Status: %s.", strings.ToLower(string(request.Status)))
	}

	payload, err := s.pdf.RenderReceipt(export.Receipt{
		Title:     "Transport enrollment invoice",
		Reference: request.ID,
		Lines:     lines,
		Total:     fmt.Sprintf("%d", *request.InvoiceAmount),
		Footnote:  footnote,
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	filename := fmt.Sprintf("receipt-%s.pdf", request.ID)
	return payload, filename, nil
}

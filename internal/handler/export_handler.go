package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/pkg/response"
)

type exportService interface {
	PaymentsCSV(ctx context.Context, query dto.PaymentQuery, actor *models.JWTClaims) ([]byte, string, error)
	Receipt(ctx context.Context, requestID string, actor *models.JWTClaims) ([]byte, string, error)
}

// ExportHandler serves document downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// PaymentsCSV godoc
// @Summary Export the payment ledger as CSV
// @Tags Exports
// @Produce text/csv
// @Param month query int false "Billing month"
// @Param year query int false "Billing year"
// @Param enrollment_id query string false "Enrollment ID"
// @Success 200 {file} file
// @Router /payments/export [get]
func (h *ExportHandler) PaymentsCSV(c *gin.Context) {
	query := dto.PaymentQuery{
		EnrollmentID: c.Query("enrollment_id"),
		Month:        intQuery(c, "month"),
		Year:         intQuery(c, "year"),
	}
	payload, filename, err := h.service.PaymentsCSV(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// Receipt godoc
// @Summary Download the invoice receipt for a request
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} file
// @Router /requests/{id}/receipt [get]
func (h *ExportHandler) Receipt(c *gin.Context) {
	payload, filename, err := h.service.Receipt(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}

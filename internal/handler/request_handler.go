package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/service"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
	"github.com/noah-isme/sba-transport-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error)
	List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) (*service.RequestPage, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error)
	Withdraw(ctx context.Context, id string, actor *models.JWTClaims) error
}

type workflowService interface {
	ApplyTransition(ctx context.Context, id string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Request, error)
}

type paymentService interface {
	Confirm(ctx context.Context, requestID string, req dto.ConfirmPaymentRequest, actor *models.JWTClaims) (*dto.ConfirmPaymentResult, error)
}

// RequestHandler exposes REST endpoints for the request lifecycle.
type RequestHandler struct {
	requests requestService
	workflow workflowService
	payments paymentService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(requests requestService, workflow workflowService, payments paymentService) *RequestHandler {
	return &RequestHandler{requests: requests, workflow: workflow, payments: payments}
}

// Create godoc
// @Summary Submit a new request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	request, err := h.requests.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param kind query string false "Request kind"
// @Param guardian_id query string false "Guardian ID (administrators only)"
// @Param student_id query string false "Student ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	query := dto.RequestQuery{
		GuardianID: strings.TrimSpace(c.Query("guardian_id")),
		StudentID:  strings.TrimSpace(c.Query("student_id")),
		Page:       intQuery(c, "page"),
		PageSize:   intQuery(c, "page_size"),
	}
	if rawKind := c.Query("kind"); rawKind != "" {
		query.Kind = models.RequestKind(strings.ToUpper(rawKind))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.RequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RequestStatus(part))
		}
		query.Status = statuses
	}
	page, err := h.requests.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Requests, &page.Pagination)
}

// Get godoc
// @Summary Get request detail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Transition godoc
// @Summary Apply a workflow transition
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.TransitionRequest true "Target status and optional reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/transition [put]
func (h *RequestHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	request, err := h.workflow.ApplyTransition(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// ConfirmPayment godoc
// @Summary Confirm an invoice payment with a verification code
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ConfirmPaymentRequest true "Verification code and method"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/confirm-payment [post]
func (h *RequestHandler) ConfirmPayment(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid confirmation payload"))
		return
	}
	result, err := h.payments.Confirm(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Withdraw godoc
// @Summary Withdraw a pending request
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204
// @Router /requests/{id} [delete]
func (h *RequestHandler) Withdraw(c *gin.Context) {
	if err := h.requests.Withdraw(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func intQuery(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

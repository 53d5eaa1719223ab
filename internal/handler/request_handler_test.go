package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/middleware"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/service"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
)

type requestServiceMock struct {
	request     *models.Request
	page        *service.RequestPage
	err         error
	withdrawErr error
}

func (m *requestServiceMock) Create(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	return m.request, m.err
}

func (m *requestServiceMock) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) (*service.RequestPage, error) {
	return m.page, m.err
}

func (m *requestServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	return m.request, m.err
}

func (m *requestServiceMock) Withdraw(ctx context.Context, id string, actor *models.JWTClaims) error {
	return m.withdrawErr
}

type workflowServiceMock struct {
	request *models.Request
	err     error
	got     dto.TransitionRequest
}

func (m *workflowServiceMock) ApplyTransition(ctx context.Context, id string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Request, error) {
	m.got = req
	return m.request, m.err
}

type paymentServiceMock struct {
	result *dto.ConfirmPaymentResult
	err    error
	got    dto.ConfirmPaymentRequest
}

func (m *paymentServiceMock) Confirm(ctx context.Context, requestID string, req dto.ConfirmPaymentRequest, actor *models.JWTClaims) (*dto.ConfirmPaymentResult, error) {
	m.got = req
	return m.result, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func setClaims(c *gin.Context, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role, GuardianID: "guardian-1"})
}

func TestRequestHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{request: &models.Request{ID: "req-1", Status: models.RequestStatusPending}}
	handler := NewRequestHandler(mockSvc, nil, nil)

	payload, _ := json.Marshal(dto.CreateRequestRequest{StudentName: "Yousef", TransportMode: "ROUND_TRIP"})
	c, w := newGinContext(http.MethodPost, "/requests", payload)
	setClaims(c, models.RoleGuardian)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestRequestHandlerCreateRejectsBadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&requestServiceMock{}, nil, nil)

	c, w := newGinContext(http.MethodPost, "/requests", []byte("{"))
	setClaims(c, models.RoleGuardian)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{page: &service.RequestPage{
		Requests:   []models.Request{{ID: "req-1"}},
		Pagination: models.Pagination{Page: 1, PageSize: 20, TotalCount: 1},
	}}
	handler := NewRequestHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/requests?status=pending,paid&kind=enrollment&page=2", nil)
	setClaims(c, models.RoleAdmin)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "pagination")
}

func TestRequestHandlerTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &workflowServiceMock{request: &models.Request{ID: "req-1", Status: models.RequestStatusPendingPayment}}
	handler := NewRequestHandler(&requestServiceMock{}, mockSvc, nil)

	payload, _ := json.Marshal(dto.TransitionRequest{Status: models.RequestStatusPendingPayment})
	c, w := newGinContext(http.MethodPut, "/requests/req-1/transition", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, models.RoleAdmin)

	handler.Transition(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.RequestStatusPendingPayment, mockSvc.got.Status)
}

func TestRequestHandlerTransitionPropagatesDomainError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &workflowServiceMock{err: appErrors.ErrInvalidTransition}
	handler := NewRequestHandler(&requestServiceMock{}, mockSvc, nil)

	payload, _ := json.Marshal(dto.TransitionRequest{Status: models.RequestStatusPaid})
	c, w := newGinContext(http.MethodPut, "/requests/req-1/transition", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, models.RoleAdmin)

	handler.Transition(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_TRANSITION")
}

func TestRequestHandlerConfirmPayment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentServiceMock{result: &dto.ConfirmPaymentResult{
		Request:    &models.Request{ID: "req-1", Status: models.RequestStatusPaid},
		Enrollment: models.Enrollment{ID: "enr-1"},
	}}
	handler := NewRequestHandler(&requestServiceMock{}, nil, mockSvc)

	payload, _ := json.Marshal(dto.ConfirmPaymentRequest{Code: "CODE1234"})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/confirm-payment", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, models.RoleAdmin)

	handler.ConfirmPayment(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "CODE1234", mockSvc.got.Code)
}

func TestRequestHandlerConfirmPaymentInvalidCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentServiceMock{err: appErrors.ErrInvalidCode}
	handler := NewRequestHandler(&requestServiceMock{}, nil, mockSvc)

	payload, _ := json.Marshal(dto.ConfirmPaymentRequest{Code: "WRONG"})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/confirm-payment", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, models.RoleAdmin)

	handler.ConfirmPayment(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestHandlerWithdraw(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&requestServiceMock{}, nil, nil)

	c, w := newGinContext(http.MethodDelete, "/requests/req-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, models.RoleGuardian)

	handler.Withdraw(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}

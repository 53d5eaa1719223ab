package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/pricing"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	CountByStudent(ctx context.Context, studentID string) (int, error)
	DeletePending(ctx context.Context, id string) error
}

type studentStore interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type guardianReader interface {
	GetByID(ctx context.Context, id string) (*models.Guardian, error)
}

type enrollmentReader interface {
	GetByStudent(ctx context.Context, studentID string) (*models.Enrollment, error)
}

// RequestService handles the guardian-facing lifecycle of requests:
// submission, listing, inspection and withdrawal.
type RequestService struct {
	requests    requestStore
	students    studentStore
	guardians   guardianReader
	enrollments enrollmentReader
	notifier    NotificationGateway
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(requests requestStore, students studentStore, guardians guardianReader, enrollments enrollmentReader, notifier NotificationGateway, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequestService{
		requests:    requests,
		students:    students,
		guardians:   guardians,
		enrollments: enrollments,
		notifier:    notifier,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// RequestPage is a paginated listing result.
type RequestPage struct {
	Requests   []models.Request  `json:"requests"`
	Pagination models.Pagination `json:"pagination"`
}

// Create opens a new request on behalf of the authenticated guardian. When
// the payload names a child instead of referencing a registered student,
// the student is created on the fly under the same guardian.
func (s *RequestService) Create(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil || actor.Role != models.RoleGuardian || actor.GuardianID == "" {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	kind := req.Kind
	if kind == "" {
		kind = models.RequestKindEnrollment
	}
	switch kind {
	case models.RequestKindEnrollment, models.RequestKindComplaint, models.RequestKindOther:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request kind")
	}

	guardian, err := s.guardians.GetByID(ctx, actor.GuardianID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "guardian not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}

	student, err := s.resolveStudent(ctx, req, guardian.ID)
	if err != nil {
		return nil, err
	}

	request := &models.Request{
		Kind:       kind,
		StudentID:  student.ID,
		GuardianID: guardian.ID,
		Status:     models.RequestStatusPending,
		Attributes: models.RequestAttributes{
			TransportMode:      string(pricing.ParseMode(strings.ToUpper(req.TransportMode))),
			SubscriptionPeriod: string(pricing.ParsePeriod(strings.ToUpper(req.SubscriptionPeriod))),
			Zone:               strings.TrimSpace(req.Zone),
		},
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.invalidateGuardianCache(ctx, guardian.ID)
	if s.notifier != nil {
		s.notifier.NotifyAdmins(ctx,
			"New request submitted",
			fmt.Sprintf("%s submitted a %s request for %s", guardian.FullName, strings.ToLower(string(kind)), student.FullName),
			models.SeverityInfo)
	}
	return request, nil
}

func (s *RequestService) resolveStudent(ctx context.Context, req dto.CreateRequestRequest, guardianID string) (*models.Student, error) {
	if req.StudentID != "" {
		student, err := s.students.GetByID(ctx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if student.GuardianID != guardianID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another guardian")
		}
		return student, nil
	}

	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id or student_name is required")
	}
	student := &models.Student{
		GuardianID: guardianID,
		FullName:   name,
		GradeLevel: strings.TrimSpace(req.GradeLevel),
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register student")
	}
	return student, nil
}

// List returns requests the actor may see. Guardians are scoped to their
// own submissions; administrators see everything. Guardian first pages are
// served from cache when enabled.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) (*RequestPage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		StudentID: query.StudentID,
		Kind:      query.Kind,
		Status:    query.Status,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleSuperAdmin:
		filter.GuardianID = query.GuardianID
	case models.RoleGuardian:
		if actor.GuardianID == "" {
			return nil, appErrors.ErrForbidden
		}
		filter.GuardianID = actor.GuardianID
	default:
		return nil, appErrors.ErrForbidden
	}

	cacheKey := ""
	if filter.GuardianID != "" && s.cache.Enabled() {
		cacheKey = guardianRequestsCacheKey(filter)
		var cached RequestPage
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := &RequestPage{
		Requests: requests,
		Pagination: models.Pagination{
			Page:       normalizePage(filter.Page),
			PageSize:   normalizePageSize(filter.PageSize),
			TotalCount: total,
		},
	}
	if cacheKey != "" {
		_ = s.cache.Set(ctx, cacheKey, page, 0)
	}
	return page, nil
}

// Get returns one request, enforcing guardian scoping.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scopeRequest(request, actor); err != nil {
		return nil, err
	}
	return request, nil
}

// Withdraw deletes a guardian's own request while it is still pending. A
// student that was registered by the request and has no other history is
// removed with it.
func (s *RequestService) Withdraw(ctx context.Context, id string, actor *models.JWTClaims) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := scopeRequest(request, actor); err != nil {
		return err
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "only pending requests can be withdrawn")
	}
	if err := s.requests.DeletePending(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "request is no longer pending")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw request")
	}

	s.cleanupOrphanStudent(ctx, request.StudentID)
	s.invalidateGuardianCache(ctx, request.GuardianID)
	return nil
}

// cleanupOrphanStudent removes a student left with no requests and no
// enrollment after a withdrawal. Failures only log; the withdrawal stands.
func (s *RequestService) cleanupOrphanStudent(ctx context.Context, studentID string) {
	count, err := s.requests.CountByStudent(ctx, studentID)
	if err != nil || count > 0 {
		return
	}
	if _, err := s.enrollments.GetByStudent(ctx, studentID); err == nil || !errors.Is(err, sql.ErrNoRows) {
		return
	}
	if err := s.students.Delete(ctx, studentID); err != nil {
		s.logger.Warn("failed to remove orphan student", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *RequestService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) invalidateGuardianCache(ctx context.Context, guardianID string) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Invalidate(ctx, fmt.Sprintf("requests:guardian:%s:*", guardianID))
}

func scopeRequest(request *models.Request, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleSuperAdmin:
		return nil
	case models.RoleGuardian:
		if actor.GuardianID != "" && request.GuardianID == actor.GuardianID {
			return nil
		}
		return appErrors.ErrForbidden
	default:
		return appErrors.ErrForbidden
	}
}

func guardianRequestsCacheKey(filter models.RequestFilter) string {
	statuses := make([]string, len(filter.Status))
	for i, status := range filter.Status {
		statuses[i] = string(status)
	}
	return fmt.Sprintf("requests:guardian:%s:%s:%s:%s:%d:%d",
		filter.GuardianID, filter.Kind, filter.StudentID,
		strings.Join(statuses, "-"), normalizePage(filter.Page), normalizePageSize(filter.PageSize))
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizePageSize(size int) int {
	if size <= 0 || size > 100 {
		return 20
	}
	return size
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sba-transport-api/internal/dto"
	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/internal/repository"
)

type requestRepoStub struct {
	requests map[string]*models.Request
	siblings int
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.Request)}
}

func (r *requestRepoStub) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = "req-" + request.StudentID
	}
	copy := *request
	r.requests[request.ID] = &copy
	return nil
}

func (r *requestRepoStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	if request, ok := r.requests[id]; ok {
		copy := *request
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	result := make([]models.Request, 0, len(r.requests))
	for _, request := range r.requests {
		if filter.GuardianID != "" && request.GuardianID != filter.GuardianID {
			continue
		}
		result = append(result, *request)
	}
	return result, len(result), nil
}

func (r *requestRepoStub) CountByStudent(ctx context.Context, studentID string) (int, error) {
	count := 0
	for _, request := range r.requests {
		if request.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (r *requestRepoStub) DeletePending(ctx context.Context, id string) error {
	request, ok := r.requests[id]
	if !ok || request.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	delete(r.requests, id)
	return nil
}

func (r *requestRepoStub) UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error {
	request, ok := r.requests[params.ID]
	if !ok || request.Status != params.From {
		return sql.ErrNoRows
	}
	request.Status = params.To
	request.RejectionReason = params.RejectionReason
	request.ProcessedBy = params.ProcessedBy
	at := params.ProcessedAt
	request.ProcessedAt = &at
	return nil
}

func (r *requestRepoStub) StampPricing(ctx context.Context, params repository.StampPricingParams) error {
	request, ok := r.requests[params.ID]
	if !ok || request.Status != params.From || request.VerificationCode != nil {
		return sql.ErrNoRows
	}
	request.Status = models.RequestStatusPendingPayment
	code := params.VerificationCode
	amount := params.InvoiceAmount
	request.VerificationCode = &code
	request.InvoiceAmount = &amount
	request.Attributes = params.Attributes
	request.ProcessedBy = params.ProcessedBy
	at := params.ProcessedAt
	request.ProcessedAt = &at
	return nil
}

func (r *requestRepoStub) CountEnrolledSiblings(ctx context.Context, guardianID, studentID, excludeRequestID string) (int, error) {
	return r.siblings, nil
}

type studentRepoStub struct {
	students map[string]*models.Student
	deleted  []string
}

func newStudentRepoStub() *studentRepoStub {
	return &studentRepoStub{students: make(map[string]*models.Student)}
}

func (r *studentRepoStub) GetByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := r.students[id]; ok {
		copy := *student
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "student-" + student.FullName
	}
	copy := *student
	r.students[student.ID] = &copy
	return nil
}

func (r *studentRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.students, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type guardianRepoStub struct {
	guardians map[string]*models.Guardian
}

func newGuardianRepoStub() *guardianRepoStub {
	return &guardianRepoStub{guardians: map[string]*models.Guardian{
		"guardian-1": {ID: "guardian-1", FullName: "Amina Haddad"},
	}}
}

func (r *guardianRepoStub) GetByID(ctx context.Context, id string) (*models.Guardian, error) {
	if guardian, ok := r.guardians[id]; ok {
		copy := *guardian
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type enrollmentRepoStub struct {
	enrollments map[string]*models.Enrollment
}

func newEnrollmentRepoStub() *enrollmentRepoStub {
	return &enrollmentRepoStub{enrollments: make(map[string]*models.Enrollment)}
}

func (r *enrollmentRepoStub) GetByStudent(ctx context.Context, studentID string) (*models.Enrollment, error) {
	if enrollment, ok := r.enrollments[studentID]; ok {
		copy := *enrollment
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type gatewayStub struct {
	guardianNotes []models.Notification
	adminNotes    []models.Notification
}

func (g *gatewayStub) NotifyGuardian(ctx context.Context, guardianID, title, body string, severity models.NotificationSeverity) {
	g.guardianNotes = append(g.guardianNotes, models.Notification{
		RecipientID: guardianID, Title: title, Body: body, Severity: severity,
	})
}

func (g *gatewayStub) NotifyAdmins(ctx context.Context, title, body string, severity models.NotificationSeverity) {
	g.adminNotes = append(g.adminNotes, models.Notification{Title: title, Body: body, Severity: severity})
}

func guardianActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleGuardian, GuardianID: "guardian-1"}
}

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func newRequestService(requests *requestRepoStub, students *studentRepoStub, enrollments *enrollmentRepoStub, gateway *gatewayStub) *RequestService {
	return NewRequestService(requests, students, newGuardianRepoStub(), enrollments, gateway, nil, nil, nil)
}

func TestRequestServiceCreateRegistersStudent(t *testing.T) {
	requests := newRequestRepoStub()
	students := newStudentRepoStub()
	gateway := &gatewayStub{}
	svc := newRequestService(requests, students, newEnrollmentRepoStub(), gateway)

	request, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		StudentName:        "Yousef Haddad",
		GradeLevel:         "3",
		TransportMode:      "ROUND_TRIP",
		SubscriptionPeriod: "MONTHLY",
	}, guardianActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.Equal(t, models.RequestKindEnrollment, request.Kind)
	require.NotEmpty(t, request.StudentID)
	require.Len(t, students.students, 1)
	require.Len(t, gateway.adminNotes, 1)
}

func TestRequestServiceCreateRejectsForeignStudent(t *testing.T) {
	requests := newRequestRepoStub()
	students := newStudentRepoStub()
	students.students["student-9"] = &models.Student{ID: "student-9", GuardianID: "guardian-2"}
	svc := newRequestService(requests, students, newEnrollmentRepoStub(), &gatewayStub{})

	_, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		StudentID: "student-9",
	}, guardianActor())
	require.Error(t, err)
}

func TestRequestServiceCreateRequiresGuardianRole(t *testing.T) {
	svc := newRequestService(newRequestRepoStub(), newStudentRepoStub(), newEnrollmentRepoStub(), &gatewayStub{})
	_, err := svc.Create(context.Background(), dto.CreateRequestRequest{StudentName: "x"}, adminActor())
	require.Error(t, err)
}

func TestRequestServiceGetScopesToOwner(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = &models.Request{ID: "req-1", GuardianID: "guardian-1", Status: models.RequestStatusPending}
	svc := newRequestService(requests, newStudentRepoStub(), newEnrollmentRepoStub(), &gatewayStub{})

	_, err := svc.Get(context.Background(), "req-1", guardianActor())
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "user-2", Role: models.RoleGuardian, GuardianID: "guardian-2"}
	_, err = svc.Get(context.Background(), "req-1", other)
	require.Error(t, err)

	_, err = svc.Get(context.Background(), "req-1", adminActor())
	require.NoError(t, err)
}

func TestRequestServiceListScopesAndFilters(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = &models.Request{ID: "req-1", GuardianID: "guardian-1", Status: models.RequestStatusPending}
	requests.requests["req-2"] = &models.Request{ID: "req-2", GuardianID: "guardian-2", Status: models.RequestStatusPending}
	svc := newRequestService(requests, newStudentRepoStub(), newEnrollmentRepoStub(), &gatewayStub{})

	page, err := svc.List(context.Background(), dto.RequestQuery{}, guardianActor())
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)
	require.Equal(t, "req-1", page.Requests[0].ID)

	page, err = svc.List(context.Background(), dto.RequestQuery{}, adminActor())
	require.NoError(t, err)
	require.Len(t, page.Requests, 2)

	page, err = svc.List(context.Background(), dto.RequestQuery{GuardianID: "guardian-2"}, adminActor())
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)
	require.Equal(t, "req-2", page.Requests[0].ID)
}

func TestRequestServiceWithdrawRemovesOrphanStudent(t *testing.T) {
	requests := newRequestRepoStub()
	students := newStudentRepoStub()
	students.students["student-1"] = &models.Student{ID: "student-1", GuardianID: "guardian-1"}
	requests.requests["req-1"] = &models.Request{
		ID: "req-1", GuardianID: "guardian-1", StudentID: "student-1",
		Status: models.RequestStatusPending,
	}
	svc := newRequestService(requests, students, newEnrollmentRepoStub(), &gatewayStub{})

	require.NoError(t, svc.Withdraw(context.Background(), "req-1", guardianActor()))
	require.Empty(t, requests.requests)
	require.Equal(t, []string{"student-1"}, students.deleted)
}

func TestRequestServiceWithdrawKeepsEnrolledStudent(t *testing.T) {
	requests := newRequestRepoStub()
	students := newStudentRepoStub()
	students.students["student-1"] = &models.Student{ID: "student-1", GuardianID: "guardian-1"}
	enrollments := newEnrollmentRepoStub()
	enrollments.enrollments["student-1"] = &models.Enrollment{ID: "enr-1", StudentID: "student-1"}
	requests.requests["req-1"] = &models.Request{
		ID: "req-1", GuardianID: "guardian-1", StudentID: "student-1",
		Status: models.RequestStatusPending,
	}
	svc := newRequestService(requests, students, enrollments, &gatewayStub{})

	require.NoError(t, svc.Withdraw(context.Background(), "req-1", guardianActor()))
	require.Empty(t, students.deleted)
}

func TestRequestServiceWithdrawRejectsProcessedRequest(t *testing.T) {
	requests := newRequestRepoStub()
	requests.requests["req-1"] = &models.Request{
		ID: "req-1", GuardianID: "guardian-1", StudentID: "student-1",
		Status: models.RequestStatusPendingPayment,
	}
	svc := newRequestService(requests, newStudentRepoStub(), newEnrollmentRepoStub(), &gatewayStub{})

	err := svc.Withdraw(context.Background(), "req-1", guardianActor())
	require.Error(t, err)
	require.Contains(t, requests.requests, "req-1")
}

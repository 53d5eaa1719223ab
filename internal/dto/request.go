package dto

import (
	"github.com/noah-isme/sba-transport-api/internal/models"
)

// CreateRequestRequest is the payload a guardian submits to open a request.
// Either an existing student id or the name of a child to register is
// required for enrollment requests.
type CreateRequestRequest struct {
	Kind               models.RequestKind `json:"kind"`
	StudentID          string             `json:"student_id"`
	StudentName        string             `json:"student_name"`
	GradeLevel         string             `json:"grade_level"`
	TransportMode      string             `json:"transport_mode"`
	SubscriptionPeriod string             `json:"subscription_period"`
	Zone               string             `json:"zone"`
}

// TransitionRequest captures an administrator's workflow decision.
type TransitionRequest struct {
	Status models.RequestStatus `json:"status" validate:"required"`
	Reason string               `json:"reason"`
}

// ConfirmPaymentRequest carries the verification code presented at the
// office together with the settlement method.
type ConfirmPaymentRequest struct {
	Code   string               `json:"code" validate:"required"`
	Method models.PaymentMethod `json:"method"`
}

// RequestQuery mirrors supported listing filters. GuardianID is honored for
// administrators only; guardians are always scoped to themselves.
type RequestQuery struct {
	GuardianID string
	Status     []models.RequestStatus
	Kind       models.RequestKind
	StudentID  string
	Page       int
	PageSize   int
}

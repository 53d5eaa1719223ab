package dto

import "github.com/noah-isme/sba-transport-api/internal/models"

// PaymentQuery mirrors supported ledger filters.
type PaymentQuery struct {
	EnrollmentID string
	Month        int
	Year         int
}

// ConfirmPaymentResult reports the outcome of a settlement. AlreadyPaid is
// true when the confirmation was a retry and nothing new was recorded.
type ConfirmPaymentResult struct {
	Request     *models.Request   `json:"request"`
	Enrollment  models.Enrollment `json:"enrollment"`
	Payment     *models.Payment   `json:"payment,omitempty"`
	AlreadyPaid bool              `json:"already_paid"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestKind discriminates what a guardian request asks for. Only
// enrollment requests drive the transport workflow; other kinds share the
// table and are processed elsewhere.
type RequestKind string

const (
	RequestKindEnrollment RequestKind = "ENROLLMENT"
	RequestKindComplaint  RequestKind = "COMPLAINT"
	RequestKindOther      RequestKind = "OTHER"
)

// RequestStatus captures workflow states for enrollment requests.
type RequestStatus string

const (
	RequestStatusPending        RequestStatus = "PENDING"
	RequestStatusProcessing     RequestStatus = "PROCESSING"
	RequestStatusPendingPayment RequestStatus = "PENDING_PAYMENT"
	RequestStatusPaid           RequestStatus = "PAID"
	RequestStatusValidated      RequestStatus = "VALIDATED"
	RequestStatusRejected       RequestStatus = "REJECTED"
)

// Terminal reports whether no further transition is accepted from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusValidated || s == RequestStatusRejected
}

// PricingBreakdown is stamped onto the attributes payload when the request
// is priced and is never recomputed afterwards.
type PricingBreakdown struct {
	BaseAmount     int64   `json:"base_amount"`
	DiscountRate   float64 `json:"discount_rate"`
	DiscountAmount int64   `json:"discount_amount"`
	FinalAmount    int64   `json:"final_amount"`
	SiblingCount   int     `json:"sibling_count"`
}

// RequestAttributes is the structured payload column of a request. Keys the
// current schema does not know about are kept in Extra and merged back on
// serialization, so payloads written by older or sibling services survive a
// read-modify-write cycle.
type RequestAttributes struct {
	TransportMode      string
	SubscriptionPeriod string
	Zone               string
	Pricing            *PricingBreakdown
	Extra              map[string]json.RawMessage
}

const (
	attrKeyTransportMode      = "transport_mode"
	attrKeySubscriptionPeriod = "subscription_period"
	attrKeyZone               = "zone"
	attrKeyPricing            = "pricing"
)

// MarshalJSON flattens known fields and extra keys into one object.
func (a RequestAttributes) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(a.Extra)+4)
	for k, v := range a.Extra {
		merged[k] = v
	}
	setString := func(key, value string) error {
		if value == "" {
			return nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		merged[key] = raw
		return nil
	}
	if err := setString(attrKeyTransportMode, a.TransportMode); err != nil {
		return nil, err
	}
	if err := setString(attrKeySubscriptionPeriod, a.SubscriptionPeriod); err != nil {
		return nil, err
	}
	if err := setString(attrKeyZone, a.Zone); err != nil {
		return nil, err
	}
	if a.Pricing != nil {
		raw, err := json.Marshal(a.Pricing)
		if err != nil {
			return nil, err
		}
		merged[attrKeyPricing] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON lifts known keys into struct fields and retains the rest.
func (a *RequestAttributes) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*a = RequestAttributes{}
	for key, raw := range fields {
		switch key {
		case attrKeyTransportMode:
			if err := json.Unmarshal(raw, &a.TransportMode); err != nil {
				return err
			}
		case attrKeySubscriptionPeriod:
			if err := json.Unmarshal(raw, &a.SubscriptionPeriod); err != nil {
				return err
			}
		case attrKeyZone:
			if err := json.Unmarshal(raw, &a.Zone); err != nil {
				return err
			}
		case attrKeyPricing:
			pricing := &PricingBreakdown{}
			if err := json.Unmarshal(raw, pricing); err != nil {
				return err
			}
			a.Pricing = pricing
		default:
			if a.Extra == nil {
				a.Extra = make(map[string]json.RawMessage)
			}
			a.Extra[key] = raw
		}
	}
	return nil
}

// Value serialises the attributes for the JSONB column.
func (a RequestAttributes) Value() (driver.Value, error) {
	raw, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Scan restores the attributes from the JSONB column.
func (a *RequestAttributes) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = RequestAttributes{}
		return nil
	case []byte:
		return a.UnmarshalJSON(v)
	case string:
		return a.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported attributes column type %T", src)
	}
}

// Request is a guardian-initiated workflow instance stored in the requests
// table. Verification code and invoice amount are set if and only if the
// request has passed through PENDING_PAYMENT.
type Request struct {
	ID               string            `db:"id" json:"id"`
	Kind             RequestKind       `db:"kind" json:"kind"`
	StudentID        string            `db:"student_id" json:"student_id"`
	GuardianID       string            `db:"guardian_id" json:"guardian_id"`
	Status           RequestStatus     `db:"status" json:"status"`
	Attributes       RequestAttributes `db:"attributes" json:"attributes"`
	VerificationCode *string           `db:"verification_code" json:"verification_code,omitempty"`
	InvoiceAmount    *int64            `db:"invoice_amount" json:"invoice_amount,omitempty"`
	RejectionReason  *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ProcessedBy      *string           `db:"processed_by" json:"processed_by,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	ProcessedAt      *time.Time        `db:"processed_at" json:"processed_at,omitempty"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	GuardianID string
	StudentID  string
	Kind       RequestKind
	Status     []RequestStatus
	Page       int
	PageSize   int
}

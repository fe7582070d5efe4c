package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RFQStatus string

const (
	RFQStatusOpen      RFQStatus = "OPEN"
	RFQStatusBidding   RFQStatus = "BIDDING"
	RFQStatusAwarded   RFQStatus = "AWARDED"
	RFQStatusClosed    RFQStatus = "CLOSED"
	RFQStatusCancelled RFQStatus = "CANCELLED"
)

type RFQType string

const (
	RFQTypeStandard      RFQType = "STANDARD"
	RFQTypeCustomService RFQType = "CUSTOM_SERVICE"
)

type UrgencyTier string

const (
	UrgencyStandard UrgencyTier = "STANDARD"
	UrgencyUrgent   UrgencyTier = "URGENT"
)

type RFQ struct {
	ID                    uuid.UUID
	BuyerID               uuid.UUID
	FoundryID             uuid.UUID
	Title                 string
	Type                  RFQType
	Category              string
	Specification         string
	BudgetMin             decimal.Decimal
	BudgetMax             decimal.Decimal
	Deadline              *time.Time
	Urgency               UrgencyTier
	Status                RFQStatus
	PrioritySupplierID    *uuid.UUID
	PriorityHoldExpiresAt *time.Time
	AwardedSupplierID     *uuid.UUID
	AwardedAt             *time.Time
	OrderID               *uuid.UUID
	CancelReason          *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsTerminal reports whether no further status transition is possible.
func (r *RFQ) IsTerminal() bool {
	switch r.Status {
	case RFQStatusAwarded, RFQStatusClosed, RFQStatusCancelled:
		return true
	default:
		return false
	}
}

// HoldActive reports whether a priority hold is set and not yet expired.
// An expired hold is treated as absent everywhere.
func (r *RFQ) HoldActive(now time.Time) bool {
	return r.PrioritySupplierID != nil &&
		r.PriorityHoldExpiresAt != nil &&
		r.PriorityHoldExpiresAt.After(now)
}

func ParseRFQType(raw string) (RFQType, bool) {
	switch RFQType(raw) {
	case RFQTypeStandard:
		return RFQTypeStandard, true
	case RFQTypeCustomService:
		return RFQTypeCustomService, true
	default:
		return "", false
	}
}

func ParseUrgencyTier(raw string) (UrgencyTier, bool) {
	switch UrgencyTier(raw) {
	case UrgencyStandard:
		return UrgencyStandard, true
	case UrgencyUrgent:
		return UrgencyUrgent, true
	default:
		return "", false
	}
}

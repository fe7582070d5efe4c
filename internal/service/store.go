package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/foundry-rfq/internal/model"
)

// RFQUpdate carries the buyer-editable fields of an RFQ. Nil means "leave
// unchanged".
type RFQUpdate struct {
	Title         *string
	Category      *string
	Specification *string
	BudgetMin     *decimal.Decimal
	BudgetMax     *decimal.Decimal
	Deadline      *time.Time
	Urgency       *model.UrgencyTier
}

// RFQStore persists RFQs. Every mutating operation that competes with other
// requests is a single conditional write reporting success through its bool
// result; callers never read state and then decide in application code.
type RFQStore interface {
	CreateRFQ(ctx context.Context, rfq model.RFQ) (*model.RFQ, error)
	GetRFQ(ctx context.Context, id uuid.UUID) (*model.RFQ, error)
	ListRFQsByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.RFQ, error)

	// UpdateRFQFields applies fields only while the RFQ is Open or Bidding.
	UpdateRFQFields(ctx context.Context, id uuid.UUID, fields RFQUpdate, now time.Time) (bool, error)

	// OpenToBidding advances Open -> Bidding. False when already past Open.
	OpenToBidding(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// AcquireHold is the race-critical compare-and-set: it succeeds only if
	// the RFQ is Open or Bidding and carries no unexpired hold.
	AcquireHold(ctx context.Context, id, supplierID uuid.UUID, expiresAt, now time.Time) (bool, error)

	// ReleaseHold clears the hold only while holderID still holds it unexpired.
	ReleaseHold(ctx context.Context, id, holderID uuid.UUID, now time.Time) (bool, error)

	// AwardRFQ transitions to Awarded in one conditional write. The guard
	// admits custom-service RFQs unconditionally; otherwise any unexpired
	// hold must belong to supplierID.
	AwardRFQ(ctx context.Context, id, supplierID uuid.UUID, now time.Time) (bool, error)

	// CancelRFQ moves any non-terminal RFQ to Cancelled, clearing the hold.
	CancelRFQ(ctx context.Context, id uuid.UUID, reason *string, now time.Time) (bool, error)

	// CloseRFQ moves Open/Bidding to Closed, refused while a hold is active.
	CloseRFQ(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	SetOrderID(ctx context.Context, id, orderID uuid.UUID, now time.Time) error

	// ClearExpiredHolds is sweeper hygiene; lazy expiry stays authoritative.
	ClearExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}

// BroadcastStore persists fan-out rows, one per (RFQ, supplier) pair.
type BroadcastStore interface {
	// InsertPending inserts pending rows for suppliers without an existing
	// row and returns the supplier IDs actually inserted. Idempotent.
	InsertPending(ctx context.Context, rfqID uuid.UUID, supplierIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error)

	GetBroadcast(ctx context.Context, rfqID, supplierID uuid.UUID) (*model.Broadcast, error)
	ListBroadcasts(ctx context.Context, rfqID uuid.UUID) ([]model.Broadcast, error)
	CountResponses(ctx context.Context, rfqID uuid.UUID) (model.ResponseCounts, error)

	// RecordResponse stores a supplier response unless the supplier already
	// declined; decline is terminal per supplier.
	RecordResponse(ctx context.Context, rfqID, supplierID uuid.UUID, response model.ResponseType,
		quotedPrice *decimal.Decimal, message *string, now time.Time) (bool, error)
}

// SupplierDirectory is the external directory the matcher reads from.
type SupplierDirectory interface {
	ListSuppliers(ctx context.Context, filter SupplierFilter) ([]model.Supplier, error)
}

type SupplierFilter struct {
	Category string
}

// OrderTerms is the settlement payload handed to the order subsystem.
type OrderTerms struct {
	QuotedPrice *decimal.Decimal
	Deadline    *time.Time
}

// OrderCreator is the order subsystem boundary; called exactly once per
// awarded RFQ.
type OrderCreator interface {
	CreateOrder(ctx context.Context, buyerID, supplierID, rfqID uuid.UUID, terms OrderTerms) (uuid.UUID, error)
}

// Notifier dispatches best-effort user notifications. Implementations must
// never let a delivery failure surface into an RFQ state transition.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{})
}

// Notification event types.
const (
	EventRFQBroadcast  = "rfq.broadcast"
	EventResponse      = "rfq.response"
	EventHoldAcquired  = "rfq.hold.acquired"
	EventHoldLost      = "rfq.hold.lost"
	EventHoldReleased  = "rfq.hold.released"
	EventHoldExpired   = "rfq.hold.expired"
	EventRFQAwarded    = "rfq.awarded"
	EventRFQCancelled  = "rfq.cancelled"
	EventRFQClosed     = "rfq.closed"
	EventInfoRequested = "rfq.info_requested"
)

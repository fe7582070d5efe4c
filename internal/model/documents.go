package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidComparisonRow is one supplier line of the buyer's comparison export.
type BidComparisonRow struct {
	SupplierID   uuid.UUID
	SupplierName string
	Response     ResponseType
	QuotedPrice  *decimal.Decimal
	Message      *string
	DeliveredAt  time.Time
	RespondedAt  *time.Time
}

type BidComparison struct {
	RFQ  RFQ
	Rows []BidComparisonRow
}

// AwardDocument feeds the award-confirmation PDF.
type AwardDocument struct {
	RFQ          RFQ
	SupplierID   uuid.UUID
	SupplierName string
	QuotedPrice  *decimal.Decimal
	OrderID      *uuid.UUID
}

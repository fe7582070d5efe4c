package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ResponseType string

const (
	ResponsePending     ResponseType = "PENDING"
	ResponseAccept      ResponseType = "ACCEPT"
	ResponseDecline     ResponseType = "DECLINE"
	ResponseInfoRequest ResponseType = "INFO_REQUEST"
)

// Broadcast is the fan-out record linking one RFQ to one candidate supplier.
// At most one row exists per (RFQ, supplier) pair.
type Broadcast struct {
	ID          uuid.UUID
	RFQID       uuid.UUID
	SupplierID  uuid.UUID
	DeliveredAt time.Time
	ViewedAt    *time.Time
	Response    ResponseType
	QuotedPrice *decimal.Decimal
	Message     *string
	RespondedAt *time.Time
}

type ResponseCounts struct {
	Pending      int64
	Accepted     int64
	Declined     int64
	InfoRequests int64
}

func ParseResponseType(raw string) (ResponseType, bool) {
	switch ResponseType(raw) {
	case ResponseAccept:
		return ResponseAccept, true
	case ResponseDecline:
		return ResponseDecline, true
	case ResponseInfoRequest:
		return ResponseInfoRequest, true
	default:
		return "", false
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type RacePhase string

const (
	RacePhaseOpen         RacePhase = "OPEN"
	RacePhaseBidding      RacePhase = "BIDDING"
	RacePhasePriorityHold RacePhase = "PRIORITY_HOLD"
	RacePhaseAwarded      RacePhase = "AWARDED"
	RacePhaseClosed       RacePhase = "CLOSED"
	RacePhaseCancelled    RacePhase = "CANCELLED"
)

// RaceStatus is the read-only projection of an RFQ's race state.
// PRIORITY_HOLD is derived: the stored status stays BIDDING while the hold
// columns are active.
type RaceStatus struct {
	RFQID          uuid.UUID
	Phase          RacePhase
	HoldSupplierID *uuid.UUID
	HoldExpiresAt  *time.Time
	Responses      ResponseCounts
}

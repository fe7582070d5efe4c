package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/config"
	"github.com/nurpe/foundry-rfq/internal/matcher"
	"github.com/nurpe/foundry-rfq/internal/metrics"
	"github.com/nurpe/foundry-rfq/internal/model"
)

// RaceService fans an RFQ out to matched suppliers and resolves the
// concurrent-accept race. The at-most-one-hold invariant rests entirely on
// the store's conditional writes; this service never decides the race in
// application code.
type RaceService struct {
	rfqs       RFQStore
	broadcasts BroadcastStore
	directory  SupplierDirectory
	matcher    *matcher.Matcher
	notifier   Notifier
	race       config.RaceConfig
	log        zerolog.Logger
}

func NewRaceService(
	rfqs RFQStore,
	broadcasts BroadcastStore,
	directory SupplierDirectory,
	m *matcher.Matcher,
	notifier Notifier,
	race config.RaceConfig,
	log zerolog.Logger,
) *RaceService {
	return &RaceService{
		rfqs:       rfqs,
		broadcasts: broadcasts,
		directory:  directory,
		matcher:    m,
		notifier:   notifier,
		race:       race,
		log:        log,
	}
}

// MatchSuppliers ranks directory candidates for an RFQ without side effects.
func (s *RaceService) MatchSuppliers(ctx context.Context, principal model.Principal, rfqID uuid.UUID) ([]model.SupplierMatch, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if rfq.IsTerminal() {
		return nil, fmt.Errorf("%w: rfq is %s", ErrStateConflict, rfq.Status)
	}

	suppliers, err := s.directory.ListSuppliers(ctx, SupplierFilter{Category: rfq.Category})
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return s.matcher.Match(rfq, suppliers), nil
}

type BroadcastResult struct {
	RFQ       *model.RFQ
	Delivered []uuid.UUID
	Matched   int
}

// Broadcast inserts a pending broadcast row for every matched supplier that
// has none yet and advances Open to Bidding. Safe to re-invoke; suppliers
// already broadcast are skipped by the conditional insert.
func (s *RaceService) Broadcast(ctx context.Context, principal model.Principal, rfqID uuid.UUID) (*BroadcastResult, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if rfq.IsTerminal() {
		return nil, fmt.Errorf("%w: rfq is %s", ErrStateConflict, rfq.Status)
	}

	suppliers, err := s.directory.ListSuppliers(ctx, SupplierFilter{Category: rfq.Category})
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	matches := s.matcher.Match(rfq, suppliers)

	now := time.Now().UTC()
	supplierIDs := make([]uuid.UUID, 0, len(matches))
	for _, match := range matches {
		supplierIDs = append(supplierIDs, match.SupplierID)
	}

	delivered, err := s.broadcasts.InsertPending(ctx, rfqID, supplierIDs, now)
	if err != nil {
		return nil, fmt.Errorf("insert broadcasts: %w", err)
	}

	if _, err := s.rfqs.OpenToBidding(ctx, rfqID, now); err != nil {
		return nil, fmt.Errorf("advance to bidding: %w", err)
	}

	for _, supplierID := range delivered {
		s.notifier.Notify(ctx, supplierID, EventRFQBroadcast, map[string]interface{}{
			"rfq_id":   rfqID.String(),
			"title":    rfq.Title,
			"category": rfq.Category,
			"urgency":  string(rfq.Urgency),
		})
	}
	metrics.BroadcastsFannedOut.Add(float64(len(delivered)))

	s.log.Info().
		Str("rfq_id", rfqID.String()).
		Int("matched", len(matches)).
		Int("delivered", len(delivered)).
		Msg("rfq broadcast")

	updated, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	return &BroadcastResult{RFQ: updated, Delivered: delivered, Matched: len(matches)}, nil
}

type RespondInput struct {
	Response    string
	QuotedPrice *decimal.Decimal
	Message     *string
}

type RespondResult struct {
	Response      model.ResponseType
	PriorityHold  bool
	HoldExpiresAt *time.Time
}

// Respond records a supplier response. For accepts, the priority hold is
// acquired through a single conditional write; losing the race is a normal
// outcome reported through PriorityHold=false, never an error.
func (s *RaceService) Respond(ctx context.Context, principal model.Principal, rfqID uuid.UUID, input RespondInput) (*RespondResult, error) {
	if !principal.IsSupplier() {
		return nil, ErrPermissionDenied
	}
	supplierID := principal.OrgID

	responseType, ok := model.ParseResponseType(input.Response)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized response type %q", ErrInvalidInput, input.Response)
	}

	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.IsTerminal() {
		return nil, fmt.Errorf("%w: rfq is %s", ErrStateConflict, rfq.Status)
	}

	broadcast, err := s.broadcasts.GetBroadcast(ctx, rfqID, supplierID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotBroadcast
		}
		return nil, fmt.Errorf("load broadcast: %w", err)
	}
	if broadcast.Response == model.ResponseDecline {
		return nil, ErrAlreadyDeclined
	}

	switch responseType {
	case model.ResponseDecline:
		return s.recordDecline(ctx, rfq, supplierID, input)
	case model.ResponseInfoRequest:
		return s.recordInfoRequest(ctx, rfq, supplierID, input)
	case model.ResponseAccept:
		return s.recordAccept(ctx, rfq, supplierID, input)
	default:
		return nil, fmt.Errorf("%w: unsupported response type", ErrInvalidInput)
	}
}

func (s *RaceService) recordDecline(ctx context.Context, rfq *model.RFQ, supplierID uuid.UUID, input RespondInput) (*RespondResult, error) {
	now := time.Now().UTC()
	recorded, err := s.broadcasts.RecordResponse(ctx, rfq.ID, supplierID, model.ResponseDecline, nil, input.Message, now)
	if err != nil {
		return nil, fmt.Errorf("record decline: %w", err)
	}
	if !recorded {
		return nil, ErrAlreadyDeclined
	}
	metrics.ResponsesRecorded.WithLabelValues(string(model.ResponseDecline)).Inc()

	// A declining holder gives the hold back; the RFQ reopens for bidding
	// instead of closing.
	released, err := s.rfqs.ReleaseHold(ctx, rfq.ID, supplierID, now)
	if err != nil {
		return nil, fmt.Errorf("release hold on decline: %w", err)
	}
	if released {
		s.notifier.Notify(ctx, rfq.BuyerID, EventHoldReleased, map[string]interface{}{
			"rfq_id":      rfq.ID.String(),
			"supplier_id": supplierID.String(),
			"cause":       "declined",
		})
		s.log.Info().
			Str("rfq_id", rfq.ID.String()).
			Str("supplier_id", supplierID.String()).
			Msg("holder declined, hold released")
	}

	s.notifier.Notify(ctx, rfq.BuyerID, EventResponse, map[string]interface{}{
		"rfq_id":      rfq.ID.String(),
		"supplier_id": supplierID.String(),
		"response":    string(model.ResponseDecline),
	})
	return &RespondResult{Response: model.ResponseDecline}, nil
}

func (s *RaceService) recordInfoRequest(ctx context.Context, rfq *model.RFQ, supplierID uuid.UUID, input RespondInput) (*RespondResult, error) {
	if input.Message == nil || *input.Message == "" {
		return nil, fmt.Errorf("%w: info_request requires a message", ErrInvalidInput)
	}
	recorded, err := s.broadcasts.RecordResponse(ctx, rfq.ID, supplierID, model.ResponseInfoRequest, nil, input.Message, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record info request: %w", err)
	}
	if !recorded {
		return nil, ErrAlreadyDeclined
	}
	metrics.ResponsesRecorded.WithLabelValues(string(model.ResponseInfoRequest)).Inc()

	s.notifier.Notify(ctx, rfq.BuyerID, EventInfoRequested, map[string]interface{}{
		"rfq_id":      rfq.ID.String(),
		"supplier_id": supplierID.String(),
		"message":     *input.Message,
	})
	return &RespondResult{Response: model.ResponseInfoRequest}, nil
}

func (s *RaceService) recordAccept(ctx context.Context, rfq *model.RFQ, supplierID uuid.UUID, input RespondInput) (*RespondResult, error) {
	now := time.Now().UTC()

	// The accept is recorded regardless of the race outcome; losing the
	// race must still leave an audit trail.
	recorded, err := s.broadcasts.RecordResponse(ctx, rfq.ID, supplierID, model.ResponseAccept, input.QuotedPrice, input.Message, now)
	if err != nil {
		return nil, fmt.Errorf("record accept: %w", err)
	}
	if !recorded {
		return nil, ErrAlreadyDeclined
	}
	metrics.ResponsesRecorded.WithLabelValues(string(model.ResponseAccept)).Inc()

	expiresAt := now.Add(s.holdWindow(rfq.Urgency))
	won, err := s.rfqs.AcquireHold(ctx, rfq.ID, supplierID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("acquire hold: %w", err)
	}
	metrics.IncRaceOutcome(won)

	if !won {
		// Distinguish a lost race from an RFQ that left Bidding while the
		// request was in flight.
		current, readErr := s.loadRFQ(ctx, rfq.ID)
		if readErr != nil {
			return nil, readErr
		}
		if current.IsTerminal() {
			return nil, fmt.Errorf("%w: rfq is %s", ErrStateConflict, current.Status)
		}

		s.notifier.Notify(ctx, supplierID, EventHoldLost, map[string]interface{}{
			"rfq_id": rfq.ID.String(),
		})
		s.log.Info().
			Str("rfq_id", rfq.ID.String()).
			Str("supplier_id", supplierID.String()).
			Msg("accept lost the priority race")
		return &RespondResult{Response: model.ResponseAccept, PriorityHold: false}, nil
	}

	s.notifier.Notify(ctx, rfq.BuyerID, EventHoldAcquired, map[string]interface{}{
		"rfq_id":      rfq.ID.String(),
		"supplier_id": supplierID.String(),
		"expires_at":  expiresAt.Format(time.RFC3339),
	})
	s.log.Info().
		Str("rfq_id", rfq.ID.String()).
		Str("supplier_id", supplierID.String()).
		Time("expires_at", expiresAt).
		Msg("priority hold acquired")
	return &RespondResult{Response: model.ResponseAccept, PriorityHold: true, HoldExpiresAt: &expiresAt}, nil
}

// ReleaseHold clears an active hold back to open bidding. Only the owning
// buyer or the holding supplier may release.
func (s *RaceService) ReleaseHold(ctx context.Context, principal model.Principal, rfqID uuid.UUID) error {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if !rfq.HoldActive(now) {
		return fmt.Errorf("%w: no active hold to release", ErrStateConflict)
	}
	holderID := *rfq.PrioritySupplierID

	isBuyer := principal.IsBuyer() && rfq.BuyerID == principal.UserID
	isHolder := principal.IsSupplier() && principal.OrgID == holderID
	if !isBuyer && !isHolder {
		return ErrPermissionDenied
	}

	released, err := s.rfqs.ReleaseHold(ctx, rfqID, holderID, now)
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	if !released {
		return fmt.Errorf("%w: hold changed concurrently, refresh and retry", ErrStateConflict)
	}

	s.notifier.Notify(ctx, rfq.BuyerID, EventHoldReleased, map[string]interface{}{
		"rfq_id":      rfqID.String(),
		"supplier_id": holderID.String(),
	})
	s.notifier.Notify(ctx, holderID, EventHoldReleased, map[string]interface{}{
		"rfq_id": rfqID.String(),
	})
	s.log.Info().Str("rfq_id", rfqID.String()).Msg("priority hold released")
	return nil
}

// CheckRaceStatus is the polling projection: current hold holder, expiry,
// and response counts. An expired hold reads as plain Bidding.
func (s *RaceService) CheckRaceStatus(ctx context.Context, principal model.Principal, rfqID uuid.UUID) (*model.RaceStatus, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}

	if principal.IsSupplier() {
		if _, err := s.broadcasts.GetBroadcast(ctx, rfqID, principal.OrgID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, ErrPermissionDenied
			}
			return nil, fmt.Errorf("load broadcast: %w", err)
		}
	} else if rfq.BuyerID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	counts, err := s.broadcasts.CountResponses(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}

	status := &model.RaceStatus{
		RFQID:     rfqID,
		Phase:     racePhase(rfq, time.Now().UTC()),
		Responses: counts,
	}
	if status.Phase == model.RacePhasePriorityHold {
		status.HoldSupplierID = rfq.PrioritySupplierID
		status.HoldExpiresAt = rfq.PriorityHoldExpiresAt
	}
	return status, nil
}

// BidComparison assembles the buyer's side-by-side view of every broadcast
// supplier and its response, enriched with directory names.
func (s *RaceService) BidComparison(ctx context.Context, principal model.Principal, rfqID uuid.UUID) (*model.BidComparison, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	broadcasts, err := s.broadcasts.ListBroadcasts(ctx, rfqID)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}

	suppliers, err := s.directory.ListSuppliers(ctx, SupplierFilter{})
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	names := make(map[uuid.UUID]string, len(suppliers))
	for _, supplier := range suppliers {
		names[supplier.ID] = supplier.Name
	}

	rows := make([]model.BidComparisonRow, 0, len(broadcasts))
	for _, b := range broadcasts {
		rows = append(rows, model.BidComparisonRow{
			SupplierID:   b.SupplierID,
			SupplierName: names[b.SupplierID],
			Response:     b.Response,
			QuotedPrice:  b.QuotedPrice,
			Message:      b.Message,
			DeliveredAt:  b.DeliveredAt,
			RespondedAt:  b.RespondedAt,
		})
	}
	return &model.BidComparison{RFQ: *rfq, Rows: rows}, nil
}

func (s *RaceService) holdWindow(urgency model.UrgencyTier) time.Duration {
	if urgency == model.UrgencyUrgent {
		return s.race.HoldWindowUrgent
	}
	return s.race.HoldWindowStandard
}

func (s *RaceService) loadRFQ(ctx context.Context, rfqID uuid.UUID) (*model.RFQ, error) {
	rfq, err := s.rfqs.GetRFQ(ctx, rfqID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load rfq: %w", err)
	}
	return rfq, nil
}

func racePhase(rfq *model.RFQ, now time.Time) model.RacePhase {
	switch rfq.Status {
	case model.RFQStatusOpen:
		return model.RacePhaseOpen
	case model.RFQStatusAwarded:
		return model.RacePhaseAwarded
	case model.RFQStatusClosed:
		return model.RacePhaseClosed
	case model.RFQStatusCancelled:
		return model.RacePhaseCancelled
	default:
		if rfq.HoldActive(now) {
			return model.RacePhasePriorityHold
		}
		return model.RacePhaseBidding
	}
}

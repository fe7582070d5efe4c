package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/metrics"
	"github.com/nurpe/foundry-rfq/internal/model"
)

// AwardService is the bridge from a resolved race (or a manual pick on a
// custom-service RFQ) to the order subsystem. The conditional transition to
// Awarded is the exactly-once guard for order creation.
type AwardService struct {
	rfqs       RFQStore
	broadcasts BroadcastStore
	directory  SupplierDirectory
	orders     OrderCreator
	notifier   Notifier
	log        zerolog.Logger
}

func NewAwardService(rfqs RFQStore, broadcasts BroadcastStore, directory SupplierDirectory, orders OrderCreator, notifier Notifier, log zerolog.Logger) *AwardService {
	return &AwardService{
		rfqs:       rfqs,
		broadcasts: broadcasts,
		directory:  directory,
		orders:     orders,
		notifier:   notifier,
		log:        log,
	}
}

type AwardResult struct {
	RFQ     *model.RFQ
	OrderID uuid.UUID
}

// Award assigns the RFQ to one supplier and creates the order exactly once.
// Standard RFQs follow the race: an active hold must belong to the chosen
// supplier. Custom-service RFQs allow the buyer to pick any broadcast
// supplier directly.
func (s *AwardService) Award(ctx context.Context, principal model.Principal, rfqID, supplierID uuid.UUID) (*AwardResult, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if !principal.IsBuyer() || rfq.BuyerID != principal.UserID {
		return nil, ErrPermissionDenied
	}

	now := time.Now().UTC()
	if err := s.checkPreconditions(ctx, rfq, supplierID, now); err != nil {
		return nil, err
	}

	awarded, err := s.rfqs.AwardRFQ(ctx, rfqID, supplierID, now)
	if err != nil {
		return nil, fmt.Errorf("award rfq: %w", err)
	}
	if !awarded {
		// The conditional write is authoritative; classify the conflict
		// from fresh state for the caller's benefit.
		current, readErr := s.loadRFQ(ctx, rfqID)
		if readErr != nil {
			return nil, readErr
		}
		if current.Status == model.RFQStatusAwarded {
			return nil, ErrAlreadyAwarded
		}
		if current.HoldActive(now) && *current.PrioritySupplierID != supplierID {
			return nil, ErrHoldActive
		}
		return nil, fmt.Errorf("%w: rfq is %s", ErrStateConflict, current.Status)
	}

	terms := s.buildTerms(ctx, rfq, supplierID)
	orderID, err := s.orders.CreateOrder(ctx, rfq.BuyerID, supplierID, rfqID, terms)
	if err != nil {
		// The award stands; re-driving order creation belongs to the order
		// subsystem, not to a retry loop here.
		s.log.Error().Err(err).
			Str("rfq_id", rfqID.String()).
			Str("supplier_id", supplierID.String()).
			Msg("order creation failed after award")
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := s.rfqs.SetOrderID(ctx, rfqID, orderID, time.Now().UTC()); err != nil {
		s.log.Error().Err(err).Str("rfq_id", rfqID.String()).Msg("record order id failed")
	}

	path := "race"
	if rfq.Type == model.RFQTypeCustomService {
		path = "manual"
	}
	metrics.AwardsTotal.WithLabelValues(path).Inc()

	s.notifier.Notify(ctx, supplierID, EventRFQAwarded, map[string]interface{}{
		"rfq_id":   rfqID.String(),
		"order_id": orderID.String(),
	})
	s.notifier.Notify(ctx, rfq.BuyerID, EventRFQAwarded, map[string]interface{}{
		"rfq_id":      rfqID.String(),
		"supplier_id": supplierID.String(),
		"order_id":    orderID.String(),
	})
	s.log.Info().
		Str("rfq_id", rfqID.String()).
		Str("supplier_id", supplierID.String()).
		Str("order_id", orderID.String()).
		Str("path", path).
		Msg("rfq awarded")

	updated, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	return &AwardResult{RFQ: updated, OrderID: orderID}, nil
}

func (s *AwardService) checkPreconditions(ctx context.Context, rfq *model.RFQ, supplierID uuid.UUID, now time.Time) error {
	switch rfq.Status {
	case model.RFQStatusAwarded:
		return ErrAlreadyAwarded
	case model.RFQStatusClosed, model.RFQStatusCancelled:
		return fmt.Errorf("%w: rfq is %s", ErrStateConflict, rfq.Status)
	}

	// The supplier must have been part of the fan-out, on both paths.
	if _, err := s.broadcasts.GetBroadcast(ctx, rfq.ID, supplierID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotBroadcast
		}
		return fmt.Errorf("load broadcast: %w", err)
	}

	if rfq.Type != model.RFQTypeCustomService &&
		rfq.HoldActive(now) && *rfq.PrioritySupplierID != supplierID {
		return ErrHoldActive
	}
	return nil
}

func (s *AwardService) buildTerms(ctx context.Context, rfq *model.RFQ, supplierID uuid.UUID) OrderTerms {
	terms := OrderTerms{Deadline: rfq.Deadline}
	if broadcast, err := s.broadcasts.GetBroadcast(ctx, rfq.ID, supplierID); err == nil {
		terms.QuotedPrice = broadcast.QuotedPrice
	}
	return terms
}

// Confirmation builds the award-confirmation document for an awarded RFQ.
func (s *AwardService) Confirmation(ctx context.Context, principal model.Principal, rfqID uuid.UUID) (*model.AwardDocument, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	if rfq.Status != model.RFQStatusAwarded || rfq.AwardedSupplierID == nil {
		return nil, fmt.Errorf("%w: rfq is not awarded", ErrStateConflict)
	}
	supplierID := *rfq.AwardedSupplierID

	doc := &model.AwardDocument{
		RFQ:        *rfq,
		SupplierID: supplierID,
		OrderID:    rfq.OrderID,
	}

	if broadcast, err := s.broadcasts.GetBroadcast(ctx, rfqID, supplierID); err == nil {
		doc.QuotedPrice = broadcast.QuotedPrice
	}

	suppliers, err := s.directory.ListSuppliers(ctx, SupplierFilter{})
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	for _, supplier := range suppliers {
		if supplier.ID == supplierID {
			doc.SupplierName = supplier.Name
			break
		}
	}
	return doc, nil
}

func (s *AwardService) loadRFQ(ctx context.Context, rfqID uuid.UUID) (*model.RFQ, error) {
	rfq, err := s.rfqs.GetRFQ(ctx, rfqID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load rfq: %w", err)
	}
	return rfq, nil
}

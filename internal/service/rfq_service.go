package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/model"
)

// RFQService owns the coarse RFQ lifecycle: create, update, cancel, close.
// Broadcasting is a separate explicit step on RaceService so creation and
// fan-out can fail and retry independently.
type RFQService struct {
	rfqs     RFQStore
	notifier Notifier
	log      zerolog.Logger
}

func NewRFQService(rfqs RFQStore, notifier Notifier, log zerolog.Logger) *RFQService {
	return &RFQService{rfqs: rfqs, notifier: notifier, log: log}
}

type CreateRFQInput struct {
	Title         string
	Type          string
	Category      string
	Specification string
	BudgetMin     decimal.Decimal
	BudgetMax     decimal.Decimal
	Deadline      *time.Time
	Urgency       string
}

func (s *RFQService) Create(ctx context.Context, principal model.Principal, input CreateRFQInput) (*model.RFQ, error) {
	if !principal.IsBuyer() {
		return nil, ErrPermissionDenied
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	rfqType, ok := model.ParseRFQType(input.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized rfq type %q", ErrInvalidInput, input.Type)
	}
	urgency := model.UrgencyStandard
	if input.Urgency != "" {
		urgency, ok = model.ParseUrgencyTier(input.Urgency)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized urgency %q", ErrInvalidInput, input.Urgency)
		}
	}
	if input.BudgetMin.IsNegative() || input.BudgetMax.IsNegative() {
		return nil, fmt.Errorf("%w: budget bounds must not be negative", ErrInvalidInput)
	}
	if input.BudgetMax.IsPositive() && input.BudgetMin.GreaterThan(input.BudgetMax) {
		return nil, fmt.Errorf("%w: budget_min exceeds budget_max", ErrInvalidInput)
	}

	rfq := model.RFQ{
		BuyerID:       principal.UserID,
		FoundryID:     principal.OrgID,
		Title:         strings.TrimSpace(input.Title),
		Type:          rfqType,
		Category:      strings.TrimSpace(input.Category),
		Specification: input.Specification,
		BudgetMin:     input.BudgetMin,
		BudgetMax:     input.BudgetMax,
		Deadline:      input.Deadline,
		Urgency:       urgency,
		Status:        model.RFQStatusOpen,
	}

	created, err := s.rfqs.CreateRFQ(ctx, rfq)
	if err != nil {
		return nil, fmt.Errorf("create rfq: %w", err)
	}

	s.log.Info().
		Str("rfq_id", created.ID.String()).
		Str("buyer_id", created.BuyerID.String()).
		Str("type", string(created.Type)).
		Msg("rfq created")
	return created, nil
}

func (s *RFQService) Get(ctx context.Context, principal model.Principal, rfqID uuid.UUID) (*model.RFQ, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if !s.mayView(principal, rfq) {
		return nil, ErrPermissionDenied
	}
	return rfq, nil
}

func (s *RFQService) ListOwn(ctx context.Context, principal model.Principal) ([]model.RFQ, error) {
	if !principal.IsBuyer() {
		return nil, ErrPermissionDenied
	}
	rfqs, err := s.rfqs.ListRFQsByBuyer(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("list rfqs: %w", err)
	}
	return rfqs, nil
}

func (s *RFQService) Update(ctx context.Context, principal model.Principal, rfqID uuid.UUID, fields RFQUpdate) (*model.RFQ, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID {
		return nil, ErrPermissionDenied
	}
	if fields.Title != nil && strings.TrimSpace(*fields.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
	}

	updated, err := s.rfqs.UpdateRFQFields(ctx, rfqID, fields, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update rfq: %w", err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: rfq is no longer editable", ErrStateConflict)
	}
	return s.loadRFQ(ctx, rfqID)
}

func (s *RFQService) Cancel(ctx context.Context, principal model.Principal, rfqID uuid.UUID, reason *string) (*model.RFQ, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID {
		return nil, ErrPermissionDenied
	}

	now := time.Now().UTC()
	cancelled, err := s.rfqs.CancelRFQ(ctx, rfqID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("cancel rfq: %w", err)
	}
	if !cancelled {
		return nil, fmt.Errorf("%w: rfq already reached a terminal state", ErrStateConflict)
	}

	if holder := rfq.PrioritySupplierID; holder != nil && rfq.HoldActive(now) {
		s.notifier.Notify(ctx, *holder, EventHoldReleased, map[string]interface{}{
			"rfq_id": rfqID.String(),
			"cause":  "cancelled",
		})
	}
	s.notifier.Notify(ctx, rfq.BuyerID, EventRFQCancelled, map[string]interface{}{
		"rfq_id": rfqID.String(),
	})
	s.log.Info().Str("rfq_id", rfqID.String()).Msg("rfq cancelled")
	return s.loadRFQ(ctx, rfqID)
}

func (s *RFQService) Close(ctx context.Context, principal model.Principal, rfqID uuid.UUID) (*model.RFQ, error) {
	rfq, err := s.loadRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != principal.UserID {
		return nil, ErrPermissionDenied
	}

	closed, err := s.rfqs.CloseRFQ(ctx, rfqID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("close rfq: %w", err)
	}
	if !closed {
		// Either terminal already or a supplier still holds the priority
		// hold; the buyer must release the hold before closing.
		current, readErr := s.loadRFQ(ctx, rfqID)
		if readErr == nil && current.HoldActive(time.Now().UTC()) {
			return nil, fmt.Errorf("%w: release the active hold before closing", ErrHoldActive)
		}
		return nil, fmt.Errorf("%w: rfq already reached a terminal state", ErrStateConflict)
	}

	s.notifier.Notify(ctx, rfq.BuyerID, EventRFQClosed, map[string]interface{}{
		"rfq_id": rfqID.String(),
	})
	s.log.Info().Str("rfq_id", rfqID.String()).Msg("rfq closed without award")
	return s.loadRFQ(ctx, rfqID)
}

func (s *RFQService) loadRFQ(ctx context.Context, rfqID uuid.UUID) (*model.RFQ, error) {
	rfq, err := s.rfqs.GetRFQ(ctx, rfqID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load rfq: %w", err)
	}
	return rfq, nil
}

func (s *RFQService) mayView(principal model.Principal, rfq *model.RFQ) bool {
	if principal.IsAdmin() {
		return true
	}
	if principal.IsBuyer() {
		return rfq.BuyerID == principal.UserID
	}
	// Suppliers see RFQs through their broadcasts; the race endpoints carry
	// their own checks, the bare read is buyer/admin surface.
	return false
}

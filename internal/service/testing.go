package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/model"
)

// MemoryStore is an in-memory implementation of RFQStore, BroadcastStore,
// SupplierDirectory and OrderCreator for tests and local experiments. One
// mutex plays the role of the database's conditional-write atomicity: every
// compare-and-set inspects and mutates state under the same lock, so the
// race semantics match the SQL repositories.
type MemoryStore struct {
	mu         sync.Mutex
	rfqs       map[uuid.UUID]model.RFQ
	broadcasts map[uuid.UUID]map[uuid.UUID]model.Broadcast
	suppliers  []model.Supplier
	orders     map[uuid.UUID]uuid.UUID // rfq -> order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rfqs:       make(map[uuid.UUID]model.RFQ),
		broadcasts: make(map[uuid.UUID]map[uuid.UUID]model.Broadcast),
		orders:     make(map[uuid.UUID]uuid.UUID),
	}
}

// SeedSuppliers replaces the directory contents.
func (s *MemoryStore) SeedSuppliers(suppliers []model.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers = suppliers
}

// PutRFQ overwrites a stored RFQ, bypassing all guards. Test setup only.
func (s *MemoryStore) PutRFQ(rfq model.RFQ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rfqs[rfq.ID] = rfq
}

// OrderCount reports how many orders were created.
func (s *MemoryStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// RFQStore

func (s *MemoryStore) CreateRFQ(ctx context.Context, rfq model.RFQ) (*model.RFQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq.ID = uuid.New()
	now := time.Now().UTC()
	rfq.CreatedAt = now
	rfq.UpdatedAt = now
	s.rfqs[rfq.ID] = rfq
	saved := rfq
	return &saved, nil
}

func (s *MemoryStore) GetRFQ(ctx context.Context, id uuid.UUID) (*model.RFQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := rfq
	return &copied, nil
}

func (s *MemoryStore) ListRFQsByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.RFQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.RFQ
	for _, rfq := range s.rfqs {
		if rfq.BuyerID == buyerID {
			result = append(result, rfq)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateRFQFields(ctx context.Context, id uuid.UUID, fields RFQUpdate, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok || (rfq.Status != model.RFQStatusOpen && rfq.Status != model.RFQStatusBidding) {
		return false, nil
	}
	if fields.Title != nil {
		rfq.Title = *fields.Title
	}
	if fields.Category != nil {
		rfq.Category = *fields.Category
	}
	if fields.Specification != nil {
		rfq.Specification = *fields.Specification
	}
	if fields.BudgetMin != nil {
		rfq.BudgetMin = *fields.BudgetMin
	}
	if fields.BudgetMax != nil {
		rfq.BudgetMax = *fields.BudgetMax
	}
	if fields.Deadline != nil {
		rfq.Deadline = fields.Deadline
	}
	if fields.Urgency != nil {
		rfq.Urgency = *fields.Urgency
	}
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) OpenToBidding(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok || rfq.Status != model.RFQStatusOpen {
		return false, nil
	}
	rfq.Status = model.RFQStatusBidding
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) AcquireHold(ctx context.Context, id, supplierID uuid.UUID, expiresAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok {
		return false, nil
	}
	if rfq.Status != model.RFQStatusOpen && rfq.Status != model.RFQStatusBidding {
		return false, nil
	}
	if rfq.PrioritySupplierID != nil && rfq.PriorityHoldExpiresAt != nil && rfq.PriorityHoldExpiresAt.After(now) {
		return false, nil
	}
	rfq.PrioritySupplierID = &supplierID
	rfq.PriorityHoldExpiresAt = &expiresAt
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) ReleaseHold(ctx context.Context, id, holderID uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok || rfq.Status != model.RFQStatusBidding {
		return false, nil
	}
	if rfq.PrioritySupplierID == nil || *rfq.PrioritySupplierID != holderID {
		return false, nil
	}
	if rfq.PriorityHoldExpiresAt == nil || !rfq.PriorityHoldExpiresAt.After(now) {
		return false, nil
	}
	rfq.PrioritySupplierID = nil
	rfq.PriorityHoldExpiresAt = nil
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) AwardRFQ(ctx context.Context, id, supplierID uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok {
		return false, nil
	}
	if rfq.Status != model.RFQStatusOpen && rfq.Status != model.RFQStatusBidding {
		return false, nil
	}
	holdActive := rfq.PrioritySupplierID != nil &&
		rfq.PriorityHoldExpiresAt != nil &&
		rfq.PriorityHoldExpiresAt.After(now)
	if rfq.Type != model.RFQTypeCustomService && holdActive && *rfq.PrioritySupplierID != supplierID {
		return false, nil
	}
	rfq.Status = model.RFQStatusAwarded
	rfq.AwardedSupplierID = &supplierID
	rfq.AwardedAt = &now
	rfq.PrioritySupplierID = nil
	rfq.PriorityHoldExpiresAt = nil
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) CancelRFQ(ctx context.Context, id uuid.UUID, reason *string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok || (rfq.Status != model.RFQStatusOpen && rfq.Status != model.RFQStatusBidding) {
		return false, nil
	}
	rfq.Status = model.RFQStatusCancelled
	rfq.CancelReason = reason
	rfq.PrioritySupplierID = nil
	rfq.PriorityHoldExpiresAt = nil
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) CloseRFQ(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok || (rfq.Status != model.RFQStatusOpen && rfq.Status != model.RFQStatusBidding) {
		return false, nil
	}
	if rfq.PrioritySupplierID != nil && rfq.PriorityHoldExpiresAt != nil && rfq.PriorityHoldExpiresAt.After(now) {
		return false, nil
	}
	rfq.Status = model.RFQStatusClosed
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return true, nil
}

func (s *MemoryStore) SetOrderID(ctx context.Context, id, orderID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfq, ok := s.rfqs[id]
	if !ok || rfq.Status != model.RFQStatusAwarded {
		return nil
	}
	rfq.OrderID = &orderID
	rfq.UpdatedAt = now
	s.rfqs[id] = rfq
	return nil
}

func (s *MemoryStore) ClearExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for id, rfq := range s.rfqs {
		if rfq.Status != model.RFQStatusBidding || rfq.PrioritySupplierID == nil {
			continue
		}
		if rfq.PriorityHoldExpiresAt != nil && rfq.PriorityHoldExpiresAt.After(now) {
			continue
		}
		rfq.PrioritySupplierID = nil
		rfq.PriorityHoldExpiresAt = nil
		rfq.UpdatedAt = now
		s.rfqs[id] = rfq
		cleared++
	}
	return cleared, nil
}

// BroadcastStore

func (s *MemoryStore) InsertPending(ctx context.Context, rfqID uuid.UUID, supplierIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.broadcasts[rfqID]
	if !ok {
		rows = make(map[uuid.UUID]model.Broadcast)
		s.broadcasts[rfqID] = rows
	}

	var inserted []uuid.UUID
	for _, supplierID := range supplierIDs {
		if _, exists := rows[supplierID]; exists {
			continue
		}
		rows[supplierID] = model.Broadcast{
			ID:          uuid.New(),
			RFQID:       rfqID,
			SupplierID:  supplierID,
			DeliveredAt: now,
			Response:    model.ResponsePending,
		}
		inserted = append(inserted, supplierID)
	}
	return inserted, nil
}

func (s *MemoryStore) GetBroadcast(ctx context.Context, rfqID, supplierID uuid.UUID) (*model.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	broadcast, ok := s.broadcasts[rfqID][supplierID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := broadcast
	return &copied, nil
}

func (s *MemoryStore) ListBroadcasts(ctx context.Context, rfqID uuid.UUID) ([]model.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Broadcast
	for _, broadcast := range s.broadcasts[rfqID] {
		result = append(result, broadcast)
	}
	return result, nil
}

func (s *MemoryStore) CountResponses(ctx context.Context, rfqID uuid.UUID) (model.ResponseCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts model.ResponseCounts
	for _, broadcast := range s.broadcasts[rfqID] {
		switch broadcast.Response {
		case model.ResponsePending:
			counts.Pending++
		case model.ResponseAccept:
			counts.Accepted++
		case model.ResponseDecline:
			counts.Declined++
		case model.ResponseInfoRequest:
			counts.InfoRequests++
		}
	}
	return counts, nil
}

func (s *MemoryStore) RecordResponse(ctx context.Context, rfqID, supplierID uuid.UUID, response model.ResponseType,
	quotedPrice *decimal.Decimal, message *string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	broadcast, ok := s.broadcasts[rfqID][supplierID]
	if !ok || broadcast.Response == model.ResponseDecline {
		return false, nil
	}
	broadcast.Response = response
	broadcast.QuotedPrice = quotedPrice
	broadcast.Message = message
	respondedAt := now
	broadcast.RespondedAt = &respondedAt
	if broadcast.ViewedAt == nil {
		broadcast.ViewedAt = &respondedAt
	}
	s.broadcasts[rfqID][supplierID] = broadcast
	return true, nil
}

// SupplierDirectory

func (s *MemoryStore) ListSuppliers(ctx context.Context, filter SupplierFilter) ([]model.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Supplier
	for _, supplier := range s.suppliers {
		if filter.Category != "" && supplier.Category != filter.Category {
			continue
		}
		result = append(result, supplier)
	}
	return result, nil
}

// OrderCreator

func (s *MemoryStore) CreateOrder(ctx context.Context, buyerID, supplierID, rfqID uuid.UUID, terms OrderTerms) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := uuid.New()
	s.orders[rfqID] = orderID
	return orderID, nil
}

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []RecordedEvent
}

type RecordedEvent struct {
	UserID    uuid.UUID
	EventType string
	Payload   map[string]interface{}
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, RecordedEvent{UserID: userID, EventType: eventType, Payload: payload})
}

// Events returns a copy of everything recorded so far.
func (n *RecordingNotifier) Events() []RecordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]RecordedEvent, len(n.events))
	copy(result, n.events)
	return result
}

// CountByType counts recorded events of one type.
func (n *RecordingNotifier) CountByType(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var count int
	for _, event := range n.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

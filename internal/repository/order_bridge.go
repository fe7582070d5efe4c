package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/service"
)

// OrderBridge is the local implementation of the order-creation boundary.
// The order subsystem owns the row after insertion; the RFQ side never
// touches it again.
type OrderBridge struct {
	db *gorm.DB
}

func NewOrderBridge(db *gorm.DB) *OrderBridge {
	return &OrderBridge{db: db}
}

func (b *OrderBridge) CreateOrder(ctx context.Context, buyerID, supplierID, rfqID uuid.UUID, terms service.OrderTerms) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := b.db.WithContext(ctx).Raw(`
		INSERT INTO orders (buyer_id, supplier_id, rfq_id, quoted_price, deadline)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, buyerID, supplierID, rfqID, terms.QuotedPrice, terms.Deadline).Scan(&orderID).Error
	if err != nil {
		return uuid.Nil, err
	}
	return orderID, nil
}

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/model"
)

const broadcastColumns = `
	id,
	rfq_id,
	supplier_id,
	delivered_at,
	viewed_at,
	response,
	quoted_price,
	message,
	responded_at
`

type BroadcastRepository struct {
	db *gorm.DB
}

func NewBroadcastRepository(db *gorm.DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

// InsertPending inserts a pending row per supplier, skipping pairs that
// already exist. The UNIQUE (rfq_id, supplier_id) constraint makes the
// broadcast idempotent; RETURNING reports only the rows actually created.
func (r *BroadcastRepository) InsertPending(ctx context.Context, rfqID uuid.UUID, supplierIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	if len(supplierIDs) == 0 {
		return nil, nil
	}

	values := make([]string, len(supplierIDs))
	args := make([]interface{}, 0, len(supplierIDs)*3)
	for i, supplierID := range supplierIDs {
		values[i] = "(?, ?, ?, 'PENDING')"
		args = append(args, rfqID, supplierID, now)
	}

	var inserted []uuid.UUID
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO rfq_broadcasts (rfq_id, supplier_id, delivered_at, response)
		VALUES `+strings.Join(values, ", ")+`
		ON CONFLICT (rfq_id, supplier_id) DO NOTHING
		RETURNING supplier_id
	`, args...).Scan(&inserted).Error
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *BroadcastRepository) GetBroadcast(ctx context.Context, rfqID, supplierID uuid.UUID) (*model.Broadcast, error) {
	var broadcast model.Broadcast
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+broadcastColumns+`
		FROM rfq_broadcasts
		WHERE rfq_id = ? AND supplier_id = ?
		LIMIT 1
	`, rfqID, supplierID).Scan(&broadcast).Error
	if err != nil {
		return nil, err
	}
	if broadcast.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &broadcast, nil
}

func (r *BroadcastRepository) ListBroadcasts(ctx context.Context, rfqID uuid.UUID) ([]model.Broadcast, error) {
	var broadcasts []model.Broadcast
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+broadcastColumns+`
		FROM rfq_broadcasts
		WHERE rfq_id = ?
		ORDER BY delivered_at ASC, supplier_id ASC
	`, rfqID).Scan(&broadcasts).Error
	if err != nil {
		return nil, err
	}
	return broadcasts, nil
}

func (r *BroadcastRepository) CountResponses(ctx context.Context, rfqID uuid.UUID) (model.ResponseCounts, error) {
	var counts model.ResponseCounts
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) FILTER (WHERE response = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE response = 'ACCEPT') AS accepted,
			COUNT(*) FILTER (WHERE response = 'DECLINE') AS declined,
			COUNT(*) FILTER (WHERE response = 'INFO_REQUEST') AS info_requests
		FROM rfq_broadcasts
		WHERE rfq_id = ?
	`, rfqID).Scan(&counts).Error
	if err != nil {
		return model.ResponseCounts{}, err
	}
	return counts, nil
}

// RecordResponse keeps decline terminal per supplier: the write lands only
// while the stored response is not DECLINE, even under concurrent calls.
func (r *BroadcastRepository) RecordResponse(ctx context.Context, rfqID, supplierID uuid.UUID, response model.ResponseType,
	quotedPrice *decimal.Decimal, message *string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfq_broadcasts
		SET response = ?,
			quoted_price = ?,
			message = ?,
			responded_at = ?,
			viewed_at = COALESCE(viewed_at, ?)
		WHERE rfq_id = ? AND supplier_id = ? AND response <> 'DECLINE'
	`, response, quotedPrice, message, now, now, rfqID, supplierID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

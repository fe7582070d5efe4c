package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/model"
	"github.com/nurpe/foundry-rfq/internal/service"
)

const rfqColumns = `
	id,
	buyer_id,
	foundry_id,
	title,
	rfq_type AS type,
	category,
	specification,
	budget_min,
	budget_max,
	deadline,
	urgency,
	status,
	priority_supplier_id,
	priority_hold_expires_at,
	awarded_supplier_id,
	awarded_at,
	order_id,
	cancel_reason,
	created_at,
	updated_at
`

// RFQRepository persists RFQs. Hold acquisition, release, award and the
// terminal transitions are all single conditional UPDATEs; the caller learns
// the outcome from the affected row count, never from a prior read.
type RFQRepository struct {
	db *gorm.DB
}

func NewRFQRepository(db *gorm.DB) *RFQRepository {
	return &RFQRepository{db: db}
}

func (r *RFQRepository) CreateRFQ(ctx context.Context, rfq model.RFQ) (*model.RFQ, error) {
	var saved model.RFQ
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO rfqs (
			buyer_id,
			foundry_id,
			title,
			rfq_type,
			category,
			specification,
			budget_min,
			budget_max,
			deadline,
			urgency,
			status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+rfqColumns,
		rfq.BuyerID,
		rfq.FoundryID,
		rfq.Title,
		rfq.Type,
		rfq.Category,
		rfq.Specification,
		rfq.BudgetMin,
		rfq.BudgetMax,
		rfq.Deadline,
		rfq.Urgency,
		rfq.Status,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *RFQRepository) GetRFQ(ctx context.Context, id uuid.UUID) (*model.RFQ, error) {
	var rfq model.RFQ
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+rfqColumns+`
		FROM rfqs
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&rfq).Error
	if err != nil {
		return nil, err
	}
	if rfq.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &rfq, nil
}

func (r *RFQRepository) ListRFQsByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.RFQ, error) {
	var rfqs []model.RFQ
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+rfqColumns+`
		FROM rfqs
		WHERE buyer_id = ?
		ORDER BY created_at DESC
	`, buyerID).Scan(&rfqs).Error
	if err != nil {
		return nil, err
	}
	return rfqs, nil
}

func (r *RFQRepository) UpdateRFQFields(ctx context.Context, id uuid.UUID, fields service.RFQUpdate, now time.Time) (bool, error) {
	var sets []string
	var args []interface{}

	appendSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = ?", column))
		args = append(args, value)
	}

	if fields.Title != nil {
		appendSet("title", *fields.Title)
	}
	if fields.Category != nil {
		appendSet("category", *fields.Category)
	}
	if fields.Specification != nil {
		appendSet("specification", *fields.Specification)
	}
	if fields.BudgetMin != nil {
		appendSet("budget_min", *fields.BudgetMin)
	}
	if fields.BudgetMax != nil {
		appendSet("budget_max", *fields.BudgetMax)
	}
	if fields.Deadline != nil {
		appendSet("deadline", *fields.Deadline)
	}
	if fields.Urgency != nil {
		appendSet("urgency", *fields.Urgency)
	}
	if len(sets) == 0 {
		return true, nil
	}
	appendSet("updated_at", now)
	args = append(args, id)

	res := r.db.WithContext(ctx).Exec(fmt.Sprintf(`
		UPDATE rfqs
		SET %s
		WHERE id = ? AND status IN ('OPEN', 'BIDDING')
	`, strings.Join(sets, ", ")), args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RFQRepository) OpenToBidding(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET status = 'BIDDING', updated_at = ?
		WHERE id = ? AND status = 'OPEN'
	`, now, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AcquireHold is the race resolution point. Concurrent accepts all issue
// this statement; the store commits exactly one with an affected row. An
// expired hold counts as no hold, so the expiry check lives inside the same
// predicate instead of a prior read.
func (r *RFQRepository) AcquireHold(ctx context.Context, id, supplierID uuid.UUID, expiresAt, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET priority_supplier_id = ?,
			priority_hold_expires_at = ?,
			updated_at = ?
		WHERE id = ?
			AND status IN ('OPEN', 'BIDDING')
			AND (priority_supplier_id IS NULL OR priority_hold_expires_at <= ?)
	`, supplierID, expiresAt, now, id, now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RFQRepository) ReleaseHold(ctx context.Context, id, holderID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET priority_supplier_id = NULL,
			priority_hold_expires_at = NULL,
			updated_at = ?
		WHERE id = ?
			AND status = 'BIDDING'
			AND priority_supplier_id = ?
			AND priority_hold_expires_at > ?
	`, now, id, holderID, now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AwardRFQ guards the exactly-once order side effect: only the caller whose
// UPDATE lands first moves the row out of Bidding. Custom-service RFQs skip
// the hold check (manual selection path).
func (r *RFQRepository) AwardRFQ(ctx context.Context, id, supplierID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET status = 'AWARDED',
			awarded_supplier_id = ?,
			awarded_at = ?,
			priority_supplier_id = NULL,
			priority_hold_expires_at = NULL,
			updated_at = ?
		WHERE id = ?
			AND status IN ('OPEN', 'BIDDING')
			AND (
				rfq_type = 'CUSTOM_SERVICE'
				OR priority_supplier_id IS NULL
				OR priority_hold_expires_at <= ?
				OR priority_supplier_id = ?
			)
	`, supplierID, now, now, id, now, supplierID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RFQRepository) CancelRFQ(ctx context.Context, id uuid.UUID, reason *string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET status = 'CANCELLED',
			cancel_reason = ?,
			priority_supplier_id = NULL,
			priority_hold_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND status IN ('OPEN', 'BIDDING')
	`, reason, now, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RFQRepository) CloseRFQ(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET status = 'CLOSED', updated_at = ?
		WHERE id = ?
			AND status IN ('OPEN', 'BIDDING')
			AND (priority_supplier_id IS NULL OR priority_hold_expires_at <= ?)
	`, now, id, now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *RFQRepository) SetOrderID(ctx context.Context, id, orderID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET order_id = ?, updated_at = ?
		WHERE id = ? AND status = 'AWARDED'
	`, orderID, now, id).Error
}

func (r *RFQRepository) ClearExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE rfqs
		SET priority_supplier_id = NULL,
			priority_hold_expires_at = NULL,
			updated_at = ?
		WHERE status = 'BIDDING'
			AND priority_supplier_id IS NOT NULL
			AND priority_hold_expires_at <= ?
	`, now, now)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

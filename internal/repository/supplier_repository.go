package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/foundry-rfq/internal/model"
	"github.com/nurpe/foundry-rfq/internal/service"
)

// SupplierRepository reads the supplier directory. Capabilities live in a
// comma-separated column; the directory is owned by the onboarding
// subsystem, this side only reads.
type SupplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

func (r *SupplierRepository) ListSuppliers(ctx context.Context, filter service.SupplierFilter) ([]model.Supplier, error) {
	var rows []struct {
		ID               uuid.UUID
		Name             string
		Category         string
		Capabilities     string
		ActiveOrderCount int
	}

	query := `
		SELECT
			s.id,
			s.name,
			s.category,
			COALESCE(s.capabilities, '') AS capabilities,
			COALESCE(o.active_count, 0) AS active_order_count
		FROM suppliers s
		LEFT JOIN (
			SELECT supplier_id, COUNT(*) AS active_count
			FROM orders
			WHERE completed_at IS NULL
			GROUP BY supplier_id
		) o ON o.supplier_id = s.id
	`
	args := []interface{}{}
	if filter.Category != "" {
		query += " WHERE s.category = ?"
		args = append(args, filter.Category)
	}
	query += " ORDER BY s.id ASC"

	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	suppliers := make([]model.Supplier, 0, len(rows))
	for _, row := range rows {
		suppliers = append(suppliers, model.Supplier{
			ID:               row.ID,
			Name:             row.Name,
			Category:         row.Category,
			Capabilities:     splitCapabilities(row.Capabilities),
			ActiveOrderCount: row.ActiveOrderCount,
		})
	}
	return suppliers, nil
}

func splitCapabilities(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

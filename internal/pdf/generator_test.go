package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/foundry-rfq/internal/model"
)

func TestGenerateAwardConfirmation(t *testing.T) {
	generator, err := NewGenerator()
	require.NoError(t, err)

	awardedAt := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(1500)
	orderID := uuid.New()

	doc := model.AwardDocument{
		RFQ: model.RFQ{
			ID:        uuid.New(),
			Title:     "CNC milling of bracket batch",
			Category:  "machining",
			Type:      model.RFQTypeStandard,
			Status:    model.RFQStatusAwarded,
			BudgetMin: decimal.NewFromInt(500),
			BudgetMax: decimal.NewFromInt(2000),
			AwardedAt: &awardedAt,
		},
		SupplierID:   uuid.New(),
		SupplierName: "Alpha Machining",
		QuotedPrice:  &price,
		OrderID:      &orderID,
	}

	data, err := generator.Generate(doc)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "output must be a PDF document")
}

func TestGenerateWithMinimalDocument(t *testing.T) {
	generator, err := NewGenerator()
	require.NoError(t, err)

	doc := model.AwardDocument{
		RFQ: model.RFQ{
			ID:     uuid.New(),
			Title:  "Custom tooling job",
			Type:   model.RFQTypeCustomService,
			Status: model.RFQStatusAwarded,
		},
		SupplierID: uuid.New(),
	}

	data, err := generator.Generate(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "missing optional fields must not break rendering")
}

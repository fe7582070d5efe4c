package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/foundry-rfq/internal/model"
)

func newRFQService(store *MemoryStore, notifier *RecordingNotifier) *RFQService {
	return NewRFQService(store, notifier, zerolog.Nop())
}

func TestCreateRFQ(t *testing.T) {
	store := NewMemoryStore()
	svc := newRFQService(store, NewRecordingNotifier())

	buyer := buyerPrincipal(uuid.New())
	input := CreateRFQInput{
		Title:         "  Sheet metal enclosure  ",
		Type:          "STANDARD",
		Category:      "fabrication",
		Specification: "laser cut bend powder coat",
		BudgetMin:     decimal.NewFromInt(300),
		BudgetMax:     decimal.NewFromInt(900),
	}

	created, err := svc.Create(context.Background(), buyer, input)
	require.NoError(t, err)
	assert.Equal(t, "Sheet metal enclosure", created.Title)
	assert.Equal(t, model.RFQStatusOpen, created.Status)
	assert.Equal(t, model.UrgencyStandard, created.Urgency, "urgency defaults to standard")
	assert.Equal(t, buyer.UserID, created.BuyerID)
	assert.NotEqual(t, uuid.Nil, created.ID)
}

func TestCreateRFQValidation(t *testing.T) {
	store := NewMemoryStore()
	svc := newRFQService(store, NewRecordingNotifier())
	buyer := buyerPrincipal(uuid.New())

	cases := []struct {
		name  string
		input CreateRFQInput
	}{
		{"empty title", CreateRFQInput{Title: "   ", Type: "STANDARD"}},
		{"bad type", CreateRFQInput{Title: "x", Type: "EXPRESS"}},
		{"bad urgency", CreateRFQInput{Title: "x", Type: "STANDARD", Urgency: "ASAP"}},
		{"negative budget", CreateRFQInput{Title: "x", Type: "STANDARD", BudgetMin: decimal.NewFromInt(-1)}},
		{"inverted budget", CreateRFQInput{
			Title: "x", Type: "STANDARD",
			BudgetMin: decimal.NewFromInt(500), BudgetMax: decimal.NewFromInt(100),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), buyer, tc.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := svc.Create(context.Background(), supplierPrincipal(uuid.New()), CreateRFQInput{Title: "x", Type: "STANDARD"})
	assert.ErrorIs(t, err, ErrPermissionDenied, "suppliers cannot create RFQs")
}

func TestGetAndListPermissions(t *testing.T) {
	store := NewMemoryStore()
	svc := newRFQService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusOpen)

	owner := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	got, err := svc.Get(context.Background(), owner, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, rfq.ID, got.ID)

	_, err = svc.Get(context.Background(), buyerPrincipal(uuid.New()), rfq.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	admin := model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.RoleAdmin}
	_, err = svc.Get(context.Background(), admin, rfq.ID)
	assert.NoError(t, err)

	_, err = svc.Get(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	own, err := svc.ListOwn(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	other, err := svc.ListOwn(context.Background(), buyerPrincipal(uuid.New()))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateOnlyWhileEditable(t *testing.T) {
	store := NewMemoryStore()
	svc := newRFQService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusOpen)
	owner := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}

	title := "Revised bracket batch"
	updated, err := svc.Update(context.Background(), owner, rfq.ID, RFQUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	empty := "  "
	_, err = svc.Update(context.Background(), owner, rfq.ID, RFQUpdate{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	rfq.Status = model.RFQStatusAwarded
	store.PutRFQ(rfq)
	_, err = svc.Update(context.Background(), owner, rfq.ID, RFQUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCancelNotifiesHolder(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewRecordingNotifier()
	svc := newRFQService(store, notifier)

	buyerID := uuid.New()
	holder := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)

	won, err := store.AcquireHold(context.Background(), rfq.ID, holder, time.Now().UTC().Add(time.Hour), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	owner := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	reason := "requirements changed"
	cancelled, err := svc.Cancel(context.Background(), owner, rfq.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, model.RFQStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.PrioritySupplierID)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, reason, *cancelled.CancelReason)

	assert.Equal(t, 1, notifier.CountByType(EventHoldReleased), "holder learns their hold is gone")
	assert.Equal(t, 1, notifier.CountByType(EventRFQCancelled))

	_, err = svc.Cancel(context.Background(), owner, rfq.ID, nil)
	assert.ErrorIs(t, err, ErrStateConflict, "cancel is not idempotent past terminal")
}

func TestCloseRefusedWhileHoldActive(t *testing.T) {
	store := NewMemoryStore()
	svc := newRFQService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	holder := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)

	won, err := store.AcquireHold(context.Background(), rfq.ID, holder, time.Now().UTC().Add(time.Hour), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	owner := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	_, err = svc.Close(context.Background(), owner, rfq.ID)
	assert.ErrorIs(t, err, ErrHoldActive, "the buyer must release the hold first")

	released, err := store.ReleaseHold(context.Background(), rfq.ID, holder, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, released)

	closed, err := svc.Close(context.Background(), owner, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RFQStatusClosed, closed.Status)

	_, err = svc.Close(context.Background(), owner, rfq.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCloseWithExpiredHold(t *testing.T) {
	store := NewMemoryStore()
	svc := newRFQService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)

	won, err := store.AcquireHold(context.Background(), rfq.ID, uuid.New(), time.Now().UTC().Add(time.Hour), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)
	expireHold(t, store, rfq.ID)

	owner := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	closed, err := svc.Close(context.Background(), owner, rfq.ID)
	require.NoError(t, err, "an expired hold must not block closing")
	assert.Equal(t, model.RFQStatusClosed, closed.Status)
}

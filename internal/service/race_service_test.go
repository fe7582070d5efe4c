package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/foundry-rfq/internal/config"
	"github.com/nurpe/foundry-rfq/internal/matcher"
	"github.com/nurpe/foundry-rfq/internal/model"
)

func testRaceConfig() config.RaceConfig {
	return config.RaceConfig{
		HoldWindowStandard: 24 * time.Hour,
		HoldWindowUrgent:   4 * time.Hour,
		SweepInterval:      time.Minute,
	}
}

func testMatcher() *matcher.Matcher {
	return matcher.New(config.MatcherConfig{
		CategoryWeight: 0.5,
		KeywordWeight:  0.3,
		WorkloadWeight: 0.2,
	})
}

func newRaceService(store *MemoryStore, notifier *RecordingNotifier) *RaceService {
	return NewRaceService(store, store, store, testMatcher(), notifier, testRaceConfig(), zerolog.Nop())
}

func buyerPrincipal(userID uuid.UUID) model.Principal {
	return model.Principal{UserID: userID, OrgID: uuid.New(), Role: model.RoleBuyer}
}

func supplierPrincipal(orgID uuid.UUID) model.Principal {
	return model.Principal{UserID: uuid.New(), OrgID: orgID, Role: model.RoleSupplier}
}

func seedRFQ(t *testing.T, store *MemoryStore, buyerID uuid.UUID, rfqType model.RFQType, status model.RFQStatus) model.RFQ {
	t.Helper()
	rfq := model.RFQ{
		ID:            uuid.New(),
		BuyerID:       buyerID,
		FoundryID:     uuid.New(),
		Title:         "CNC milling of bracket batch",
		Type:          rfqType,
		Category:      "machining",
		Specification: "cnc milling aluminium bracket anodized batch",
		BudgetMin:     decimal.NewFromInt(500),
		BudgetMax:     decimal.NewFromInt(2000),
		Urgency:       model.UrgencyStandard,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	store.PutRFQ(rfq)
	return rfq
}

func seedBroadcasts(t *testing.T, store *MemoryStore, rfqID uuid.UUID, supplierIDs ...uuid.UUID) {
	t.Helper()
	_, err := store.InsertPending(context.Background(), rfqID, supplierIDs, time.Now().UTC())
	require.NoError(t, err)
}

func expireHold(t *testing.T, store *MemoryStore, rfqID uuid.UUID) {
	t.Helper()
	rfq, err := store.GetRFQ(context.Background(), rfqID)
	require.NoError(t, err)
	require.NotNil(t, rfq.PrioritySupplierID, "no hold to expire")
	past := time.Now().UTC().Add(-time.Minute)
	rfq.PriorityHoldExpiresAt = &past
	store.PutRFQ(*rfq)
}

func TestRespondAcceptAcquiresHold(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewRecordingNotifier()
	svc := newRaceService(store, notifier)

	buyerID := uuid.New()
	supplierID := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, supplierID)

	price := decimal.NewFromInt(1200)
	result, err := svc.Respond(context.Background(), supplierPrincipal(supplierID), rfq.ID, RespondInput{
		Response:    "ACCEPT",
		QuotedPrice: &price,
	})
	require.NoError(t, err)
	assert.True(t, result.PriorityHold)
	require.NotNil(t, result.HoldExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *result.HoldExpiresAt, time.Minute)

	stored, err := store.GetRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PrioritySupplierID)
	assert.Equal(t, supplierID, *stored.PrioritySupplierID)
	assert.Equal(t, model.RFQStatusBidding, stored.Status, "hold must not change the status")

	assert.Equal(t, 1, notifier.CountByType(EventHoldAcquired))
}

func TestRespondAcceptUrgentWindow(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	supplierID := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)
	rfq.Urgency = model.UrgencyUrgent
	store.PutRFQ(rfq)
	seedBroadcasts(t, store, rfq.ID, supplierID)

	result, err := svc.Respond(context.Background(), supplierPrincipal(supplierID), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	require.NotNil(t, result.HoldExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(4*time.Hour), *result.HoldExpiresAt, time.Minute)
}

func TestConcurrentAcceptsAtMostOneHold(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewRecordingNotifier()
	svc := newRaceService(store, notifier)

	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)

	const racers = 12
	supplierIDs := make([]uuid.UUID, racers)
	for i := range supplierIDs {
		supplierIDs[i] = uuid.New()
	}
	seedBroadcasts(t, store, rfq.ID, supplierIDs...)

	results := make([]*RespondResult, racers)
	errs := make([]error, racers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, supplierID := range supplierIDs {
		wg.Add(1)
		go func(i int, supplierID uuid.UUID) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.Respond(context.Background(), supplierPrincipal(supplierID), rfq.ID, RespondInput{Response: "ACCEPT"})
		}(i, supplierID)
	}
	close(start)
	wg.Wait()

	var winners int
	var winnerID uuid.UUID
	for i := range results {
		require.NoError(t, errs[i], "race loss must not surface as an error")
		require.NotNil(t, results[i])
		if results[i].PriorityHold {
			winners++
			winnerID = supplierIDs[i]
		}
	}
	assert.Equal(t, 1, winners, "exactly one accept may win the hold")

	stored, err := store.GetRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PrioritySupplierID)
	assert.Equal(t, winnerID, *stored.PrioritySupplierID)

	assert.Equal(t, racers-1, notifier.CountByType(EventHoldLost))
	assert.Equal(t, 1, notifier.CountByType(EventHoldAcquired))

	// Every accept is recorded even when it lost the race.
	counts, err := store.CountResponses(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(racers), counts.Accepted)
}

func TestBroadcastIdempotent(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusOpen)
	store.SeedSuppliers([]model.Supplier{
		{ID: uuid.New(), Name: "Alpha Machining", Category: "machining", Capabilities: []string{"cnc", "milling"}},
		{ID: uuid.New(), Name: "Beta Works", Category: "machining", Capabilities: []string{"milling", "anodized"}},
	})

	principal := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}

	first, err := svc.Broadcast(context.Background(), principal, rfq.ID)
	require.NoError(t, err)
	assert.Len(t, first.Delivered, 2)
	assert.Equal(t, model.RFQStatusBidding, first.RFQ.Status)

	second, err := svc.Broadcast(context.Background(), principal, rfq.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Delivered, "re-broadcast must not duplicate fan-out")
	assert.Equal(t, 2, second.Matched)

	rows, err := store.ListBroadcasts(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRespondDeclineIsTerminal(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	supplierID := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, supplierID)

	principal := supplierPrincipal(supplierID)
	_, err := svc.Respond(context.Background(), principal, rfq.ID, RespondInput{Response: "DECLINE"})
	require.NoError(t, err)

	_, err = svc.Respond(context.Background(), principal, rfq.ID, RespondInput{Response: "ACCEPT"})
	assert.ErrorIs(t, err, ErrAlreadyDeclined)

	_, err = svc.Respond(context.Background(), principal, rfq.ID, RespondInput{Response: "DECLINE"})
	assert.ErrorIs(t, err, ErrAlreadyDeclined)
}

func TestHolderDeclineReleasesHold(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewRecordingNotifier()
	svc := newRaceService(store, notifier)

	holder := uuid.New()
	other := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, holder, other)

	result, err := svc.Respond(context.Background(), supplierPrincipal(holder), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	require.True(t, result.PriorityHold)

	// Holder changed their mind. RFQ reopens instead of closing.
	_, err = svc.Respond(context.Background(), supplierPrincipal(holder), rfq.ID, RespondInput{Response: "DECLINE"})
	require.NoError(t, err)

	stored, err := store.GetRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PrioritySupplierID)
	assert.Equal(t, model.RFQStatusBidding, stored.Status)
	assert.Equal(t, 1, notifier.CountByType(EventHoldReleased))

	// Another supplier can now take the hold.
	result, err = svc.Respond(context.Background(), supplierPrincipal(other), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	assert.True(t, result.PriorityHold)
}

func TestAcceptAfterHoldExpiry(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	first := uuid.New()
	second := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, first, second)

	result, err := svc.Respond(context.Background(), supplierPrincipal(first), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	require.True(t, result.PriorityHold)

	// A fresh accept while the hold is live loses.
	result, err = svc.Respond(context.Background(), supplierPrincipal(second), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	assert.False(t, result.PriorityHold)

	// Once expired, the stale hold no longer blocks anyone. No sweeper
	// involved: the conditional write alone decides.
	expireHold(t, store, rfq.ID)

	result, err = svc.Respond(context.Background(), supplierPrincipal(second), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	assert.True(t, result.PriorityHold)

	stored, err := store.GetRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PrioritySupplierID)
	assert.Equal(t, second, *stored.PrioritySupplierID)
}

func TestRespondRequiresBroadcast(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)

	_, err := svc.Respond(context.Background(), supplierPrincipal(uuid.New()), rfq.ID, RespondInput{Response: "ACCEPT"})
	assert.ErrorIs(t, err, ErrNotBroadcast)
}

func TestRespondRejectsTerminalRFQ(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	supplierID := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusCancelled)
	seedBroadcasts(t, store, rfq.ID, supplierID)

	_, err := svc.Respond(context.Background(), supplierPrincipal(supplierID), rfq.ID, RespondInput{Response: "ACCEPT"})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestRespondInfoRequest(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewRecordingNotifier()
	svc := newRaceService(store, notifier)

	supplierID := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, supplierID)

	principal := supplierPrincipal(supplierID)
	_, err := svc.Respond(context.Background(), principal, rfq.ID, RespondInput{Response: "INFO_REQUEST"})
	assert.ErrorIs(t, err, ErrInvalidInput, "info request without a message")

	message := "what alloy is the bracket?"
	result, err := svc.Respond(context.Background(), principal, rfq.ID, RespondInput{Response: "INFO_REQUEST", Message: &message})
	require.NoError(t, err)
	assert.Equal(t, model.ResponseInfoRequest, result.Response)
	assert.False(t, result.PriorityHold)
	assert.Equal(t, 1, notifier.CountByType(EventInfoRequested))

	// An info request does not burn the supplier's accept.
	result, err = svc.Respond(context.Background(), principal, rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	assert.True(t, result.PriorityHold)
}

func TestReleaseHoldReopensRace(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	holder := uuid.New()
	rival := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, holder, rival)

	result, err := svc.Respond(context.Background(), supplierPrincipal(holder), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	require.True(t, result.PriorityHold)

	buyer := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	require.NoError(t, svc.ReleaseHold(context.Background(), buyer, rfq.ID))

	stored, err := store.GetRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PrioritySupplierID)
	assert.Equal(t, model.RFQStatusBidding, stored.Status)

	result, err = svc.Respond(context.Background(), supplierPrincipal(rival), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)
	assert.True(t, result.PriorityHold)
}

func TestReleaseHoldPermissions(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	holder := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, holder)

	buyer := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	err := svc.ReleaseHold(context.Background(), buyer, rfq.ID)
	assert.ErrorIs(t, err, ErrStateConflict, "no active hold yet")

	_, err = svc.Respond(context.Background(), supplierPrincipal(holder), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)

	err = svc.ReleaseHold(context.Background(), supplierPrincipal(uuid.New()), rfq.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied, "only the buyer or the holder may release")

	assert.NoError(t, svc.ReleaseHold(context.Background(), supplierPrincipal(holder), rfq.ID))
}

func TestCheckRaceStatus(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	holder := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, holder)

	buyer := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}

	status, err := svc.CheckRaceStatus(context.Background(), buyer, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RacePhaseBidding, status.Phase)
	assert.Equal(t, int64(1), status.Responses.Pending)

	_, err = svc.Respond(context.Background(), supplierPrincipal(holder), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)

	status, err = svc.CheckRaceStatus(context.Background(), buyer, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RacePhasePriorityHold, status.Phase)
	require.NotNil(t, status.HoldSupplierID)
	assert.Equal(t, holder, *status.HoldSupplierID)
	assert.NotNil(t, status.HoldExpiresAt)

	// An expired hold reads as plain bidding without any cleanup write.
	expireHold(t, store, rfq.ID)
	status, err = svc.CheckRaceStatus(context.Background(), buyer, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RacePhaseBidding, status.Phase)
	assert.Nil(t, status.HoldSupplierID)

	// Suppliers outside the fan-out see nothing.
	_, err = svc.CheckRaceStatus(context.Background(), supplierPrincipal(uuid.New()), rfq.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.CheckRaceStatus(context.Background(), supplierPrincipal(holder), rfq.ID)
	assert.NoError(t, err)
}

func TestMatchSuppliersPermissions(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	buyerID := uuid.New()
	rfq := seedRFQ(t, store, buyerID, model.RFQTypeStandard, model.RFQStatusOpen)
	store.SeedSuppliers([]model.Supplier{
		{ID: uuid.New(), Name: "Alpha Machining", Category: "machining", Capabilities: []string{"cnc"}},
	})

	_, err := svc.MatchSuppliers(context.Background(), buyerPrincipal(uuid.New()), rfq.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	buyer := model.Principal{UserID: buyerID, OrgID: rfq.FoundryID, Role: model.RoleBuyer}
	matches, err := svc.MatchSuppliers(context.Background(), buyer, rfq.ID)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = svc.MatchSuppliers(context.Background(), buyer, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearExpiredHoldsSweep(t *testing.T) {
	store := NewMemoryStore()
	svc := newRaceService(store, NewRecordingNotifier())

	supplierID := uuid.New()
	rfq := seedRFQ(t, store, uuid.New(), model.RFQTypeStandard, model.RFQStatusBidding)
	seedBroadcasts(t, store, rfq.ID, supplierID)

	_, err := svc.Respond(context.Background(), supplierPrincipal(supplierID), rfq.ID, RespondInput{Response: "ACCEPT"})
	require.NoError(t, err)

	cleared, err := store.ClearExpiredHolds(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, cleared, "live holds are untouched")

	expireHold(t, store, rfq.ID)
	cleared, err = store.ClearExpiredHolds(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	stored, err := store.GetRFQ(context.Background(), rfq.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PrioritySupplierID)
	assert.Nil(t, stored.PriorityHoldExpiresAt)
}

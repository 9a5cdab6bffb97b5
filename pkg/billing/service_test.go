package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/astralhq/astrokit/pkg/billing"
	"github.com/astralhq/astrokit/pkg/entitlement"
)

// Mock implementations

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Snapshot, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Snapshot), args.Error(1)
}

func (m *mockProvider) AddItem(ctx context.Context, subscriptionID, itemID string) error {
	return m.Called(ctx, subscriptionID, itemID).Error(0)
}

func (m *mockProvider) RemoveItem(ctx context.Context, subscriptionID, itemID string) error {
	return m.Called(ctx, subscriptionID, itemID).Error(0)
}

func (m *mockProvider) CreateCustomer(ctx context.Context, accountID uuid.UUID, email, name string) (string, error) {
	args := m.Called(ctx, accountID, email, name)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.SessionLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SessionLink), args.Error(1)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.SessionLink, error) {
	args := m.Called(ctx, customerID, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SessionLink), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

func (m *mockProvider) ListCheckoutItems(ctx context.Context, checkoutSessionID string) ([]string, error) {
	args := m.Called(ctx, checkoutSessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockSubscriptionStore struct {
	mock.Mock
}

func (m *mockSubscriptionStore) Get(ctx context.Context, accountID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockSubscriptionStore) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*billing.Subscription, error) {
	args := m.Called(ctx, providerSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockSubscriptionStore) Upsert(ctx context.Context, sub *billing.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

type mockCustomerStore struct {
	mock.Mock
}

func (m *mockCustomerStore) CustomerID(ctx context.Context, accountID uuid.UUID) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockCustomerStore) AccountID(ctx context.Context, customerID string) (uuid.UUID, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockCustomerStore) SetCustomerID(ctx context.Context, accountID uuid.UUID, customerID string) error {
	return m.Called(ctx, accountID, customerID).Error(0)
}

type mockGrantStore struct {
	mock.Mock
}

func (m *mockGrantStore) GrantDraconic(ctx context.Context, accountID uuid.UUID) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *mockGrantStore) HasDraconic(ctx context.Context, accountID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

var testCatalog = entitlement.Catalog{
	"price_base":     entitlement.KeyBaseBundle,
	"price_lunar":    entitlement.KeyLunarCalendar,
	"price_astro":    entitlement.KeyAstrogematria,
	"price_elective": entitlement.KeyElectiveChart,
	"price_draconic": entitlement.KeyDraconic,
}

func newTestService(t *testing.T, provider *mockProvider, subs *mockSubscriptionStore, customers *mockCustomerStore, opts ...billing.ServiceOption) *billing.Service {
	t.Helper()
	svc, err := billing.NewService(provider, subs, customers, testCatalog, billing.Config{
		CheckoutSuccessURL: "https://app.test/exito",
		CheckoutCancelURL:  "https://app.test/suscripcion",
		PortalReturnURL:    "https://app.test/suscripcion",
	}, opts...)
	require.NoError(t, err)
	return svc
}

func activeSnapshot(items ...string) *billing.Snapshot {
	return &billing.Snapshot{
		SubscriptionID:   "sub_123",
		CustomerID:       "cus_123",
		Status:           entitlement.StatusActive,
		Items:            items,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).UTC(),
	}
}

func TestSyncFromSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("derives full set from snapshot", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		subs.On("Upsert", mock.Anything, mock.MatchedBy(func(sub *billing.Subscription) bool {
			return sub.AccountID == accountID &&
				sub.ProviderSubscriptionID == "sub_123" &&
				sub.Status == entitlement.StatusActive &&
				len(sub.ItemSet) == 2
		})).Return(nil)

		set, err := svc.SyncFromSnapshot(context.Background(), accountID, activeSnapshot("price_base", "price_lunar"))
		require.NoError(t, err)
		assert.True(t, set.HasBaseBundle)
		assert.True(t, set.HasLunarCalendar)
		assert.False(t, set.HasAstrogematria)
		assert.Equal(t, entitlement.StatusActive, set.Status)
		subs.AssertExpectations(t)
	})

	t.Run("idempotent for identical snapshots", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil).Times(2)

		snap := activeSnapshot("price_base")
		first, err := svc.SyncFromSnapshot(context.Background(), accountID, snap)
		require.NoError(t, err)
		second, err := svc.SyncFromSnapshot(context.Background(), accountID, snap)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		subs.AssertExpectations(t)
	})

	t.Run("non-active status clears all flags", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		snap := activeSnapshot("price_base", "price_lunar")
		snap.Status = entitlement.StatusPastDue
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		set, err := svc.SyncFromSnapshot(context.Background(), uuid.New(), snap)
		require.NoError(t, err)
		assert.False(t, set.HasBaseBundle)
		assert.False(t, set.HasLunarCalendar)
		assert.Equal(t, entitlement.StatusPastDue, set.Status)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := svc.SyncFromSnapshot(context.Background(), uuid.New(), activeSnapshot("price_base"))
		assert.ErrorIs(t, err, billing.ErrFailedToSaveSubscription)
	})
}

func TestSyncFromProvider(t *testing.T) {
	t.Parallel()

	t.Run("reads fresh snapshot and syncs", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		subs.On("Get", mock.Anything, accountID).Return(&billing.Subscription{
			AccountID:              accountID,
			ProviderSubscriptionID: "sub_123",
		}, nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base"), nil)
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		set, err := svc.SyncFromProvider(context.Background(), accountID)
		require.NoError(t, err)
		assert.True(t, set.HasBaseBundle)
	})

	t.Run("provider failure leaves local record untouched", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		subs.On("Get", mock.Anything, accountID).Return(&billing.Subscription{
			AccountID:              accountID,
			ProviderSubscriptionID: "sub_123",
		}, nil)
		providerErr := &billing.ProviderError{Op: "get_subscription", StatusCode: 503, Message: "unavailable"}
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(nil, providerErr)

		_, err := svc.SyncFromProvider(context.Background(), accountID)
		var pe *billing.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.True(t, pe.Retryable())
		subs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("no local record", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		subs.On("Get", mock.Anything, accountID).Return(nil, billing.ErrSubscriptionNotFound)

		_, err := svc.SyncFromProvider(context.Background(), accountID)
		assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
	})
}

func TestUpdateAddon(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	localSub := func() *billing.Subscription {
		return &billing.Subscription{
			AccountID:              accountID,
			ProviderSubscriptionID: "sub_123",
			CustomerID:             "cus_123",
			Status:                 entitlement.StatusActive,
			ItemSet:                []string{"price_base"},
		}
	}

	t.Run("adds item and syncs from fresh read", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(localSub(), nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base"), nil).Once()
		provider.On("AddItem", mock.Anything, "sub_123", "price_lunar").Return(nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base", "price_lunar"), nil).Once()
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		set, err := svc.UpdateAddon(context.Background(), accountID, "price_lunar", billing.ActionAdd)
		require.NoError(t, err)
		assert.True(t, set.HasLunarCalendar)
		provider.AssertExpectations(t)
	})

	t.Run("add of already-present item heals without mutation", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(localSub(), nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base", "price_lunar"), nil).Times(2)
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		set, err := svc.UpdateAddon(context.Background(), accountID, "price_lunar", billing.ActionAdd)
		require.NoError(t, err)
		assert.True(t, set.HasLunarCalendar)
		provider.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("base bundle removal rejected before any provider call", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		_, err := svc.UpdateAddon(context.Background(), accountID, "price_base", billing.ActionRemove)
		assert.ErrorIs(t, err, billing.ErrBaseBundleProtected)
		provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
		provider.AssertNotCalled(t, "RemoveItem", mock.Anything, mock.Anything, mock.Anything)
		subs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("removes add-on and syncs", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(localSub(), nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base", "price_lunar"), nil).Once()
		provider.On("RemoveItem", mock.Anything, "sub_123", "price_lunar").Return(nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base"), nil).Once()
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		set, err := svc.UpdateAddon(context.Background(), accountID, "price_lunar", billing.ActionRemove)
		require.NoError(t, err)
		assert.True(t, set.HasBaseBundle)
		assert.False(t, set.HasLunarCalendar)
	})

	t.Run("removal of absent item", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(localSub(), nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base"), nil)

		_, err := svc.UpdateAddon(context.Background(), accountID, "price_lunar", billing.ActionRemove)
		assert.ErrorIs(t, err, billing.ErrItemNotOnSubscription)
		provider.AssertNotCalled(t, "RemoveItem", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no subscription record", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(nil, billing.ErrSubscriptionNotFound)

		_, err := svc.UpdateAddon(context.Background(), accountID, "price_lunar", billing.ActionAdd)
		assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
	})

	t.Run("invalid action", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		_, err := svc.UpdateAddon(context.Background(), accountID, "price_lunar", billing.Action("upgrade"))
		assert.ErrorIs(t, err, billing.ErrInvalidAction)
	})
}

func TestStartCheckout(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()

	t.Run("active base bundle redirects to portal", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(&billing.Subscription{
			AccountID:              accountID,
			ProviderSubscriptionID: "sub_123",
			CustomerID:             "cus_123",
			Status:                 entitlement.StatusActive,
			ItemSet:                []string{"price_base"},
		}, nil)
		provider.On("CreatePortalSession", mock.Anything, "cus_123", "https://app.test/suscripcion").
			Return(&billing.SessionLink{URL: "https://portal.test/p"}, nil)

		link, err := svc.StartCheckout(context.Background(), accountID, "a@b.c", "Ana", []string{"price_base"}, billing.ModeSubscription)
		require.NoError(t, err)
		assert.True(t, link.Portal)
		provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("new customer is created and persisted", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		subs.On("Get", mock.Anything, accountID).Return(nil, billing.ErrSubscriptionNotFound)
		customers.On("CustomerID", mock.Anything, accountID).Return("", billing.ErrCustomerNotFound)
		provider.On("CreateCustomer", mock.Anything, accountID, "a@b.c", "Ana").Return("cus_new", nil)
		customers.On("SetCustomerID", mock.Anything, accountID, "cus_new").Return(nil)
		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
			return req.CustomerID == "cus_new" && req.Mode == billing.ModeSubscription && len(req.Items) == 1
		})).Return(&billing.SessionLink{URL: "https://checkout.test/c"}, nil)

		link, err := svc.StartCheckout(context.Background(), accountID, "a@b.c", "Ana", []string{"price_base"}, billing.ModeSubscription)
		require.NoError(t, err)
		assert.False(t, link.Portal)
		customers.AssertExpectations(t)
	})

	t.Run("payment mode skips the portal redirect", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		customers.On("CustomerID", mock.Anything, accountID).Return("cus_123", nil)
		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
			return req.Mode == billing.ModePayment
		})).Return(&billing.SessionLink{URL: "https://checkout.test/d"}, nil)

		_, err := svc.StartCheckout(context.Background(), accountID, "a@b.c", "Ana", []string{"price_draconic"}, billing.ModePayment)
		require.NoError(t, err)
		subs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("empty items rejected", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		_, err := svc.StartCheckout(context.Background(), accountID, "a@b.c", "Ana", nil, billing.ModeSubscription)
		assert.ErrorIs(t, err, billing.ErrNoItems)
	})
}

func TestEntitlements(t *testing.T) {
	t.Parallel()

	t.Run("no record yields free set", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		subs.On("Get", mock.Anything, accountID).Return(nil, billing.ErrSubscriptionNotFound)

		set, err := svc.Entitlements(context.Background(), accountID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.Free(), set)
	})

	t.Run("admin override grants everything", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers,
			billing.WithOverrideResolver(func(context.Context, uuid.UUID) bool { return true }))

		accountID := uuid.New()
		subs.On("Get", mock.Anything, accountID).Return(nil, billing.ErrSubscriptionNotFound)

		set, err := svc.Entitlements(context.Background(), accountID)
		require.NoError(t, err)
		assert.True(t, set.HasBaseBundle)
		assert.True(t, set.HasDraconic)
		assert.Equal(t, entitlement.StatusActive, set.Status)
	})

	t.Run("one-time grant merges into derived set", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		grants := new(mockGrantStore)
		svc := newTestService(t, provider, subs, customers, billing.WithGrantStore(grants))

		accountID := uuid.New()
		subs.On("Get", mock.Anything, accountID).Return(&billing.Subscription{
			AccountID: accountID,
			Status:    entitlement.StatusActive,
			ItemSet:   []string{"price_base"},
		}, nil)
		grants.On("HasDraconic", mock.Anything, accountID).Return(true, nil)

		set, err := svc.Entitlements(context.Background(), accountID)
		require.NoError(t, err)
		assert.True(t, set.HasDraconic)
		assert.True(t, set.Allows(entitlement.KeyDraconic))
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Parallel()

	payload := []byte(`{}`)
	sig := "t=1,v1=abc"

	t.Run("subscription update syncs from embedded snapshot", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(&billing.WebhookEvent{
			Type:           billing.EventSubscriptionUpdated,
			SubscriptionID: "sub_123",
			Snapshot:       activeSnapshot("price_base", "price_astro"),
		}, nil)
		subs.On("GetByProviderID", mock.Anything, "sub_123").Return(&billing.Subscription{
			AccountID:              accountID,
			ProviderSubscriptionID: "sub_123",
		}, nil)
		subs.On("Upsert", mock.Anything, mock.MatchedBy(func(sub *billing.Subscription) bool {
			return sub.AccountID == accountID && len(sub.ItemSet) == 2
		})).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		subs.AssertExpectations(t)
	})

	t.Run("orphan subscription event acknowledged without write", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(&billing.WebhookEvent{
			Type:           billing.EventSubscriptionUpdated,
			SubscriptionID: "sub_unknown",
			CustomerID:     "cus_unknown",
			Snapshot:       activeSnapshot("price_base"),
		}, nil)
		subs.On("GetByProviderID", mock.Anything, "sub_unknown").Return(nil, billing.ErrSubscriptionNotFound)
		customers.On("AccountID", mock.Anything, "cus_unknown").Return(uuid.Nil, billing.ErrCustomerNotFound)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		subs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("failed invoice re-reads authoritative state", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(&billing.WebhookEvent{
			Type:           billing.EventInvoiceFailed,
			SubscriptionID: "sub_123",
		}, nil)
		subs.On("GetByProviderID", mock.Anything, "sub_123").Return(&billing.Subscription{
			AccountID:              accountID,
			ProviderSubscriptionID: "sub_123",
		}, nil)
		pastDue := activeSnapshot("price_base")
		pastDue.Status = entitlement.StatusPastDue
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(pastDue, nil)
		subs.On("Upsert", mock.Anything, mock.MatchedBy(func(sub *billing.Subscription) bool {
			return sub.Status == entitlement.StatusPastDue
		})).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		subs.AssertExpectations(t)
	})

	t.Run("provider read failure returns error for redelivery", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(&billing.WebhookEvent{
			Type:           billing.EventInvoicePaid,
			SubscriptionID: "sub_123",
		}, nil)
		subs.On("GetByProviderID", mock.Anything, "sub_123").Return(&billing.Subscription{
			AccountID:              uuid.New(),
			ProviderSubscriptionID: "sub_123",
		}, nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").
			Return(nil, &billing.ProviderError{Op: "get_subscription", StatusCode: 500, Message: "boom"})

		err := svc.HandleWebhook(context.Background(), payload, sig)
		var pe *billing.ProviderError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("one-time checkout grants draconic", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		grants := new(mockGrantStore)
		svc := newTestService(t, provider, subs, customers, billing.WithGrantStore(grants))

		accountID := uuid.New()
		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(&billing.WebhookEvent{
			Type:              billing.EventCheckoutCompleted,
			CheckoutSessionID: "cs_123",
			CheckoutMode:      billing.ModePayment,
			Paid:              true,
			AccountID:         accountID,
		}, nil)
		provider.On("ListCheckoutItems", mock.Anything, "cs_123").Return([]string{"price_draconic"}, nil)
		grants.On("GrantDraconic", mock.Anything, accountID).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
		grants.AssertExpectations(t)
	})

	t.Run("subscription checkout syncs from fresh read", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		accountID := uuid.New()
		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(&billing.WebhookEvent{
			Type:              billing.EventCheckoutCompleted,
			CheckoutSessionID: "cs_456",
			CheckoutMode:      billing.ModeSubscription,
			SubscriptionID:    "sub_123",
			Paid:              true,
			AccountID:         accountID,
		}, nil)
		provider.On("GetSubscription", mock.Anything, "sub_123").Return(activeSnapshot("price_base"), nil)
		subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
	})

	t.Run("invalid signature", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		provider.On("ParseWebhook", mock.Anything, payload, "bad").Return(nil, errors.New("signature mismatch"))

		err := svc.HandleWebhook(context.Background(), payload, "bad")
		assert.ErrorIs(t, err, billing.ErrInvalidWebhook)
	})

	t.Run("unhandled event type acknowledged", func(t *testing.T) {
		t.Parallel()

		provider := new(mockProvider)
		subs := new(mockSubscriptionStore)
		customers := new(mockCustomerStore)
		svc := newTestService(t, provider, subs, customers)

		provider.On("ParseWebhook", mock.Anything, payload, sig).Return(nil, nil)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
	})
}

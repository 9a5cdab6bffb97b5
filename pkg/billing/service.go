package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/astralhq/astrokit/pkg/entitlement"
	"github.com/astralhq/astrokit/pkg/logger"
)

// Config holds the redirect targets handed to the provider when
// sessions are created.
type Config struct {
	CheckoutSuccessURL string `env:"BILLING_CHECKOUT_SUCCESS_URL" envDefault:"/suscripcion/exito"`
	CheckoutCancelURL  string `env:"BILLING_CHECKOUT_CANCEL_URL" envDefault:"/suscripcion"`
	PortalReturnURL    string `env:"BILLING_PORTAL_RETURN_URL" envDefault:"/suscripcion"`
}

// Service reconciles local subscription state with the billing
// provider and answers entitlement queries. Every mutation path ends
// with a fresh provider read followed by a full re-derivation, so the
// local record never drifts further than one sync behind.
type Service struct {
	provider  Provider
	subs      SubscriptionStore
	customers CustomerStore
	grants    GrantStore
	catalog   entitlement.Catalog
	override  OverrideResolver
	cfg       Config
	log       *slog.Logger
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGrantStore enables one-time purchase grants.
func WithGrantStore(grants GrantStore) ServiceOption {
	return func(s *Service) { s.grants = grants }
}

// WithOverrideResolver sets the admin override check.
func WithOverrideResolver(resolve OverrideResolver) ServiceOption {
	return func(s *Service) {
		if resolve != nil {
			s.override = resolve
		}
	}
}

// NewService creates the billing service. Provider, stores and a
// validated catalog are required.
func NewService(provider Provider, subs SubscriptionStore, customers CustomerStore, catalog entitlement.Catalog, cfg Config, opts ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, errors.New("billing: provider is required")
	}
	if subs == nil || customers == nil {
		return nil, errors.New("billing: stores are required")
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("billing: %w", err)
	}
	s := &Service{
		provider:  provider,
		subs:      subs,
		customers: customers,
		catalog:   catalog,
		override:  func(context.Context, uuid.UUID) bool { return false },
		cfg:       cfg,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SyncFromSnapshot replaces the local record with a full derivation
// from the given provider snapshot and returns the resulting
// entitlement set. The operation is idempotent: syncing the same
// snapshot twice writes the same record twice.
func (s *Service) SyncFromSnapshot(ctx context.Context, accountID uuid.UUID, snap *Snapshot) (entitlement.Set, error) {
	if snap == nil {
		return entitlement.Free(), errors.New("billing: nil snapshot")
	}

	now := time.Now().UTC()
	sub := &Subscription{
		AccountID:              accountID,
		ProviderSubscriptionID: snap.SubscriptionID,
		CustomerID:             snap.CustomerID,
		Status:                 snap.Status,
		ItemSet:                slices.Clone(snap.Items),
		CurrentPeriodEnd:       snap.CurrentPeriodEnd,
		UpdatedAt:              now,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return entitlement.Free(), errors.Join(ErrFailedToSaveSubscription, err)
	}

	set := s.derive(ctx, accountID, snap.Items, snap.Status)
	s.log.InfoContext(ctx, "subscription synced",
		logger.AccountID(accountID.String()),
		logger.SubscriptionID(snap.SubscriptionID),
		slog.String("status", string(snap.Status)),
		slog.Int("items", len(snap.Items)))
	return set, nil
}

// SyncFromProvider fetches the authoritative snapshot for the
// account's subscription and syncs from it. When the provider read
// fails the local record is left untouched.
func (s *Service) SyncFromProvider(ctx context.Context, accountID uuid.UUID) (entitlement.Set, error) {
	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return entitlement.Free(), ErrNoActiveSubscription
		}
		return entitlement.Free(), err
	}

	snap, err := s.provider.GetSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return entitlement.Free(), err
	}
	return s.SyncFromSnapshot(ctx, accountID, snap)
}

// UpdateAddon adds or removes a recurring add-on item on the account's
// subscription and returns the entitlement set derived from a fresh
// provider read. The base bundle is protected from removal before any
// provider call is made. When an add targets an item the provider
// already carries, the mutation is skipped and the sync still runs,
// which heals local drift without a duplicate charge.
func (s *Service) UpdateAddon(ctx context.Context, accountID uuid.UUID, itemID string, action Action) (entitlement.Set, error) {
	if action != ActionAdd && action != ActionRemove {
		return entitlement.Free(), ErrInvalidAction
	}
	if action == ActionRemove && s.catalog[itemID] == entitlement.KeyBaseBundle {
		return entitlement.Free(), ErrBaseBundleProtected
	}

	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return entitlement.Free(), ErrNoActiveSubscription
		}
		return entitlement.Free(), err
	}
	if sub.ProviderSubscriptionID == "" {
		return entitlement.Free(), ErrNoActiveSubscription
	}

	snap, err := s.provider.GetSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return entitlement.Free(), err
	}

	present := slices.Contains(snap.Items, itemID)
	switch action {
	case ActionAdd:
		if present {
			s.log.WarnContext(ctx, "add-on already on subscription, healing local state",
				logger.AccountID(accountID.String()),
				logger.ItemID(itemID))
		} else if err := s.provider.AddItem(ctx, sub.ProviderSubscriptionID, itemID); err != nil {
			return entitlement.Free(), err
		}
	case ActionRemove:
		if !present {
			return entitlement.Free(), ErrItemNotOnSubscription
		}
		if err := s.provider.RemoveItem(ctx, sub.ProviderSubscriptionID, itemID); err != nil {
			return entitlement.Free(), err
		}
	}

	// Re-read rather than patching locally: the provider may have
	// recalculated status or items as a side effect of the mutation.
	fresh, err := s.provider.GetSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return entitlement.Free(), err
	}
	return s.SyncFromSnapshot(ctx, accountID, fresh)
}

// StartCheckout opens a hosted checkout session for the given items.
// When a subscription checkout is requested but the account already
// holds an active base bundle, a portal session is returned instead so
// the account manages the existing subscription rather than creating a
// second one.
func (s *Service) StartCheckout(ctx context.Context, accountID uuid.UUID, email, name string, items []string, mode CheckoutMode) (*SessionLink, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if mode != ModeSubscription && mode != ModePayment {
		return nil, fmt.Errorf("billing: unsupported checkout mode %q", mode)
	}

	if mode == ModeSubscription {
		sub, err := s.subs.Get(ctx, accountID)
		if err == nil && sub.IsActive() && sub.HasItem(s.catalog.BaseBundleItemID()) {
			link, err := s.provider.CreatePortalSession(ctx, sub.CustomerID, s.cfg.PortalReturnURL)
			if err != nil {
				return nil, err
			}
			link.Portal = true
			return link, nil
		}
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
	}

	customerID, err := s.customers.CustomerID(ctx, accountID)
	if errors.Is(err, ErrCustomerNotFound) {
		customerID, err = s.provider.CreateCustomer(ctx, accountID, email, name)
		if err != nil {
			return nil, err
		}
		if err := s.customers.SetCustomerID(ctx, accountID, customerID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		AccountID:  accountID,
		CustomerID: customerID,
		Items:      items,
		Mode:       mode,
		SuccessURL: s.cfg.CheckoutSuccessURL,
		CancelURL:  s.cfg.CheckoutCancelURL,
	})
}

// PortalLink opens a self-service portal session for the account's
// provider customer.
func (s *Service) PortalLink(ctx context.Context, accountID uuid.UUID) (*SessionLink, error) {
	customerID, err := s.customers.CustomerID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	link, err := s.provider.CreatePortalSession(ctx, customerID, s.cfg.PortalReturnURL)
	if err != nil {
		return nil, err
	}
	link.Portal = true
	return link, nil
}

// Entitlements derives the current entitlement set from the local
// record. Accounts without a record get the free set.
func (s *Service) Entitlements(ctx context.Context, accountID uuid.UUID) (entitlement.Set, error) {
	sub, err := s.subs.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			if s.override(ctx, accountID) {
				return entitlement.Derive(s.catalog, nil, entitlement.StatusFree, true), nil
			}
			return entitlement.Free(), nil
		}
		return entitlement.Free(), err
	}
	return s.derive(ctx, accountID, sub.ItemSet, sub.Status), nil
}

// HandleWebhook verifies, normalizes and applies a provider-pushed
// event. Events for subscriptions with no local record are logged and
// acknowledged so the provider stops redelivering them. Provider read
// failures during handling return an error, which surfaces as a
// non-2xx response and triggers redelivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return errors.Join(ErrInvalidWebhook, err)
	}
	if event == nil {
		return nil // unhandled event type, acknowledge
	}

	s.log.InfoContext(ctx, "webhook received",
		logger.EventType(string(event.Type)),
		slog.String("provider_event", event.ProviderEvent),
		logger.SubscriptionID(event.SubscriptionID))

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return s.applySubscriptionEvent(ctx, event)
	case EventInvoicePaid, EventInvoiceFailed:
		return s.applyInvoiceEvent(ctx, event)
	case EventCheckoutCompleted:
		return s.applyCheckoutEvent(ctx, event)
	default:
		return nil
	}
}

func (s *Service) applySubscriptionEvent(ctx context.Context, event *WebhookEvent) error {
	if event.Snapshot == nil {
		return fmt.Errorf("billing: %s event without snapshot", event.Type)
	}
	accountID, ok := s.resolveAccount(ctx, event)
	if !ok {
		s.log.WarnContext(ctx, "webhook for unknown account, acknowledging",
			logger.SubscriptionID(event.SubscriptionID),
			slog.String("customer_id", event.CustomerID))
		return nil
	}
	_, err := s.SyncFromSnapshot(ctx, accountID, event.Snapshot)
	return err
}

func (s *Service) applyInvoiceEvent(ctx context.Context, event *WebhookEvent) error {
	if event.SubscriptionID == "" {
		return nil // one-off invoices carry no subscription
	}
	accountID, ok := s.resolveAccount(ctx, event)
	if !ok {
		s.log.WarnContext(ctx, "invoice webhook for unknown account, acknowledging",
			logger.SubscriptionID(event.SubscriptionID))
		return nil
	}
	// Invoice events carry no item set, so re-read the authoritative
	// state instead of patching status locally.
	snap, err := s.provider.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		return err
	}
	_, err = s.SyncFromSnapshot(ctx, accountID, snap)
	return err
}

func (s *Service) applyCheckoutEvent(ctx context.Context, event *WebhookEvent) error {
	if !event.Paid {
		return nil
	}
	switch event.CheckoutMode {
	case ModeSubscription:
		if event.SubscriptionID == "" || event.AccountID == uuid.Nil {
			return nil
		}
		snap, err := s.provider.GetSubscription(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		_, err = s.SyncFromSnapshot(ctx, event.AccountID, snap)
		return err
	case ModePayment:
		return s.applyOneTimePurchase(ctx, event)
	default:
		return nil
	}
}

func (s *Service) applyOneTimePurchase(ctx context.Context, event *WebhookEvent) error {
	if s.grants == nil || event.AccountID == uuid.Nil {
		return nil
	}
	items, err := s.provider.ListCheckoutItems(ctx, event.CheckoutSessionID)
	if err != nil {
		return err
	}
	for _, itemID := range items {
		if s.catalog[itemID] != entitlement.KeyDraconic {
			continue
		}
		if err := s.grants.GrantDraconic(ctx, event.AccountID); err != nil {
			return err
		}
		s.log.InfoContext(ctx, "draconic grant recorded",
			logger.AccountID(event.AccountID.String()))
	}
	return nil
}

// resolveAccount finds the account an event belongs to: local record
// by provider subscription id first, then the customer mapping, then
// metadata carried on the event itself.
func (s *Service) resolveAccount(ctx context.Context, event *WebhookEvent) (uuid.UUID, bool) {
	if event.SubscriptionID != "" {
		if sub, err := s.subs.GetByProviderID(ctx, event.SubscriptionID); err == nil {
			return sub.AccountID, true
		}
	}
	if event.CustomerID != "" {
		if accountID, err := s.customers.AccountID(ctx, event.CustomerID); err == nil {
			return accountID, true
		}
	}
	if event.AccountID != uuid.Nil {
		return event.AccountID, true
	}
	return uuid.Nil, false
}

func (s *Service) derive(ctx context.Context, accountID uuid.UUID, items []string, status entitlement.Status) entitlement.Set {
	set := entitlement.Derive(s.catalog, items, status, s.override(ctx, accountID))
	if s.grants != nil && !set.HasDraconic {
		if ok, err := s.grants.HasDraconic(ctx, accountID); err == nil && ok {
			set.HasDraconic = true
		}
	}
	return set
}

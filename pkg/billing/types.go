package billing

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/astralhq/astrokit/pkg/entitlement"
)

// Subscription is the locally persisted entitlement record, kept
// consistent with the provider's authoritative state by the sync
// engine. One row per account; created on first purchase, updated on
// every sync, deleted only with the account.
type Subscription struct {
	AccountID              uuid.UUID
	ProviderSubscriptionID string
	CustomerID             string
	Status                 entitlement.Status
	ItemSet                []string // provider item (price) ids currently active
	CurrentPeriodEnd       time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasItem reports whether the stored item set contains the given
// provider item id.
func (s *Subscription) HasItem(itemID string) bool {
	return slices.Contains(s.ItemSet, itemID)
}

// IsActive reports whether the subscription is in active status.
func (s *Subscription) IsActive() bool {
	return s.Status == entitlement.StatusActive
}

// Snapshot is the authoritative subscription state as read from the
// billing provider. Sync is always a full re-derivation from a
// snapshot, never an incremental patch.
type Snapshot struct {
	SubscriptionID   string
	CustomerID       string
	Status           entitlement.Status
	Items            []string // provider item (price) ids
	CurrentPeriodEnd time.Time
}

// Action is an add-on mutation direction.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// CheckoutMode distinguishes recurring subscriptions from one-time
// purchases.
type CheckoutMode string

const (
	ModeSubscription CheckoutMode = "subscription"
	ModePayment      CheckoutMode = "payment"
)

// CheckoutRequest asks the provider for a hosted checkout session.
type CheckoutRequest struct {
	AccountID  uuid.UUID
	CustomerID string
	Items      []string
	Mode       CheckoutMode
	SuccessURL string
	CancelURL  string
}

// SessionLink is a redirect target returned by checkout and portal
// session creation.
type SessionLink struct {
	URL       string
	SessionID string
	// Portal reports whether the link points at the self-service portal
	// instead of a new checkout. Set when an active base bundle makes a
	// fresh subscription checkout invalid.
	Portal bool
}

// EventType is the normalized webhook event type. Provider
// implementations map their specific event names onto these.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventInvoicePaid         EventType = "invoice_payment_succeeded"
	EventInvoiceFailed       EventType = "invoice_payment_failed"
	EventCheckoutCompleted   EventType = "checkout_completed"
)

// WebhookEvent is a normalized provider-pushed event. Fields are
// populated according to type: subscription lifecycle events embed the
// full Snapshot, invoice events carry only the subscription id, and
// checkout events describe the completed session.
type WebhookEvent struct {
	Type          EventType
	ProviderEvent string // original provider event name

	SubscriptionID string
	CustomerID     string
	// AccountID is parsed from session or customer metadata when the
	// provider object carries it; uuid.Nil otherwise.
	AccountID uuid.UUID

	// Snapshot is set for subscription lifecycle events.
	Snapshot *Snapshot

	// Checkout session fields, set for EventCheckoutCompleted.
	CheckoutSessionID string
	CheckoutMode      CheckoutMode
	Paid              bool
}

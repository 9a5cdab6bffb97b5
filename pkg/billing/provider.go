package billing

import (
	"context"

	"github.com/google/uuid"
)

// Provider abstracts the external billing system. The service layer
// never talks to a concrete provider SDK directly, which keeps sync
// and add-on logic testable against mocks.
type Provider interface {
	// GetSubscription reads the authoritative subscription state.
	GetSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error)

	// AddItem attaches a recurring item to an existing subscription,
	// invoicing the proration immediately.
	AddItem(ctx context.Context, subscriptionID, itemID string) error

	// RemoveItem detaches a recurring item, crediting the unused
	// period immediately. Returns ErrItemNotOnSubscription when the
	// subscription does not carry the item.
	RemoveItem(ctx context.Context, subscriptionID, itemID string) error

	// CreateCustomer registers a provider customer for the account and
	// returns its provider id.
	CreateCustomer(ctx context.Context, accountID uuid.UUID, email, name string) (string, error)

	// CreateCheckoutSession opens a hosted checkout and returns its
	// redirect link.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*SessionLink, error)

	// CreatePortalSession opens a self-service portal session for the
	// customer.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*SessionLink, error)

	// ParseWebhook verifies the signature and normalizes the payload
	// into a WebhookEvent. Event types outside the normalized set
	// return (nil, nil) so callers can acknowledge and ignore them.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)

	// ListCheckoutItems returns the item (price) ids purchased in a
	// completed checkout session. Used to detect one-time purchases.
	ListCheckoutItems(ctx context.Context, checkoutSessionID string) ([]string, error)
}

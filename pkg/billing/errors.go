package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSubscription means the account has no local
	// subscription record to mutate. Add-on changes require an
	// existing subscription; new purchases go through checkout.
	ErrNoActiveSubscription = errors.New("no active subscription for account")

	// ErrBaseBundleProtected rejects removal of the base bundle item.
	// Cancelling the whole subscription is a portal operation, not an
	// item removal.
	ErrBaseBundleProtected = errors.New("base bundle cannot be removed as an add-on")

	// ErrItemNotOnSubscription means a removal targeted an item the
	// provider-side subscription does not carry.
	ErrItemNotOnSubscription = errors.New("item not present on subscription")

	// ErrInvalidAction means the requested add-on action is neither
	// add nor remove.
	ErrInvalidAction = errors.New("invalid add-on action")

	// ErrNoItems means a checkout was requested with an empty item
	// list.
	ErrNoItems = errors.New("checkout requires at least one item")

	// ErrCustomerNotFound means no provider customer id is stored for
	// the account.
	ErrCustomerNotFound = errors.New("customer not found for account")

	// ErrSubscriptionNotFound is returned by stores when no row
	// matches.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidWebhook means the webhook payload failed signature
	// verification or could not be decoded.
	ErrInvalidWebhook = errors.New("invalid webhook payload")

	// ErrFailedToSaveSubscription wraps store write failures during
	// sync.
	ErrFailedToSaveSubscription = errors.New("failed to save subscription")
)

// ProviderError carries the upstream billing provider's failure detail
// so callers can distinguish transient faults from permanent ones.
type ProviderError struct {
	Op         string // provider operation that failed
	StatusCode int    // upstream HTTP status, 0 when unknown
	Code       string // provider-specific error code
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing provider %s failed: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("billing provider %s failed: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Server faults,
// rate limits and timeouts qualify; everything else is permanent.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408 || e.StatusCode == 0
}

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/astralhq/astrokit/pkg/entitlement"
)

// StripeConfig holds the Stripe API credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

const accountIDMetadataKey = "account_id"

// StripeProvider implements Provider on top of the Stripe API.
// Item mutations use always_invoice proration so charges and credits
// land immediately instead of accruing to the next cycle.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// StripeOption configures the Stripe provider.
type StripeOption func(*StripeProvider)

// WithStripeClient injects a preconfigured API client, used by tests
// to point at a stub backend.
func WithStripeClient(api *client.API) StripeOption {
	return func(p *StripeProvider) {
		if api != nil {
			p.api = api
		}
	}
}

// NewStripeProvider creates a Stripe-backed billing provider.
func NewStripeProvider(cfg StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("billing: stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("billing: stripe webhook secret is required")
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	p := &StripeProvider{api: api, webhookSecret: cfg.WebhookSecret}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeError("get_subscription", err)
	}
	return snapshotFromStripe(sub), nil
}

func (p *StripeProvider) AddItem(ctx context.Context, subscriptionID, itemID string) error {
	params := &stripe.SubscriptionItemParams{
		Subscription:      stripe.String(subscriptionID),
		Price:             stripe.String(itemID),
		Quantity:          stripe.Int64(1),
		ProrationBehavior: stripe.String("always_invoice"),
	}
	params.Context = ctx
	if _, err := p.api.SubscriptionItems.New(params); err != nil {
		return wrapStripeError("add_item", err)
	}
	return nil
}

func (p *StripeProvider) RemoveItem(ctx context.Context, subscriptionID, itemID string) error {
	// The delete endpoint wants the subscription item id, not the
	// price id, so resolve it from the live subscription first.
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return wrapStripeError("remove_item", err)
	}

	var subscriptionItemID string
	for _, item := range sub.Items.Data {
		if item.Price != nil && item.Price.ID == itemID {
			subscriptionItemID = item.ID
			break
		}
	}
	if subscriptionItemID == "" {
		return ErrItemNotOnSubscription
	}

	delParams := &stripe.SubscriptionItemParams{
		ProrationBehavior: stripe.String("always_invoice"),
	}
	delParams.Context = ctx
	if _, err := p.api.SubscriptionItems.Del(subscriptionItemID, delParams); err != nil {
		return wrapStripeError("remove_item", err)
	}
	return nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, accountID uuid.UUID, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(accountIDMetadataKey, accountID.String())
	cus, err := p.api.Customers.New(params)
	if err != nil {
		return "", wrapStripeError("create_customer", err)
	}
	return cus.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*SessionLink, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, itemID := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(itemID),
			Quantity: stripe.Int64(1),
		})
	}
	params := &stripe.CheckoutSessionParams{
		Customer:            stripe.String(req.CustomerID),
		Mode:                stripe.String(string(req.Mode)),
		LineItems:           lineItems,
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata(accountIDMetadataKey, req.AccountID.String())
	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeError("create_checkout_session", err)
	}
	return &SessionLink{URL: sess.URL, SessionID: sess.ID}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*SessionLink, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, wrapStripeError("create_portal_session", err)
	}
	return &SessionLink{URL: sess.URL, SessionID: sess.ID, Portal: true}, nil
}

func (p *StripeProvider) ListCheckoutItems(ctx context.Context, checkoutSessionID string) ([]string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(checkoutSessionID),
	}
	params.Context = ctx
	var items []string
	iter := p.api.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		if li.Price != nil {
			items = append(items, li.Price.ID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError("list_checkout_items", err)
	}
	return items, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps the event
// onto the normalized WebhookEvent. Unrecognized event types return
// (nil, nil).
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhook, err)
	}

	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrInvalidWebhook, err)
		}
		event := &WebhookEvent{
			Type:           subscriptionEventType(string(ev.Type)),
			ProviderEvent:  string(ev.Type),
			SubscriptionID: sub.ID,
			Snapshot:       snapshotFromStripe(&sub),
			AccountID:      accountIDFromMetadata(sub.Metadata),
		}
		if sub.Customer != nil {
			event.CustomerID = sub.Customer.ID
		}
		return event, nil

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrInvalidWebhook, err)
		}
		eventType := EventInvoicePaid
		if ev.Type == "invoice.payment_failed" {
			eventType = EventInvoiceFailed
		}
		event := &WebhookEvent{
			Type:          eventType,
			ProviderEvent: string(ev.Type),
		}
		if inv.Subscription != nil {
			event.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			event.CustomerID = inv.Customer.ID
		}
		return event, nil

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrInvalidWebhook, err)
		}
		event := &WebhookEvent{
			Type:              EventCheckoutCompleted,
			ProviderEvent:     string(ev.Type),
			CheckoutSessionID: sess.ID,
			CheckoutMode:      CheckoutMode(sess.Mode),
			Paid:              sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
			AccountID:         accountIDFromMetadata(sess.Metadata),
		}
		if sess.Subscription != nil {
			event.SubscriptionID = sess.Subscription.ID
		}
		if sess.Customer != nil {
			event.CustomerID = sess.Customer.ID
		}
		return event, nil

	default:
		return nil, nil
	}
}

func subscriptionEventType(stripeType string) EventType {
	switch stripeType {
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	default:
		return EventSubscriptionUpdated
	}
}

func snapshotFromStripe(sub *stripe.Subscription) *Snapshot {
	snap := &Snapshot{
		SubscriptionID:   sub.ID,
		Status:           mapStripeStatus(sub.Status),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil {
				snap.Items = append(snap.Items, item.Price.ID)
			}
		}
	}
	return snap
}

func mapStripeStatus(status stripe.SubscriptionStatus) entitlement.Status {
	switch status {
	case stripe.SubscriptionStatusActive:
		return entitlement.StatusActive
	case stripe.SubscriptionStatusPastDue:
		return entitlement.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return entitlement.StatusCancelled
	case stripe.SubscriptionStatusIncomplete:
		return entitlement.StatusIncomplete
	case stripe.SubscriptionStatusIncompleteExpired:
		return entitlement.StatusExpired
	case stripe.SubscriptionStatusTrialing:
		return entitlement.StatusTrialing
	case stripe.SubscriptionStatusUnpaid:
		return entitlement.StatusUnpaid
	default:
		return entitlement.Status(status)
	}
}

func accountIDFromMetadata(metadata map[string]string) uuid.UUID {
	raw, ok := metadata[accountIDMetadataKey]
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &ProviderError{
			Op:         op,
			StatusCode: stripeErr.HTTPStatusCode,
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
			Err:        err,
		}
	}
	return &ProviderError{
		Op:      op,
		Message: fmt.Sprintf("request failed: %v", err),
		Err:     err,
	}
}

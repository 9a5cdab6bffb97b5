// Package billing mounts the HTTP surface of the billing and
// entitlement layer: webhook ingestion, checkout and portal session
// creation, add-on management, entitlement queries and the admin cache
// clear.
package billing

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/astralhq/astrokit/pkg/artifactcache"
	"github.com/astralhq/astrokit/pkg/billing"
	"github.com/astralhq/astrokit/pkg/entitlement"
)

// Service is the slice of the billing service the module needs.
type Service interface {
	StartCheckout(ctx context.Context, accountID uuid.UUID, email, name string, items []string, mode billing.CheckoutMode) (*billing.SessionLink, error)
	PortalLink(ctx context.Context, accountID uuid.UUID) (*billing.SessionLink, error)
	UpdateAddon(ctx context.Context, accountID uuid.UUID, itemID string, action billing.Action) (entitlement.Set, error)
	Entitlements(ctx context.Context, accountID uuid.UUID) (entitlement.Set, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// AccountResolver extracts the authenticated account from the request.
// Session handling lives outside this module, so the check is
// injected. It returns an error when the request is unauthenticated.
type AccountResolver func(r *http.Request) (uuid.UUID, error)

// AdminGuard reports whether the request is allowed to use admin
// endpoints.
type AdminGuard func(r *http.Request) bool

// RouterOptions wires the module's collaborators. Service and Resolver
// are required; admin endpoints mount only when both Cache and Admin
// are set.
type RouterOptions struct {
	Service         Service
	Resolver        AccountResolver
	Cache           artifactcache.Store
	Admin           AdminGuard
	WebhookSigHdr   string // defaults to Stripe-Signature
	MaxWebhookBytes int64  // defaults to 64 KiB
}

// Router creates the billing module router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billingmod.Router(billingmod.RouterOptions{
//	    Service:  svc,
//	    Resolver: sessionAccount,
//	    Cache:    cacheStore,
//	    Admin:    requireAdmin,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("billing module: service is required")
	}
	if opts.Resolver == nil {
		panic("billing module: account resolver is required")
	}
	if opts.WebhookSigHdr == "" {
		opts.WebhookSigHdr = "Stripe-Signature"
	}
	if opts.MaxWebhookBytes <= 0 {
		opts.MaxWebhookBytes = 64 << 10
	}

	h := &handlers{opts: opts}

	r := chi.NewRouter()
	r.Post("/webhooks/stripe", h.webhook)
	r.Post("/checkout", h.checkout)
	r.Post("/portal", h.portal)
	r.Post("/subscription/items", h.updateAddon)
	r.Get("/entitlements", h.entitlements)

	if opts.Cache != nil && opts.Admin != nil {
		r.Post("/admin/cache/clear", h.adminCacheClear)
	}

	return r
}

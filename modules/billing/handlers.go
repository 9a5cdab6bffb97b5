package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/astralhq/astrokit/pkg/artifactcache"
	"github.com/astralhq/astrokit/pkg/billing"
)

type handlers struct {
	opts RouterOptions
}

type checkoutRequest struct {
	Items []string `json:"items"`
	Mode  string   `json:"mode"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
}

type addonRequest struct {
	ItemID string `json:"itemId"`
	Action string `json:"action"`
}

type cacheClearRequest struct {
	AccountID string   `json:"accountId"`
	Kinds     []string `json:"kinds"`
}

type sessionResponse struct {
	URL    string `json:"url"`
	Portal bool   `json:"portal"`
}

func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, h.opts.MaxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "failed to read webhook body")
		return
	}

	signature := r.Header.Get(h.opts.WebhookSigHdr)
	if err := h.opts.Service.HandleWebhook(r.Context(), payload, signature); err != nil {
		if errors.Is(err, billing.ErrInvalidWebhook) {
			writeError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
			return
		}
		// Non-2xx makes the provider redeliver.
		writeError(w, http.StatusBadGateway, "webhook_failed", "webhook processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed request body")
		return
	}
	mode := billing.CheckoutMode(req.Mode)
	if mode == "" {
		mode = billing.ModeSubscription
	}

	link, err := h.opts.Service.StartCheckout(r.Context(), accountID, req.Email, req.Name, req.Items, mode)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{URL: link.URL, Portal: link.Portal})
}

func (h *handlers) portal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	link, err := h.opts.Service.PortalLink(r.Context(), accountID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{URL: link.URL, Portal: true})
}

func (h *handlers) updateAddon(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	var req addonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed request body")
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_payload", "itemId is required")
		return
	}

	set, err := h.opts.Service.UpdateAddon(r.Context(), accountID, req.ItemID, billing.Action(req.Action))
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *handlers) entitlements(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	set, err := h.opts.Service.Entitlements(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to load entitlements")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *handlers) adminCacheClear(w http.ResponseWriter, r *http.Request) {
	if !h.opts.Admin(r) {
		writeError(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}

	var req cacheClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "malformed request body")
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "accountId must be a uuid")
		return
	}

	kinds := make([]artifactcache.Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, artifactcache.Kind(k))
	}

	deleted, err := artifactcache.InvalidateAccount(r.Context(), h.opts.Cache, accountID, kinds...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *handlers) account(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, err := h.opts.Resolver(r)
	if err != nil || accountID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return uuid.Nil, false
	}
	return accountID, true
}

// writeBillingError maps service sentinels onto HTTP statuses with a
// uniform error envelope.
func writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrBaseBundleProtected):
		writeError(w, http.StatusForbidden, "base_bundle_protected", "the base bundle cannot be removed")
	case errors.Is(err, billing.ErrNoActiveSubscription), errors.Is(err, billing.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "no_subscription", "no active subscription for account")
	case errors.Is(err, billing.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "no_customer", "no billing customer for account")
	case errors.Is(err, billing.ErrItemNotOnSubscription):
		writeError(w, http.StatusNotFound, "item_not_on_subscription", "item is not on the subscription")
	case errors.Is(err, billing.ErrInvalidAction), errors.Is(err, billing.ErrNoItems):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		var pe *billing.ProviderError
		if errors.As(err, &pe) {
			writeError(w, http.StatusBadGateway, "provider_error", "billing provider request failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
}

package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/courseforge/courseforge/pkg/billing"
)

// maxWebhookBody caps webhook payload reads. Processor events are a few
// KB; anything near the cap is hostile.
const maxWebhookBody = 1 << 20

// signatureHeader carries the processor's webhook signature.
const signatureHeader = "Processor-Signature"

func (m *Module) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	result, err := m.reconciler.HandleEvent(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, billing.ErrProcessorUnavailable):
			// Retryable: the processor redelivers on non-2xx.
			writeError(w, http.StatusServiceUnavailable, "processor unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "event processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
	})
}

type planChangeRequest struct {
	UserID  string `json:"user_id"`
	NewPlan string `json:"new_plan"`
}

func (m *Module) handlePlanChange(w http.ResponseWriter, r *http.Request) {
	var req planChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.NewPlan == "" {
		writeError(w, http.StatusBadRequest, "user_id and new_plan are required")
		return
	}

	result, err := m.planChanges.ChangePlan(r.Context(), req.UserID, billing.PlanType(req.NewPlan))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "unknown plan")
		case errors.Is(err, billing.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "unknown user")
		case errors.Is(err, billing.ErrNoActiveSubscription),
			errors.Is(err, billing.ErrSubscriptionNotActive):
			writeError(w, http.StatusConflict, "no active subscription")
		case errors.Is(err, billing.ErrSamePlanRequested):
			writeError(w, http.StatusConflict, "already on the requested plan")
		case errors.Is(err, billing.ErrProcessorUnavailable):
			writeError(w, http.StatusServiceUnavailable, "processor unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "plan change failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type claimRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (m *Module) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "user_id and email are required")
		return
	}

	result, err := m.claims.ClaimByEmail(r.Context(), req.UserID, req.Email)
	if err != nil {
		if errors.Is(err, billing.ErrProcessorUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "processor unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "claim failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleEntitlementCheck(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	creatorID := chi.URLParam(r, "creatorID")

	allowed, err := m.entitlements.HasAccessToCreator(r.Context(), userID, creatorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "entitlement check failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (m *Module) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	subs, err := m.entitlements.ListEffectiveSubscriptions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing subscriptions failed")
		return
	}
	if subs == nil {
		subs = []billing.EffectiveSubscription{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

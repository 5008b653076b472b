package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courseforge/courseforge/pkg/webhook"
)

// Processor event types this subsystem reconciles. Asset/video readiness
// events flow through a different pipeline and are acknowledged untouched.
const (
	eventCheckoutCompleted = "checkout.session.completed"
)

// ReconcileResult reports what a webhook delivery did.
type ReconcileResult struct {
	EventType  string
	ResourceID string
	// Duplicate is true when the event was already in the ledger. This is
	// a normal idempotent outcome, not an error.
	Duplicate bool
	// Ignored is true when the event was acknowledged without writes:
	// foreign event kinds, unpaid sessions, or unparsable correlation
	// metadata (which must never be failed, or the processor would
	// redeliver it forever).
	Ignored bool
}

// WebhookReconciler ingests processor events into the document store.
//
// The ledger entry is written before any state mutation (write-ahead): a
// crash between the two leaves the event marked processed without its
// side effect, and a redelivery is treated as a duplicate. This trades a
// small risk of loss for a guarantee of no double-application, which is
// the right trade for financial mutations.
type WebhookReconciler struct {
	secret    string
	maxAge    time.Duration
	ledger    EventLedger
	store     EntitlementStore
	processor Processor
	plans     *Catalog
	log       *slog.Logger
}

// ReconcilerOption configures a WebhookReconciler.
type ReconcilerOption func(*WebhookReconciler)

// WithSignatureMaxAge bounds the accepted signature timestamp window.
func WithSignatureMaxAge(maxAge time.Duration) ReconcilerOption {
	return func(r *WebhookReconciler) { r.maxAge = maxAge }
}

// WithReconcilerLogger sets the reconciler's logger.
func WithReconcilerLogger(log *slog.Logger) ReconcilerOption {
	return func(r *WebhookReconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// NewWebhookReconciler creates a WebhookReconciler. Panics on nil required
// dependencies to fail fast during initialization.
func NewWebhookReconciler(secret string, ledger EventLedger, store EntitlementStore, processor Processor, plans *Catalog, opts ...ReconcilerOption) *WebhookReconciler {
	if secret == "" {
		panic("billing: webhook signing secret is required")
	}
	if ledger == nil {
		panic("billing: EventLedger is required")
	}
	if store == nil {
		panic("billing: EntitlementStore is required")
	}
	if processor == nil {
		panic("billing: Processor is required")
	}
	if plans == nil {
		panic("billing: plan Catalog is required")
	}

	r := &WebhookReconciler{
		secret:    secret,
		maxAge:    5 * time.Minute,
		ledger:    ledger,
		store:     store,
		processor: processor,
		plans:     plans,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentIntent     string            `json:"payment_intent"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// HandleEvent verifies, deduplicates, and applies one processor event.
func (r *WebhookReconciler) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (*ReconcileResult, error) {
	if err := webhook.Verify(r.secret, payload, signatureHeader, r.maxAge); err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		// Authenticated but malformed; retrying cannot help.
		r.log.WarnContext(ctx, "acknowledging malformed event payload", slog.String("error", err.Error()))
		return &ReconcileResult{Ignored: true}, nil
	}

	switch envelope.Type {
	case eventCheckoutCompleted:
		return r.handleCheckoutCompleted(ctx, envelope)
	default:
		r.log.DebugContext(ctx, "ignoring event kind",
			slog.String("event_id", envelope.ID),
			slog.String("event_type", envelope.Type),
		)
		return &ReconcileResult{EventType: envelope.Type, Ignored: true}, nil
	}
}

func (r *WebhookReconciler) handleCheckoutCompleted(ctx context.Context, envelope eventEnvelope) (*ReconcileResult, error) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(envelope.Data.Object, &session); err != nil || session.ID == "" {
		r.log.WarnContext(ctx, "acknowledging checkout event without session object",
			slog.String("event_id", envelope.ID))
		return &ReconcileResult{EventType: envelope.Type, Ignored: true}, nil
	}

	result := &ReconcileResult{EventType: envelope.Type, ResourceID: session.ID}

	// Unpaid sessions mutate nothing and stay out of the ledger: a later
	// redelivery after the payment settles must still be applied.
	if session.PaymentStatus != "paid" {
		result.Ignored = true
		return result, nil
	}

	// Write-ahead: the ledger mark precedes any mutation so concurrent or
	// repeated deliveries of the same event never double-apply.
	first, err := r.ledger.MarkProcessed(ctx, envelope.Type, session.ID)
	if err != nil {
		return nil, fmt.Errorf("mark event processed: %w", err)
	}
	if !first {
		result.Duplicate = true
		return result, nil
	}

	switch session.Mode {
	case "payment":
		return r.applyPaymentSession(ctx, result, session)
	case "subscription":
		return r.applySubscriptionSession(ctx, result, session)
	default:
		result.Ignored = true
		return result, nil
	}
}

// applyPaymentSession handles one-time payments: plan-upgrade settlements
// (correlation metadata is the sole source of truth; user state may have
// drifted since checkout creation) and ordinary marketplace sales.
func (r *WebhookReconciler) applyPaymentSession(ctx context.Context, result *ReconcileResult, session checkoutSessionPayload) (*ReconcileResult, error) {
	md, err := ParseCorrelationMetadata(withClientReference(session))
	if err == nil && md.Action == ActionUpgradePlan {
		if err := r.applyPlanUpgrade(ctx, session, md); err != nil {
			return nil, err
		}
		return result, nil
	}

	// Not an upgrade: a marketplace sale if the metadata names the parties.
	buyerID := session.Metadata["buyer_id"]
	sellerID := session.Metadata["seller_id"]
	if buyerID == "" && sellerID == "" {
		r.log.WarnContext(ctx, "acknowledging payment session with unparsable correlation metadata",
			slog.String("session_id", session.ID))
		result.Ignored = true
		return result, nil
	}

	order := &Order{
		CheckoutSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntent,
		Amount:            session.AmountTotal,
		Currency:          session.Currency,
		Kind:              OrderKindMarketplaceSale,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		Status:            OrderStatusAwaitingFulfillment,
		CreatedAt:         time.Now().UTC(),
	}
	created, err := r.store.CreateOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order for session %s: %w", session.ID, err)
	}
	if !created {
		r.log.InfoContext(ctx, "order already materialized", slog.String("session_id", session.ID))
	}
	return result, nil
}

// applyPlanUpgrade settles a paid plan upgrade: the deferred subscription
// swap from the engine's upgrade path happens now.
func (r *WebhookReconciler) applyPlanUpgrade(ctx context.Context, session checkoutSessionPayload, md CorrelationMetadata) error {
	newPlan, ok := r.plans.Get(md.NewPlanType)
	if !ok {
		// Unknown plan in historical metadata; retrying cannot help.
		r.log.ErrorContext(ctx, "acknowledging upgrade with unknown plan type",
			slog.String("session_id", session.ID),
			slog.String("new_plan", string(md.NewPlanType)),
		)
		return nil
	}

	sub, err := r.processor.GetSubscription(ctx, md.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", md.SubscriptionID, err)
	}

	priceID, err := r.processor.EnsurePrice(ctx, newPlan)
	if err != nil {
		return fmt.Errorf("resolve price for plan %s: %w", newPlan.Type, err)
	}

	if err := r.processor.UpdateSubscriptionPrice(ctx, sub.ID, sub.ItemID, priceID, map[string]string{
		"plan_type":  string(newPlan.Type),
		"changed_by": md.BuyerID,
	}); err != nil {
		return fmt.Errorf("apply plan swap on subscription %s: %w", sub.ID, err)
	}

	if md.BuyerID != "" {
		if err := r.store.SetUserMembership(ctx, md.BuyerID, true, newPlan.Type, md.SubscriptionID); err != nil {
			return fmt.Errorf("persist plan change for user %s: %w", md.BuyerID, err)
		}
	}

	order := &Order{
		CheckoutSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntent,
		Amount:            session.AmountTotal,
		Currency:          session.Currency,
		Kind:              OrderKindSubscriptionChange,
		BuyerID:           md.BuyerID,
		SubscriptionID:    md.SubscriptionID,
		CurrentPlanType:   md.CurrentPlanType,
		NewPlanType:       md.NewPlanType,
		Status:            OrderStatusCompleted,
		Title:             planChangeTitle(md.CurrentPlanType, md.NewPlanType),
		CreatedAt:         time.Now().UTC(),
	}
	if _, err := r.store.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("create order for session %s: %w", session.ID, err)
	}

	r.log.InfoContext(ctx, "plan upgrade settled",
		slog.String("session_id", session.ID),
		slog.String("subscription_id", md.SubscriptionID),
		slog.String("new_plan", string(newPlan.Type)),
	)
	return nil
}

// applySubscriptionSession handles new recurring subscriptions: either a
// per-creator support subscription or a global membership plan.
func (r *WebhookReconciler) applySubscriptionSession(ctx context.Context, result *ReconcileResult, session checkoutSessionPayload) (*ReconcileResult, error) {
	md, err := ParseCorrelationMetadata(withClientReference(session))
	if err != nil {
		r.log.WarnContext(ctx, "acknowledging subscription session with unparsable correlation metadata",
			slog.String("session_id", session.ID))
		result.Ignored = true
		return result, nil
	}

	switch {
	case md.CreatorID != "":
		if err := r.activateCreatorSubscription(ctx, session, md); err != nil {
			return nil, err
		}
	case md.PlanType != "":
		if err := r.activateMembership(ctx, session, md); err != nil {
			return nil, err
		}
	default:
		result.Ignored = true
	}
	return result, nil
}

func (r *WebhookReconciler) activateCreatorSubscription(ctx context.Context, session checkoutSessionPayload, md CorrelationMetadata) error {
	// A creator subscription never goes live without a resolvable payout
	// account for the creator.
	creator, err := r.store.GetCreator(ctx, md.CreatorID)
	if err != nil {
		return fmt.Errorf("resolve creator %s: %w", md.CreatorID, err)
	}
	if creator.PayoutAccountID == "" {
		return fmt.Errorf("%w: creator %s", ErrPayoutAccountMissing, md.CreatorID)
	}

	sub := &LegacySubscription{
		SubscriptionID: session.Subscription,
		CreatorID:      md.CreatorID,
		UserID:         md.UserID,
		Status:         StatusActive,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := r.store.SaveLegacySubscription(ctx, sub); err != nil {
		return fmt.Errorf("save creator subscription %s: %w", session.Subscription, err)
	}

	r.log.InfoContext(ctx, "creator subscription activated",
		slog.String("subscription_id", session.Subscription),
		slog.String("creator_id", md.CreatorID),
	)
	return nil
}

func (r *WebhookReconciler) activateMembership(ctx context.Context, session checkoutSessionPayload, md CorrelationMetadata) error {
	userID := md.UserID
	if userID == "" && session.CustomerDetails.Email != "" {
		if user, err := r.store.GetUserByEmail(ctx, session.CustomerDetails.Email); err == nil {
			userID = user.ID
		}
	}

	if userID != "" {
		if err := r.store.SetUserMembership(ctx, userID, true, md.PlanType, session.Subscription); err != nil {
			return fmt.Errorf("activate membership for user %s: %w", userID, err)
		}
		r.log.InfoContext(ctx, "membership activated",
			slog.String("user_id", userID),
			slog.String("plan_type", string(md.PlanType)),
		)
		return nil
	}

	if session.CustomerDetails.Email == "" {
		r.log.WarnContext(ctx, "acknowledging membership session without user or email",
			slog.String("session_id", session.ID))
		return nil
	}

	// No account yet: park the membership until the owner signs in.
	claim := &PendingMembershipClaim{
		Email:          session.CustomerDetails.Email,
		PlanType:       md.PlanType,
		SubscriptionID: session.Subscription,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.SavePendingClaim(ctx, claim); err != nil {
		return fmt.Errorf("save pending claim for %s: %w", claim.Email, err)
	}
	r.log.InfoContext(ctx, "pending membership claim recorded",
		slog.String("email", claim.Email),
		slog.String("plan_type", string(md.PlanType)),
	)
	return nil
}

// withClientReference folds the session's client reference id into the
// metadata map under the legacy "ref" key: the oldest call sites put the
// string-encoded correlation formats there instead of in metadata.
func withClientReference(session checkoutSessionPayload) map[string]string {
	if session.ClientReferenceID == "" {
		return session.Metadata
	}
	merged := make(map[string]string, len(session.Metadata)+1)
	for k, v := range session.Metadata {
		merged[k] = v
	}
	if _, exists := merged[refKey]; !exists {
		merged[refKey] = session.ClientReferenceID
	}
	return merged
}

func planChangeTitle(from, to PlanType) string {
	if from == "" || to == "" {
		return "Subscription plan change"
	}
	return fmt.Sprintf("Subscription plan change: %s to %s", from, to)
}

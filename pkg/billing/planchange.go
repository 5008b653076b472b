package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// PlanChangeResult is the outcome of a plan change request.
type PlanChangeResult struct {
	RequiresPayment bool   `json:"requires_payment"`
	CheckoutURL     string `json:"checkout_url,omitempty"`
	ProrationAmount int64  `json:"proration_amount,omitempty"`
}

// PlanChangeEngine orchestrates membership plan changes. Downgrades and
// zero-cost changes are applied to the subscription immediately; upgrades
// with a nonzero proration go through a one-time-payment checkout session
// and take effect only when the corresponding webhook arrives.
type PlanChangeEngine struct {
	processor  Processor
	store      EntitlementStore
	plans      *Catalog
	log        *slog.Logger
	successURL string
	cancelURL  string
}

// PlanChangeOption configures a PlanChangeEngine.
type PlanChangeOption func(*PlanChangeEngine)

// WithCheckoutURLs sets the redirect targets for upgrade checkout sessions.
func WithCheckoutURLs(successURL, cancelURL string) PlanChangeOption {
	return func(e *PlanChangeEngine) {
		e.successURL = successURL
		e.cancelURL = cancelURL
	}
}

// WithPlanChangeLogger sets the engine's logger.
func WithPlanChangeLogger(log *slog.Logger) PlanChangeOption {
	return func(e *PlanChangeEngine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewPlanChangeEngine creates a PlanChangeEngine. Panics on nil required
// dependencies to fail fast during initialization.
func NewPlanChangeEngine(processor Processor, store EntitlementStore, plans *Catalog, opts ...PlanChangeOption) *PlanChangeEngine {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if store == nil {
		panic("billing: EntitlementStore is required")
	}
	if plans == nil {
		panic("billing: plan Catalog is required")
	}

	e := &PlanChangeEngine{
		processor: processor,
		store:     store,
		plans:     plans,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ChangePlan moves a user to a new plan. Financial mutations are never
// retried here; a failed processor call surfaces to the caller.
func (e *PlanChangeEngine) ChangePlan(ctx context.Context, userID string, newPlanType PlanType) (*PlanChangeResult, error) {
	newPlan, ok := e.plans.Get(newPlanType)
	if !ok {
		return nil, ErrPlanNotFound
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user.SubscriptionID == "" || user.PlanType == "" {
		return nil, ErrNoActiveSubscription
	}
	if user.PlanType == newPlanType {
		return nil, ErrSamePlanRequested
	}

	currentPlan, ok := e.plans.Get(user.PlanType)
	if !ok {
		return nil, fmt.Errorf("%w: current plan %q", ErrPlanNotFound, user.PlanType)
	}

	sub, err := e.processor.GetSubscription(ctx, user.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", user.SubscriptionID, err)
	}
	if sub.Status != StatusActive {
		return nil, ErrSubscriptionNotActive
	}

	newPriceID, err := e.processor.EnsurePrice(ctx, newPlan)
	if err != nil {
		return nil, fmt.Errorf("resolve price for plan %s: %w", newPlanType, err)
	}

	proration, err := CalculateProration(ctx, e.processor, sub, newPriceID, currentPlan, newPlan)
	if err != nil {
		return nil, err
	}

	// Downgrades and zero-cost changes never require checkout.
	if !proration.IsUpgrade || proration.Amount == 0 {
		return e.applyImmediately(ctx, user, sub, newPlan, newPriceID)
	}

	return e.createUpgradeCheckout(ctx, user, sub, currentPlan, newPlan, proration.Amount)
}

// applyImmediately swaps the subscription's price now. A webhook for the
// resulting subscription update will also arrive later; the reconciler's
// ledger makes it a no-op.
func (e *PlanChangeEngine) applyImmediately(ctx context.Context, user *User, sub *ProcessorSubscription, newPlan Plan, newPriceID string) (*PlanChangeResult, error) {
	metadata := map[string]string{
		"plan_type":  string(newPlan.Type),
		"changed_by": user.ID,
	}
	if err := e.processor.UpdateSubscriptionPrice(ctx, sub.ID, sub.ItemID, newPriceID, metadata); err != nil {
		return nil, fmt.Errorf("apply plan swap on subscription %s: %w", sub.ID, err)
	}

	if err := e.store.SetUserMembership(ctx, user.ID, true, newPlan.Type, sub.ID); err != nil {
		return nil, fmt.Errorf("persist plan change for user %s: %w", user.ID, err)
	}

	e.log.InfoContext(ctx, "plan change applied immediately",
		slog.String("user_id", user.ID),
		slog.String("subscription_id", sub.ID),
		slog.String("new_plan", string(newPlan.Type)),
	)

	return &PlanChangeResult{RequiresPayment: false}, nil
}

// createUpgradeCheckout creates a one-time-payment session for exactly the
// proration amount. Correlation metadata goes on both the session and its
// payment intent so whichever surface the webhook handler observes carries
// it.
func (e *PlanChangeEngine) createUpgradeCheckout(ctx context.Context, user *User, sub *ProcessorSubscription, currentPlan, newPlan Plan, amount int64) (*PlanChangeResult, error) {
	correlation := CorrelationMetadata{
		Action:          ActionUpgradePlan,
		SubscriptionID:  sub.ID,
		CurrentPlanType: currentPlan.Type,
		NewPlanType:     newPlan.Type,
		BuyerID:         user.ID,
		ProrationAmount: amount,
	}.EncodeStructured()

	session, err := e.processor.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		Mode:                  "payment",
		Amount:                amount,
		Currency:              newPlan.Price.Currency,
		ProductName:           fmt.Sprintf("Plan upgrade to %s", newPlan.Name),
		CustomerEmail:         user.Email,
		Metadata:              correlation,
		PaymentIntentMetadata: correlation,
		SuccessURL:            e.successURL,
		CancelURL:             e.cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create upgrade checkout: %w", err)
	}

	e.log.InfoContext(ctx, "upgrade checkout created",
		slog.String("user_id", user.ID),
		slog.String("subscription_id", sub.ID),
		slog.String("session_id", session.ID),
		slog.String("proration_amount", strconv.FormatInt(amount, 10)),
	)

	return &PlanChangeResult{
		RequiresPayment: true,
		CheckoutURL:     session.URL,
		ProrationAmount: amount,
	}, nil
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BackfillReport summarizes an order-materialization run.
type BackfillReport struct {
	AccountsScanned int `json:"accounts_scanned"`
	EventsSeen      int `json:"events_seen"`
	OrdersCreated   int `json:"orders_created"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// ReclassifyReport summarizes a reclassification run. Explicit counts
// orders repaired from correlation metadata; Inferred counts orders
// repaired from invoice proration lines or amount/title heuristics —
// best-effort forensics, not authoritative.
type ReclassifyReport struct {
	Scanned   int `json:"scanned"`
	Explicit  int `json:"explicit"`
	Inferred  int `json:"inferred"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// BackfillReconciler repairs the order ledger after the fact: it
// materializes orders missed by webhook delivery and reclassifies orders
// mislabeled as marketplace sales when they were actually subscription
// changes.
//
// Every materialization and reclassification is an independently
// idempotent unit, so a run interrupted between accounts or records can
// simply be re-run with the same cutoff. Per-record failures are counted
// and logged, never abort the batch.
type BackfillReconciler struct {
	processor Processor
	store     EntitlementStore
	plans     *Catalog
	log       *slog.Logger
	dryRun    bool
	pause     time.Duration
}

// BackfillOption configures a BackfillReconciler.
type BackfillOption func(*BackfillReconciler)

// WithDryRun suppresses writes while still reporting what would change.
func WithDryRun(dryRun bool) BackfillOption {
	return func(b *BackfillReconciler) { b.dryRun = dryRun }
}

// WithAccountPause sets the delay between account iterations. The pause
// exists purely to respect processor rate limits, not for correctness.
func WithAccountPause(pause time.Duration) BackfillOption {
	return func(b *BackfillReconciler) { b.pause = pause }
}

// WithBackfillLogger sets the reconciler's logger.
func WithBackfillLogger(log *slog.Logger) BackfillOption {
	return func(b *BackfillReconciler) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBackfillReconciler creates a BackfillReconciler. Panics on nil
// required dependencies to fail fast during initialization.
func NewBackfillReconciler(processor Processor, store EntitlementStore, plans *Catalog, opts ...BackfillOption) *BackfillReconciler {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if store == nil {
		panic("billing: EntitlementStore is required")
	}
	if plans == nil {
		panic("billing: plan Catalog is required")
	}

	b := &BackfillReconciler{
		processor: processor,
		store:     store,
		plans:     plans,
		log:       slog.Default(),
		pause:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BackfillOrders materializes a missing order for every paid checkout
// since the cutoff, across the platform account and all connected payout
// accounts. The checkout-session-id uniqueness constraint makes re-runs
// idempotent by construction; no separate ledger is needed.
func (b *BackfillReconciler) BackfillOrders(ctx context.Context, since time.Time) (BackfillReport, error) {
	var report BackfillReport

	connected, err := b.processor.ListConnectedAccounts(ctx)
	if err != nil {
		return report, fmt.Errorf("list connected accounts: %w", err)
	}
	accounts := append([]string{""}, connected...)

	for i, account := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if i > 0 && b.pause > 0 {
			// Rate-limit courtesy between accounts.
			select {
			case <-time.After(b.pause):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}

		report.AccountsScanned++
		events, err := b.processor.ListCheckoutEvents(ctx, account, since)
		if err != nil {
			report.Failed++
			b.log.ErrorContext(ctx, "listing checkout events failed",
				slog.String("account", account),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, event := range events {
			report.EventsSeen++
			if err := b.materializeOrder(ctx, account, event, &report); err != nil {
				report.Failed++
				b.log.ErrorContext(ctx, "order materialization failed",
					slog.String("session_id", event.Session.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return report, nil
}

func (b *BackfillReconciler) materializeOrder(ctx context.Context, account string, event ProcessorEvent, report *BackfillReport) error {
	session := event.Session
	if !session.Paid() || session.ID == "" {
		report.Skipped++
		return nil
	}

	if _, err := b.store.GetOrder(ctx, session.ID); err == nil {
		report.Skipped++
		return nil
	} else if !errors.Is(err, ErrOrderNotFound) {
		return err
	}

	order := &Order{
		CheckoutSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntentID,
		Amount:            session.AmountTotal,
		Currency:          session.Currency,
		Kind:              OrderKindMarketplaceSale,
		BuyerID:           session.Metadata["buyer_id"],
		SellerID:          account,
		Status:            OrderStatusAwaitingFulfillment,
		CreatedAt:         session.CreatedAt,
	}

	if b.dryRun {
		report.OrdersCreated++
		b.log.InfoContext(ctx, "dry-run: would materialize order",
			slog.String("session_id", session.ID),
			slog.Int64("amount", session.AmountTotal),
		)
		return nil
	}

	created, err := b.store.CreateOrder(ctx, order)
	if err != nil {
		return err
	}
	if created {
		report.OrdersCreated++
	} else {
		// Lost the race to a concurrent webhook delivery; equally fine.
		report.Skipped++
	}
	return nil
}

// ReclassifyMisassignedOrders walks orders lacking a seller id and tries,
// in confidence order, to recover what they actually were:
//
//	(a) explicit upgrade metadata on the originating checkout session
//	(b) a subscription id on the payment intent
//	(c) the buyer's current subscription id
//	(d) invoice proration lines bracketing two known plan prices
//	(e) amount/title heuristics (marks an inferred change, no plan pair)
func (b *BackfillReconciler) ReclassifyMisassignedOrders(ctx context.Context) (ReclassifyReport, error) {
	var report ReclassifyReport

	orders, err := b.store.ListUnattributedOrders(ctx)
	if err != nil {
		return report, fmt.Errorf("list unattributed orders: %w", err)
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		patch, ok, err := b.resolveReclassification(ctx, order)
		if err != nil {
			report.Failed++
			b.log.ErrorContext(ctx, "reclassification failed",
				slog.String("session_id", order.CheckoutSessionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			report.Unchanged++
			continue
		}

		if patch.ReclassifiedBy == ReclassifiedByMetadata {
			report.Explicit++
		} else {
			report.Inferred++
		}

		if b.dryRun {
			b.log.InfoContext(ctx, "dry-run: would reclassify order",
				slog.String("session_id", order.CheckoutSessionID),
				slog.String("confidence", patch.ReclassifiedBy),
				slog.String("title", patch.Title),
			)
			continue
		}

		if err := b.store.ReclassifyOrder(ctx, order.CheckoutSessionID, patch); err != nil {
			report.Failed++
			b.log.ErrorContext(ctx, "reclassification write failed",
				slog.String("session_id", order.CheckoutSessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	return report, nil
}

func (b *BackfillReconciler) resolveReclassification(ctx context.Context, order Order) (OrderReclassification, bool, error) {
	// (a) explicit metadata on the originating checkout session.
	if session, err := b.processor.GetCheckoutSession(ctx, order.CheckoutSessionID); err == nil {
		if md, err := ParseCorrelationMetadata(session.Metadata); err == nil && md.Action == ActionUpgradePlan {
			return OrderReclassification{
				Kind:            OrderKindSubscriptionChange,
				Status:          OrderStatusCompleted,
				Title:           planChangeTitle(md.CurrentPlanType, md.NewPlanType),
				SubscriptionID:  md.SubscriptionID,
				CurrentPlanType: md.CurrentPlanType,
				NewPlanType:     md.NewPlanType,
				ReclassifiedBy:  ReclassifiedByMetadata,
			}, true, nil
		}
	}

	// (b) subscription id from the payment intent.
	subscriptionID := ""
	if order.PaymentIntentID != "" {
		if intent, err := b.processor.GetPaymentIntent(ctx, order.PaymentIntentID); err == nil {
			if intent.SubscriptionID != "" {
				subscriptionID = intent.SubscriptionID
			} else if md, err := ParseCorrelationMetadata(intent.Metadata); err == nil && md.SubscriptionID != "" {
				subscriptionID = md.SubscriptionID
			}
		}
	}

	// (c) the buyer's current subscription.
	if subscriptionID == "" && order.BuyerID != "" {
		if user, err := b.store.GetUser(ctx, order.BuyerID); err == nil {
			subscriptionID = user.SubscriptionID
		}
	}

	// (d) plan transition inferred from invoice proration lines.
	if subscriptionID != "" {
		if patch, ok := b.inferFromInvoices(ctx, subscriptionID); ok {
			return patch, true, nil
		}
	}

	// (e) amount/title heuristics: an amount near a known plan price, or a
	// placeholder title, marks an inferred change without naming the pair.
	if _, nearPlan := b.plans.MatchAmount(order.Amount, PriceTolerance); nearPlan || isPlaceholderTitle(order.Title) {
		return OrderReclassification{
			Kind:           OrderKindSubscriptionChange,
			Status:         OrderStatusCompleted,
			Title:          "Subscription plan change (inferred)",
			SubscriptionID: subscriptionID,
			ReclassifiedBy: ReclassifiedByHeuristic,
		}, true, nil
	}

	return OrderReclassification{}, false, nil
}

// inferFromInvoices inspects a subscription's recent invoices for a
// proration credit/charge pair whose magnitudes sit within PriceTolerance
// of two known plan prices. Downgrades produce credit invoices with
// negative totals, which is what makes them recoverable this way.
func (b *BackfillReconciler) inferFromInvoices(ctx context.Context, subscriptionID string) (OrderReclassification, bool) {
	invoices, err := b.processor.ListInvoices(ctx, subscriptionID, 10)
	if err != nil {
		b.log.WarnContext(ctx, "invoice inspection failed",
			slog.String("subscription_id", subscriptionID),
			slog.String("error", err.Error()),
		)
		return OrderReclassification{}, false
	}

	for _, invoice := range invoices {
		var credited, charged int64
		for _, line := range invoice.Lines {
			if !line.Proration {
				continue
			}
			if line.Amount < 0 {
				credited = -line.Amount
			} else if line.Amount > 0 {
				charged = line.Amount
			}
		}
		if credited == 0 || charged == 0 {
			continue
		}

		fromPlan, okFrom := b.plans.MatchAmount(credited, PriceTolerance)
		toPlan, okTo := b.plans.MatchAmount(charged, PriceTolerance)
		if !okFrom || !okTo || fromPlan.Type == toPlan.Type {
			continue
		}

		return OrderReclassification{
			Kind:            OrderKindSubscriptionChange,
			Status:          OrderStatusCompleted,
			Title:           planChangeTitle(fromPlan.Type, toPlan.Type),
			SubscriptionID:  subscriptionID,
			CurrentPlanType: fromPlan.Type,
			NewPlanType:     toPlan.Type,
			ReclassifiedBy:  ReclassifiedByInvoice,
		}, true
	}

	return OrderReclassification{}, false
}

// isPlaceholderTitle recognizes the generic titles the legacy checkout
// flow stamped on plan-change payments. A missing title is absence of
// data, not a placeholder match.
func isPlaceholderTitle(title string) bool {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "payment", "order", "purchase", "digital product":
		return true
	}
	return false
}

// Package billing provides subscription billing reconciliation for a
// course platform: membership plan changes with custom proration,
// webhook-driven order materialization, after-the-fact backfill and
// reclassification, and entitlement resolution for protected content.
//
// The platform sells tiered monthly memberships and also brokers
// one-time marketplace sales on behalf of creators. Both flows settle
// through the same payment processor, so the package's central job is
// correlation: tying processor events back to the user, subscription,
// and plan transition that caused them, and keeping the local order
// ledger and membership flags consistent with processor truth.
//
// # Architecture
//
// Responsibilities split along clear seams:
//
//   - PlanChangeEngine: decides whether a plan change applies
//     immediately or requires an upgrade payment first
//   - WebhookReconciler: verifies, deduplicates, and applies
//     checkout-completion events
//   - BackfillReconciler: batch repair of missed or mislabeled orders
//   - ClaimResolver: reattaches processor subscriptions bought before
//     the local account existed
//   - EntitlementResolver: the request-time read path for content access
//   - Processor: minimal payment-processor abstraction (Stripe-backed)
//   - EntitlementStore: persistence for users, orders, subscriptions,
//     and pending claims
//   - EventLedger: write-ahead processed-event dedup
//
// Every write path is idempotent. Checkout-session ids double as order
// primary keys, so replays and concurrent webhook/backfill races
// converge on a single order. The event ledger is marked before side
// effects, preferring a rare dropped event over a double-applied one.
//
// # Plan changes
//
// Upgrades charge the prorated difference through a one-time checkout
// before the subscription is touched; the plan swap happens only when
// the payment's completion event arrives, carrying correlation metadata
// that names the subscription and plan pair. Downgrades and zero-cost
// changes apply immediately with no payment.
//
// # Usage
//
//	plans, _ := billing.LoadCatalog(ctx, billing.NewInMemSource(billing.DefaultPlans()...))
//	engine := billing.NewPlanChangeEngine(processor, store, plans,
//		billing.WithCheckoutURLs(successURL, cancelURL))
//
//	result, err := engine.ChangePlan(ctx, userID, billing.PlanPro)
//	if err != nil {
//		// map sentinel errors to API responses
//	}
//	if result.RequiresPayment {
//		// redirect the user to result.CheckoutURL
//	}
package billing

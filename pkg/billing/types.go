package billing

import "time"

// Money represents a monetary amount in the smallest currency unit.
// For example, $37.00 USD is Amount: 3700, Currency: "USD".
type Money struct {
	Amount   int64  `bson:"amount" json:"amount"`
	Currency string `bson:"currency" json:"currency"`
}

// SubscriptionStatus represents the processor-side state of a subscription.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// IsLive reports whether the status grants access.
func (s SubscriptionStatus) IsLive() bool {
	return s == StatusActive || s == StatusTrialing
}

// User holds the membership-relevant slice of a platform account.
// Each user has at most one active plan at a time.
type User struct {
	ID               string    `bson:"_id" json:"id"`
	Email            string    `bson:"email" json:"email"`
	MembershipActive bool      `bson:"membership_active" json:"membership_active"`
	PlanType         PlanType  `bson:"plan_type,omitempty" json:"plan_type,omitempty"`
	SubscriptionID   string    `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
}

// OrderKind tags what a financial transaction was for.
type OrderKind string

const (
	OrderKindMarketplaceSale    OrderKind = "marketplace_sale"
	OrderKindSubscriptionChange OrderKind = "subscription_change"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusAwaitingFulfillment OrderStatus = "awaiting_fulfillment"
	OrderStatusCompleted           OrderStatus = "completed"
)

// Reclassification confidence tags. Orders repaired from explicit
// correlation metadata are authoritative; orders repaired from invoice
// proration lines name the plan transition but are derived; amount/title
// heuristics are best-effort only.
const (
	ReclassifiedByMetadata  = "metadata"
	ReclassifiedByInvoice   = "invoice"
	ReclassifiedByHeuristic = "heuristic"
)

// Order represents a single financial transaction. The checkout-session id
// is the primary key and the deduplication invariant: no two orders may
// ever share one.
type Order struct {
	CheckoutSessionID string      `bson:"_id" json:"checkout_session_id"`
	PaymentIntentID   string      `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	Amount            int64       `bson:"amount" json:"amount"`
	Currency          string      `bson:"currency" json:"currency"`
	Kind              OrderKind   `bson:"kind" json:"kind"`
	BuyerID           string      `bson:"buyer_id,omitempty" json:"buyer_id,omitempty"`
	SellerID          string      `bson:"seller_id,omitempty" json:"seller_id,omitempty"`
	SubscriptionID    string      `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`
	CurrentPlanType   PlanType    `bson:"current_plan_type,omitempty" json:"current_plan_type,omitempty"`
	NewPlanType       PlanType    `bson:"new_plan_type,omitempty" json:"new_plan_type,omitempty"`
	Status            OrderStatus `bson:"status" json:"status"`
	Title             string      `bson:"title,omitempty" json:"title,omitempty"`
	ReclassifiedBy    string      `bson:"reclassified_by,omitempty" json:"reclassified_by,omitempty"`
	CreatedAt         time.Time   `bson:"created_at" json:"created_at"`
}

// LegacySubscription is a per-creator recurring-support subscription.
// UserID stays empty until the subscriber authenticates and the claim flow
// reattaches the record.
type LegacySubscription struct {
	SubscriptionID string             `bson:"_id" json:"subscription_id"`
	CreatorID      string             `bson:"creator_id" json:"creator_id"`
	UserID         string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Status         SubscriptionStatus `bson:"status" json:"status"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// ProcessedEventRecord is an idempotency ledger entry. Presence means the
// event has already been applied; entries are written once and never
// updated.
type ProcessedEventRecord struct {
	Key         string    `bson:"_id" json:"key"`
	EventType   string    `bson:"event_type" json:"event_type"`
	ResourceID  string    `bson:"resource_id" json:"resource_id"`
	ProcessedAt time.Time `bson:"processed_at" json:"processed_at"`
}

// PendingMembershipClaim records a paid membership for an email address
// that has no platform account yet. It is consumed exactly once when the
// owner signs in for the first time.
type PendingMembershipClaim struct {
	Email          string     `bson:"_id" json:"email"`
	PlanType       PlanType   `bson:"plan_type" json:"plan_type"`
	SubscriptionID string     `bson:"subscription_id" json:"subscription_id"`
	Claimed        bool       `bson:"claimed" json:"claimed"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	ClaimedAt      *time.Time `bson:"claimed_at,omitempty" json:"claimed_at,omitempty"`
}

// Creator is a content creator with a payout account at the processor.
type Creator struct {
	ID              string `bson:"_id" json:"id"`
	Name            string `bson:"name" json:"name"`
	PayoutAccountID string `bson:"payout_account_id,omitempty" json:"payout_account_id,omitempty"`
}

// EffectiveSubscription is a uniform view over real per-creator
// subscriptions and the synthetic entries an all-access membership
// expands into. Virtual entries carry no subscription id and a zero
// incremental amount so downstream consumers never special-case the
// all-access tier.
type EffectiveSubscription struct {
	SubscriptionID string             `json:"subscription_id,omitempty"`
	CreatorID      string             `json:"creator_id"`
	Status         SubscriptionStatus `json:"status"`
	Amount         int64              `json:"amount"`
	Virtual        bool               `json:"virtual"`
}

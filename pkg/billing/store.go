package billing

import "context"

// EntitlementStore is the document-store accessor for membership flags,
// per-creator subscriptions, orders, creators, and pending claims.
// Implementations: billingmongo (durable), MemoryStore (tests, dev).
type EntitlementStore interface {
	// GetUser returns a user by id. Returns ErrUserNotFound if absent.
	GetUser(ctx context.Context, userID string) (*User, error)

	// GetUserByEmail returns a user by email. Returns ErrUserNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// SetUserMembership overwrites the user's membership flag, plan type,
	// and subscription id. Idempotent by construction.
	SetUserMembership(ctx context.Context, userID string, active bool, plan PlanType, subscriptionID string) error

	// GetOrder returns an order by checkout-session id.
	// Returns ErrOrderNotFound if absent.
	GetOrder(ctx context.Context, checkoutSessionID string) (*Order, error)

	// CreateOrder inserts the order if and only if no order with the same
	// checkout-session id exists. The existence check and insert are a
	// single atomic operation; created reports whether this call inserted.
	CreateOrder(ctx context.Context, order *Order) (created bool, err error)

	// ListUnattributedOrders returns orders lacking a seller id, the proxy
	// for "not a real marketplace sale".
	ListUnattributedOrders(ctx context.Context) ([]Order, error)

	// ReclassifyOrder rewrites an order's classification fields.
	ReclassifyOrder(ctx context.Context, checkoutSessionID string, patch OrderReclassification) error

	// GetLegacySubscription returns a per-creator subscription by
	// subscription id. Returns ErrSubscriptionNotFound if absent.
	GetLegacySubscription(ctx context.Context, subscriptionID string) (*LegacySubscription, error)

	// SaveLegacySubscription creates or replaces a per-creator subscription
	// keyed by subscription id.
	SaveLegacySubscription(ctx context.Context, sub *LegacySubscription) error

	// AssignLegacySubscriber reassigns the subscriber of a per-creator
	// subscription. Returns changed=false when the record is absent or
	// already assigned to the user (idempotent overwrite).
	AssignLegacySubscriber(ctx context.Context, subscriptionID, userID string) (changed bool, err error)

	// ListLegacySubscriptionsByUser returns all per-creator subscriptions
	// of a user.
	ListLegacySubscriptionsByUser(ctx context.Context, userID string) ([]LegacySubscription, error)

	// FindLiveSubscription returns an active or trialing per-creator
	// subscription matching both user and creator, or ErrSubscriptionNotFound.
	FindLiveSubscription(ctx context.Context, userID, creatorID string) (*LegacySubscription, error)

	// GetCreator returns a creator by id. Returns ErrCreatorNotFound if absent.
	GetCreator(ctx context.Context, creatorID string) (*Creator, error)

	// ListCreators returns all known creators.
	ListCreators(ctx context.Context) ([]Creator, error)

	// SavePendingClaim creates or replaces a pending membership claim keyed
	// by email.
	SavePendingClaim(ctx context.Context, claim *PendingMembershipClaim) error

	// ConsumePendingClaim atomically flips an unclaimed claim to claimed
	// and returns it. Returns ErrClaimNotFound when no unclaimed claim
	// exists for the email, so a claim is consumed at most once.
	ConsumePendingClaim(ctx context.Context, email string) (*PendingMembershipClaim, error)
}

// OrderReclassification is the rewrite applied when forensic
// reconciliation determines an order was mislabeled. Seller fields are
// always cleared as part of the rewrite.
type OrderReclassification struct {
	Kind            OrderKind
	Status          OrderStatus
	Title           string
	SubscriptionID  string
	CurrentPlanType PlanType
	NewPlanType     PlanType
	ReclassifiedBy  string
}

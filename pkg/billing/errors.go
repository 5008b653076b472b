package billing

import "errors"

var (
	ErrPlanNotFound             = errors.New("billing: plan not found")
	ErrInvalidPlanConfiguration = errors.New("billing: invalid plan configuration")

	ErrNoActiveSubscription  = errors.New("billing: user has no active subscription")
	ErrSamePlanRequested     = errors.New("billing: requested plan matches current plan")
	ErrSubscriptionNotActive = errors.New("billing: subscription is not active at the processor")

	ErrInvalidSignature   = errors.New("billing: invalid webhook signature")
	ErrUnparsableMetadata = errors.New("billing: correlation metadata not recognized by any format")

	// ErrProcessorUnavailable marks transient processor failures. Webhook
	// handlers surface it as a 5xx so the processor's own retry policy
	// applies; interactive callers retry manually.
	ErrProcessorUnavailable = errors.New("billing: payment processor unavailable")

	ErrUserNotFound         = errors.New("billing: user not found")
	ErrOrderNotFound        = errors.New("billing: order not found")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrCreatorNotFound      = errors.New("billing: creator not found")
	ErrClaimNotFound        = errors.New("billing: pending membership claim not found")

	// ErrPayoutAccountMissing guards the invariant that a per-creator
	// subscription never goes live unless the owning creator's payout
	// account is resolvable.
	ErrPayoutAccountMissing = errors.New("billing: creator payout account not resolvable")
)

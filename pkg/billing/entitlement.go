package billing

import (
	"context"
	"errors"
	"fmt"
)

// EntitlementResolver is the request-time read path deciding whether a
// user may access protected creator content.
type EntitlementResolver struct {
	store EntitlementStore
	plans *Catalog
}

// NewEntitlementResolver creates an EntitlementResolver. Panics on nil
// dependencies to fail fast during initialization.
func NewEntitlementResolver(store EntitlementStore, plans *Catalog) *EntitlementResolver {
	if store == nil {
		panic("billing: EntitlementStore is required")
	}
	if plans == nil {
		panic("billing: plan Catalog is required")
	}
	return &EntitlementResolver{store: store, plans: plans}
}

// HasAccessToCreator reports whether the user may access the creator's
// protected content: active global membership, or an active/trialing
// per-creator subscription matching both ids.
func (r *EntitlementResolver) HasAccessToCreator(ctx context.Context, userID, creatorID string) (bool, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user != nil && user.MembershipActive {
		return true, nil
	}

	if _, err := r.store.FindLiveSubscription(ctx, userID, creatorID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find subscription for user %s: %w", userID, err)
	}
	return true, nil
}

// ListEffectiveSubscriptions returns the user's subscriptions in a
// uniform shape. An all-access membership expands into one virtual entry
// per known creator (no subscription id, zero incremental amount) so
// downstream consumers never special-case the all-access tier.
func (r *EntitlementResolver) ListEffectiveSubscriptions(ctx context.Context, userID string) ([]EffectiveSubscription, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	if user != nil && user.MembershipActive {
		if plan, ok := r.plans.Get(user.PlanType); ok && plan.AllAccess {
			creators, err := r.store.ListCreators(ctx)
			if err != nil {
				return nil, fmt.Errorf("list creators: %w", err)
			}
			out := make([]EffectiveSubscription, 0, len(creators))
			for _, creator := range creators {
				out = append(out, EffectiveSubscription{
					CreatorID: creator.ID,
					Status:    StatusActive,
					Amount:    0,
					Virtual:   true,
				})
			}
			return out, nil
		}
	}

	subs, err := r.store.ListLegacySubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for user %s: %w", userID, err)
	}
	out := make([]EffectiveSubscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, EffectiveSubscription{
			SubscriptionID: sub.SubscriptionID,
			CreatorID:      sub.CreatorID,
			Status:         sub.Status,
		})
	}
	return out, nil
}

package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/pkg/billing"
)

func TestHasAccessToCreator(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutUser(billing.User{ID: "user_member", MembershipActive: true, PlanType: billing.PlanBasic})
	store.PutUser(billing.User{ID: "user_sub"})
	store.PutUser(billing.User{ID: "user_lapsed"})
	require.NoError(t, store.SaveLegacySubscription(context.Background(), &billing.LegacySubscription{
		SubscriptionID: "sub_live", CreatorID: "creator_1", UserID: "user_sub", Status: billing.StatusTrialing,
	}))
	require.NoError(t, store.SaveLegacySubscription(context.Background(), &billing.LegacySubscription{
		SubscriptionID: "sub_lapsed", CreatorID: "creator_1", UserID: "user_lapsed", Status: billing.StatusPastDue,
	}))

	resolver := billing.NewEntitlementResolver(store, testCatalog(t))

	cases := []struct {
		name      string
		userID    string
		creatorID string
		want      bool
	}{
		{"global membership grants any creator", "user_member", "creator_1", true},
		{"global membership grants unknown creator", "user_member", "creator_other", true},
		{"live per-creator subscription", "user_sub", "creator_1", true},
		{"subscription to a different creator", "user_sub", "creator_other", false},
		{"lapsed subscription", "user_lapsed", "creator_1", false},
		{"unknown user", "ghost", "creator_1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolver.HasAccessToCreator(context.Background(), tc.userID, tc.creatorID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestListEffectiveSubscriptions_AllAccessExpandsVirtually(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutUser(billing.User{
		ID: "user_aa", MembershipActive: true,
		PlanType: billing.PlanAllAccess, SubscriptionID: "sub_aa",
	})
	store.PutCreator(billing.Creator{ID: "creator_1", Name: "Ada"})
	store.PutCreator(billing.Creator{ID: "creator_2", Name: "Bo"})

	resolver := billing.NewEntitlementResolver(store, testCatalog(t))

	subs, err := resolver.ListEffectiveSubscriptions(context.Background(), "user_aa")
	require.NoError(t, err)
	require.Len(t, subs, 2)

	for _, sub := range subs {
		assert.True(t, sub.Virtual)
		assert.Empty(t, sub.SubscriptionID)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Zero(t, sub.Amount)
	}
}

func TestListEffectiveSubscriptions_RegularPlanListsRealSubs(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutUser(billing.User{
		ID: "user_basic", MembershipActive: true,
		PlanType: billing.PlanBasic, SubscriptionID: "sub_basic",
	})
	store.PutCreator(billing.Creator{ID: "creator_1", Name: "Ada"})
	require.NoError(t, store.SaveLegacySubscription(context.Background(), &billing.LegacySubscription{
		SubscriptionID: "sub_c1", CreatorID: "creator_1", UserID: "user_basic", Status: billing.StatusActive,
	}))

	resolver := billing.NewEntitlementResolver(store, testCatalog(t))

	subs, err := resolver.ListEffectiveSubscriptions(context.Background(), "user_basic")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].Virtual)
	assert.Equal(t, "sub_c1", subs[0].SubscriptionID)
	assert.Equal(t, "creator_1", subs[0].CreatorID)
}

func TestListEffectiveSubscriptions_UnknownUserIsEmpty(t *testing.T) {
	t.Parallel()

	resolver := billing.NewEntitlementResolver(billing.NewMemoryStore(), testCatalog(t))

	subs, err := resolver.ListEffectiveSubscriptions(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

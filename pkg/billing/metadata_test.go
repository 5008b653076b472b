package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/pkg/billing"
)

func TestParseCorrelationMetadata_Structured(t *testing.T) {
	t.Parallel()

	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"action":            "upgrade_plan",
		"subscription_id":   "sub_123",
		"current_plan_type": "basic",
		"new_plan_type":     "pro",
		"buyer_id":          "user_1",
		"proration_amount":  "5000",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.MetadataFormatStructured, md.Format)
	assert.Equal(t, billing.ActionUpgradePlan, md.Action)
	assert.Equal(t, "sub_123", md.SubscriptionID)
	assert.Equal(t, billing.PlanBasic, md.CurrentPlanType)
	assert.Equal(t, billing.PlanPro, md.NewPlanType)
	assert.Equal(t, "user_1", md.BuyerID)
	assert.Equal(t, int64(5000), md.ProrationAmount)
}

func TestParseCorrelationMetadata_Delimited(t *testing.T) {
	t.Parallel()

	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"ref": "action:upgrade_plan|sub:sub_456|from:standard|to:pro|buyer:user_2|amount:2700",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.MetadataFormatDelimited, md.Format)
	assert.Equal(t, billing.ActionUpgradePlan, md.Action)
	assert.Equal(t, "sub_456", md.SubscriptionID)
	assert.Equal(t, billing.PlanStandard, md.CurrentPlanType)
	assert.Equal(t, billing.PlanPro, md.NewPlanType)
	assert.Equal(t, "user_2", md.BuyerID)
	assert.Equal(t, int64(2700), md.ProrationAmount)
}

func TestParseCorrelationMetadata_Path(t *testing.T) {
	t.Parallel()

	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"ref": "upgrade_plan/sub_789/basic/standard/user_3",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.MetadataFormatPath, md.Format)
	assert.Equal(t, billing.ActionUpgradePlan, md.Action)
	assert.Equal(t, "sub_789", md.SubscriptionID)
	assert.Equal(t, billing.PlanBasic, md.CurrentPlanType)
	assert.Equal(t, billing.PlanStandard, md.NewPlanType)
	assert.Equal(t, "user_3", md.BuyerID)
}

func TestParseCorrelationMetadata_PathWithoutOptionalSegments(t *testing.T) {
	t.Parallel()

	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"ref": "upgrade_plan/sub_789",
	})
	require.NoError(t, err)

	assert.Equal(t, "sub_789", md.SubscriptionID)
	assert.Empty(t, md.CurrentPlanType)
	assert.Empty(t, md.BuyerID)
}

func TestParseCorrelationMetadata_PrecedenceStructuredWins(t *testing.T) {
	t.Parallel()

	// Both structured keys and a ref string present: structured wins.
	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"action":          "upgrade_plan",
		"subscription_id": "sub_structured",
		"ref":             "upgrade_plan/sub_path",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.MetadataFormatStructured, md.Format)
	assert.Equal(t, "sub_structured", md.SubscriptionID)
}

func TestParseCorrelationMetadata_DelimitedBeforePath(t *testing.T) {
	t.Parallel()

	// A ref containing both ":" and "/" must parse as delimited.
	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"ref": "action:upgrade_plan|sub:sub_1|note:a/b",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.MetadataFormatDelimited, md.Format)
	assert.Equal(t, "sub_1", md.SubscriptionID)
}

func TestParseCorrelationMetadata_CreatorSubscription(t *testing.T) {
	t.Parallel()

	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"creator_id": "creator_9",
		"user_id":    "user_4",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.ActionCreatorSubscription, md.Action)
	assert.Equal(t, "creator_9", md.CreatorID)
	assert.Equal(t, "user_4", md.UserID)
}

func TestParseCorrelationMetadata_Membership(t *testing.T) {
	t.Parallel()

	md, err := billing.ParseCorrelationMetadata(map[string]string{
		"plan_type": "pro",
		"user_id":   "user_5",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.ActionMembership, md.Action)
	assert.Equal(t, billing.PlanPro, md.PlanType)
}

func TestParseCorrelationMetadata_Unparsable(t *testing.T) {
	t.Parallel()

	cases := map[string]map[string]string{
		"empty":              {},
		"unrelated keys":     {"color": "red"},
		"ref without format": {"ref": "just-a-string"},
		"path wrong action":  {"ref": "refund_order/sub_1"},
		"path empty sub":     {"ref": "upgrade_plan/"},
		"upgrade without id": {"action": "upgrade_plan"},
	}

	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := billing.ParseCorrelationMetadata(meta)
			assert.ErrorIs(t, err, billing.ErrUnparsableMetadata)
		})
	}
}

func TestEncodeStructured_RoundTrip(t *testing.T) {
	t.Parallel()

	original := billing.CorrelationMetadata{
		Action:          billing.ActionUpgradePlan,
		SubscriptionID:  "sub_rt",
		CurrentPlanType: billing.PlanBasic,
		NewPlanType:     billing.PlanAllAccess,
		BuyerID:         "user_rt",
		ProrationAmount: 9000,
	}

	parsed, err := billing.ParseCorrelationMetadata(original.EncodeStructured())
	require.NoError(t, err)

	assert.Equal(t, original.Action, parsed.Action)
	assert.Equal(t, original.SubscriptionID, parsed.SubscriptionID)
	assert.Equal(t, original.CurrentPlanType, parsed.CurrentPlanType)
	assert.Equal(t, original.NewPlanType, parsed.NewPlanType)
	assert.Equal(t, original.BuyerID, parsed.BuyerID)
	assert.Equal(t, original.ProrationAmount, parsed.ProrationAmount)
}

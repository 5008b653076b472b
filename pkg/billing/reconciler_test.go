package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/pkg/billing"
	"github.com/courseforge/courseforge/pkg/webhook"
)

const testSecret = "whsec_test"

func signedHeader(t *testing.T, payload []byte) string {
	t.Helper()
	return webhook.Sign(testSecret, payload, time.Now()).String()
}

func checkoutEvent(t *testing.T, session map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_" + fmt.Sprint(time.Now().UnixNano()),
		"type": "checkout.session.completed",
		"data": map[string]any{"object": session},
	})
	require.NoError(t, err)
	return payload
}

func newReconciler(t *testing.T, store *billing.MemoryStore, processor *mockProcessor) *billing.WebhookReconciler {
	t.Helper()
	return billing.NewWebhookReconciler(testSecret, billing.NewMemoryLedger(), store, processor, testCatalog(t))
}

func TestHandleEvent_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	r := newReconciler(t, billing.NewMemoryStore(), new(mockProcessor))
	payload := checkoutEvent(t, map[string]any{"id": "cs_sig"})

	_, err := r.HandleEvent(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestHandleEvent_RejectsStaleSignature(t *testing.T) {
	t.Parallel()

	r := newReconciler(t, billing.NewMemoryStore(), new(mockProcessor))
	payload := checkoutEvent(t, map[string]any{"id": "cs_stale"})
	header := webhook.Sign(testSecret, payload, time.Now().Add(-time.Hour)).String()

	_, err := r.HandleEvent(context.Background(), payload, header)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestHandleEvent_IgnoresForeignEventKinds(t *testing.T) {
	t.Parallel()

	r := newReconciler(t, billing.NewMemoryStore(), new(mockProcessor))
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_video",
		"type": "video.asset.ready",
		"data": map[string]any{"object": map[string]any{"id": "asset_1"}},
	})
	require.NoError(t, err)

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestHandleEvent_AcknowledgesMalformedPayload(t *testing.T) {
	t.Parallel()

	r := newReconciler(t, billing.NewMemoryStore(), new(mockProcessor))
	payload := []byte("{not json")

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestHandleEvent_MarketplaceSaleCreatesOrder(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_sale_1",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   4200,
		"currency":       "usd",
		"payment_intent": "pi_1",
		"metadata":       map[string]string{"buyer_id": "user_b", "seller_id": "creator_s"},
	})

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.False(t, result.Ignored)

	order, err := store.GetOrder(context.Background(), "cs_sale_1")
	require.NoError(t, err)
	assert.Equal(t, billing.OrderKindMarketplaceSale, order.Kind)
	assert.Equal(t, billing.OrderStatusAwaitingFulfillment, order.Status)
	assert.Equal(t, "user_b", order.BuyerID)
	assert.Equal(t, "creator_s", order.SellerID)
	assert.Equal(t, int64(4200), order.Amount)
}

func TestHandleEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_dup",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   4200,
		"currency":       "usd",
		"metadata":       map[string]string{"buyer_id": "user_b", "seller_id": "creator_s"},
	})

	first, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	orders, err := store.ListUnattributedOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders) // the one order has a seller id

	_, err = store.GetOrder(context.Background(), "cs_dup")
	assert.NoError(t, err)
}

func TestHandleEvent_SkipsUnpaidSession(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_unpaid",
		"mode":           "payment",
		"payment_status": "unpaid",
		"metadata":       map[string]string{"buyer_id": "user_b", "seller_id": "creator_s"},
	})

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	_, err = store.GetOrder(context.Background(), "cs_unpaid")
	assert.ErrorIs(t, err, billing.ErrOrderNotFound)
}

func TestHandleEvent_UnpaidDeliveryDoesNotBlockPaidRedelivery(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	r := newReconciler(t, store, new(mockProcessor))

	session := map[string]any{
		"id":             "cs_settles_late",
		"mode":           "payment",
		"payment_status": "unpaid",
		"amount_total":   4200,
		"currency":       "usd",
		"metadata":       map[string]string{"buyer_id": "user_b", "seller_id": "creator_s"},
	}

	payload := checkoutEvent(t, session)
	first, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.True(t, first.Ignored)

	session["payment_status"] = "paid"
	payload = checkoutEvent(t, session)
	second, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.False(t, second.Ignored)

	order, err := store.GetOrder(context.Background(), "cs_settles_late")
	require.NoError(t, err)
	assert.Equal(t, billing.OrderStatusAwaitingFulfillment, order.Status)
}

func TestHandleEvent_UpgradeSettlement(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutUser(billing.User{
		ID: "user_up", Email: "up@example.com",
		MembershipActive: true, PlanType: billing.PlanBasic, SubscriptionID: "sub_up",
	})

	processor := new(mockProcessor)
	processor.On("GetSubscription", mock.Anything, "sub_up").Return(&billing.ProcessorSubscription{
		ID: "sub_up", Status: billing.StatusActive, ItemID: "si_up",
	}, nil)
	processor.On("EnsurePrice", mock.Anything, mock.MatchedBy(func(p billing.Plan) bool {
		return p.Type == billing.PlanPro
	})).Return("price_pro", nil)
	processor.On("UpdateSubscriptionPrice", mock.Anything, "sub_up", "si_up", "price_pro", mock.Anything).Return(nil)

	r := newReconciler(t, store, processor)

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_up",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   5000,
		"currency":       "usd",
		"payment_intent": "pi_up",
		"metadata": billing.CorrelationMetadata{
			Action:          billing.ActionUpgradePlan,
			SubscriptionID:  "sub_up",
			CurrentPlanType: billing.PlanBasic,
			NewPlanType:     billing.PlanPro,
			BuyerID:         "user_up",
			ProrationAmount: 5000,
		}.EncodeStructured(),
	})

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.False(t, result.Ignored)

	user, err := store.GetUser(context.Background(), "user_up")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanPro, user.PlanType)
	assert.True(t, user.MembershipActive)

	order, err := store.GetOrder(context.Background(), "cs_up")
	require.NoError(t, err)
	assert.Equal(t, billing.OrderKindSubscriptionChange, order.Kind)
	assert.Equal(t, billing.OrderStatusCompleted, order.Status)
	assert.Equal(t, billing.PlanBasic, order.CurrentPlanType)
	assert.Equal(t, billing.PlanPro, order.NewPlanType)
	assert.Equal(t, "Subscription plan change: basic to pro", order.Title)
	processor.AssertExpectations(t)
}

func TestHandleEvent_UpgradeViaLegacyClientReference(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	processor := new(mockProcessor)
	processor.On("GetSubscription", mock.Anything, "sub_legacy").Return(&billing.ProcessorSubscription{
		ID: "sub_legacy", Status: billing.StatusActive, ItemID: "si_legacy",
	}, nil)
	processor.On("EnsurePrice", mock.Anything, mock.Anything).Return("price_standard", nil)
	processor.On("UpdateSubscriptionPrice", mock.Anything, "sub_legacy", "si_legacy", "price_standard", mock.Anything).Return(nil)

	r := newReconciler(t, store, processor)

	payload := checkoutEvent(t, map[string]any{
		"id":                  "cs_legacy",
		"mode":                "payment",
		"payment_status":      "paid",
		"amount_total":        2300,
		"currency":            "usd",
		"client_reference_id": "upgrade_plan/sub_legacy/basic/standard/user_legacy",
	})

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.False(t, result.Ignored)

	order, err := store.GetOrder(context.Background(), "cs_legacy")
	require.NoError(t, err)
	assert.Equal(t, billing.OrderKindSubscriptionChange, order.Kind)
	assert.Equal(t, "sub_legacy", order.SubscriptionID)
}

func TestHandleEvent_PaymentWithUnparsableMetadataIsAcked(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_mystery",
		"mode":           "payment",
		"payment_status": "paid",
		"amount_total":   999,
		"currency":       "usd",
	})

	result, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	_, err = store.GetOrder(context.Background(), "cs_mystery")
	assert.ErrorIs(t, err, billing.ErrOrderNotFound)
}

func TestHandleEvent_CreatorSubscriptionActivated(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutCreator(billing.Creator{ID: "creator_1", Name: "Ada", PayoutAccountID: "acct_1"})
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_creator",
		"mode":           "subscription",
		"payment_status": "paid",
		"subscription":   "sub_creator",
		"metadata":       map[string]string{"creator_id": "creator_1", "user_id": "user_fan"},
	})

	_, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)

	sub, err := store.GetLegacySubscription(context.Background(), "sub_creator")
	require.NoError(t, err)
	assert.Equal(t, "creator_1", sub.CreatorID)
	assert.Equal(t, "user_fan", sub.UserID)
	assert.Equal(t, billing.StatusActive, sub.Status)
}

func TestHandleEvent_CreatorWithoutPayoutAccountFails(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutCreator(billing.Creator{ID: "creator_nopay", Name: "Bo"})
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":             "cs_nopay",
		"mode":           "subscription",
		"payment_status": "paid",
		"subscription":   "sub_nopay",
		"metadata":       map[string]string{"creator_id": "creator_nopay"},
	})

	_, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	assert.ErrorIs(t, err, billing.ErrPayoutAccountMissing)
}

func TestHandleEvent_MembershipActivatedByEmailFallback(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	store.PutUser(billing.User{ID: "user_mail", Email: "member@example.com"})
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":               "cs_member",
		"mode":             "subscription",
		"payment_status":   "paid",
		"subscription":     "sub_member",
		"metadata":         map[string]string{"plan_type": "standard"},
		"customer_details": map[string]any{"email": "member@example.com"},
	})

	_, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)

	user, err := store.GetUser(context.Background(), "user_mail")
	require.NoError(t, err)
	assert.True(t, user.MembershipActive)
	assert.Equal(t, billing.PlanStandard, user.PlanType)
	assert.Equal(t, "sub_member", user.SubscriptionID)
}

func TestHandleEvent_MembershipWithoutAccountParksClaim(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	r := newReconciler(t, store, new(mockProcessor))

	payload := checkoutEvent(t, map[string]any{
		"id":               "cs_park",
		"mode":             "subscription",
		"payment_status":   "paid",
		"subscription":     "sub_park",
		"metadata":         map[string]string{"plan_type": "pro"},
		"customer_details": map[string]any{"email": "stranger@example.com"},
	})

	_, err := r.HandleEvent(context.Background(), payload, signedHeader(t, payload))
	require.NoError(t, err)

	claim, err := store.ConsumePendingClaim(context.Background(), "stranger@example.com")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanPro, claim.PlanType)
	assert.Equal(t, "sub_park", claim.SubscriptionID)
}

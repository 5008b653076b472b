package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/pkg/billing"
)

// Mock implementations
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProcessorSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProcessorSubscription), args.Error(1)
}

func (m *mockProcessor) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string, metadata map[string]string) error {
	args := m.Called(ctx, subscriptionID, itemID, priceID, metadata)
	return args.Error(0)
}

func (m *mockProcessor) PreviewProration(ctx context.Context, req billing.ProrationPreviewRequest) (*billing.ProcessorInvoice, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProcessorInvoice), args.Error(1)
}

func (m *mockProcessor) EnsurePrice(ctx context.Context, plan billing.Plan) (string, error) {
	args := m.Called(ctx, plan)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreateCheckoutSession(ctx context.Context, req billing.CheckoutSessionRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*billing.PaymentIntent, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentIntent), args.Error(1)
}

func (m *mockProcessor) ListConnectedAccounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockProcessor) ListCheckoutEvents(ctx context.Context, account string, since time.Time) ([]billing.ProcessorEvent, error) {
	args := m.Called(ctx, account, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ProcessorEvent), args.Error(1)
}

func (m *mockProcessor) ListInvoices(ctx context.Context, subscriptionID string, limit int) ([]billing.ProcessorInvoice, error) {
	args := m.Called(ctx, subscriptionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ProcessorInvoice), args.Error(1)
}

func (m *mockProcessor) ListCustomersByEmail(ctx context.Context, email string) ([]billing.ProcessorCustomer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ProcessorCustomer), args.Error(1)
}

func (m *mockProcessor) ListSubscriptions(ctx context.Context, customerID string) ([]billing.ProcessorSubscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.ProcessorSubscription), args.Error(1)
}

// Test helpers

func testCatalog(t *testing.T) *billing.Catalog {
	t.Helper()
	catalog, err := billing.NewCatalog(billing.DefaultPlans())
	require.NoError(t, err)
	return catalog
}

func mustPlan(t *testing.T, catalog *billing.Catalog, planType billing.PlanType) billing.Plan {
	t.Helper()
	plan, ok := catalog.Get(planType)
	require.True(t, ok, "plan %s must exist", planType)
	return plan
}

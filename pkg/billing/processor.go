package billing

import (
	"context"
	"time"
)

// Processor abstracts the external payment/subscription service of record.
// The production implementation targets Stripe (see stripe.go); tests use
// in-memory fakes. All methods must respect ctx deadlines; implementations
// translate transient failures into ErrProcessorUnavailable so callers can
// distinguish retryable conditions from data problems.
type Processor interface {
	// GetSubscription fetches the live subscription state.
	GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error)

	// UpdateSubscriptionPrice swaps the subscription's billing item to a new
	// price and merges the given metadata onto the subscription.
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string, metadata map[string]string) error

	// PreviewProration asks the processor to preview the invoice that would
	// result from swapping the subscription item to the new price with
	// prorate-and-invoice-now semantics. Read-only.
	PreviewProration(ctx context.Context, req ProrationPreviewRequest) (*ProcessorInvoice, error)

	// EnsurePrice resolves or creates the processor price object for a plan.
	// The lookup is keyed by the plan's deterministic lookup key, never by
	// call ordering, so concurrent callers converge on one price object.
	EnsurePrice(ctx context.Context, plan Plan) (priceID string, err error)

	// CreateCheckoutSession creates a hosted checkout session.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)

	// GetCheckoutSession fetches a checkout session by id.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// GetPaymentIntent fetches a payment intent by id.
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)

	// ListConnectedAccounts returns the ids of all connected payout
	// accounts. The platform account itself is represented by "".
	ListConnectedAccounts(ctx context.Context) ([]string, error)

	// ListCheckoutEvents pages through "checkout completed" events for an
	// account since the cutoff, oldest first. account == "" means the
	// platform account.
	ListCheckoutEvents(ctx context.Context, account string, since time.Time) ([]ProcessorEvent, error)

	// ListInvoices returns the most recent invoices of a subscription,
	// newest first.
	ListInvoices(ctx context.Context, subscriptionID string, limit int) ([]ProcessorInvoice, error)

	// ListCustomersByEmail finds processor customers registered under an
	// email address.
	ListCustomersByEmail(ctx context.Context, email string) ([]ProcessorCustomer, error)

	// ListSubscriptions returns all subscriptions of a processor customer.
	ListSubscriptions(ctx context.Context, customerID string) ([]ProcessorSubscription, error)
}

// ProcessorSubscription is the normalized live subscription state.
type ProcessorSubscription struct {
	ID         string
	Status     SubscriptionStatus
	CustomerID string
	ItemID     string // the single billing item carrying the plan price
	PriceID    string
	UnitAmount int64
	Currency   string
	Metadata   map[string]string
}

// ProcessorCustomer is a customer record at the processor.
type ProcessorCustomer struct {
	ID    string
	Email string
}

// ProcessorInvoice is a (possibly previewed) invoice.
type ProcessorInvoice struct {
	ID       string
	Total    int64 // signed; credit invoices are negative
	Currency string
	Lines    []ProcessorInvoiceLine
}

// ProcessorInvoiceLine is a single invoice line item. Proration lines are
// the forensic signal for inferring historical plan transitions.
type ProcessorInvoiceLine struct {
	Amount      int64 // signed
	Description string
	Proration   bool
}

// ProrationPreviewRequest identifies the item swap to preview.
type ProrationPreviewRequest struct {
	CustomerID     string
	SubscriptionID string
	ItemID         string
	NewPriceID     string
}

// CheckoutSessionRequest describes a checkout session to create. For
// one-time plan-change payments the correlation metadata is placed on both
// the session and its payment intent, so whichever surface a webhook
// handler observes carries it.
type CheckoutSessionRequest struct {
	Mode                  string // "payment" or "subscription"
	Amount                int64
	Currency              string
	ProductName           string
	CustomerEmail         string
	Metadata              map[string]string
	PaymentIntentMetadata map[string]string
	SuccessURL            string
	CancelURL             string
}

// CheckoutSession is the normalized view of a processor checkout session.
type CheckoutSession struct {
	ID              string
	URL             string
	Mode            string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	PaymentIntentID string
	SubscriptionID  string
	CustomerEmail   string
	Metadata        map[string]string
	CreatedAt       time.Time
}

// Paid reports whether the session's payment settled.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// PaymentIntent is the normalized view of a processor payment intent.
type PaymentIntent struct {
	ID             string
	SubscriptionID string
	Metadata       map[string]string
}

// ProcessorEvent is an event from the processor's history feed with the
// checkout session it concerns.
type ProcessorEvent struct {
	ID      string
	Type    string
	Account string
	Created time.Time
	Session CheckoutSession
}

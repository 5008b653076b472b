package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeConfig holds configuration for the Stripe-backed processor.
type StripeConfig struct {
	APIKey         string        `env:"STRIPE_API_KEY,required"`
	WebhookSecret  string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	RequestTimeout time.Duration `env:"STRIPE_REQUEST_TIMEOUT" envDefault:"15s"`
}

// StripeProcessor implements Processor against Stripe. The API client is
// constructed once and injected wherever a Processor is needed; there is
// no package-level key or client.
type StripeProcessor struct {
	client *client.API
}

// NewStripeProcessor creates a StripeProcessor. Every request uses a
// bounded HTTP timeout; timed-out calls fail and are never retried here —
// retry is the caller's or the processor's responsibility.
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("billing: stripe API key is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	return &StripeProcessor{
		client: client.New(cfg.APIKey, stripe.NewBackends(httpClient)),
	}, nil
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.client.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, p.wrapErr("get subscription", err)
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProcessor) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string, metadata map[string]string) error {
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(itemID),
			Price: stripe.String(priceID),
		}},
		// Upgrades are settled by a separate one-time payment and
		// downgrades are no-charge, so the swap itself never invoices.
		ProrationBehavior: stripe.String("none"),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	if _, err := p.client.Subscriptions.Update(subscriptionID, params); err != nil {
		return p.wrapErr("update subscription", err)
	}
	return nil
}

func (p *StripeProcessor) PreviewProration(ctx context.Context, req ProrationPreviewRequest) (*ProcessorInvoice, error) {
	params := &stripe.InvoiceCreatePreviewParams{
		Customer:     stripe.String(req.CustomerID),
		Subscription: stripe.String(req.SubscriptionID),
		SubscriptionDetails: &stripe.InvoiceCreatePreviewSubscriptionDetailsParams{
			Items: []*stripe.InvoiceCreatePreviewSubscriptionDetailsItemParams{{
				ID:    stripe.String(req.ItemID),
				Price: stripe.String(req.NewPriceID),
			}},
			ProrationBehavior: stripe.String("always_invoice"),
		},
	}
	params.Context = ctx

	preview, err := p.client.Invoices.CreatePreview(params)
	if err != nil {
		return nil, p.wrapErr("preview invoice", err)
	}
	return fromStripeInvoice(preview), nil
}

// EnsurePrice resolves the price by the plan's deterministic lookup key,
// creating it (with an inline product) only when absent.
// TransferLookupKey makes concurrent creates converge on one keyed price
// instead of racing into duplicates.
func (p *StripeProcessor) EnsurePrice(ctx context.Context, plan Plan) (string, error) {
	listParams := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{plan.LookupKey()}),
		Active:     stripe.Bool(true),
	}
	listParams.Context = ctx

	iter := p.client.Prices.List(listParams)
	if iter.Next() {
		return iter.Price().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", p.wrapErr("list prices", err)
	}

	createParams := &stripe.PriceParams{
		Currency:          stripe.String(plan.Price.Currency),
		UnitAmount:        stripe.Int64(plan.Price.Amount),
		LookupKey:         stripe.String(plan.LookupKey()),
		TransferLookupKey: stripe.Bool(true),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(plan.Name),
		},
	}
	createParams.Context = ctx
	createParams.AddMetadata("plan_type", string(plan.Type))

	price, err := p.client.Prices.New(createParams)
	if err != nil {
		return "", p.wrapErr("create price", err)
	}
	return price.ID, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(req.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.Metadata = req.Metadata
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(req.PaymentIntentMetadata) > 0 {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.PaymentIntentMetadata,
		}
	}

	session, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, p.wrapErr("create checkout session", err)
	}
	return fromStripeSession(session), nil
}

func (p *StripeProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := p.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, p.wrapErr("get checkout session", err)
	}
	return fromStripeSession(session), nil
}

func (p *StripeProcessor) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := p.client.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, p.wrapErr("get payment intent", err)
	}
	return &PaymentIntent{
		ID:             intent.ID,
		SubscriptionID: intent.Metadata["subscription_id"],
		Metadata:       intent.Metadata,
	}, nil
}

func (p *StripeProcessor) ListConnectedAccounts(ctx context.Context) ([]string, error) {
	params := &stripe.AccountListParams{}
	params.Context = ctx

	var out []string
	iter := p.client.Accounts.List(params)
	for iter.Next() {
		out = append(out, iter.Account().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, p.wrapErr("list accounts", err)
	}
	return out, nil
}

func (p *StripeProcessor) ListCheckoutEvents(ctx context.Context, account string, since time.Time) ([]ProcessorEvent, error) {
	params := &stripe.EventListParams{
		Types:        []*string{stripe.String(eventCheckoutCompleted)},
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}

	var out []ProcessorEvent
	iter := p.client.Events.List(params)
	for iter.Next() {
		ev := iter.Event()

		var session stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			continue
		}
		out = append(out, ProcessorEvent{
			ID:      ev.ID,
			Type:    string(ev.Type),
			Account: account,
			Created: time.Unix(ev.Created, 0).UTC(),
			Session: *fromStripeSession(&session),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, p.wrapErr("list events", err)
	}
	return out, nil
}

func (p *StripeProcessor) ListInvoices(ctx context.Context, subscriptionID string, limit int) ([]ProcessorInvoice, error) {
	params := &stripe.InvoiceListParams{
		Subscription: stripe.String(subscriptionID),
	}
	params.Context = ctx
	if limit > 0 {
		params.Limit = stripe.Int64(int64(limit))
	}

	var out []ProcessorInvoice
	iter := p.client.Invoices.List(params)
	for iter.Next() {
		out = append(out, *fromStripeInvoice(iter.Invoice()))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, p.wrapErr("list invoices", err)
	}
	return out, nil
}

func (p *StripeProcessor) ListCustomersByEmail(ctx context.Context, email string) ([]ProcessorCustomer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx

	var out []ProcessorCustomer
	iter := p.client.Customers.List(params)
	for iter.Next() {
		customer := iter.Customer()
		out = append(out, ProcessorCustomer{ID: customer.ID, Email: customer.Email})
	}
	if err := iter.Err(); err != nil {
		return nil, p.wrapErr("list customers", err)
	}
	return out, nil
}

func (p *StripeProcessor) ListSubscriptions(ctx context.Context, customerID string) ([]ProcessorSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []ProcessorSubscription
	iter := p.client.Subscriptions.List(params)
	for iter.Next() {
		out = append(out, *fromStripeSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, p.wrapErr("list subscriptions", err)
	}
	return out, nil
}

// wrapErr tags transient processor failures (5xx, rate limits, transport
// errors) with ErrProcessorUnavailable so callers can map them to
// retryable responses.
func (p *StripeProcessor) wrapErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return errors.Join(ErrProcessorUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	// No typed error means the request never got a response.
	return errors.Join(ErrProcessorUnavailable, fmt.Errorf("%s: %w", op, err))
}

func fromStripeSubscription(sub *stripe.Subscription) *ProcessorSubscription {
	out := &ProcessorSubscription{
		ID:       sub.ID,
		Status:   SubscriptionStatus(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
			out.UnitAmount = item.Price.UnitAmount
			out.Currency = string(item.Price.Currency)
		}
	}
	return out
}

func fromStripeSession(session *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            session.ID,
		URL:           session.URL,
		Mode:          string(session.Mode),
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Metadata:      session.Metadata,
		CreatedAt:     time.Unix(session.Created, 0).UTC(),
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if session.CustomerDetails != nil {
		out.CustomerEmail = session.CustomerDetails.Email
	}
	return out
}

func fromStripeInvoice(invoice *stripe.Invoice) *ProcessorInvoice {
	out := &ProcessorInvoice{
		ID:       invoice.ID,
		Total:    invoice.Total,
		Currency: string(invoice.Currency),
	}
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			proration := false
			if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil {
				proration = line.Parent.SubscriptionItemDetails.Proration
			}
			out.Lines = append(out.Lines, ProcessorInvoiceLine{
				Amount:      line.Amount,
				Description: line.Description,
				Proration:   proration,
			})
		}
	}
	return out
}

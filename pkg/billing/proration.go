package billing

import (
	"context"
	"fmt"
)

// ProrationResult is the outcome of a proration preview.
type ProrationResult struct {
	// Amount is the absolute amount due now, in the smallest currency
	// unit. Zero means the change requires no payment.
	Amount int64
	// IsUpgrade is true when the target plan costs more than the current
	// one. A zero Amount routes through the no-payment path regardless.
	IsUpgrade bool
}

// CalculateProration previews the cost delta of swapping a subscription's
// billing item from the current plan's price to the target plan's price
// with prorate-and-invoice-now semantics. It is a pure read against the
// processor's preview endpoint; nothing is mutated.
func CalculateProration(ctx context.Context, p Processor, sub *ProcessorSubscription, newPriceID string, current, target Plan) (ProrationResult, error) {
	preview, err := p.PreviewProration(ctx, ProrationPreviewRequest{
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		ItemID:         sub.ItemID,
		NewPriceID:     newPriceID,
	})
	if err != nil {
		return ProrationResult{}, fmt.Errorf("preview proration: %w", err)
	}

	// A negative preview total is a credit; no payment is due now.
	amount := preview.Total
	if amount < 0 {
		amount = 0
	}

	return ProrationResult{
		Amount:    amount,
		IsUpgrade: target.Price.Amount > current.Price.Amount,
	}, nil
}

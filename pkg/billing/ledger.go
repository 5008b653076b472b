package billing

import "context"

// EventLedger is the durable idempotency store for processor events.
//
// MarkProcessed must be an atomic create-if-absent on the composite
// (eventType, resourceID) key: when two deliveries of the same event race,
// exactly one observes first=true and proceeds with side effects, the
// other observes first=false and exits as a duplicate.
type EventLedger interface {
	MarkProcessed(ctx context.Context, eventType, resourceID string) (first bool, err error)
}

// LedgerKey builds the composite idempotency key for an event.
func LedgerKey(eventType, resourceID string) string {
	return eventType + ":" + resourceID
}

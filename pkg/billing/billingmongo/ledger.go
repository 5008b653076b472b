package billingmongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/courseforge/courseforge/pkg/billing"
)

const eventsCollection = "processed_events"

// Ledger is the MongoDB-backed billing.EventLedger. Entries are keyed
// by event-type:resource-id, written before side effects, and never
// updated. The durable variant of the Redis ledger for deployments
// that prefer one storage system.
type Ledger struct {
	db *mongo.Database
}

// NewLedger creates a Ledger on the given database.
func NewLedger(db *mongo.Database) *Ledger {
	if db == nil {
		panic("billingmongo: database is required")
	}
	return &Ledger{db: db}
}

func (l *Ledger) MarkProcessed(ctx context.Context, eventType, resourceID string) (bool, error) {
	record := billing.ProcessedEventRecord{
		Key:         billing.LedgerKey(eventType, resourceID),
		EventType:   eventType,
		ResourceID:  resourceID,
		ProcessedAt: time.Now().UTC(),
	}

	_, err := l.db.Collection(eventsCollection).InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return true, nil
}

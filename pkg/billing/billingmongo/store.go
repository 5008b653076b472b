package billingmongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/courseforge/courseforge/pkg/billing"
)

const (
	usersCollection    = "users"
	ordersCollection   = "orders"
	subsCollection     = "legacy_subscriptions"
	creatorsCollection = "creators"
	claimsCollection   = "pending_claims"
)

// Store is the MongoDB-backed billing.EntitlementStore. Uniqueness
// invariants ride on _id: orders are keyed by checkout-session id,
// per-creator subscriptions by subscription id, and pending claims by
// email, so create-if-absent semantics come from duplicate-key errors
// rather than read-then-write races.
type Store struct {
	db *mongo.Database
}

// NewStore creates a Store on the given database.
func NewStore(db *mongo.Database) *Store {
	if db == nil {
		panic("billingmongo: database is required")
	}
	return &Store{db: db}
}

// EnsureIndexes creates the secondary indexes the store queries rely
// on. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	if _, err := s.db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "kind", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}

	if _, err := s.db.Collection(subsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "creator_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create subscriptions index: %w", err)
	}

	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	var user billing.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*billing.User, error) {
	var user billing.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

func (s *Store) SetUserMembership(ctx context.Context, userID string, active bool, plan billing.PlanType, subscriptionID string) error {
	_, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			"membership_active": active,
			"plan_type":         plan,
			"subscription_id":   subscriptionID,
			"updated_at":        time.Now().UTC(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set user membership: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, checkoutSessionID string) (*billing.Order, error) {
	var order billing.Order
	err := s.db.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": checkoutSessionID}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

// CreateOrder relies on the _id uniqueness constraint: a duplicate-key
// error means another writer already materialized this session's order,
// which is a success from the caller's perspective.
func (s *Store) CreateOrder(ctx context.Context, order *billing.Order) (bool, error) {
	_, err := s.db.Collection(ordersCollection).InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert order: %w", err)
	}
	return true, nil
}

func (s *Store) ListUnattributedOrders(ctx context.Context) ([]billing.Order, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"seller_id": ""},
		bson.M{"seller_id": bson.M{"$exists": false}},
	}}
	cursor, err := s.db.Collection(ordersCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list unattributed orders: %w", err)
	}
	var orders []billing.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode unattributed orders: %w", err)
	}
	return orders, nil
}

func (s *Store) ReclassifyOrder(ctx context.Context, checkoutSessionID string, patch billing.OrderReclassification) error {
	res, err := s.db.Collection(ordersCollection).UpdateOne(ctx,
		bson.M{"_id": checkoutSessionID},
		bson.M{
			"$set": bson.M{
				"kind":              patch.Kind,
				"status":            patch.Status,
				"title":             patch.Title,
				"subscription_id":   patch.SubscriptionID,
				"current_plan_type": patch.CurrentPlanType,
				"new_plan_type":     patch.NewPlanType,
				"reclassified_by":   patch.ReclassifiedBy,
			},
			"$unset": bson.M{"seller_id": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("reclassify order: %w", err)
	}
	if res.MatchedCount == 0 {
		return billing.ErrOrderNotFound
	}
	return nil
}

func (s *Store) GetLegacySubscription(ctx context.Context, subscriptionID string) (*billing.LegacySubscription, error) {
	var sub billing.LegacySubscription
	err := s.db.Collection(subsCollection).FindOne(ctx, bson.M{"_id": subscriptionID}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return &sub, nil
}

func (s *Store) SaveLegacySubscription(ctx context.Context, sub *billing.LegacySubscription) error {
	_, err := s.db.Collection(subsCollection).ReplaceOne(ctx,
		bson.M{"_id": sub.SubscriptionID},
		sub,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// AssignLegacySubscriber filters on user_id != userID so the write and
// the changed check are one atomic operation; re-running a claim never
// reports a change twice.
func (s *Store) AssignLegacySubscriber(ctx context.Context, subscriptionID, userID string) (bool, error) {
	res, err := s.db.Collection(subsCollection).UpdateOne(ctx,
		bson.M{"_id": subscriptionID, "user_id": bson.M{"$ne": userID}},
		bson.M{"$set": bson.M{
			"user_id":    userID,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("assign subscriber: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) ListLegacySubscriptionsByUser(ctx context.Context, userID string) ([]billing.LegacySubscription, error) {
	cursor, err := s.db.Collection(subsCollection).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	var subs []billing.LegacySubscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) FindLiveSubscription(ctx context.Context, userID, creatorID string) (*billing.LegacySubscription, error) {
	filter := bson.M{
		"user_id":    userID,
		"creator_id": creatorID,
		"status":     bson.M{"$in": bson.A{billing.StatusActive, billing.StatusTrialing}},
	}
	var sub billing.LegacySubscription
	err := s.db.Collection(subsCollection).FindOne(ctx, filter).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find live subscription: %w", err)
	}
	return &sub, nil
}

func (s *Store) GetCreator(ctx context.Context, creatorID string) (*billing.Creator, error) {
	var creator billing.Creator
	err := s.db.Collection(creatorsCollection).FindOne(ctx, bson.M{"_id": creatorID}).Decode(&creator)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrCreatorNotFound
		}
		return nil, fmt.Errorf("find creator: %w", err)
	}
	return &creator, nil
}

func (s *Store) ListCreators(ctx context.Context) ([]billing.Creator, error) {
	cursor, err := s.db.Collection(creatorsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	var creators []billing.Creator
	if err := cursor.All(ctx, &creators); err != nil {
		return nil, fmt.Errorf("decode creators: %w", err)
	}
	return creators, nil
}

func (s *Store) SavePendingClaim(ctx context.Context, claim *billing.PendingMembershipClaim) error {
	_, err := s.db.Collection(claimsCollection).ReplaceOne(ctx,
		bson.M{"_id": claim.Email},
		claim,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save pending claim: %w", err)
	}
	return nil
}

// ConsumePendingClaim flips claimed=false to true in one
// findAndModify, so concurrent logins consume a claim at most once.
func (s *Store) ConsumePendingClaim(ctx context.Context, email string) (*billing.PendingMembershipClaim, error) {
	now := time.Now().UTC()
	var claim billing.PendingMembershipClaim
	err := s.db.Collection(claimsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": email, "claimed": false},
		bson.M{"$set": bson.M{"claimed": true, "claimed_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&claim)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrClaimNotFound
		}
		return nil, fmt.Errorf("consume pending claim: %w", err)
	}
	return &claim, nil
}

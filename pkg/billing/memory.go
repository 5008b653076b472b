package billing

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory EntitlementStore. It backs
// tests and local development; production uses billingmongo.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]User
	orders   map[string]Order
	subs     map[string]LegacySubscription
	creators map[string]Creator
	claims   map[string]PendingMembershipClaim
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		orders:   make(map[string]Order),
		subs:     make(map[string]LegacySubscription),
		creators: make(map[string]Creator),
		claims:   make(map[string]PendingMembershipClaim),
	}
}

// PutUser seeds a user record.
func (s *MemoryStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutCreator seeds a creator record.
func (s *MemoryStore) PutCreator(c Creator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creators[c.ID] = c
}

// PutOrder seeds an order record, replacing any existing one.
func (s *MemoryStore) PutOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.CheckoutSessionID] = o
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) SetUserMembership(ctx context.Context, userID string, active bool, plan PlanType, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.ID = userID
	u.MembershipActive = active
	u.PlanType = plan
	u.SubscriptionID = subscriptionID
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, checkoutSessionID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[checkoutSessionID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.CheckoutSessionID]; exists {
		return false, nil
	}
	s.orders[order.CheckoutSessionID] = *order
	return true, nil
}

func (s *MemoryStore) ListUnattributedOrders(ctx context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.SellerID == "" {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *MemoryStore) ReclassifyOrder(ctx context.Context, checkoutSessionID string, patch OrderReclassification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[checkoutSessionID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Kind = patch.Kind
	o.Status = patch.Status
	o.Title = patch.Title
	o.SubscriptionID = patch.SubscriptionID
	o.CurrentPlanType = patch.CurrentPlanType
	o.NewPlanType = patch.NewPlanType
	o.ReclassifiedBy = patch.ReclassifiedBy
	o.SellerID = ""
	s.orders[checkoutSessionID] = o
	return nil
}

func (s *MemoryStore) GetLegacySubscription(ctx context.Context, subscriptionID string) (*LegacySubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) SaveLegacySubscription(ctx context.Context, sub *LegacySubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.SubscriptionID] = *sub
	return nil
}

func (s *MemoryStore) AssignLegacySubscriber(ctx context.Context, subscriptionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return false, nil
	}
	if sub.UserID == userID {
		return false, nil
	}
	sub.UserID = userID
	sub.UpdatedAt = time.Now().UTC()
	s.subs[subscriptionID] = sub
	return true, nil
}

func (s *MemoryStore) ListLegacySubscriptionsByUser(ctx context.Context, userID string) ([]LegacySubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LegacySubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindLiveSubscription(ctx context.Context, userID, creatorID string) (*LegacySubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.CreatorID == creatorID && sub.Status.IsLive() {
			return &sub, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) GetCreator(ctx context.Context, creatorID string) (*Creator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creators[creatorID]
	if !ok {
		return nil, ErrCreatorNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCreators(ctx context.Context) ([]Creator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Creator, 0, len(s.creators))
	for _, c := range s.creators {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) SavePendingClaim(ctx context.Context, claim *PendingMembershipClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[claim.Email] = *claim
	return nil
}

func (s *MemoryStore) ConsumePendingClaim(ctx context.Context, email string) (*PendingMembershipClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[email]
	if !ok || claim.Claimed {
		return nil, ErrClaimNotFound
	}
	now := time.Now().UTC()
	claim.Claimed = true
	claim.ClaimedAt = &now
	s.claims[email] = claim
	return &claim, nil
}

// MemoryLedger is a mutex-guarded in-memory EventLedger.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]ProcessedEventRecord
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]ProcessedEventRecord)}
}

func (l *MemoryLedger) MarkProcessed(ctx context.Context, eventType, resourceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := LedgerKey(eventType, resourceID)
	if _, exists := l.seen[key]; exists {
		return false, nil
	}
	l.seen[key] = ProcessedEventRecord{
		Key:         key,
		EventType:   eventType,
		ResourceID:  resourceID,
		ProcessedAt: time.Now().UTC(),
	}
	return true, nil
}

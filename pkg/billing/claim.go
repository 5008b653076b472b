package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ClaimResult reports what a claim-by-email pass attached to the user.
type ClaimResult struct {
	UpdatedLegacySubs   int  `json:"updated_legacy_subs"`
	MembershipActivated bool `json:"membership_activated"`
}

// ClaimResolver bridges processor state to a freshly authenticated
// identity: subscriptions bought before the account existed (or under a
// different session) are found by email and reattached. Safe to call on
// every login; each reassignment is an idempotent overwrite.
type ClaimResolver struct {
	processor Processor
	store     EntitlementStore
	plans     *Catalog
	log       *slog.Logger
}

// NewClaimResolver creates a ClaimResolver. Panics on nil required
// dependencies to fail fast during initialization.
func NewClaimResolver(processor Processor, store EntitlementStore, plans *Catalog, log *slog.Logger) *ClaimResolver {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if store == nil {
		panic("billing: EntitlementStore is required")
	}
	if plans == nil {
		panic("billing: plan Catalog is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ClaimResolver{processor: processor, store: store, plans: plans, log: log}
}

// ClaimByEmail finds processor customers under the email, reattaches
// orphaned per-creator subscriptions to the user, and activates global
// membership for any live membership-tagged subscription. A pending
// membership claim parked for the email is consumed exactly once.
func (c *ClaimResolver) ClaimByEmail(ctx context.Context, userID, email string) (*ClaimResult, error) {
	result := &ClaimResult{}

	customers, err := c.processor.ListCustomersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list customers for %s: %w", email, err)
	}

	for _, customer := range customers {
		subs, err := c.processor.ListSubscriptions(ctx, customer.ID)
		if err != nil {
			return nil, fmt.Errorf("list subscriptions for customer %s: %w", customer.ID, err)
		}

		for _, sub := range subs {
			if !sub.Status.IsLive() {
				continue
			}
			md, err := ParseCorrelationMetadata(sub.Metadata)
			if err != nil {
				continue
			}

			switch {
			case md.CreatorID != "":
				changed, err := c.store.AssignLegacySubscriber(ctx, sub.ID, userID)
				if err != nil {
					return nil, fmt.Errorf("reassign subscription %s: %w", sub.ID, err)
				}
				if changed {
					result.UpdatedLegacySubs++
				}
			case md.PlanType != "":
				if _, ok := c.plans.Get(md.PlanType); !ok {
					c.log.WarnContext(ctx, "skipping subscription with unknown plan type",
						slog.String("subscription_id", sub.ID),
						slog.String("plan_type", string(md.PlanType)),
					)
					continue
				}
				if err := c.store.SetUserMembership(ctx, userID, true, md.PlanType, sub.ID); err != nil {
					return nil, fmt.Errorf("activate membership for user %s: %w", userID, err)
				}
				result.MembershipActivated = true
			}
		}
	}

	if err := c.consumePendingClaim(ctx, userID, email, result); err != nil {
		return nil, err
	}

	if result.UpdatedLegacySubs > 0 || result.MembershipActivated {
		c.log.InfoContext(ctx, "claim resolved",
			slog.String("user_id", userID),
			slog.Int("updated_legacy_subs", result.UpdatedLegacySubs),
			slog.Bool("membership_activated", result.MembershipActivated),
		)
	}
	return result, nil
}

// consumePendingClaim applies a membership parked before the account
// existed. The store consumes the claim atomically, so repeated logins
// apply it at most once.
func (c *ClaimResolver) consumePendingClaim(ctx context.Context, userID, email string, result *ClaimResult) error {
	claim, err := c.store.ConsumePendingClaim(ctx, email)
	if err != nil {
		if errors.Is(err, ErrClaimNotFound) {
			return nil
		}
		return fmt.Errorf("consume pending claim for %s: %w", email, err)
	}

	if err := c.store.SetUserMembership(ctx, userID, true, claim.PlanType, claim.SubscriptionID); err != nil {
		return fmt.Errorf("activate claimed membership for user %s: %w", userID, err)
	}
	result.MembershipActivated = true
	return nil
}

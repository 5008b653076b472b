package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// Correlation actions attached to processor objects.
const (
	ActionUpgradePlan         = "upgrade_plan"
	ActionMembership          = "membership"
	ActionCreatorSubscription = "creator_subscription"
)

// MetadataFormat identifies which parser recognized a payload.
type MetadataFormat string

const (
	MetadataFormatStructured MetadataFormat = "structured"
	MetadataFormatDelimited  MetadataFormat = "delimited"
	MetadataFormatPath       MetadataFormat = "path"
)

// CorrelationMetadata is the parsed correlation payload read back from a
// processor object. Only the fields relevant to the recognized action are
// populated.
type CorrelationMetadata struct {
	Format          MetadataFormat
	Action          string
	SubscriptionID  string
	CurrentPlanType PlanType
	NewPlanType     PlanType
	BuyerID         string
	ProrationAmount int64
	CreatorID       string
	PlanType        PlanType
	UserID          string
}

// refKey is the metadata key legacy call sites used for the string-encoded
// correlation formats.
const refKey = "ref"

// ParseCorrelationMetadata interprets the correlation metadata of a
// processor object. Three historical formats exist because the metadata
// was attached by call sites that evolved independently; they are tried in
// fixed precedence order and the first that yields a recognizable
// identifier wins:
//
//  1. structured key-value pairs ("action", "subscription_id", ...)
//  2. a delimited string under "ref" ("action:upgrade_plan|sub:...|...")
//  3. a positional slash path under "ref" ("upgrade_plan/sub_.../...")
//
// Returns ErrUnparsableMetadata when no format applies. Callers handling
// webhooks must acknowledge, not fail, on that error: the processor
// retries non-2xx responses and a permanently unparsable payload would
// retry forever.
func ParseCorrelationMetadata(meta map[string]string) (CorrelationMetadata, error) {
	if len(meta) == 0 {
		return CorrelationMetadata{}, fmt.Errorf("%w: empty metadata", ErrUnparsableMetadata)
	}

	if md, ok := parseStructured(meta); ok {
		return md, nil
	}
	if md, ok := parseDelimited(meta[refKey]); ok {
		return md, nil
	}
	if md, ok := parsePath(meta[refKey]); ok {
		return md, nil
	}

	return CorrelationMetadata{}, ErrUnparsableMetadata
}

// parseStructured reads the modern key-value layout.
func parseStructured(meta map[string]string) (CorrelationMetadata, bool) {
	md := CorrelationMetadata{
		Format:          MetadataFormatStructured,
		Action:          meta["action"],
		SubscriptionID:  meta["subscription_id"],
		CurrentPlanType: PlanType(meta["current_plan_type"]),
		NewPlanType:     PlanType(meta["new_plan_type"]),
		BuyerID:         meta["buyer_id"],
		CreatorID:       meta["creator_id"],
		PlanType:        PlanType(meta["plan_type"]),
		UserID:          meta["user_id"],
	}
	if raw := meta["proration_amount"]; raw != "" {
		if amount, err := strconv.ParseInt(raw, 10, 64); err == nil {
			md.ProrationAmount = amount
		}
	}

	switch {
	case md.Action == ActionUpgradePlan && md.SubscriptionID != "":
		return md, true
	case md.CreatorID != "":
		if md.Action == "" {
			md.Action = ActionCreatorSubscription
		}
		return md, true
	case md.PlanType != "":
		if md.Action == "" {
			md.Action = ActionMembership
		}
		return md, true
	}
	return CorrelationMetadata{}, false
}

// parseDelimited reads the "key:value|key:value" layout of the
// intermediate-era call sites. Short keys were used to stay under the
// processor's metadata value length cap.
func parseDelimited(ref string) (CorrelationMetadata, bool) {
	if ref == "" || !strings.Contains(ref, ":") {
		return CorrelationMetadata{}, false
	}

	md := CorrelationMetadata{Format: MetadataFormatDelimited}
	for _, pair := range strings.Split(ref, "|") {
		key, value, found := strings.Cut(pair, ":")
		if !found || value == "" {
			continue
		}
		switch key {
		case "action":
			md.Action = value
		case "sub":
			md.SubscriptionID = value
		case "from":
			md.CurrentPlanType = PlanType(value)
		case "to":
			md.NewPlanType = PlanType(value)
		case "buyer":
			md.BuyerID = value
		case "amount":
			if amount, err := strconv.ParseInt(value, 10, 64); err == nil {
				md.ProrationAmount = amount
			}
		case "creator":
			md.CreatorID = value
		case "plan":
			md.PlanType = PlanType(value)
		case "user":
			md.UserID = value
		}
	}

	switch {
	case md.Action == ActionUpgradePlan && md.SubscriptionID != "":
		return md, true
	case md.CreatorID != "":
		if md.Action == "" {
			md.Action = ActionCreatorSubscription
		}
		return md, true
	case md.PlanType != "":
		if md.Action == "" {
			md.Action = ActionMembership
		}
		return md, true
	}
	return CorrelationMetadata{}, false
}

// parsePath reads the oldest layout: a positional slash path of the form
// "upgrade_plan/<subscription>/<current plan>/<new plan>/<buyer>".
func parsePath(ref string) (CorrelationMetadata, bool) {
	if ref == "" || !strings.Contains(ref, "/") {
		return CorrelationMetadata{}, false
	}

	parts := strings.Split(ref, "/")
	if len(parts) < 2 || parts[0] != ActionUpgradePlan {
		return CorrelationMetadata{}, false
	}

	md := CorrelationMetadata{
		Format:         MetadataFormatPath,
		Action:         ActionUpgradePlan,
		SubscriptionID: parts[1],
	}
	if md.SubscriptionID == "" {
		return CorrelationMetadata{}, false
	}
	if len(parts) > 2 {
		md.CurrentPlanType = PlanType(parts[2])
	}
	if len(parts) > 3 {
		md.NewPlanType = PlanType(parts[3])
	}
	if len(parts) > 4 {
		md.BuyerID = parts[4]
	}
	return md, true
}

// EncodeStructured renders md in the modern key-value layout. Used when
// attaching correlation metadata to new checkout sessions and payment
// intents.
func (md CorrelationMetadata) EncodeStructured() map[string]string {
	out := make(map[string]string)
	if md.Action != "" {
		out["action"] = md.Action
	}
	if md.SubscriptionID != "" {
		out["subscription_id"] = md.SubscriptionID
	}
	if md.CurrentPlanType != "" {
		out["current_plan_type"] = string(md.CurrentPlanType)
	}
	if md.NewPlanType != "" {
		out["new_plan_type"] = string(md.NewPlanType)
	}
	if md.BuyerID != "" {
		out["buyer_id"] = md.BuyerID
	}
	if md.ProrationAmount != 0 {
		out["proration_amount"] = strconv.FormatInt(md.ProrationAmount, 10)
	}
	if md.CreatorID != "" {
		out["creator_id"] = md.CreatorID
	}
	if md.PlanType != "" {
		out["plan_type"] = string(md.PlanType)
	}
	if md.UserID != "" {
		out["user_id"] = md.UserID
	}
	return out
}

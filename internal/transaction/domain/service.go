package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	gwdomain "github.com/smallbiznis/rebill/internal/gateway/domain"
	"github.com/smallbiznis/rebill/internal/money"
)

// Processor executes gateway operations and records each attempt as a ledger
// Entry. Gateway declines and transport failures never surface as errors;
// they come back as unsuccessful entries. The error return is reserved for
// infrastructure faults such as the ledger lookup a credit needs.
//
// Returned entries are not persisted. Callers stamp SubscriptionID and append
// them inside their own transaction.
type Processor interface {
	// ValidateCard authorizes a nominal amount against the card and
	// immediately voids the hold.
	ValidateCard(ctx context.Context, card gwdomain.Card) (*Entry, error)

	StoreCard(ctx context.Context, card gwdomain.Card) (*Entry, error)

	// UpdateCard rotates the card behind profileKey, falling back to
	// unstore plus store when the gateway cannot update in place.
	UpdateCard(ctx context.Context, profileKey string, card gwdomain.Card) (*Entry, error)

	UnstoreCard(ctx context.Context, profileKey string) (*Entry, error)

	Charge(ctx context.Context, amount money.Money, profileKey string, description string) (*Entry, error)

	// Credit returns money to the subscriber, preferring a native credit and
	// falling back to refunding a recent charge of at least the amount. A
	// refund-capable gateway with no matching charge yields (nil, nil).
	Credit(ctx context.Context, amount money.Money, profileKey string, subscriptionID snowflake.ID, description string) (*Entry, error)
}

// Package domain defines the payment gateway capability surface consumed by
// the transaction processor. Concrete processor integrations implement
// Gateway plus whichever optional capabilities the provider supports; the
// processor probes for them with type assertions.
package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/rebill/internal/money"
)

// Card carries raw payment-card details for store/validate operations.
type Card struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Holder   string `json:"holder"`
	CVV      string `json:"cvv"`
}

// Source identifies what to bill: a raw card or a stored profile token.
type Source struct {
	Card  *Card
	Token string
}

func CardSource(card Card) Source  { return Source{Card: &card} }
func TokenSource(token string) Source { return Source{Token: token} }

// Options accompany every gateway call. OrderID is the idempotency key; the
// processor fills it when the caller leaves it empty.
type Options struct {
	OrderID     string
	Description string
}

// Result is the normalized outcome of one gateway call.
type Result struct {
	Success       bool
	Authorization string
	Token         string
	Message       string
	Params        map[string]any
	TestMode      bool
}

// Gateway is the minimum capability set every adapter provides.
type Gateway interface {
	Authorize(ctx context.Context, amount money.Money, src Source, opts Options) (Result, error)
	Capture(ctx context.Context, amount money.Money, reference string, opts Options) (Result, error)
	Void(ctx context.Context, reference string, opts Options) (Result, error)
	Store(ctx context.Context, card Card, opts Options) (Result, error)
	Unstore(ctx context.Context, token string, opts Options) (Result, error)
}

// Purchaser is the optional one-step sale capability.
type Purchaser interface {
	Purchase(ctx context.Context, amount money.Money, src Source, opts Options) (Result, error)
}

// Crediter is the optional arbitrary-credit capability.
type Crediter interface {
	Credit(ctx context.Context, amount money.Money, src Source, opts Options) (Result, error)
}

// Refunder credits against a specific prior charge reference.
type Refunder interface {
	Refund(ctx context.Context, amount money.Money, reference string, opts Options) (Result, error)
}

// Updater rotates a stored card in place.
type Updater interface {
	Update(ctx context.Context, token string, card Card, opts Options) (Result, error)
}

// AdapterConfig is the provider-specific construction input.
type AdapterConfig struct {
	Config   map[string]any
	TestMode bool
}

// AdapterFactory builds a Gateway for one provider.
type AdapterFactory interface {
	Provider() string
	NewGateway(cfg AdapterConfig) (Gateway, error)
}

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
)

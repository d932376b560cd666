// Package sandbox is an in-process gateway used for local development and
// tests. It tokenizes cards, honors every optional capability and declines a
// set of magic card numbers, so the full charge/credit/refund surface can be
// exercised without a real processor.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/rebill/internal/gateway/domain"
	"github.com/smallbiznis/rebill/internal/money"
)

// DeclineCardNumber is always declined, mirroring processor test cards.
const DeclineCardNumber = "4000000000000002"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewGateway(cfg domain.AdapterConfig) (domain.Gateway, error) {
	return New(), nil
}

type Adapter struct {
	mu      sync.Mutex
	seq     int
	cards   map[string]domain.Card // token -> stored card
	charges map[string]int64       // reference -> captured cents
}

func New() *Adapter {
	return &Adapter{
		cards:   map[string]domain.Card{},
		charges: map[string]int64{},
	}
}

func (a *Adapter) next(prefix string) string {
	a.seq++
	return fmt.Sprintf("%s_%06d", prefix, a.seq)
}

func (a *Adapter) ok(reference, token, message string) domain.Result {
	return domain.Result{
		Success:       true,
		Authorization: reference,
		Token:         token,
		Message:       message,
		Params:        map[string]any{"provider": "sandbox"},
		TestMode:      true,
	}
}

func (a *Adapter) declined(message string) domain.Result {
	return domain.Result{
		Success:  false,
		Message:  message,
		Params:   map[string]any{"provider": "sandbox"},
		TestMode: true,
	}
}

func (a *Adapter) resolve(src domain.Source) (domain.Card, bool) {
	if src.Card != nil {
		return *src.Card, true
	}
	card, ok := a.cards[src.Token]
	return card, ok
}

func (a *Adapter) Authorize(ctx context.Context, amount money.Money, src domain.Source, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	card, ok := a.resolve(src)
	if !ok {
		return a.declined("unknown profile"), nil
	}
	if card.Number == DeclineCardNumber {
		return a.declined("card declined"), nil
	}
	return a.ok(a.next("auth"), src.Token, "authorized"), nil
}

func (a *Adapter) Capture(ctx context.Context, amount money.Money, reference string, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.charges[reference] = amount.Cents
	return a.ok(reference, "", "captured"), nil
}

func (a *Adapter) Purchase(ctx context.Context, amount money.Money, src domain.Source, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	card, ok := a.resolve(src)
	if !ok {
		return a.declined("unknown profile"), nil
	}
	if card.Number == DeclineCardNumber {
		return a.declined("card declined"), nil
	}
	ref := a.next("ch")
	a.charges[ref] = amount.Cents
	return a.ok(ref, src.Token, "purchased"), nil
}

func (a *Adapter) Void(ctx context.Context, reference string, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.charges, reference)
	return a.ok(reference, "", "voided"), nil
}

func (a *Adapter) Store(ctx context.Context, card domain.Card, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if card.Number == DeclineCardNumber {
		return a.declined("card declined"), nil
	}
	token := a.next("tok")
	a.cards[token] = card
	return a.ok(a.next("store"), token, "stored"), nil
}

func (a *Adapter) Unstore(ctx context.Context, token string, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.cards[token]; !ok {
		return a.declined("unknown profile"), nil
	}
	delete(a.cards, token)
	return a.ok(a.next("unstore"), "", "unstored"), nil
}

func (a *Adapter) Update(ctx context.Context, token string, card domain.Card, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.cards[token]; !ok {
		return a.declined("unknown profile"), nil
	}
	if card.Number == DeclineCardNumber {
		return a.declined("card declined"), nil
	}
	a.cards[token] = card
	return a.ok(a.next("update"), token, "updated"), nil
}

func (a *Adapter) Credit(ctx context.Context, amount money.Money, src domain.Source, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.resolve(src); !ok {
		return a.declined("unknown profile"), nil
	}
	return a.ok(a.next("cr"), src.Token, "credited"), nil
}

func (a *Adapter) Refund(ctx context.Context, amount money.Money, reference string, opts domain.Options) (domain.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	captured, ok := a.charges[reference]
	if !ok {
		return a.declined("unknown charge"), nil
	}
	if amount.Cents > captured {
		return a.declined("refund exceeds charge"), nil
	}
	return a.ok(a.next("re"), "", "refunded"), nil
}

var (
	_ domain.Gateway   = (*Adapter)(nil)
	_ domain.Purchaser = (*Adapter)(nil)
	_ domain.Crediter  = (*Adapter)(nil)
	_ domain.Refunder  = (*Adapter)(nil)
	_ domain.Updater   = (*Adapter)(nil)
)

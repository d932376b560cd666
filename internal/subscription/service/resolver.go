package service

import (
	"context"

	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	"github.com/smallbiznis/rebill/internal/subscription/domain"
)

// defaultResolver treats every subscriber as reachable and every plan as
// allowed. Deployments that keep subscriber records elsewhere replace it
// through fx with a resolver backed by their own store.
type defaultResolver struct{}

func NewDefaultResolver() domain.SubscriberResolver { return defaultResolver{} }

func (defaultResolver) Contact(_ context.Context, _, subscriberID string) (string, error) {
	return subscriberID, nil
}

func (defaultResolver) PlanCheck(_ context.Context, _, _ string, _ plandomain.Plan) ([]string, error) {
	return nil, nil
}

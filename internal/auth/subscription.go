package auth

import (
	"context"
	"fmt"
	"time"
)

// Gate answers whether an organization currently holds access to a service
// and, if so, under which tier.
type Gate struct {
	store Store
}

// NewGate builds a subscription gate over the store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Check requires exactly one active subscription whose half-open window
// [start, end) contains the instant. Zero matching rows deny with
// ErrSubscriptionInactive. More than one matching row is a state the schema
// forbids; the gate refuses to pick one and denies with ErrDataIntegrity.
func (g *Gate) Check(ctx context.Context, orgID, serviceID string, at time.Time) (Entitlement, error) {
	if orgID == "" || serviceID == "" {
		return Entitlement{}, fmt.Errorf("%w: organization id and service id are required", ErrInvalidInput)
	}
	rows, err := g.store.Subscriptions().ActiveInWindow(ctx, orgID, serviceID, at.UTC())
	if err != nil {
		return Entitlement{}, fmt.Errorf("check subscription: %w", err)
	}
	switch len(rows) {
	case 0:
		return Entitlement{}, fmt.Errorf("%w: organization %s has no active subscription for service %s", ErrSubscriptionInactive, orgID, serviceID)
	case 1:
		return rows[0], nil
	default:
		return Entitlement{}, fmt.Errorf("%w: %d overlapping active subscriptions for organization %s and service %s", ErrDataIntegrity, len(rows), orgID, serviceID)
	}
}

package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"authghost.org/internal/auth"
	"authghost.org/internal/ids"
)

type tierStore struct {
	db *sql.DB
}

func (s *tierStore) Create(ctx context.Context, tier *auth.SubscriptionTier) error {
	if tier.ID == "" {
		tier.ID = ids.New()
	}
	if tier.Features == nil {
		tier.Features = auth.FeatureSet{}
	}
	featJSON, err := json.Marshal(tier.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into subscription_tiers (id, service_id, tier_name, features)
		values ($1, $2, $3, $4)
		returning created_at
	`, tier.ID, tier.ServiceID, tier.Name, featJSON)
	if err := row.Scan(&tier.CreatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *tierStore) Get(ctx context.Context, id string) (*auth.SubscriptionTier, error) {
	var (
		tier auth.SubscriptionTier
		raw  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, service_id, tier_name, features, created_at
		from subscription_tiers
		where id = $1
	`, id).Scan(&tier.ID, &tier.ServiceID, &tier.Name, &raw, &tier.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tier %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if tier.Features, err = auth.ParseFeatureSet(raw); err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *tierStore) ListByService(ctx context.Context, serviceID string) ([]auth.SubscriptionTier, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, service_id, tier_name, features, created_at
		from subscription_tiers
		where service_id = $1
		order by tier_name
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.SubscriptionTier
	for rows.Next() {
		var (
			tier auth.SubscriptionTier
			raw  []byte
		)
		if err := rows.Scan(&tier.ID, &tier.ServiceID, &tier.Name, &raw, &tier.CreatedAt); err != nil {
			return nil, err
		}
		if tier.Features, err = auth.ParseFeatureSet(raw); err != nil {
			return nil, err
		}
		result = append(result, tier)
	}
	return result, rows.Err()
}

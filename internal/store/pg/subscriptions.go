package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"authghost.org/internal/auth"
	"authghost.org/internal/ids"
)

type subStore struct {
	db *sql.DB
}

// Create inserts the subscription after locking and checking any existing
// active rows for the pair. The select ... for update catches overlaps
// against committed rows; concurrent inserts that cannot see each other are
// stopped by the org_subscriptions_no_overlap exclusion constraint, which
// surfaces here as ErrConflict.
func (s *subStore) Create(ctx context.Context, sub *auth.OrganizationSubscription) error {
	if sub.ID == "" {
		sub.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		select id
		from organization_subscriptions
		where organization_id = $1
		  and service_id = $2
		  and is_active
		  and start_date < $4
		  and $3 < end_date
		for update
	`, sub.OrganizationID, sub.ServiceID, sub.StartDate.UTC(), sub.EndDate.UTC())
	if err != nil {
		return err
	}
	overlap := rows.Next()
	if err := rows.Close(); err != nil {
		return err
	}
	if overlap {
		return fmt.Errorf("%w: overlapping active subscription", auth.ErrConflict)
	}

	row := tx.QueryRowContext(ctx, `
		insert into organization_subscriptions
			(id, organization_id, service_id, tier_id, start_date, end_date, is_active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, sub.ID, sub.OrganizationID, sub.ServiceID, sub.TierID,
		sub.StartDate.UTC(), sub.EndDate.UTC(), sub.Active)
	if err := row.Scan(&sub.CreatedAt); err != nil {
		return mapWriteError(err)
	}
	return tx.Commit()
}

func (s *subStore) Get(ctx context.Context, id string) (*auth.OrganizationSubscription, error) {
	var sub auth.OrganizationSubscription
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, service_id, tier_id, start_date, end_date, is_active, created_at
		from organization_subscriptions
		where id = $1
	`, id).Scan(&sub.ID, &sub.OrganizationID, &sub.ServiceID, &sub.TierID,
		&sub.StartDate, &sub.EndDate, &sub.Active, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: subscription %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *subStore) ListByOrganization(ctx context.Context, orgID string) ([]auth.OrganizationSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, service_id, tier_id, start_date, end_date, is_active, created_at
		from organization_subscriptions
		where organization_id = $1
		order by start_date desc
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.OrganizationSubscription
	for rows.Next() {
		var sub auth.OrganizationSubscription
		if err := rows.Scan(&sub.ID, &sub.OrganizationID, &sub.ServiceID, &sub.TierID,
			&sub.StartDate, &sub.EndDate, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *subStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update organization_subscriptions
		set is_active = false
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: subscription %s", auth.ErrNotFound, id)
	}
	return nil
}

// ActiveInWindow matches on the half-open window [start_date, end_date).
// All rows are returned; the gate treats anything other than exactly one as
// a denial.
func (s *subStore) ActiveInWindow(ctx context.Context, orgID, serviceID string, at time.Time) ([]auth.Entitlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select s.id, s.tier_id, t.tier_name, t.features
		from organization_subscriptions s
		join subscription_tiers t on t.id = s.tier_id
		where s.organization_id = $1
		  and s.service_id = $2
		  and s.is_active
		  and s.start_date <= $3
		  and $3 < s.end_date
	`, orgID, serviceID, at.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Entitlement
	for rows.Next() {
		var (
			ent auth.Entitlement
			raw []byte
		)
		if err := rows.Scan(&ent.SubscriptionID, &ent.TierID, &ent.TierName, &raw); err != nil {
			return nil, err
		}
		if ent.Features, err = auth.ParseFeatureSet(raw); err != nil {
			return nil, err
		}
		result = append(result, ent)
	}
	return result, rows.Err()
}

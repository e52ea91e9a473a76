package auth

import (
	"context"
	"time"
)

// Store aggregates the persistence interfaces the domain services depend on.
// The PostgreSQL implementation lives in internal/store/pg; MemStore covers
// development and tests.
type Store interface {
	Organizations() OrganizationStore
	Services() ServiceStore
	Roles() RoleStore
	Users() UserStore
	Tiers() TierStore
	Subscriptions() SubscriptionStore
	RevokedTokens() RevokedTokenStore
}

// OrganizationStore persists tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Get(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	Update(ctx context.Context, id string, upd OrganizationUpdate) (*Organization, error)
}

// OrganizationUpdate carries the mutable organization fields; nil means keep.
type OrganizationUpdate struct {
	Name *string
}

// ServiceStore persists protected services.
type ServiceStore interface {
	Create(ctx context.Context, svc *Service) error
	Get(ctx context.Context, id string) (*Service, error)
	GetByName(ctx context.Context, name string) (*Service, error)
	List(ctx context.Context) ([]Service, error)
	SetStatus(ctx context.Context, id, status string) (*Service, error)
}

// RoleStore persists roles, their permission sets, and user assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Get(ctx context.Context, id string) (*Role, error)
	ListByService(ctx context.Context, serviceID string) ([]Role, error)
	SetPermissions(ctx context.Context, id string, permissions []string) (*Role, error)
	Delete(ctx context.Context, id string) error

	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)

	// PermissionsForUser returns the union of the permission sets of every
	// role the user holds within the service. No assignments yields an
	// empty slice, not an error.
	PermissionsForUser(ctx context.Context, userID, serviceID string) ([]string, error)
}

// UserStore persists principals and their lockout counters.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByOrganization(ctx context.Context, orgID string) ([]User, error)
	SetActive(ctx context.Context, id string, active bool) (*User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error

	// RecordLoginFailure increments the consecutive-failure counter and
	// returns the new value. The increment is serialized per row so
	// concurrent failures each observe a distinct count.
	RecordLoginFailure(ctx context.Context, id string) (int, error)
	// Lock places the account under lockout until the given instant.
	Lock(ctx context.Context, id string, until time.Time) error
	// RecordLoginSuccess resets the failure counter, clears any lockout
	// and stamps the last login instant.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
}

// TierStore persists subscription tiers.
type TierStore interface {
	Create(ctx context.Context, tier *SubscriptionTier) error
	Get(ctx context.Context, id string) (*SubscriptionTier, error)
	ListByService(ctx context.Context, serviceID string) ([]SubscriptionTier, error)
}

// SubscriptionStore persists organization subscriptions.
type SubscriptionStore interface {
	// Create inserts the subscription, rejecting with ErrConflict when an
	// active subscription for the same organization and service already
	// overlaps the new window.
	Create(ctx context.Context, sub *OrganizationSubscription) error
	Get(ctx context.Context, id string) (*OrganizationSubscription, error)
	ListByOrganization(ctx context.Context, orgID string) ([]OrganizationSubscription, error)
	Cancel(ctx context.Context, id string) error

	// ActiveInWindow returns every active subscription for the pair whose
	// half-open window [start, end) contains the instant, joined with its
	// tier. The gate decides what zero or multiple rows mean.
	ActiveInWindow(ctx context.Context, orgID, serviceID string, at time.Time) ([]Entitlement, error)
}

// RevokedTokenStore persists the token revocation list.
type RevokedTokenStore interface {
	// Insert adds the token identifier if it is not already present and
	// reports whether this call inserted it. Exactly one of any set of
	// concurrent calls for the same identifier observes true.
	Insert(ctx context.Context, tokenID, userID string) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]RevokedToken, error)
}

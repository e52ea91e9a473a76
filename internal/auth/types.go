package auth

import "time"

// Organization is a tenant. Users and subscriptions hang off it.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service status values.
const (
	ServiceStatusActive   = "active"
	ServiceStatusInactive = "inactive"
)

// Service is a protected product surface that tokens are scoped to.
type Service struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a named permission set scoped to a single service. Role names are
// unique per service, not globally.
type Role struct {
	ID          string    `json:"id"`
	ServiceID   string    `json:"service_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleAssignment links a user to a role.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a principal inside an organization. Email is globally unique.
// Users are never deleted, only deactivated.
type User struct {
	ID                  string     `json:"id"`
	OrganizationID      string     `json:"organization_id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Active              bool       `json:"active"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Locked reports whether the user is under an active lockout at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// SubscriptionTier is a named feature bundle for a service, e.g. basic or
// premium. Tier names are unique per service.
type SubscriptionTier struct {
	ID        string     `json:"id"`
	ServiceID string     `json:"service_id"`
	Name      string     `json:"tier_name"`
	Features  FeatureSet `json:"features"`
	CreatedAt time.Time  `json:"created_at"`
}

// OrganizationSubscription grants an organization access to a service at a
// tier for a half-open date window [StartDate, EndDate). At most one active
// subscription may cover a given (organization, service) instant.
type OrganizationSubscription struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ServiceID      string    `json:"service_id"`
	TierID         string    `json:"tier_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Covers reports whether the subscription window contains the instant.
// The window is half-open: the end date itself is outside it.
func (s *OrganizationSubscription) Covers(now time.Time) bool {
	return !now.Before(s.StartDate) && now.Before(s.EndDate)
}

// RevokedToken records a token identifier that must no longer be accepted.
type RevokedToken struct {
	TokenID   string    `json:"token_id"`
	UserID    string    `json:"user_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Entitlement is the resolved outcome of a subscription check: the tier the
// organization holds for the service and the features that tier grants.
type Entitlement struct {
	SubscriptionID string     `json:"subscription_id"`
	TierID         string     `json:"tier_id"`
	TierName       string     `json:"tier_name"`
	Features       FeatureSet `json:"features"`
}

// Principal is an authenticated caller as seen by downstream handlers.
type Principal struct {
	UserID         string
	OrganizationID string
	ServiceID      string
	Email          string
	Permissions    map[string]struct{}
	Features       FeatureSet
	TokenID        string
}

// HasPermission reports whether the principal carries the capability.
func (p *Principal) HasPermission(perm string) bool {
	_, ok := p.Permissions[perm]
	return ok
}

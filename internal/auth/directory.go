package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Directory is the management service for tenants, services, roles, tiers
// and subscriptions. It validates input and delegates persistence; uniqueness
// is enforced by the store.
type Directory struct {
	store Store
	now   func() time.Time
}

// NewDirectory builds the management service over the store.
func NewDirectory(store Store) *Directory {
	return &Directory{store: store, now: time.Now}
}

// CreateOrganization registers a tenant.
func (d *Directory) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	org := &Organization{Name: name}
	if err := d.store.Organizations().Create(ctx, org); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return org, nil
}

// GetOrganization loads a tenant by id.
func (d *Directory) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return d.store.Organizations().Get(ctx, id)
}

// ListOrganizations returns all tenants.
func (d *Directory) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return d.store.Organizations().List(ctx)
}

// RenameOrganization updates the tenant name.
func (d *Directory) RenameOrganization(ctx context.Context, id, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: organization id and name are required", ErrInvalidInput)
	}
	return d.store.Organizations().Update(ctx, id, OrganizationUpdate{Name: &name})
}

// CreateService registers a protected service. New services start active.
func (d *Directory) CreateService(ctx context.Context, name string) (*Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	svc := &Service{Name: name, Status: ServiceStatusActive}
	if err := d.store.Services().Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// ListServices returns all registered services.
func (d *Directory) ListServices(ctx context.Context) ([]Service, error) {
	return d.store.Services().List(ctx)
}

// SetServiceStatus flips a service between active and inactive.
func (d *Directory) SetServiceStatus(ctx context.Context, id, status string) (*Service, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: service id is required", ErrInvalidInput)
	}
	if status != ServiceStatusActive && status != ServiceStatusInactive {
		return nil, fmt.Errorf("%w: status must be %s or %s", ErrInvalidInput, ServiceStatusActive, ServiceStatusInactive)
	}
	return d.store.Services().SetStatus(ctx, id, status)
}

// CreateRole defines a named permission set inside a service.
func (d *Directory) CreateRole(ctx context.Context, serviceID, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if serviceID == "" || name == "" {
		return nil, fmt.Errorf("%w: service id and role name are required", ErrInvalidInput)
	}
	perms, err := validatePermissions(permissions)
	if err != nil {
		return nil, err
	}
	if _, err := d.store.Services().Get(ctx, serviceID); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	role := &Role{
		ServiceID:   serviceID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: perms,
	}
	if err := d.store.Roles().Create(ctx, role); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	return role, nil
}

// ListRoles returns the roles defined for a service.
func (d *Directory) ListRoles(ctx context.Context, serviceID string) ([]Role, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("%w: service id is required", ErrInvalidInput)
	}
	return d.store.Roles().ListByService(ctx, serviceID)
}

// SetRolePermissions replaces a role's permission set. Tokens already issued
// keep their embedded claims until they expire unless live checks are on.
func (d *Directory) SetRolePermissions(ctx context.Context, roleID string, permissions []string) (*Role, error) {
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	perms, err := validatePermissions(permissions)
	if err != nil {
		return nil, err
	}
	return d.store.Roles().SetPermissions(ctx, roleID, perms)
}

// DeleteRole removes a role and its assignments.
func (d *Directory) DeleteRole(ctx context.Context, roleID string) error {
	if roleID == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return d.store.Roles().Delete(ctx, roleID)
}

// AssignRole grants a role to a user. The role's service decides where the
// grant takes effect; assigning an already-held role is a conflict.
func (d *Directory) AssignRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	if err := d.store.Roles().Assign(ctx, userID, roleID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// UnassignRole removes a role grant.
func (d *Directory) UnassignRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	return d.store.Roles().Unassign(ctx, userID, roleID)
}

// ListAssignments returns the user's role grants across all services.
func (d *Directory) ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return d.store.Roles().ListAssignments(ctx, userID)
}

// CreateTier defines a feature bundle for a service.
func (d *Directory) CreateTier(ctx context.Context, serviceID, name string, features FeatureSet) (*SubscriptionTier, error) {
	name = strings.TrimSpace(name)
	if serviceID == "" || name == "" {
		return nil, fmt.Errorf("%w: service id and tier name are required", ErrInvalidInput)
	}
	if features == nil {
		features = FeatureSet{}
	}
	tier := &SubscriptionTier{ServiceID: serviceID, Name: name, Features: features}
	if err := d.store.Tiers().Create(ctx, tier); err != nil {
		return nil, fmt.Errorf("create tier: %w", err)
	}
	return tier, nil
}

// ListTiers returns the tiers defined for a service.
func (d *Directory) ListTiers(ctx context.Context, serviceID string) ([]SubscriptionTier, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("%w: service id is required", ErrInvalidInput)
	}
	return d.store.Tiers().ListByService(ctx, serviceID)
}

// Subscribe opens a subscription window for an organization on a service.
// The window is half-open: access stops at the end date. The store rejects
// a window that overlaps an existing active subscription for the same pair.
func (d *Directory) Subscribe(ctx context.Context, orgID, serviceID, tierID string, start, end time.Time) (*OrganizationSubscription, error) {
	if orgID == "" || serviceID == "" || tierID == "" {
		return nil, fmt.Errorf("%w: organization, service and tier ids are required", ErrInvalidInput)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrInvalidInput)
	}
	tier, err := d.store.Tiers().Get(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if tier.ServiceID != serviceID {
		return nil, fmt.Errorf("%w: tier %s belongs to a different service", ErrInvalidInput, tierID)
	}
	sub := &OrganizationSubscription{
		OrganizationID: orgID,
		ServiceID:      serviceID,
		TierID:         tierID,
		StartDate:      start.UTC(),
		EndDate:        end.UTC(),
		Active:         true,
	}
	if err := d.store.Subscriptions().Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}

// CancelSubscription deactivates a subscription before its window closes.
func (d *Directory) CancelSubscription(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: subscription id is required", ErrInvalidInput)
	}
	return d.store.Subscriptions().Cancel(ctx, id)
}

// ListSubscriptions returns an organization's subscriptions, active or not.
func (d *Directory) ListSubscriptions(ctx context.Context, orgID string) ([]OrganizationSubscription, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return d.store.Subscriptions().ListByOrganization(ctx, orgID)
}

// ListUsers returns an organization's users.
func (d *Directory) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return d.store.Users().ListByOrganization(ctx, orgID)
}

// DeactivateUser soft-deletes a principal. The row stays so audit history
// and revocation records keep a referent.
func (d *Directory) DeactivateUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return d.store.Users().SetActive(ctx, userID, false)
}

// ReactivateUser lifts a soft deactivation.
func (d *Directory) ReactivateUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return d.store.Users().SetActive(ctx, userID, true)
}

// ListRevokedTokens returns the revocation records for a user.
func (d *Directory) ListRevokedTokens(ctx context.Context, userID string) ([]RevokedToken, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return d.store.RevokedTokens().ListByUser(ctx, userID)
}

func validatePermissions(permissions []string) ([]string, error) {
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: permission names must be non-empty", ErrInvalidInput)
		}
		if strings.ContainsAny(p, " \t\n") {
			return nil, fmt.Errorf("%w: permission %q contains whitespace", ErrInvalidInput, p)
		}
		out = append(out, p)
	}
	return dedupeSorted(out), nil
}

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store for development and tests. It mirrors the
// semantics the PostgreSQL implementation promises: uniqueness conflicts,
// serialized failure counters and first-committer-wins revocation inserts.
// Data is lost on restart; never run it in production.
type MemStore struct {
	mu          sync.Mutex
	seq         int
	orgs        map[string]*Organization
	services    map[string]*Service
	roles       map[string]*Role
	assignments map[string]map[string]time.Time
	users       map[string]*User
	tiers       map[string]*SubscriptionTier
	subs        map[string]*OrganizationSubscription
	revoked     map[string]RevokedToken
}

func NewMemStore() *MemStore {
	return &MemStore{
		orgs:        make(map[string]*Organization),
		services:    make(map[string]*Service),
		roles:       make(map[string]*Role),
		assignments: make(map[string]map[string]time.Time),
		users:       make(map[string]*User),
		tiers:       make(map[string]*SubscriptionTier),
		subs:        make(map[string]*OrganizationSubscription),
		revoked:     make(map[string]RevokedToken),
	}
}

func (m *MemStore) nextID() string {
	m.seq++
	return fmt.Sprintf("mem-%04d", m.seq)
}

func (m *MemStore) Organizations() OrganizationStore { return &memOrgStore{m} }
func (m *MemStore) Services() ServiceStore           { return &memServiceStore{m} }
func (m *MemStore) Roles() RoleStore                 { return &memRoleStore{m} }
func (m *MemStore) Users() UserStore                 { return &memUserStore{m} }
func (m *MemStore) Tiers() TierStore                 { return &memTierStore{m} }
func (m *MemStore) Subscriptions() SubscriptionStore { return &memSubStore{m} }
func (m *MemStore) RevokedTokens() RevokedTokenStore { return &memRevokedStore{m} }

type memOrgStore struct{ m *MemStore }

func (s *memOrgStore) Create(_ context.Context, org *Organization) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if org.ID == "" {
		org.ID = s.m.nextID()
	}
	org.CreatedAt = time.Now().UTC()
	org.UpdatedAt = org.CreatedAt
	s.m.orgs[org.ID] = org
	return nil
}

func (s *memOrgStore) Get(_ context.Context, id string) (*Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	org, ok := s.m.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	cp := *org
	return &cp, nil
}

func (s *memOrgStore) List(_ context.Context) ([]Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]Organization, 0, len(s.m.orgs))
	for _, org := range s.m.orgs {
		out = append(out, *org)
	}
	return out, nil
}

func (s *memOrgStore) Update(_ context.Context, id string, upd OrganizationUpdate) (*Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	org, ok := s.m.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		org.Name = *upd.Name
	}
	org.UpdatedAt = time.Now().UTC()
	cp := *org
	return &cp, nil
}

type memServiceStore struct{ m *MemStore }

func (s *memServiceStore) Create(_ context.Context, svc *Service) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.services {
		if existing.Name == svc.Name {
			return fmt.Errorf("%w: service %s", ErrConflict, svc.Name)
		}
	}
	if svc.ID == "" {
		svc.ID = s.m.nextID()
	}
	svc.CreatedAt = time.Now().UTC()
	svc.UpdatedAt = svc.CreatedAt
	s.m.services[svc.ID] = svc
	return nil
}

func (s *memServiceStore) Get(_ context.Context, id string) (*Service, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	svc, ok := s.m.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", ErrNotFound, id)
	}
	cp := *svc
	return &cp, nil
}

func (s *memServiceStore) GetByName(_ context.Context, name string) (*Service, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, svc := range s.m.services {
		if svc.Name == name {
			cp := *svc
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: service %s", ErrNotFound, name)
}

func (s *memServiceStore) List(_ context.Context) ([]Service, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]Service, 0, len(s.m.services))
	for _, svc := range s.m.services {
		out = append(out, *svc)
	}
	return out, nil
}

func (s *memServiceStore) SetStatus(_ context.Context, id, status string) (*Service, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	svc, ok := s.m.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", ErrNotFound, id)
	}
	svc.Status = status
	svc.UpdatedAt = time.Now().UTC()
	cp := *svc
	return &cp, nil
}

type memRoleStore struct{ m *MemStore }

func (s *memRoleStore) Create(_ context.Context, role *Role) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.roles {
		if existing.ServiceID == role.ServiceID && existing.Name == role.Name {
			return fmt.Errorf("%w: role %s", ErrConflict, role.Name)
		}
	}
	if role.ID == "" {
		role.ID = s.m.nextID()
	}
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	s.m.roles[role.ID] = role
	return nil
}

func (s *memRoleStore) Get(_ context.Context, id string) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) ListByService(_ context.Context, serviceID string) ([]Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []Role
	for _, role := range s.m.roles {
		if role.ServiceID == serviceID {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (s *memRoleStore) SetPermissions(_ context.Context, id string, permissions []string) (*Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	role.Permissions = append([]string(nil), permissions...)
	role.UpdatedAt = time.Now().UTC()
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	delete(s.m.roles, id)
	for _, byRole := range s.m.assignments {
		delete(byRole, id)
	}
	return nil
}

func (s *memRoleStore) Assign(_ context.Context, userID, roleID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	byRole := s.m.assignments[userID]
	if byRole == nil {
		byRole = make(map[string]time.Time)
		s.m.assignments[userID] = byRole
	}
	if _, ok := byRole[roleID]; ok {
		return fmt.Errorf("%w: role already assigned", ErrConflict)
	}
	byRole[roleID] = time.Now().UTC()
	return nil
}

func (s *memRoleStore) Unassign(_ context.Context, userID, roleID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	byRole := s.m.assignments[userID]
	if _, ok := byRole[roleID]; !ok {
		return fmt.Errorf("%w: assignment", ErrNotFound)
	}
	delete(byRole, roleID)
	return nil
}

func (s *memRoleStore) ListAssignments(_ context.Context, userID string) ([]RoleAssignment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []RoleAssignment
	for roleID, at := range s.m.assignments[userID] {
		out = append(out, RoleAssignment{UserID: userID, RoleID: roleID, CreatedAt: at})
	}
	return out, nil
}

func (s *memRoleStore) PermissionsForUser(_ context.Context, userID, serviceID string) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []string
	for roleID := range s.m.assignments[userID] {
		role, ok := s.m.roles[roleID]
		if !ok || role.ServiceID != serviceID {
			continue
		}
		out = append(out, role.Permissions...)
	}
	return out, nil
}

type memUserStore struct{ m *MemStore }

func (s *memUserStore) Create(_ context.Context, user *User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.users {
		if existing.Email == user.Email {
			return fmt.Errorf("%w: email %s", ErrConflict, user.Email)
		}
	}
	if user.ID == "" {
		user.ID = s.m.nextID()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.m.users[user.ID] = user
	return nil
}

func (s *memUserStore) Get(_ context.Context, id string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	cp := *user
	return &cp, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, user := range s.m.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (s *memUserStore) ListByOrganization(_ context.Context, orgID string) ([]User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []User
	for _, user := range s.m.users {
		if user.OrganizationID == orgID {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (s *memUserStore) SetActive(_ context.Context, id string, active bool) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	user.Active = active
	user.UpdatedAt = time.Now().UTC()
	cp := *user
	return &cp, nil
}

func (s *memUserStore) SetPasswordHash(_ context.Context, id, hash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memUserStore) RecordLoginFailure(_ context.Context, id string) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[id]
	if !ok {
		return 0, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	user.FailedLoginAttempts++
	return user.FailedLoginAttempts, nil
}

func (s *memUserStore) Lock(_ context.Context, id string, until time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	user.LockedUntil = &until
	return nil
}

func (s *memUserStore) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &at
	return nil
}

type memTierStore struct{ m *MemStore }

func (s *memTierStore) Create(_ context.Context, tier *SubscriptionTier) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.tiers {
		if existing.ServiceID == tier.ServiceID && existing.Name == tier.Name {
			return fmt.Errorf("%w: tier %s", ErrConflict, tier.Name)
		}
	}
	if tier.ID == "" {
		tier.ID = s.m.nextID()
	}
	tier.CreatedAt = time.Now().UTC()
	s.m.tiers[tier.ID] = tier
	return nil
}

func (s *memTierStore) Get(_ context.Context, id string) (*SubscriptionTier, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	tier, ok := s.m.tiers[id]
	if !ok {
		return nil, fmt.Errorf("%w: tier %s", ErrNotFound, id)
	}
	cp := *tier
	return &cp, nil
}

func (s *memTierStore) ListByService(_ context.Context, serviceID string) ([]SubscriptionTier, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []SubscriptionTier
	for _, tier := range s.m.tiers {
		if tier.ServiceID == serviceID {
			out = append(out, *tier)
		}
	}
	return out, nil
}

type memSubStore struct{ m *MemStore }

func (s *memSubStore) Create(_ context.Context, sub *OrganizationSubscription) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.subs {
		if existing.OrganizationID == sub.OrganizationID &&
			existing.ServiceID == sub.ServiceID &&
			existing.Active &&
			existing.StartDate.Before(sub.EndDate) &&
			sub.StartDate.Before(existing.EndDate) {
			return fmt.Errorf("%w: overlapping active subscription", ErrConflict)
		}
	}
	if sub.ID == "" {
		sub.ID = s.m.nextID()
	}
	sub.CreatedAt = time.Now().UTC()
	s.m.subs[sub.ID] = sub
	return nil
}

func (s *memSubStore) Get(_ context.Context, id string) (*OrganizationSubscription, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	cp := *sub
	return &cp, nil
}

func (s *memSubStore) ListByOrganization(_ context.Context, orgID string) ([]OrganizationSubscription, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []OrganizationSubscription
	for _, sub := range s.m.subs {
		if sub.OrganizationID == orgID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *memSubStore) Cancel(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.subs[id]
	if !ok {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	sub.Active = false
	return nil
}

func (s *memSubStore) ActiveInWindow(_ context.Context, orgID, serviceID string, at time.Time) ([]Entitlement, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []Entitlement
	for _, sub := range s.m.subs {
		if sub.OrganizationID != orgID || sub.ServiceID != serviceID || !sub.Active {
			continue
		}
		if !sub.Covers(at) {
			continue
		}
		ent := Entitlement{SubscriptionID: sub.ID, TierID: sub.TierID}
		if tier, ok := s.m.tiers[sub.TierID]; ok {
			ent.TierName = tier.Name
			ent.Features = tier.Features
		}
		out = append(out, ent)
	}
	return out, nil
}

type memRevokedStore struct{ m *MemStore }

func (s *memRevokedStore) Insert(_ context.Context, tokenID, userID string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.revoked[tokenID]; ok {
		return false, nil
	}
	s.m.revoked[tokenID] = RevokedToken{TokenID: tokenID, UserID: userID, RevokedAt: time.Now().UTC()}
	return true, nil
}

func (s *memRevokedStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	_, ok := s.m.revoked[tokenID]
	return ok, nil
}

func (s *memRevokedStore) ListByUser(_ context.Context, userID string) ([]RevokedToken, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []RevokedToken
	for _, rec := range s.m.revoked {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

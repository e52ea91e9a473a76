package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 30 * time.Minute
)

// Authenticator ties the credential verifier, resolver, gate and token engine into
// the login, refresh and revocation flows.
type Authenticator struct {
	store    Store
	engine   *Engine
	resolver *Resolver
	gate     *Gate
	now      func() time.Time

	lockoutThreshold int
	lockoutDuration  time.Duration

	livePermissions   bool
	liveSubscriptions bool
}

// ServiceOption customises Authenticator construction.
type ServiceOption func(*Authenticator)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Authenticator) { s.now = now }
}

// WithLockoutPolicy overrides the consecutive-failure threshold and the
// lockout duration applied when it is reached.
func WithLockoutPolicy(threshold int, duration time.Duration) ServiceOption {
	return func(s *Authenticator) {
		s.lockoutThreshold = threshold
		s.lockoutDuration = duration
	}
}

// WithLivePermissionChecks makes Authorize re-resolve permissions from the
// store on every request instead of trusting the embedded claims.
func WithLivePermissionChecks() ServiceOption {
	return func(s *Authenticator) { s.livePermissions = true }
}

// WithLiveSubscriptionChecks makes Authorize re-run the subscription gate on
// every request instead of trusting the embedded feature claims.
func WithLiveSubscriptionChecks() ServiceOption {
	return func(s *Authenticator) { s.liveSubscriptions = true }
}

// NewAuthenticator builds the auth service around a store and token engine.
func NewAuthenticator(store Store, engine *Engine, opts ...ServiceOption) (*Authenticator, error) {
	if store == nil || engine == nil {
		return nil, fmt.Errorf("%w: store and engine are required", ErrInvalidInput)
	}
	s := &Authenticator{
		store:            store,
		engine:           engine,
		resolver:         NewResolver(store),
		gate:             NewGate(store),
		now:              time.Now,
		lockoutThreshold: defaultLockoutThreshold,
		lockoutDuration:  defaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Engine exposes the underlying token engine for revocation endpoints.
func (s *Authenticator) Engine() *Engine { return s.engine }

// RegisterInput is a new-account request.
type RegisterInput struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Password       string `json:"password"`
}

// Register creates a user after validating email shape and password policy.
func (s *Authenticator) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := normalizeEmail(in.Email)
	if in.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.store.Organizations().Get(ctx, in.OrganizationID); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		OrganizationID: in.OrganizationID,
		Email:          email,
		PasswordHash:   hash,
		Active:         true,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// Login authenticates the credentials against the named service and mints a
// token pair. Unknown email, wrong password and deactivated account all
// surface as ErrInvalidCredentials; the caller cannot tell them apart.
func (s *Authenticator) Login(ctx context.Context, email, password, serviceName string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: email and password are required", ErrInvalidCredentials)
	}
	svc, err := s.store.Services().GetByName(ctx, serviceName)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("login: %w", err)
	}
	if svc.Status != ServiceStatusActive {
		return TokenPair{}, nil, fmt.Errorf("%w: service %s is not active", ErrSubscriptionInactive, svc.Name)
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		// Burn a comparison so unknown emails cost the same as wrong passwords.
		VerifyPassword(dummyHash, password)
		return TokenPair{}, nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	now := s.now().UTC()
	if user.Locked(now) {
		return TokenPair{}, nil, fmt.Errorf("%w: until %s", ErrAccountLocked, user.LockedUntil.UTC().Format(time.RFC3339))
	}

	if !user.Active || !VerifyPassword(user.PasswordHash, password) {
		if err := s.recordFailure(ctx, user.ID, now); err != nil {
			return TokenPair{}, nil, err
		}
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	if err := s.store.Users().RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return TokenPair{}, nil, fmt.Errorf("login: %w", err)
	}

	pair, err := s.mint(ctx, user, svc.ID, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// recordFailure bumps the consecutive-failure counter and applies the lockout
// once the threshold is reached. The counter update returns the new value
// under a row lock, so two racing failures cannot both observe the same count.
func (s *Authenticator) recordFailure(ctx context.Context, userID string, now time.Time) error {
	attempts, err := s.store.Users().RecordLoginFailure(ctx, userID)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if attempts >= s.lockoutThreshold {
		if err := s.store.Users().Lock(ctx, userID, now.Add(s.lockoutDuration)); err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
	}
	return nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The presented
// token is consumed first; of any concurrent refreshes with the same token,
// exactly one succeeds and the rest fail with ErrRevoked. Permissions and
// features are always re-resolved, never copied from the old token.
func (s *Authenticator) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.engine.Verify(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	won, err := s.engine.consume(ctx, claims.ID, claims.Subject)
	if err != nil {
		return TokenPair{}, err
	}
	if !won {
		return TokenPair{}, fmt.Errorf("%w: refresh token already used", ErrRevoked)
	}

	user, err := s.store.Users().Get(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, fmt.Errorf("refresh: %w", err)
	}
	now := s.now().UTC()
	if !user.Active {
		return TokenPair{}, fmt.Errorf("%w: account deactivated", ErrInvalidCredentials)
	}
	if user.Locked(now) {
		return TokenPair{}, fmt.Errorf("%w: until %s", ErrAccountLocked, user.LockedUntil.UTC().Format(time.RFC3339))
	}
	return s.mint(ctx, user, claims.ServiceID, now)
}

// mint resolves current permissions and entitlement and issues a pair.
// Login fails here when the organization holds no active subscription; the
// claims cannot be computed without a tier.
func (s *Authenticator) mint(ctx context.Context, user *User, serviceID string, now time.Time) (TokenPair, error) {
	perms, err := s.resolver.Resolve(ctx, user.ID, serviceID)
	if err != nil {
		return TokenPair{}, err
	}
	ent, err := s.gate.Check(ctx, user.OrganizationID, serviceID, now)
	if err != nil {
		return TokenPair{}, err
	}
	return s.engine.Issue(ctx, TokenInput{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		ServiceID:      serviceID,
		Email:          user.Email,
		Permissions:    perms,
		Features:       ent.Features,
	})
}

// Logout revokes the presented access token. Logging out twice with the same
// token succeeds both times.
func (s *Authenticator) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.engine.Verify(ctx, accessToken, TokenTypeAccess)
	if err != nil {
		if IsDenial(err) {
			// An already dead token needs no revocation.
			return nil
		}
		return err
	}
	return s.engine.Revoke(ctx, claims.ID, claims.Subject)
}

// RevokeToken places an arbitrary token identifier on the revocation list.
// Used by the administrative revocation endpoint; idempotent.
func (s *Authenticator) RevokeToken(ctx context.Context, tokenID, userID string) error {
	return s.engine.Revoke(ctx, tokenID, userID)
}

// ChangePassword verifies the current secret before storing a new hash.
func (s *Authenticator) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !VerifyPassword(user.PasswordHash, current) {
		return fmt.Errorf("%w: current password does not match", ErrInvalidCredentials)
	}
	if err := ValidatePasswordStrength(next); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.Users().SetPasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// Authenticate verifies an access token and loads the principal for request
// middleware. Permission and feature claims follow the configured freshness
// policy, the same one Authorize applies.
func (s *Authenticator) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.engine.Verify(ctx, accessToken, TokenTypeAccess)
	if err != nil {
		return Principal{}, err
	}
	perms := claims.Permissions
	if s.livePermissions {
		if perms, err = s.resolver.Resolve(ctx, claims.Subject, claims.ServiceID); err != nil {
			return Principal{}, err
		}
	}
	features := claims.Features
	if s.liveSubscriptions {
		ent, err := s.gate.Check(ctx, claims.OrganizationID, claims.ServiceID, s.now().UTC())
		if err != nil {
			return Principal{}, err
		}
		features = ent.Features
	}
	permSet := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		permSet[p] = struct{}{}
	}
	return Principal{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		ServiceID:      claims.ServiceID,
		Email:          claims.Email,
		Permissions:    permSet,
		Features:       features,
		TokenID:        claims.ID,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t")
}

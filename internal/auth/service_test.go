package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixture seeds a store with one org, one service, a role with permissions,
// a tier, an active subscription and one user.
type fixture struct {
	store   *MemStore
	engine  *Engine
	svc     *Authenticator
	now     time.Time
	orgID   string
	svcID   string
	userID  string
	roleID  string
	tierID  string
	subID   string
	email   string
	pass    string
	svcName string
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:   NewMemStore(),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		email:   "jo@example.com",
		pass:    "Sup3r-secret",
		svcName: "reports",
	}
	clock := func() time.Time { return f.now }

	engine, err := NewEngine(f.store, testSecret, WithEngineClock(clock))
	require.NoError(t, err)
	f.engine = engine

	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	svc, err := NewAuthenticator(f.store, engine, opts...)
	require.NoError(t, err)
	f.svc = svc

	org := &Organization{Name: "Acme"}
	require.NoError(t, f.store.Organizations().Create(ctx, org))
	f.orgID = org.ID

	service := &Service{Name: f.svcName, Status: ServiceStatusActive}
	require.NoError(t, f.store.Services().Create(ctx, service))
	f.svcID = service.ID

	role := &Role{ServiceID: f.svcID, Name: "analyst", Permissions: []string{"reports:read", "reports:write"}}
	require.NoError(t, f.store.Roles().Create(ctx, role))
	f.roleID = role.ID

	tier := &SubscriptionTier{ServiceID: f.svcID, Name: "premium", Features: FeatureSet{
		"advanced_reporting": BoolFeature(true),
		"api_calls":          LimitFeature(10000),
	}}
	require.NoError(t, f.store.Tiers().Create(ctx, tier))
	f.tierID = tier.ID

	sub := &OrganizationSubscription{
		OrganizationID: f.orgID,
		ServiceID:      f.svcID,
		TierID:         f.tierID,
		StartDate:      f.now.AddDate(0, -1, 0),
		EndDate:        f.now.AddDate(0, 11, 0),
		Active:         true,
	}
	require.NoError(t, f.store.Subscriptions().Create(ctx, sub))
	f.subID = sub.ID

	hash, err := HashPassword(f.pass)
	require.NoError(t, err)
	user := &User{OrganizationID: f.orgID, Email: f.email, PasswordHash: hash, Active: true}
	require.NoError(t, f.store.Users().Create(ctx, user))
	f.userID = user.ID

	require.NoError(t, f.store.Roles().Assign(ctx, f.userID, f.roleID))
	return f
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, user, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)
	require.Equal(t, f.userID, user.ID)

	claims, err := f.engine.Verify(ctx, pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, f.userID, claims.Subject)
	require.Equal(t, f.orgID, claims.OrganizationID)
	require.Equal(t, f.svcID, claims.ServiceID)
	require.Equal(t, []string{"reports:read", "reports:write"}, claims.Permissions)
	require.True(t, claims.Features.Granted("advanced_reporting"))

	stored, err := f.store.Users().Get(ctx, f.userID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Zero(t, stored.FailedLoginAttempts)
}

func TestLoginUnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err1 := f.svc.Login(ctx, "nobody@example.com", f.pass, f.svcName)
	_, _, err2 := f.svc.Login(ctx, f.email, "wrong-password", f.svcName)
	require.ErrorIs(t, err1, ErrInvalidCredentials)
	require.ErrorIs(t, err2, ErrInvalidCredentials)
}

func TestLoginDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Users().SetActive(ctx, f.userID, false)
	require.NoError(t, err)
	_, _, err = f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := f.svc.Login(ctx, f.email, "wrong-password", f.svcName)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Correct credentials are refused while the lockout holds.
	_, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.ErrorIs(t, err, ErrAccountLocked)

	// The lockout expires on its own.
	f.now = f.now.Add(31 * time.Minute)
	_, _, err = f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)

	stored, err := f.store.Users().Get(ctx, f.userID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := f.svc.Login(ctx, f.email, "wrong-password", f.svcName)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)

	// Four more failures must not lock: the counter restarted at zero.
	for i := 0; i < 4; i++ {
		_, _, err := f.svc.Login(ctx, f.email, "wrong-password", f.svcName)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, _, err = f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)
}

func TestLoginWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Subscriptions().Cancel(ctx, f.subID))
	_, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.ErrorIs(t, err, ErrSubscriptionInactive)
}

func TestLoginInactiveService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Services().SetStatus(ctx, f.svcID, ServiceStatusInactive)
	require.NoError(t, err)
	_, _, err = f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.ErrorIs(t, err, ErrSubscriptionInactive)
}

func TestRefreshRotatesAndReResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)

	// Shrink the role's permission set between issue and refresh.
	_, err = f.store.Roles().SetPermissions(ctx, f.roleID, []string{"reports:read"})
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err := f.engine.Verify(ctx, next.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, []string{"reports:read"}, claims.Permissions)

	// The consumed refresh token is dead.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrRevoked)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins, revoked int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRevoked):
			revoked++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	require.Equal(t, 1, wins, "exactly one concurrent refresh may succeed")
	require.Equal(t, workers-1, revoked)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRefreshDeniedAfterDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)
	_, err = f.store.Users().SetActive(ctx, f.userID, false)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))
	_, err = f.engine.Verify(ctx, pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrRevoked)

	// Second logout with the now revoked token still succeeds.
	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{OrganizationID: f.orgID, Email: "not-an-email", Password: "Sup3r-secret"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Register(ctx, RegisterInput{OrganizationID: f.orgID, Email: "new@example.com", Password: "weak"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Register(ctx, RegisterInput{OrganizationID: f.orgID, Email: f.email, Password: "Sup3r-secret"})
	require.ErrorIs(t, err, ErrConflict)

	user, err := f.svc.Register(ctx, RegisterInput{OrganizationID: f.orgID, Email: "New@Example.com", Password: "Sup3r-secret"})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", user.Email)
	require.True(t, user.Active)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, f.userID, "wrong-current", "N3w-secret!")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, f.userID, f.pass, "N3w-secret!"))

	_, _, err = f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.svc.Login(ctx, f.email, "N3w-secret!", f.svcName)
	require.NoError(t, err)
}

func TestAuthenticateBuildsPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, _, err := f.svc.Login(ctx, f.email, f.pass, f.svcName)
	require.NoError(t, err)

	principal, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.userID, principal.UserID)
	require.True(t, principal.HasPermission("reports:read"))
	require.False(t, principal.HasPermission("admin:everything"))
	require.True(t, principal.Features.Granted("api_calls"))
}

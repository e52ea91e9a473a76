package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authghost.org/internal/auth"
	"authghost.org/internal/stream"
)

const (
	adminEmail    = "admin@acme.test"
	adminPassword = "Adm1n-secret!"
	testSecret    = "0123456789abcdef0123456789abcdef"
)

type testServer struct {
	t       *testing.T
	store   *auth.MemStore
	handler http.Handler

	orgID     string
	serviceID string
	tierID    string
	roleID    string
	adminID   string
}

// newTestServer wires the full handler chain over the in-memory store with
// a seeded tenant: the management service, an admin role holding every
// built-in capability, an active subscription and an admin account.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := auth.NewMemStore()

	org := &auth.Organization{Name: "Acme"}
	require.NoError(t, store.Organizations().Create(ctx, org))

	svc := &auth.Service{Name: "directory", Status: auth.ServiceStatusActive}
	require.NoError(t, store.Services().Create(ctx, svc))

	tier := &auth.SubscriptionTier{ServiceID: svc.ID, Name: "admin", Features: auth.FeatureSet{
		"sso": auth.BoolFeature(true),
	}}
	require.NoError(t, store.Tiers().Create(ctx, tier))

	now := time.Now().UTC()
	sub := &auth.OrganizationSubscription{
		OrganizationID: org.ID,
		ServiceID:      svc.ID,
		TierID:         tier.ID,
		StartDate:      now.Add(-time.Hour),
		EndDate:        now.Add(30 * 24 * time.Hour),
		Active:         true,
	}
	require.NoError(t, store.Subscriptions().Create(ctx, sub))

	role := &auth.Role{ServiceID: svc.ID, Name: "admin", Permissions: auth.BuiltinPermissions}
	require.NoError(t, store.Roles().Create(ctx, role))

	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	admin := &auth.User{OrganizationID: org.ID, Email: adminEmail, PasswordHash: hash, Active: true}
	require.NoError(t, store.Users().Create(ctx, admin))
	require.NoError(t, store.Roles().Assign(ctx, admin.ID, role.ID))

	engine, err := auth.NewEngine(store, []byte(testSecret))
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(store, engine)
	require.NoError(t, err)

	api := New(ReadyProbe{}, "test", authn, auth.NewDirectory(store), stream.New())
	return &testServer{
		t:         t,
		store:     store,
		handler:   api.Handler(),
		orgID:     org.ID,
		serviceID: svc.ID,
		tierID:    tier.ID,
		roleID:    role.ID,
		adminID:   admin.ID,
	}
}

func (ts *testServer) request(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) decode(rec *httptest.ResponseRecorder, dst any) {
	ts.t.Helper()
	require.NoError(ts.t, json.NewDecoder(rec.Body).Decode(dst))
}

func (ts *testServer) login(email, password string) auth.TokenPair {
	ts.t.Helper()
	rec := ts.request(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
		"service":  "directory",
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var pair auth.TokenPair
	ts.decode(rec, &pair)
	return pair
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	ts.decode(rec, &info)
	require.Equal(t, "authghost-api", info["name"])
}

func TestLoginIssuesUsableToken(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "bearer", pair.TokenType)

	rec := ts.request(http.MethodGet, "/v1/organizations", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Organizations []auth.Organization `json:"organizations"`
	}
	ts.decode(rec, &body)
	require.Len(t, body.Organizations, 1)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": "not-the-password",
		"service":  "directory",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	ts.decode(rec, &body)
	require.Equal(t, "invalid credentials", body["error"])
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/v1/organizations", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(http.MethodGet, "/v1/organizations", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForbiddenWithoutPermission(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(adminEmail, adminPassword)

	rec := ts.request(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"organization_id": ts.orgID,
		"email":           "plain@acme.test",
		"password":        "S0me-password!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	plain := ts.login("plain@acme.test", "S0me-password!")
	rec = ts.request(http.MethodGet, "/v1/organizations", plain.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The admin token keeps working.
	rec = ts.request(http.MethodGet, "/v1/organizations", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"organization_id": ts.orgID,
		"email":           "weak@acme.test",
		"password":        "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)

	rec := ts.request(http.MethodPost, "/v1/auth/logout", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(http.MethodGet, "/v1/organizations", pair.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRotation(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)

	rec := ts.request(http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fresh auth.TokenPair
	ts.decode(rec, &fresh)
	require.NotEqual(t, pair.AccessToken, fresh.AccessToken)

	// The consumed refresh token cannot be replayed.
	rec = ts.request(http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeCheck(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)

	check := func(token, permission string) authorizeResponse {
		rec := ts.request(http.MethodPost, "/v1/authz/check", "", map[string]string{
			"token":      token,
			"service_id": ts.serviceID,
			"permission": permission,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp authorizeResponse
		ts.decode(rec, &resp)
		return resp
	}

	resp := check(pair.AccessToken, auth.PermManageOrganizations)
	require.True(t, resp.Allowed)
	require.Empty(t, resp.Reason)

	resp = check(pair.AccessToken, "reports:export")
	require.False(t, resp.Allowed)
	require.Equal(t, "insufficient_permission", resp.Reason)

	resp = check("garbage", auth.PermManageOrganizations)
	require.False(t, resp.Allowed)
	require.Equal(t, "malformed_token", resp.Reason)
}

func TestAuthorizeFeatureGate(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)

	rec := ts.request(http.MethodPost, "/v1/authz/check", "", map[string]string{
		"token":      pair.AccessToken,
		"service_id": ts.serviceID,
		"permission": auth.PermManageOrganizations,
		"feature":    "sso",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authorizeResponse
	ts.decode(rec, &resp)
	require.True(t, resp.Allowed)

	rec = ts.request(http.MethodPost, "/v1/authz/check", "", map[string]string{
		"token":      pair.AccessToken,
		"service_id": ts.serviceID,
		"permission": auth.PermManageOrganizations,
		"feature":    "offline_mode",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ts.decode(rec, &resp)
	require.False(t, resp.Allowed)
	require.Equal(t, "subscription_inactive", resp.Reason)
}

func TestDirectoryManagementFlow(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)
	token := pair.AccessToken

	rec := ts.request(http.MethodPost, "/v1/organizations", token, map[string]string{"name": "Globex"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var org auth.Organization
	ts.decode(rec, &org)

	rec = ts.request(http.MethodPost, "/v1/services", token, map[string]string{"name": "reports"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var svc auth.Service
	ts.decode(rec, &svc)

	rec = ts.request(http.MethodPost, fmt.Sprintf("/v1/services/%s/roles", svc.ID), token, map[string]any{
		"name":        "analyst",
		"permissions": []string{"reports:read"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role auth.Role
	ts.decode(rec, &role)

	rec = ts.request(http.MethodPost, fmt.Sprintf("/v1/services/%s/tiers", svc.ID), token, map[string]any{
		"name":     "basic",
		"features": map[string]any{"max_users": 10},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tier auth.SubscriptionTier
	ts.decode(rec, &tier)

	now := time.Now().UTC()
	rec = ts.request(http.MethodPost, fmt.Sprintf("/v1/organizations/%s/subscriptions", org.ID), token, map[string]string{
		"service_id": svc.ID,
		"tier_id":    tier.ID,
		"start_date": now.Format(time.RFC3339),
		"end_date":   now.Add(24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub auth.OrganizationSubscription
	ts.decode(rec, &sub)

	rec = ts.request(http.MethodDelete, "/v1/subscriptions/"+sub.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(http.MethodPut, fmt.Sprintf("/v1/services/%s/status", svc.ID), token, map[string]string{
		"status": auth.ServiceStatusInactive,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUserAdministration(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)
	token := pair.AccessToken

	rec := ts.request(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"organization_id": ts.orgID,
		"email":           "worker@acme.test",
		"password":        "W0rker-secret!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var worker auth.User
	ts.decode(rec, &worker)

	rec = ts.request(http.MethodPost, fmt.Sprintf("/v1/users/%s/roles", worker.ID), token, map[string]string{
		"role_id": ts.roleID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.request(http.MethodGet, fmt.Sprintf("/v1/users/%s/roles", worker.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assignments struct {
		Assignments []auth.RoleAssignment `json:"assignments"`
	}
	ts.decode(rec, &assignments)
	require.Len(t, assignments.Assignments, 1)

	rec = ts.request(http.MethodPut, fmt.Sprintf("/v1/users/%s/status", worker.ID), token, map[string]bool{
		"active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Deactivated account can no longer log in.
	rec = ts.request(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "worker@acme.test",
		"password": "W0rker-secret!",
		"service":  "directory",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.login(adminEmail, adminPassword)

	rec := ts.request(http.MethodPost, "/v1/auth/password", pair.AccessToken, map[string]string{
		"current_password": adminPassword,
		"new_password":     "N3w-admin-secret!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.login(adminEmail, "N3w-admin-secret!")

	rec = ts.request(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
		"service":  "directory",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodDelete, "/v1/auth/login", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestUnknownRouteIs404(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

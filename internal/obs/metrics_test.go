package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/auth/login":                     "/v1/auth/login",
		"/v1/organizations/01ABC":            "/v1/organizations/:id",
		"/v1/organizations/01ABC/users":      "/v1/organizations/:id/users",
		"/v1/services/01ABC/roles":           "/v1/services/:id/roles",
		"/v1/roles/01ABC":                    "/v1/roles/:id",
		"/v1/subscriptions/01ABC":            "/v1/subscriptions/:id",
		"/v1/users/01ABC/tokens":             "/v1/users/:id/tokens",
		"/v1/users/01ABC/tokens?limit=10":    "/v1/users/:id/tokens",
		"/v1/organizations/01ABC/a/b":        "/v1/organizations/01ABC/a/b",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestResolveUnionsRolePermissions(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	reader := &Role{ServiceID: "svc-1", Name: "reader", Permissions: []string{"reports:read", "dashboards:read"}}
	writer := &Role{ServiceID: "svc-1", Name: "writer", Permissions: []string{"reports:read", "reports:write"}}
	other := &Role{ServiceID: "svc-2", Name: "admin", Permissions: []string{"admin:everything"}}
	for _, role := range []*Role{reader, writer, other} {
		if err := store.Roles().Create(ctx, role); err != nil {
			t.Fatalf("create role: %v", err)
		}
	}
	for _, roleID := range []string{reader.ID, writer.ID, other.ID} {
		if err := store.Roles().Assign(ctx, "user-1", roleID); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}

	resolver := NewResolver(store)
	perms, err := resolver.Resolve(ctx, "user-1", "svc-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"dashboards:read", "reports:read", "reports:write"}
	if !reflect.DeepEqual(perms, want) {
		t.Fatalf("got %v, want %v", perms, want)
	}
}

func TestResolveNoRolesIsEmptyNotError(t *testing.T) {
	resolver := NewResolver(NewMemStore())
	perms, err := resolver.Resolve(context.Background(), "user-1", "svc-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected empty permission set, got %v", perms)
	}
}

func TestResolveValidatesInput(t *testing.T) {
	resolver := NewResolver(NewMemStore())
	if _, err := resolver.Resolve(context.Background(), "", "svc-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

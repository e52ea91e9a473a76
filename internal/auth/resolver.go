package auth

import (
	"context"
	"fmt"
	"sort"
)

// Resolver computes effective permissions for a user within a service.
type Resolver struct {
	store Store
}

// NewResolver builds a permission resolver over the store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the union of the permission sets of every role the user
// holds in the service, deduplicated and sorted. A user with no roles in the
// service gets an empty slice; having no access is a state, not an error.
func (r *Resolver) Resolve(ctx context.Context, userID, serviceID string) ([]string, error) {
	if userID == "" || serviceID == "" {
		return nil, fmt.Errorf("%w: user id and service id are required", ErrInvalidInput)
	}
	perms, err := r.store.Roles().PermissionsForUser(ctx, userID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	return dedupeSorted(perms), nil
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"authghost.org/internal/audit"
	"authghost.org/internal/auth"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type createServiceRequest struct {
	Name string `json:"name"`
}

type serviceStatusRequest struct {
	Status string `json:"status"`
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type createTierRequest struct {
	Name     string          `json:"name"`
	Features auth.FeatureSet `json:"features"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type userStatusRequest struct {
	Active bool `json:"active"`
}

type subscribeRequest struct {
	ServiceID string `json:"service_id"`
	TierID    string `json:"tier_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// splitPath trims the prefix and returns the remaining non-empty segments.
func splitPath(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermManageOrganizations) {
			return
		}
		var req createOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.dir.CreateOrganization(r.Context(), req.Name)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "organization.created", zap.String("organization_id", org.ID))
		writeJSON(w, http.StatusCreated, org)
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermManageOrganizations) {
			return
		}
		orgs, err := a.dir.ListOrganizations(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleOrganizationScoped serves /v1/organizations/{id} and its
// /users and /subscriptions collections.
func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/organizations/")
	switch {
	case len(parts) == 1:
		a.handleOrganization(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "users":
		a.handleOrganizationUsers(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "subscriptions":
		a.handleOrganizationSubscriptions(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleOrganization(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermManageOrganizations) {
			return
		}
		org, err := a.dir.GetOrganization(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case http.MethodPatch:
		if !a.requirePermission(w, r, auth.PermManageOrganizations) {
			return
		}
		var req createOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.dir.RenameOrganization(r.Context(), id, req.Name)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "organization.renamed", zap.String("organization_id", id))
		writeJSON(w, http.StatusOK, org)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handleOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermManageUsers) {
			return
		}
		users, err := a.dir.ListUsers(r.Context(), orgID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) handleOrganizationSubscriptions(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermManageSubscriptions) {
			return
		}
		subs, err := a.dir.ListSubscriptions(r.Context(), orgID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermManageSubscriptions) {
			return
		}
		var req subscribeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		start, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "start_date must be RFC 3339")
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "end_date must be RFC 3339")
			return
		}
		sub, err := a.dir.Subscribe(r.Context(), orgID, req.ServiceID, req.TierID, start, end)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "subscription.created",
			zap.String("organization_id", orgID),
			zap.String("subscription_id", sub.ID))
		writeJSON(w, http.StatusCreated, sub)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermManageServices) {
			return
		}
		var req createServiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		svc, err := a.dir.CreateService(r.Context(), req.Name)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "service.created", zap.String("service_id", svc.ID))
		writeJSON(w, http.StatusCreated, svc)
	case http.MethodGet:
		svcs, err := a.dir.ListServices(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": svcs})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleServiceScoped serves /v1/services/{id}/status, /roles and /tiers.
func (a *API) handleServiceScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/services/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	switch parts[1] {
	case "status":
		a.handleServiceStatus(w, r, parts[0])
	case "roles":
		a.handleServiceRoles(w, r, parts[0])
	case "tiers":
		a.handleServiceTiers(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleServiceStatus(w http.ResponseWriter, r *http.Request, serviceID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requirePermission(w, r, auth.PermManageServices) {
		return
	}
	var req serviceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	svc, err := a.dir.SetServiceStatus(r.Context(), serviceID, req.Status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "service.status_changed",
		zap.String("service_id", serviceID),
		zap.String("status", req.Status))
	writeJSON(w, http.StatusOK, svc)
}

func (a *API) handleServiceRoles(w http.ResponseWriter, r *http.Request, serviceID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermManageRoles) {
			return
		}
		roles, err := a.dir.ListRoles(r.Context(), serviceID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermManageRoles) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.dir.CreateRole(r.Context(), serviceID, req.Name, req.Description, req.Permissions)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "role.created",
			zap.String("service_id", serviceID),
			zap.String("role_id", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleServiceTiers(w http.ResponseWriter, r *http.Request, serviceID string) {
	switch r.Method {
	case http.MethodGet:
		tiers, err := a.dir.ListTiers(r.Context(), serviceID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermManageSubscriptions) {
			return
		}
		var req createTierRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tier, err := a.dir.CreateTier(r.Context(), serviceID, req.Name, req.Features)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "tier.created",
			zap.String("service_id", serviceID),
			zap.String("tier_id", tier.ID))
		writeJSON(w, http.StatusCreated, tier)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleScoped serves /v1/roles/{id} and /v1/roles/{id}/permissions.
func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/roles/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.requirePermission(w, r, auth.PermManageRoles) {
			return
		}
		if err := a.dir.DeleteRole(r.Context(), parts[0]); err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "role.deleted", zap.String("role_id", parts[0]))
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.requirePermission(w, r, auth.PermManageRoles) {
			return
		}
		var req rolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.dir.SetRolePermissions(r.Context(), parts[0], req.Permissions)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "role.permissions_changed", zap.String("role_id", parts[0]))
		writeJSON(w, http.StatusOK, role)
	default:
		http.NotFound(w, r)
	}
}

// handleUserScoped serves /v1/users/{id}/roles, /status and /tokens.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/users/")
	switch {
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "roles":
		a.handleUserRole(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "status":
		a.handleUserStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "tokens":
		a.handleUserTokens(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, auth.PermManageUsers) {
			return
		}
		assignments, err := a.dir.ListAssignments(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
	case http.MethodPost:
		if !a.requirePermission(w, r, auth.PermManageUsers) {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.dir.AssignRole(r.Context(), userID, req.RoleID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		audit.Event(r.Context(), "role.assigned",
			zap.String("user_id", userID),
			zap.String("role_id", req.RoleID))
		writeJSON(w, http.StatusCreated, map[string]any{"status": "assigned"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, auth.PermManageUsers) {
		return
	}
	if err := a.dir.UnassignRole(r.Context(), userID, roleID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "role.unassigned",
		zap.String("user_id", userID),
		zap.String("role_id", roleID))
	writeJSON(w, http.StatusOK, map[string]any{"status": "unassigned"})
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requirePermission(w, r, auth.PermManageUsers) {
		return
	}
	var req userStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var (
		user *auth.User
		err  error
	)
	if req.Active {
		user, err = a.dir.ReactivateUser(r.Context(), userID)
	} else {
		user, err = a.dir.DeactivateUser(r.Context(), userID)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "user.status_changed",
		zap.String("user_id", userID),
		zap.Bool("active", req.Active))
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUserTokens(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, auth.PermRevokeTokens) {
		return
	}
	tokens, err := a.dir.ListRevokedTokens(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked_tokens": tokens})
}

// handleSubscriptionScoped serves /v1/subscriptions/{id}.
func (a *API) handleSubscriptionScoped(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/subscriptions/")
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, auth.PermManageSubscriptions) {
		return
	}
	if err := a.dir.CancelSubscription(r.Context(), parts[0]); err != nil {
		handleDomainError(w, r, err)
		return
	}
	audit.Event(r.Context(), "subscription.cancelled", zap.String("subscription_id", parts[0]))
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled"})
}

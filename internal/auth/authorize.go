package auth

import (
	"context"
	"fmt"
)

// AccessRequest asks whether a bearer token may perform an action against a
// service. Feature is optional; when empty only the permission is checked.
type AccessRequest struct {
	Token      string `json:"token"`
	ServiceID  string `json:"service_id"`
	Permission string `json:"permission"`
	Feature    string `json:"feature,omitempty"`
}

// Decision is the outcome of an authorization check. A denial is a value,
// not an error: Reason carries the typed sentinel explaining it. Errors are
// reserved for infrastructure faults where no decision could be made.
type Decision struct {
	Allowed bool
	Reason  error
	Claims  *Claims
}

func deny(reason error) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize runs the full check chain in a fixed order: token verification,
// service match, permission, then feature entitlement. The first failing
// check decides; later checks never run, so a caller cannot probe
// permissions with a token minted for another service.
//
// Permission and feature claims embedded in the token are trusted by default
// for its lifetime. With live checks enabled they are re-resolved from the
// store instead.
func (s *Authenticator) Authorize(ctx context.Context, req AccessRequest) (Decision, error) {
	if req.ServiceID == "" || req.Permission == "" {
		return Decision{}, fmt.Errorf("%w: service id and permission are required", ErrInvalidInput)
	}

	claims, err := s.engine.Verify(ctx, req.Token, TokenTypeAccess)
	if err != nil {
		if IsDenial(err) {
			return deny(err), nil
		}
		return Decision{}, err
	}

	if claims.ServiceID != req.ServiceID {
		return deny(fmt.Errorf("%w: token is scoped to service %s", ErrServiceMismatch, claims.ServiceID)), nil
	}

	perms := claims.Permissions
	if s.livePermissions {
		if perms, err = s.resolver.Resolve(ctx, claims.Subject, claims.ServiceID); err != nil {
			return Decision{}, err
		}
	}
	if !containsString(perms, req.Permission) {
		return deny(fmt.Errorf("%w: %s", ErrInsufficientPermission, req.Permission)), nil
	}

	features := claims.Features
	if s.liveSubscriptions {
		ent, err := s.gate.Check(ctx, claims.OrganizationID, claims.ServiceID, s.now().UTC())
		switch {
		case err == nil:
			features = ent.Features
		case IsDenial(err):
			return deny(err), nil
		default:
			// Includes integrity faults: the gate could not decide, so
			// neither can we.
			return Decision{}, err
		}
	}
	if req.Feature != "" && !features.Granted(req.Feature) {
		return deny(fmt.Errorf("%w: feature %s not granted", ErrSubscriptionInactive, req.Feature)), nil
	}

	return Decision{Allowed: true, Claims: claims}, nil
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

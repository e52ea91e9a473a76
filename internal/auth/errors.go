package auth

import "errors"

// Sentinel errors for the authentication and authorization domain. Callers
// classify failures with errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrConflict indicates a uniqueness or state conflict on write.
	ErrConflict = errors.New("auth: conflict")
	// ErrInvalidInput indicates the request failed validation.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers unknown principals and wrong secrets;
	// the two are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked indicates the account is under a temporary lockout.
	ErrAccountLocked = errors.New("auth: account locked")

	// ErrMalformed indicates the token could not be parsed or is missing
	// required claims.
	ErrMalformed = errors.New("auth: malformed token")
	// ErrInvalidSignature indicates the token signature did not verify.
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	// ErrExpired indicates the token is past its expiry instant.
	ErrExpired = errors.New("auth: token expired")
	// ErrRevoked indicates the token identifier is on the revocation list.
	ErrRevoked = errors.New("auth: token revoked")

	// ErrServiceMismatch indicates the token was minted for a different service.
	ErrServiceMismatch = errors.New("auth: token service mismatch")
	// ErrInsufficientPermission indicates the principal lacks the required capability.
	ErrInsufficientPermission = errors.New("auth: insufficient permission")
	// ErrSubscriptionInactive indicates the organization has no active
	// subscription covering the service, or the required feature is not granted.
	ErrSubscriptionInactive = errors.New("auth: subscription inactive")

	// ErrDataIntegrity indicates stored state violates an invariant the code
	// relies on, such as overlapping active subscriptions. Always a server fault.
	ErrDataIntegrity = errors.New("auth: data integrity fault")
)

// IsDenial reports whether err is a client-attributable denial rather than an
// infrastructure failure. The authorization facade folds these into Decision
// values instead of returning them as errors.
func IsDenial(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrAccountLocked,
		ErrMalformed,
		ErrInvalidSignature,
		ErrExpired,
		ErrRevoked,
		ErrServiceMismatch,
		ErrInsufficientPermission,
		ErrSubscriptionInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim. An access token is never
// accepted where a refresh token is expected and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	defaultIssuer     = "authghost"
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	minSecretLen      = 32
)

// Claims is the JWT payload minted by the engine. Permissions and features
// are embedded at issue time; whether they are trusted or re-resolved at
// authorization time is the facade's policy, not the engine's.
type Claims struct {
	OrganizationID string     `json:"org"`
	ServiceID      string     `json:"svc"`
	Email          string     `json:"email,omitempty"`
	TokenType      string     `json:"token_type"`
	Permissions    []string   `json:"permissions,omitempty"`
	Features       FeatureSet `json:"features,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful issue or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenInput is everything the engine needs to mint a pair.
type TokenInput struct {
	UserID         string
	OrganizationID string
	ServiceID      string
	Email          string
	Permissions    []string
	Features       FeatureSet
}

// Engine signs, verifies and revokes HS256 JWTs. All tokens in a deployment
// share one symmetric secret; each token carries a random uuid identifier
// that the persisted revocation list is keyed by.
type Engine struct {
	store      Store
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// EngineOption customises engine construction.
type EngineOption func(*Engine)

// WithIssuer overrides the iss claim written into and required from tokens.
func WithIssuer(issuer string) EngineOption {
	return func(e *Engine) { e.issuer = issuer }
}

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.accessTTL = ttl }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.refreshTTL = ttl }
}

// WithEngineClock substitutes the time source, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a token engine. The secret must be at least 32 bytes;
// a short secret is a deployment mistake, not a recoverable condition.
func NewEngine(store Store, secret []byte, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes", ErrInvalidInput, minSecretLen)
	}
	e := &Engine{
		store:      store,
		secret:     secret,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Issue mints an access/refresh pair for the subject. The two tokens carry
// distinct identifiers so they can be revoked independently.
func (e *Engine) Issue(ctx context.Context, in TokenInput) (TokenPair, error) {
	if in.UserID == "" || in.OrganizationID == "" || in.ServiceID == "" {
		return TokenPair{}, fmt.Errorf("%w: user, organization and service are required", ErrInvalidInput)
	}
	now := e.now().UTC()
	accessExp := now.Add(e.accessTTL)
	refreshExp := now.Add(e.refreshTTL)

	access, err := e.sign(in, TokenTypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.sign(in, TokenTypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) sign(in TokenInput, tokenType string, now, expires time.Time) (string, error) {
	perms := append([]string(nil), in.Permissions...)
	sort.Strings(perms)
	claims := Claims{
		OrganizationID: in.OrganizationID,
		ServiceID:      in.ServiceID,
		Email:          in.Email,
		TokenType:      tokenType,
		Permissions:    perms,
		Features:       in.Features,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   in.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Verify parses and validates a token of the expected type. Checks run in a
// fixed order and the first failure wins: signature and structure, then
// expiry, then the revocation list. An expired token is reported as expired
// even if it is also revoked.
func (e *Engine) Verify(ctx context.Context, raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, e.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(e.issuer),
		jwt.WithTimeFunc(e.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrMalformed, tokenType, claims.TokenType)
	}
	if claims.Subject == "" || claims.ID == "" || claims.OrganizationID == "" || claims.ServiceID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrMalformed)
	}
	revoked, err := e.store.RevokedTokens().IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token %s", ErrRevoked, claims.ID)
	}
	return claims, nil
}

// Revoke places the token identifier on the revocation list. Revoking an
// already-revoked token is a no-op success.
func (e *Engine) Revoke(ctx context.Context, tokenID, userID string) error {
	if tokenID == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidInput)
	}
	if _, err := e.store.RevokedTokens().Insert(ctx, tokenID, userID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// consume atomically revokes the token identifier and reports whether this
// caller won the race. Single-use refresh semantics hang off this: of any
// number of concurrent refreshes with the same token, exactly one sees true.
func (e *Engine) consume(ctx context.Context, tokenID, userID string) (bool, error) {
	inserted, err := e.store.RevokedTokens().Insert(ctx, tokenID, userID)
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return inserted, nil
}

func (e *Engine) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return e.secret, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

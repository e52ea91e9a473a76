// Package audit emits structured security events: logins, failures,
// lockouts, token refreshes and revocations, directory changes. Events are
// written through the shared logger so they end up in the same stream the
// platform already collects.
package audit

import (
	"context"

	"go.uber.org/zap"

	"authghost.org/internal/auth"
	"authghost.org/internal/obs"
)

type requestIDKey struct{}

// WithRequestID stamps the request identifier into the context so every
// audit event from the request carries it.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(requestIDKey{}).(string)
	return v, ok && v != ""
}

var sink = func() *zap.Logger { return obs.Logger() }

// SetLogger replaces the audit sink, for tests.
func SetLogger(l *zap.Logger) {
	sink = func() *zap.Logger { return l }
}

// Event records one security event. The actor is taken from the context
// principal when present; anonymous events (failed logins) pass actor
// details in the fields instead.
func Event(ctx context.Context, event string, fields ...zap.Field) {
	out := make([]zap.Field, 0, len(fields)+3)
	out = append(out, zap.String("event", event))
	if id, ok := RequestIDFromContext(ctx); ok {
		out = append(out, zap.String("request_id", id))
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		out = append(out, zap.String("actor_id", principal.UserID))
	}
	out = append(out, fields...)
	sink().Info("audit", out...)
}

package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type contextKey string

const (
	ctxCredentials      contextKey = "credentials"
	ctxIdempotencyClaim contextKey = "idempotency_claim"
)

// CredentialsFromContext returns the bearer capability attached by Auth.
func CredentialsFromContext(ctx context.Context) auth.Credentials {
	if ctx == nil {
		return auth.Credentials{}
	}
	if v, ok := ctx.Value(ctxCredentials).(auth.Credentials); ok {
		return v
	}
	return auth.Credentials{}
}

// CustomerIDFromContext returns the authenticated customer, if any.
func CustomerIDFromContext(ctx context.Context) string {
	return CredentialsFromContext(ctx).CustomerID
}

// WithCredentials injects the caller's credentials into the context.
func WithCredentials(ctx context.Context, creds auth.Credentials) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCredentials, creds)
}

package auth

import "context"

type identityKey struct{}

// Identity is the authenticated caller. It is used for logging and rate-limit
// keys only; it never scopes data access.
type Identity struct {
	Subject  string
	TenantID string
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity set by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// SubjectFromContext returns the caller subject or "" when unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}

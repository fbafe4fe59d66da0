package httpx

import "context"

type ctxKey string

const (
	CtxKeyAccountID ctxKey = "account_id"
	CtxKeySessionID ctxKey = "session_id"
	CtxKeyRole      ctxKey = "role"
	CtxKeyToken     ctxKey = "token" // raw bearer token, needed by logout
)

// AccountIDFromContext returns the authenticated account id, or "" when the
// request did not pass through AuthnMiddleware.
func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyAccountID).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext returns the session id bound to the access token.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySessionID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the role claim of the authenticated account.
func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRole).(string); ok {
		return v
	}
	return ""
}

// TokenFromContext returns the raw bearer token of the request.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyToken).(string); ok {
		return v
	}
	return ""
}

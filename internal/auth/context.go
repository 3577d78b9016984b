package auth

import "context"

type contextKey string

const authContextKey contextKey = "concierge_auth"

// AuthInfo identifies the transport instance that sent a request.
type AuthInfo struct {
	KeyID      string
	InstanceID string
	Name       string
	RPMLimit   *int
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}

package auth

import (
	"context"

	"github.com/jmckenna/carecircle/internal/model"
)

type contextKey struct{}

// AuthContext carries the authenticated caller through a request.
type AuthContext struct {
	UserID    int64
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// Principal returns the caller identity used for authorization checks.
func Principal(ctx context.Context) model.Principal {
	return model.Principal{UserID: UserID(ctx)}
}

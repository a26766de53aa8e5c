package auth

import "context"

type contextKey struct{}

// AuthContext carries the authenticated subject through a request.
type AuthContext struct {
	SubjectID   string
	SubjectType string
	Email       string
	IsStaff     bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok || ac.SubjectType != SubjectUser {
		return ""
	}
	return ac.SubjectID
}

func IsStaff(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsStaff
}

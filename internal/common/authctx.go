package common

import (
	"context"
	"strings"
)

type userIDKey struct{}

// WithUserID stores the authenticated user identifier on ctx. Blank ids are ignored.
func WithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the authenticated user identifier, if any. Cart ownership
// and voucher usage checks key off this value.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

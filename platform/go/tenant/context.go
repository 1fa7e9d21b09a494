package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Info captures the resolved tenant metadata for a request. It is attached to
// the context by the resolver middleware and is read-only downstream.
type Info struct {
	ID       uuid.UUID
	Slug     string
	Name     string
	DBName   string
	IsActive bool
}

type ctxKey string

const infoKey ctxKey = "QUEUEX_TENANT_INFO"

// WithInfo returns a derived context carrying the tenant Info.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant Info and a boolean indicating presence.
func FromContext(ctx context.Context) (Info, bool) {
	v := ctx.Value(infoKey)
	if v == nil {
		return Info{}, false
	}

	info, ok := v.(Info)
	return info, ok
}

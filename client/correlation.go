package client

import (
	"context"
	"strings"

	"pkt.systems/hulybridge/internal/ids"
)

// MaxOperationIDLength bounds caller-supplied operation identifiers.
const MaxOperationIDLength = 128

type operationContextKey struct{}

// WithOperationID annotates ctx with an identifier attached to every log
// entry the client emits while serving calls made with that context.
// Empty, overlong or non-printable identifiers are ignored.
func WithOperationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxOperationIDLength {
		return ctx
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return ctx
		}
	}
	return context.WithValue(ctx, operationContextKey{}, id)
}

// OperationIDFromContext returns the identifier carried by ctx, if any.
func OperationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(operationContextKey{}).(string)
	return id
}

// NewOperationID creates a fresh identifier suitable for WithOperationID.
func NewOperationID() string {
	return ids.NewOperationID()
}

// Package auth identifies the operator behind an admin request.
package auth

import (
	"context"
	"slices"
	"time"
)

// Operator is the caller of an admin endpoint, taken from a verified access
// token or injected by the local bypass.
type Operator struct {
	ID        string
	Scopes    []string
	ExpiresAt time.Time
	Local     bool
}

// HasScope reports whether the operator was granted scope. An empty scope
// is always granted.
func (o *Operator) HasScope(scope string) bool {
	return scope == "" || slices.Contains(o.Scopes, scope)
}

type operatorKey struct{}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

func OperatorFrom(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(*Operator)
	return op, ok && op != nil
}

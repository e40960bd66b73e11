package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	callerKey contextKey = "caller"
)

// ErrNoCaller is returned when a request context carries no caller.
var ErrNoCaller = errors.New("no caller in context")

// WithCaller attaches a Caller to the context. Only transport layers use
// this; engine calls take the Caller as an argument.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom retrieves the Caller from the context.
func CallerFrom(ctx context.Context) (Caller, error) {
	c, ok := ctx.Value(callerKey).(Caller)
	if !ok {
		return Caller{}, ErrNoCaller
	}
	return c, nil
}

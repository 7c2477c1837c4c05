package context

import (
	stdctx "context"
	"strings"
)

type requestIDKey struct{}
type userIDKey struct{}
type eventIDKey struct{}

func WithRequestID(ctx stdctx.Context, requestID string) stdctx.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithUserID tags the context with the account owner being served.
func WithUserID(ctx stdctx.Context, userID string) stdctx.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey{}).(string)
	return value
}

// WithEventID tags the context with the inbound platform event being handled.
func WithEventID(ctx stdctx.Context, eventID string) stdctx.Context {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, eventIDKey{}, eventID)
}

func EventIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(eventIDKey{}).(string)
	return value
}

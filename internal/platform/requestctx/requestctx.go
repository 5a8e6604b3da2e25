// Package requestctx carries per-request identity and provenance values.
package requestctx

import "context"

// userIDContextKey is the context key for authenticated user identity.
type userIDContextKey struct{}

// actorKindContextKey is the context key for the kind of acting principal.
type actorKindContextKey struct{}

// sourceContextKey is the context key for the originating surface.
type sourceContextKey struct{}

// correlationIDContextKey is the context key for request correlation.
type correlationIDContextKey struct{}

// WithUserID stores a user identifier in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the user identifier stored in context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDContextKey{}).(string)
	return value
}

// WithActorKind stores the acting principal kind (user, system, job) in context.
func WithActorKind(ctx context.Context, kind string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKindContextKey{}, kind)
}

// ActorKindFromContext returns the acting principal kind stored in context.
func ActorKindFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(actorKindContextKey{}).(string)
	return value
}

// WithSource stores the originating surface (api, streamlit, backfill) in context.
func WithSource(ctx context.Context, source string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sourceContextKey{}, source)
}

// SourceFromContext returns the originating surface stored in context.
func SourceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(sourceContextKey{}).(string)
	return value
}

// WithCorrelationID stores a correlation identifier in context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDContextKey{}, correlationID)
}

// CorrelationIDFromContext returns the correlation identifier stored in context.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(correlationIDContextKey{}).(string)
	return value
}

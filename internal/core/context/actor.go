// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// ActorContext identifies who performs an operation and for which store.
// Authentication happens upstream; the gateway forwards the resolved actor.
type ActorContext struct {
	ActorID string
	StoreID string
}

type actorContextKey struct{}

// WithActor adds ActorContext to context.
func WithActor(ctx context.Context, actor *ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns ActorContext from context.
func GetActor(ctx context.Context) *ActorContext {
	if v, ok := ctx.Value(actorContextKey{}).(*ActorContext); ok {
		return v
	}
	return nil
}

// GetActorID returns actor ID from context or empty string.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.ActorID
	}
	return ""
}

// ActorOr returns the actor from context, falling back to def.
func ActorOr(ctx context.Context, def string) string {
	if a := GetActorID(ctx); a != "" {
		return a
	}
	return def
}

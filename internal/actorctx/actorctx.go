package actorctx

import "context"

type ctxKey string

const keyActor ctxKey = "actor"

// Actor is the authenticated identity threaded through store calls instead
// of any ambient "current user" state.
type Actor struct {
	UserID int64
	Email  string
	Admin  bool
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, keyActor, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(keyActor).(Actor)

	return a, ok && a.UserID > 0
}

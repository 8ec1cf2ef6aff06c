package http

import (
	"context"
	"net/http"

	"github.com/secmon-lab/ringi/pkg/domain/types"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
)

// ActorHeader carries the acting actor's ID. It is set by the
// authenticating proxy in front of the server.
const ActorHeader = "X-Ringi-Actor"

type actorKey struct{}

func contextWithActor(ctx context.Context, actor types.ActorID) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFromContext returns the actor set by actorMiddleware
func actorFromContext(ctx context.Context) types.ActorID {
	actor, _ := ctx.Value(actorKey{}).(types.ActorID)
	return actor
}

// actorMiddleware rejects requests without an actor and stores the actor and
// a logger bound to it in the request context
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := types.ActorID(r.Header.Get(ActorHeader))
		if actor == "" {
			http.Error(w, "Actor is required", http.StatusUnauthorized)
			return
		}

		ctx := contextWithActor(r.Context(), actor)
		ctx = logging.With(ctx, logging.From(ctx).With("actor_id", actor))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

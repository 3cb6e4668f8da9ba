package httpapi

import (
	"context"

	"github.com/campushub/activity-registration-api/internal/domain"
)

type actorKey struct{}

func WithActor(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func ActorFromContext(ctx context.Context) (domain.UserID, bool) {
	v, ok := ctx.Value(actorKey{}).(domain.UserID)
	return v, ok && v != ""
}

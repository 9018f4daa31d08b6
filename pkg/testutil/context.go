package testutil

import (
	"context"
	"io"
	"log/slog"

	"liveness/pkg/requestcontext"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// UserContext returns a context carrying the identity the auth middleware
// would attach to an authenticated request.
func UserContext(userID, token string) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	return requestcontext.WithUserToken(ctx, token)
}

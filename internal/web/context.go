package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
)

// WithRequester records who started a run so it is stored with the run history.
func WithRequester(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequester(ctx, core.Requester{
		Source:    "http",
		IPAddress: r.RemoteAddr, // already rewritten by TrustedRealIP
		UserAgent: r.UserAgent(),
	})
}

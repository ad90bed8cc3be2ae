package core

import "context"

type contextKey string

const ctxKeyRequester contextKey = "requester"

// Requester identifies who started a run. It is stored with the run record.
type Requester struct {
	Source    string `json:"source"` // "cli" or "http"
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ContextWithRequester attaches the requester to ctx.
func ContextWithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, r)
}

// RequesterFromContext returns the requester stored in ctx, if any.
func RequesterFromContext(ctx context.Context) Requester {
	if r, ok := ctx.Value(ctxKeyRequester).(Requester); ok {
		return r
	}
	return Requester{}
}

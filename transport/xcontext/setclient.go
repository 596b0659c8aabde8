// Package xcontext threads an *http.Client through a request-scoped
// context.Context, the way github.com/Comcast/webpa-common/xhttp does. The
// HTTP fan-out Transport Driver (transport/httpfanout) uses this to let
// callers — production code and tests alike — swap in a custom client
// (timeouts, a mock RoundTripper) without changing the driver's signature.
package xcontext

import (
	"context"
	"net/http"
)

type clientKey struct{}

// SetClient returns a RequestFunc-shaped middleware (ctx, *http.Request) ->
// context.Context that stashes client into the returned context. A nil
// client stashes http.DefaultClient instead, matching the teacher's
// documented default behavior.
func SetClient(client *http.Client) func(context.Context, *http.Request) context.Context {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context, _ *http.Request) context.Context {
		return context.WithValue(ctx, clientKey{}, client)
	}
}

// GetClient returns the *http.Client stashed in ctx by SetClient, or
// http.DefaultClient if none was set.
func GetClient(ctx context.Context) *http.Client {
	if client, ok := ctx.Value(clientKey{}).(*http.Client); ok {
		return client
	}
	return http.DefaultClient
}

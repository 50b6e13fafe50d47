package middleware

import (
	"context"
	"net/http"
	"sync"
)

// ResponseHook runs once after the handler chain returns, with the status
// code that was sent.
type ResponseHook func(status int)

type hookRegistry struct {
	mu    sync.Mutex
	hooks []ResponseHook
}

type hookRegistryKey struct{}

// ResponseHooks installs a hook registry for the request and runs every
// registered hook after next has produced the response.
func ResponseHooks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg := &hookRegistry{}
		rw := wrapResponseWriter(w)

		ctx := context.WithValue(r.Context(), hookRegistryKey{}, reg)
		next.ServeHTTP(rw, r.WithContext(ctx))

		reg.mu.Lock()
		hooks := reg.hooks
		reg.hooks = nil
		reg.mu.Unlock()

		for _, h := range hooks {
			h(rw.status)
		}
	})
}

// OnResponse registers fn on the request's hook registry. It reports false
// when no ResponseHooks middleware is installed upstream.
func OnResponse(ctx context.Context, fn ResponseHook) bool {
	reg, ok := ctx.Value(hookRegistryKey{}).(*hookRegistry)
	if !ok {
		return false
	}
	reg.mu.Lock()
	reg.hooks = append(reg.hooks, fn)
	reg.mu.Unlock()
	return true
}

func hasResponseHooks(ctx context.Context) bool {
	_, ok := ctx.Value(hookRegistryKey{}).(*hookRegistry)
	return ok
}

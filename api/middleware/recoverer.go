package middleware

import (
	"fmt"
	"net/http"

	"github.com/sarqyt/sarqyt-backend/api/responses"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
	"github.com/sarqyt/sarqyt-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope instead of a dropped
// connection. Provider callbacks in particular retry on connection errors,
// so even a panicking handler must answer.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					ctx := r.Context()
					if logg != nil {
						ctx = logg.WithFields(ctx, map[string]any{
							"panic": rec,
							"path":  r.URL.Path,
						})
						logg.Error(ctx, "request.panic", err)
					}
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

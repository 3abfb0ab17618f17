package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/utils"
)

// Recoverer turns a handler panic into a 500 with the standard error envelope.
// http.ErrAbortHandler is re-raised so the server aborts the connection.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				observability.WithContext(r.Context(), logger).Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				_ = utils.WriteInternalServerError(w, utils.MsgInternalError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

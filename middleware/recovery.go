// middleware/recovery.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"deadstock/config"
	"deadstock/utils"
)

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				config.Error("PANIC recovered on %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				utils.RespondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

package errors

import (
	"net/http"
)

// RecoveryMiddleware turns panics in later handlers into a 500 problem
// response instead of a dropped connection.
func RecoveryMiddleware(handler *ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					handler.HandlePanic(w, r, rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

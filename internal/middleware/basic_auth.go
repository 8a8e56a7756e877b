package middleware

import (
	"crypto/subtle"
	"net/http"

	"storefront-adyen/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuth guards the endpoint Adyen posts notifications to. The password
// is compared against a bcrypt hash. An empty user disables the check.
func BasicAuth(user, passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if user == "" {
			logger.L().Warn("notification basic auth disabled")
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passHash), []byte(p)) != nil {
				logger.FromCtx(r.Context()).Warn("notification auth failed",
					zap.String("ip", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="adyen"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

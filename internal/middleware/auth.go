package middleware

import (
	"net/http"

	"storefront-adyen/internal/auth"
	"storefront-adyen/internal/logger"
	"storefront-adyen/internal/utils"

	"go.uber.org/zap"
)

// RequireRole rejects requests without a valid token carrying role.
func RequireRole(secret, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ParseToken(tokenStr, secret)
			if err != nil {
				logger.FromCtx(r.Context()).Warn("rejected token", zap.Error(err))
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if claims.Role != role {
				logger.FromCtx(r.Context()).Warn("forbidden",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
					zap.String("path", r.URL.Path),
				)
				utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := utils.SetUserContext(r.Context(), claims.UserID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/domain"
)

type ctxKey string

const claimsKey ctxKey = "auth_claims"

// ClaimsFromContext достает проверенные claims, сложенные middleware.
// Второй результат false означает, что запрос пришел мимо защищенного периметра.
func ClaimsFromContext(ctx context.Context) (*domain.CustomClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*domain.CustomClaims)
	return claims, ok
}

// NewMiddleware закрывает группу роутов проверкой RS256 токена.
// Claims целиком прокидываются в контекст, решения о правах принимают хендлеры.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/planhub/checklist-api/pkg/respond"
)

type ctxKey int

const userIDKey ctxKey = iota

// RequireUser проверяет заголовок X-User-ID, который проставляет вышестоящий
// слой аутентификации. Запрос без заголовка отклоняется сразу.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			respond.Error(w, r, http.StatusUnauthorized, respond.KindUnauthenticated, "missing X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID возвращает идентификатор пользователя, положенный RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Recover переводит панику обработчика в структурированный 500 вместо
// оборванного соединения.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					respond.Error(w, r, http.StatusInternalServerError, respond.KindInternal, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

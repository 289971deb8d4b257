// session.go — проверка сессии dashboard (cookie session).
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/sinnlosername/cpsu/internal/api/errors"
	"github.com/sinnlosername/cpsu/internal/auth"
	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/service"
)

// UserLoader — загрузка пользователя сессии (service.UserService).
type UserLoader interface {
	UserByID(ctx context.Context, userID int64) (*model.User, error)
}

// SessionAuth — middleware для маршрутов dashboard.
type SessionAuth struct {
	sessions *auth.SessionStore
	users    UserLoader
	logger   *slog.Logger
}

// NewSessionAuth создаёт middleware проверки сессии.
func NewSessionAuth(sessions *auth.SessionStore, users UserLoader, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		sessions: sessions,
		users:    users,
		logger:   logger.With(slog.String("component", "session_middleware")),
	}
}

// Middleware возвращает HTTP middleware: без сессии — 401,
// пользователь сессии удалён — 401, иначе пользователь кладётся в контекст.
func (sa *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := sa.sessions.UserID(r)
			if !ok {
				apierrors.Unauthorized(w, apierrors.MsgNotLoggedIn)
				return
			}

			user, err := sa.users.UserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, service.ErrNotFound) {
					apierrors.Unauthorized(w, apierrors.MsgInvalidSess)
					return
				}
				sa.logger.Error("Ошибка загрузки пользователя сессии",
					slog.Int64("user_id", userID),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext возвращает пользователя сессии или nil.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(contextKeyUser).(*model.User)
	return user
}

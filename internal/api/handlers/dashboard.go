// dashboard.go — JSON API dashboard: вход, статистика, список файлов, профиль.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sinnlosername/cpsu/internal/api/errors"
	"github.com/sinnlosername/cpsu/internal/api/middleware"
	"github.com/sinnlosername/cpsu/internal/auth"
	"github.com/sinnlosername/cpsu/internal/service"
)

// maxJSONBody — предельный размер JSON-тела запросов dashboard.
const maxJSONBody = 64 * 1024

// DashboardHandler — обработчик /x/user/*.
type DashboardHandler struct {
	users    UserProvider
	sessions *auth.SessionStore
	logger   *slog.Logger
}

// NewDashboardHandler создаёт обработчик dashboard.
func NewDashboardHandler(users UserProvider, sessions *auth.SessionStore, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		users:    users,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "dashboard_handler")),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordRequest struct {
	NewPassword string `json:"newPassword"`
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
}

// Login обрабатывает POST /x/user/session.
func (h *DashboardHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		apierrors.BadRequest(w, missingField("username"))
		return
	}
	if req.Password == "" {
		apierrors.BadRequest(w, missingField("password"))
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			apierrors.Forbidden(w, "Invalid username or password")
		case errors.Is(err, service.ErrBanned):
			apierrors.Forbidden(w, apierrors.MsgBanned)
		default:
			logRequestError(h.logger, r, "Ошибка входа в dashboard", err)
			apierrors.InternalError(w)
		}
		return
	}

	h.sessions.Create(w, user.UserID)
	apierrors.WriteJSON(w, http.StatusOK, redirectResponse{Redirect: "home"})
}

// Logout обрабатывает DELETE /x/user/session.
func (h *DashboardHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	apierrors.WriteJSON(w, http.StatusOK, redirectResponse{Redirect: "login"})
}

// Stats обрабатывает GET /x/user/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	stats, err := h.users.Stats(r.Context(), user.UserID)
	if err != nil {
		logRequestError(h.logger, r, "Ошибка получения статистики", err)
		apierrors.InternalError(w)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, stats)
}

// Files обрабатывает GET /x/user/files/{page}.
func (h *DashboardHandler) Files(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 0 {
		apierrors.BadRequest(w, "Field 'page' must be a number greater than or equal to 0")
		return
	}

	files, err := h.users.Files(r.Context(), user.UserID, page)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.BadRequest(w, "Field 'page' must be a number greater than or equal to 0")
			return
		}
		logRequestError(h.logger, r, "Ошибка получения файлов пользователя", err)
		apierrors.InternalError(w)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, files)
}

// Profile обрабатывает GET /x/user/profile.
func (h *DashboardHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	apierrors.WriteJSON(w, http.StatusOK, h.users.Profile(user))
}

// ChangePassword обрабатывает POST /x/user/password.
func (h *DashboardHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		apierrors.BadRequest(w, missingField("newPassword"))
		return
	}

	err := h.users.ChangePassword(r.Context(), user.UserID, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.BadRequest(w, fmt.Sprintf("Field 'newPassword' must be at least %d characters long",
				service.MinPasswordLength))
		case errors.Is(err, service.ErrNotFound):
			apierrors.Unauthorized(w, apierrors.MsgInvalidSess)
		default:
			logRequestError(h.logger, r, "Ошибка смены пароля", err)
			apierrors.InternalError(w)
		}
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, struct{}{})
}

// decodeJSON читает JSON-тело; при ошибке отвечает 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		apierrors.BadRequest(w, apierrors.MsgInvalidBody)
		return false
	}
	return true
}

func missingField(name string) string {
	return fmt.Sprintf("Field '%s' is missing", name)
}

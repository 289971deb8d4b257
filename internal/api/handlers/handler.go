// Пакет handlers — HTTP-обработчики cpsu.
// handler.go — таблица маршрутов и интерфейсы сервисного слоя.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sinnlosername/cpsu/internal/api/errors"
	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/service"
)

// Uploader — приём загрузок (service.UploadService).
type Uploader interface {
	Process(ctx context.Context, processor string, req *service.UploadRequest, user *model.User) (*service.UploadResult, error)
}

// FileProvider — доступ к загруженным файлам (service.FileService).
type FileProvider interface {
	Resolve(ctx context.Context, key string) (*model.FileRecord, error)
	Info(record *model.FileRecord) *service.FileInfo
	Open(record *model.FileRecord) (*os.File, error)
	ReadText(record *model.FileRecord, maxBytes int64) ([]byte, error)
	Thumbnail(record *model.FileRecord) ([]byte, error)
	Delete(ctx context.Context, accessKey string) (*model.FileRecord, error)
}

// UserProvider — пользователи и dashboard (service.UserService).
type UserProvider interface {
	UserByKey(ctx context.Context, key string) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	Stats(ctx context.Context, userID int64) (*service.Stats, error)
	Files(ctx context.Context, userID int64, page int) ([]service.FileEntry, error)
	Profile(user *model.User) *service.Profile
	ChangePassword(ctx context.Context, userID int64, newPassword string) error
}

// Options — параметры HTTP-слоя из конфигурации.
type Options struct {
	// BaseURL — внешний адрес сервиса; пустой — вычисляется из запроса
	BaseURL string
	// OverwriteProtocol — схема для вычисляемого адреса (http/https)
	OverwriteProtocol string
	// FileCacheControl — значение Cache-Control для файлов
	FileCacheControl string
}

// baseURL возвращает внешний адрес сервиса без завершающего слэша.
func (o Options) baseURL(r *http.Request) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}

	scheme := o.OverwriteProtocol
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}

// richClientTokens — движки браузеров и боты соцсетей, которым отдаётся HTML.
var richClientTokens = []string{
	"Trident/", "AppleWebKit/", "Gecko/", "Presto/",
	"Discordbot/", "Twitterbot/", "facebookexternalhit/",
}

// isRichClient определяет по User-Agent, нужна ли клиенту HTML-страница.
func isRichClient(r *http.Request) bool {
	ua := r.UserAgent()
	for _, token := range richClientTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

// APIHandler — все обработчики cpsu.
type APIHandler struct {
	feed      *FeedHandler
	files     *FilesHandler
	sites     *SitesHandler
	dashboard *DashboardHandler
	health    *HealthHandler
	session   func(http.Handler) http.Handler
}

// NewAPIHandler создаёт обработчик. session — middleware проверки сессии dashboard.
func NewAPIHandler(
	feed *FeedHandler,
	files *FilesHandler,
	sites *SitesHandler,
	dashboard *DashboardHandler,
	health *HealthHandler,
	session func(http.Handler) http.Handler,
) *APIHandler {
	return &APIHandler{
		feed:      feed,
		files:     files,
		sites:     sites,
		dashboard: dashboard,
		health:    health,
		session:   session,
	}
}

// Register регистрирует маршруты в роутере.
// Статические маршруты chi проверяет раньше параметрических,
// поэтому /{name} не перекрывает служебные пути.
func (h *APIHandler) Register(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "This endpoint does not exist")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, "This method is not allowed")
	})

	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Get("/", h.sites.Root)
	r.Get("/favicon.ico", h.sites.Favicon)
	r.Get("/robots.txt", h.sites.Robots)
	r.Get("/s/index", h.sites.Index)
	r.Get("/s/sharex", h.sites.ShareX)

	r.Post("/feed", h.feed.Feed)
	r.Get("/x/delete/{key}", h.files.Delete)

	r.Route("/x/user", func(r chi.Router) {
		r.Post("/session", h.dashboard.Login)
		r.Delete("/session", h.dashboard.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.session)
			r.Get("/stats", h.dashboard.Stats)
			r.Get("/files/{page}", h.dashboard.Files)
			r.Get("/profile", h.dashboard.Profile)
			r.Post("/password", h.dashboard.ChangePassword)
		})
	})

	r.Get("/{name}", h.files.View)
	r.Get("/{name}/{action}", h.files.Action)
}

// logRequestError логирует внутреннюю ошибку обработчика.
func logRequestError(logger *slog.Logger, r *http.Request, msg string, err error) {
	logger.ErrorContext(r.Context(), msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

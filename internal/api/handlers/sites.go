// sites.go — служебные страницы: /, /s/index, /s/sharex, robots.txt, favicon.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/sinnlosername/cpsu/internal/api/errors"
	"github.com/sinnlosername/cpsu/internal/api/views"
)

// shareXVersion — версия ShareX, под которую сформирован конфиг.
const shareXVersion = "12.4.1"

// SitesHandler — служебные страницы.
type SitesHandler struct {
	opts   Options
	logger *slog.Logger
}

// NewSitesHandler создаёт обработчик служебных страниц.
func NewSitesHandler(opts Options, logger *slog.Logger) *SitesHandler {
	return &SitesHandler{
		opts:   opts,
		logger: logger.With(slog.String("component", "sites_handler")),
	}
}

// Root перенаправляет на /s/index.
func (h *SitesHandler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/s/index", http.StatusFound)
}

// Favicon — 404 без тела.
func (h *SitesHandler) Favicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// Robots запрещает индексацию.
func (h *SitesHandler) Robots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
}

// indexInfo — ответ /s/index.
type indexInfo struct {
	Name       string `json:"name"`
	FullName   string `json:"fullName"`
	Message    string `json:"message"`
	Disclaimer string `json:"disclaimer"`
}

// Index — информация о сервисе.
func (h *SitesHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderJSON(w, r, "CPSU", indexInfo{
		Name:       "CPSU",
		FullName:   "Communist Processor to Share to U",
		Message:    "Welcome! You can view images at /(name) and upload images using the config from /s/sharex",
		Disclaimer: "Every user is responsible for their own uploads",
	})
}

// shareXConfig — custom uploader ShareX (.sxcu).
type shareXConfig struct {
	Version         string            `json:"Version"`
	Name            string            `json:"Name"`
	DestinationType string            `json:"DestinationType"`
	RequestMethod   string            `json:"RequestMethod"`
	RequestURL      string            `json:"RequestURL"`
	Headers         map[string]string `json:"Headers"`
	Body            string            `json:"Body"`
	Arguments       map[string]string `json:"Arguments"`
	FileFormName    string            `json:"FileFormName"`
	URL             string            `json:"URL"`
	ThumbnailURL    string            `json:"ThumbnailURL"`
	DeletionURL     string            `json:"DeletionURL"`
}

// ShareX отдаёт конфиг ShareX; ключ подставляется из ?key=.
func (h *SitesHandler) ShareX(w http.ResponseWriter, r *http.Request) {
	base := h.opts.baseURL(r)

	key := r.URL.Query().Get("key")
	if key == "" {
		key = "(Your key)"
	}

	h.renderJSON(w, r, "ShareX Config - CPSU", shareXConfig{
		Version:         shareXVersion,
		Name:            "CPSU",
		DestinationType: "ImageUploader, TextUploader, FileUploader, URLShortener",
		RequestMethod:   http.MethodPost,
		RequestURL:      base + "/feed",
		Headers: map[string]string{
			"CPSU-Key":       key,
			"CPSU-Processor": "sharex",
		},
		Body:         "MultipartFormData",
		Arguments:    map[string]string{"url": "$input:url$"},
		FileFormName: "files",
		URL:          base + "/$json:name$",
		ThumbnailURL: base + "/$json:name$/thumbnail",
		DeletionURL:  base + "/x/delete/$json:accessKey$",
	})
}

// renderJSON отдаёт JSON, а браузерам — HTML-страницу с этим JSON.
func (h *SitesHandler) renderJSON(w http.ResponseWriter, r *http.Request, title string, body any) {
	if !isRichClient(r) {
		apierrors.WriteJSON(w, http.StatusOK, body)
		return
	}

	page, err := views.JSONViewer(views.JSONView{
		Title:     title,
		Location:  views.Location{Base: h.opts.baseURL(r), Path: r.URL.Path},
		MetaTitle: true,
		Body:      body,
	})
	if err != nil {
		logRequestError(h.logger, r, "Ошибка сериализации JSON", err)
		apierrors.InternalError(w)
		return
	}

	apierrors.SetNoCache(w.Header())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		logRequestError(h.logger, r, "Ошибка рендеринга JSON-страницы", err)
	}
}

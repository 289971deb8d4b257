// files.go — выдача файлов: GET /{name}, GET /{name}/{action}, удаление по ключу.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/sinnlosername/cpsu/internal/api/errors"
	"github.com/sinnlosername/cpsu/internal/api/views"
	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/service"
	"github.com/sinnlosername/cpsu/internal/storage/thumbcache"
)

// maxTextViewBytes — сколько байт текстового файла встраивается в страницу просмотра.
const maxTextViewBytes = 1 << 20

// richView — тип страницы просмотра.
type richView int

const (
	viewNone richView = iota
	viewImage
	viewText
	viewVideo
)

// richViewFor выбирает страницу просмотра по MIME-типу.
func richViewFor(mimeType string) richView {
	switch {
	case strings.HasPrefix(mimeType, "image/") && len(mimeType) > len("image/"):
		return viewImage
	case strings.HasPrefix(mimeType, "text/plain"):
		return viewText
	case strings.HasPrefix(mimeType, "video/") && len(mimeType) > len("video/"):
		return viewVideo
	default:
		return viewNone
	}
}

// FilesHandler — выдача и удаление файлов.
type FilesHandler struct {
	files  FileProvider
	opts   Options
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик файлов.
func NewFilesHandler(files FileProvider, opts Options, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		files:  files,
		opts:   opts,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// View обрабатывает GET /{name}.
// "/name+" — переход на /name/full, "/name?" — на /name/info.
func (h *FilesHandler) View(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "+") {
		http.Redirect(w, r, strings.TrimSuffix(r.URL.Path, "+")+"/full", http.StatusFound)
		return
	}
	if r.URL.ForceQuery || strings.HasSuffix(r.RequestURI, "?") {
		http.Redirect(w, r, r.URL.Path+"/info", http.StatusFound)
		return
	}

	name := chi.URLParam(r, "name")
	record, ok := h.resolve(w, r, name)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", h.opts.FileCacheControl)
	if record.IsLink() {
		http.Redirect(w, r, *record.Link, http.StatusFound)
		return
	}

	// Страница просмотра только для обращения по публичному имени
	if view := richViewFor(record.MimeType); view != viewNone && name == record.Name && isRichClient(r) {
		h.serveViewer(w, r, record, view)
		return
	}

	h.serveRaw(w, r, record)
}

// Action обрабатывает GET /{name}/{action}: info, full, thumbnail.
func (h *FilesHandler) Action(w http.ResponseWriter, r *http.Request) {
	record, ok := h.resolve(w, r, chi.URLParam(r, "name"))
	if !ok {
		return
	}

	switch chi.URLParam(r, "action") {
	case "info":
		apierrors.WriteJSON(w, http.StatusOK, h.files.Info(record))

	case "full":
		if record.IsLink() {
			http.Redirect(w, r, *record.Link, http.StatusFound)
			return
		}
		http.Redirect(w, r, "../"+record.StoredName(), http.StatusFound)

	case "thumbnail":
		data, err := h.files.Thumbnail(record)
		if err != nil {
			if errors.Is(err, thumbcache.ErrUnsupported) {
				apierrors.Unprocessable(w, apierrors.MsgNoThumbnails)
				return
			}
			h.fileError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)

	default:
		apierrors.NotFound(w, apierrors.MsgUnknownAction)
	}
}

// deleteResponse — ответ GET /x/delete/{key}.
type deleteResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Delete обрабатывает GET /x/delete/{key}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	record, err := h.files.Delete(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "There is no file with this key")
		case errors.Is(err, service.ErrAlreadyDeleted):
			apierrors.NotFound(w, "This file was already deleted")
		default:
			logRequestError(h.logger, r, "Ошибка удаления файла", err)
			apierrors.InternalError(w)
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, deleteResponse{
		Name:    record.Name,
		Message: "The file was deleted",
	})
}

// resolve ищет живую запись; при ошибке ответ уже записан.
func (h *FilesHandler) resolve(w http.ResponseWriter, r *http.Request, name string) (*model.FileRecord, bool) {
	record, err := h.files.Resolve(r.Context(), name)
	if err != nil {
		h.fileError(w, r, err)
		return nil, false
	}
	return record, true
}

// fileError отвечает на ошибку доступа к файлу.
func (h *FilesHandler) fileError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrNotFound) {
		apierrors.NotFound(w, apierrors.MsgFileNotFound)
		return
	}
	logRequestError(h.logger, r, "Ошибка доступа к файлу", err)
	apierrors.InternalError(w)
}

// serveRaw отдаёт содержимое файла с сохранённым MIME-типом (поддерживает Range).
func (h *FilesHandler) serveRaw(w http.ResponseWriter, r *http.Request, record *model.FileRecord) {
	f, err := h.files.Open(record)
	if err != nil {
		h.fileError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", record.MimeType)
	http.ServeContent(w, r, record.StoredName(), record.CreationDate, f)
}

// serveViewer отдаёт HTML-страницу просмотра.
func (h *FilesHandler) serveViewer(w http.ResponseWriter, r *http.Request, record *model.FileRecord, view richView) {
	v := views.FileView{
		Location: views.Location{Base: h.opts.baseURL(r), Path: r.URL.Path},
		Name:     record.Name,
		FileName: record.StoredName(),
		MimeType: record.MimeType,
		Size:     record.Size,
	}

	var page templ.Component
	switch view {
	case viewText:
		body, err := h.files.ReadText(record, maxTextViewBytes)
		if err != nil {
			h.fileError(w, r, err)
			return
		}
		v.Body = strings.ToValidUTF8(string(body), "\uFFFD")
		page = views.TextViewer(v)
	case viewVideo:
		page = views.VideoViewer(v)
	default:
		page = views.ImageViewer(v)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы просмотра",
			slog.String("name", record.Name),
			slog.String("error", err.Error()),
		)
	}
}

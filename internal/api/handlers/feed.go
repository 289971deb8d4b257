package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/sinnlosername/cpsu/internal/api/errors"
	"github.com/sinnlosername/cpsu/internal/service"
)

// Заголовки загрузки. USSR-* — устаревшие имена, принимаются наравне с CPSU-*.
var (
	keyHeaders       = []string{"CPSU-Key", "USSR-Key"}
	processorHeaders = []string{"CPSU-Processor", "USSR-Processor"}
)

// FeedHandler — приём загрузок POST /feed.
type FeedHandler struct {
	users   UserProvider
	uploads Uploader
	logger  *slog.Logger
}

// NewFeedHandler создаёт обработчик загрузок.
func NewFeedHandler(users UserProvider, uploads Uploader, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		users:   users,
		uploads: uploads,
		logger:  logger.With(slog.String("component", "feed_handler")),
	}
}

// Feed обрабатывает POST /feed: проверяет ключ и передаёт тело процессору.
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(firstHeader(r.Header, keyHeaders))
	if key == "" {
		apierrors.Unauthorized(w, "No key provided")
		return
	}

	processor := strings.TrimSpace(firstHeader(r.Header, processorHeaders))
	if processor == "" {
		apierrors.BadRequest(w, "No processor provided")
		return
	}

	user, err := h.users.UserByKey(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKey):
			apierrors.Unauthorized(w, "Provided key is not valid")
		case errors.Is(err, service.ErrBanned):
			apierrors.Forbidden(w, apierrors.MsgBanned)
		default:
			logRequestError(h.logger, r, "Ошибка проверки ключа загрузки", err)
			apierrors.InternalError(w)
		}
		return
	}

	result, err := h.uploads.Process(r.Context(), processor, &service.UploadRequest{
		Body:          r.Body,
		ContentLength: contentLength(r),
		ContentType:   r.Header.Get("Content-Type"),
	}, user)
	if err != nil {
		var uerr *service.UploadError
		if errors.As(err, &uerr) {
			apierrors.WriteError(w, uerr.StatusCode, uerr.Message)
			return
		}
		logRequestError(h.logger, r, "Ошибка загрузки", err)
		apierrors.InternalError(w)
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, result)
}

// firstHeader возвращает первый непустой заголовок из списка.
func firstHeader(h http.Header, names []string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// contentLength возвращает длину тела или -1, если Content-Length не передан.
func contentLength(r *http.Request) int64 {
	if r.ContentLength == 0 && r.Header.Get("Content-Length") == "" {
		return -1
	}
	return r.ContentLength
}

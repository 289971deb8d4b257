// upload_simple.go — процессор simple: тело запроса целиком является файлом.
package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
)

const (
	msgSimpleTooLarge    = "Upload exceeds maximum file size or content length is missing"
	msgSimpleNoType      = "Content type is missing"
	msgSimpleUnknownType = "Unable to resolve extension for content type"
)

// processSimple сохраняет тело запроса как файл <name>.<ext>.
// size записи — фактически записанное число байт; тело короче Content-Length
// считается оборванной загрузкой.
func (s *UploadService) processSimple(ctx context.Context, req *UploadRequest, user *model.User) (*UploadResult, error) {
	if req.ContentLength < 0 || req.ContentLength > s.maxFileSize {
		return nil, uploadErr(http.StatusRequestEntityTooLarge, msgSimpleTooLarge)
	}

	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		return nil, uploadErr(http.StatusBadRequest, msgSimpleNoType)
	}

	ext := ExtensionFor(contentType)
	if ext == "" {
		return nil, uploadErr(http.StatusUnprocessableEntity, msgSimpleUnknownType)
	}

	staged, err := s.store.Stage(req.Body, req.ContentLength)
	if err != nil {
		switch {
		case errors.Is(err, filestore.ErrTooLarge):
			return nil, uploadErr(http.StatusRequestEntityTooLarge, msgSimpleTooLarge)
		case errors.Is(err, filestore.ErrSource):
			return nil, &UploadError{StatusCode: http.StatusBadRequest, Message: msgInterrupted, Err: err}
		}
		// Ошибка диска — 500 через classify
		return nil, err
	}

	if staged.Size < req.ContentLength {
		s.store.Discard(staged.TmpPath)
		return nil, uploadErr(http.StatusBadRequest, msgInterrupted)
	}

	return s.storeFile(ctx, staged, ext, contentType, model.ProcessorSimple, user)
}

// upload_sharex.go — процессор sharex: multipart с одной частью files или url.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
)

const (
	msgShareXFieldName    = "Multipart body may only contain 'files' or 'url' field"
	msgShareXNoParts      = "No request parts found"
	msgShareXManyParts    = "The multipart body may only have one part"
	msgShareXTooLarge     = "Upload exceeds maximum file size"
	msgShareXReadError    = "Unknown error while reading body"
	msgShareXNoPartType   = "Missing content type on part"
	msgShareXUnknownType  = "Unknown content type on part"
	msgShareXURLLength    = "URL length must be between 1 and 2048 characters"
	msgShareXInvalidURL   = "Not a valid url"
	shareXFieldFiles      = "files"
	shareXFieldURL        = "url"
	maxURLLength          = 2048
	partMemoryLimit       = 100 * 1024
	multipartHeadersSlack = 64 * 1024
)

// errPartTooLarge — часть multipart больше предела размера файла.
var errPartTooLarge = errors.New("часть multipart превышает допустимый размер")

// processShareX принимает multipart-тело ShareX.
// Допускается ровно одна часть: files (файл) или url (ссылка).
func (s *UploadService) processShareX(ctx context.Context, req *UploadRequest, user *model.User) (*UploadResult, error) {
	mediaType, params, err := mime.ParseMediaType(req.ContentType)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, uploadErr(http.StatusBadRequest, "Expected multipart, found "+req.ContentType)
	}

	body := http.MaxBytesReader(nil, io.NopCloser(req.Body), s.maxFileSize+multipartHeadersSlack)
	mr := multipart.NewReader(body, params["boundary"])

	var buffered *partBuffer
	defer func() {
		buffered.Close()
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err)
		}

		field := part.FormName()
		if field != shareXFieldFiles && field != shareXFieldURL {
			_, _ = io.Copy(io.Discard, part)
			part.Close()
			return nil, uploadErr(http.StatusBadRequest, msgShareXFieldName)
		}
		if buffered != nil {
			part.Close()
			return nil, uploadErr(http.StatusRequestEntityTooLarge, msgShareXManyParts)
		}

		buffered, err = s.bufferPart(part)
		part.Close()
		if err != nil {
			return nil, readError(err)
		}
	}

	if buffered == nil {
		return nil, uploadErr(http.StatusBadRequest, msgShareXNoParts)
	}

	if buffered.field == shareXFieldURL {
		return s.shareXLink(ctx, buffered, user)
	}
	return s.shareXFile(ctx, buffered, user)
}

// shareXFile сохраняет часть files как файл.
func (s *UploadService) shareXFile(ctx context.Context, pb *partBuffer, user *model.User) (*UploadResult, error) {
	contentType := strings.TrimSpace(pb.contentType)
	if contentType == "" {
		return nil, uploadErr(http.StatusBadRequest, msgShareXNoPartType)
	}

	ext := ExtensionFor(contentType)
	if ext == "" {
		return nil, uploadErr(http.StatusUnprocessableEntity, msgShareXUnknownType)
	}

	staged, err := pb.stage()
	if err != nil {
		return nil, err
	}
	return s.storeFile(ctx, staged, ext, contentType, model.ProcessorShareX, user)
}

// shareXLink сохраняет часть url как запись сокращателя.
func (s *UploadService) shareXLink(ctx context.Context, pb *partBuffer, user *model.User) (*UploadResult, error) {
	if pb.size < 1 || pb.size > maxURLLength {
		return nil, uploadErr(http.StatusBadRequest, msgShareXURLLength)
	}

	raw, err := pb.Bytes()
	if err != nil {
		return nil, err
	}

	link := strings.TrimSpace(asciiString(raw))
	if !isAbsoluteURL(link) {
		return nil, uploadErr(http.StatusBadRequest, msgShareXInvalidURL)
	}

	return s.storeLink(ctx, link, pb.size, model.ProcessorShareX, user)
}

// readError классифицирует ошибку чтения multipart-тела.
func readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, errPartTooLarge) {
		return &UploadError{StatusCode: http.StatusRequestEntityTooLarge, Message: msgShareXTooLarge, Err: err}
	}
	return &UploadError{StatusCode: http.StatusInternalServerError, Message: msgShareXReadError, Err: err}
}

// asciiString декодирует байты как 7-битный ASCII (старший бит отбрасывается).
func asciiString(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c & 0x7f
	}
	return string(out)
}

// isAbsoluteURL проверяет, что строка — абсолютный URL со схемой и хостом.
func isAbsoluteURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// partBuffer — содержимое одной части multipart.
// Части меньше partMemoryLimit хранятся в памяти, остальные — во временном
// файле в директории данных. Содержимое доступно и как байты, и как файл.
type partBuffer struct {
	field       string
	contentType string
	size        int64

	mem     []byte
	tmpPath string
	store   *filestore.FileStore
}

// bufferPart читает часть целиком.
func (s *UploadService) bufferPart(part *multipart.Part) (*partBuffer, error) {
	pb := &partBuffer{
		field:       part.FormName(),
		contentType: part.Header.Get("Content-Type"),
		store:       s.store,
	}

	var head bytes.Buffer
	n, err := io.CopyN(&head, part, partMemoryLimit)
	if errors.Is(err, io.EOF) {
		pb.mem = head.Bytes()
		pb.size = n
		return pb, nil
	}
	if err != nil {
		return nil, err
	}

	f, err := s.store.CreateTemp()
	if err != nil {
		return nil, err
	}
	pb.tmpPath = f.Name()

	if _, err := f.Write(head.Bytes()); err != nil {
		f.Close()
		pb.Close()
		return nil, fmt.Errorf("ошибка записи части: %w", err)
	}
	rest, err := io.Copy(f, io.LimitReader(part, s.maxFileSize-n+1))
	if err != nil {
		f.Close()
		pb.Close()
		return nil, err
	}
	if err := filestore.SyncClose(f); err != nil {
		pb.Close()
		return nil, err
	}

	pb.size = n + rest
	if pb.size > s.maxFileSize {
		pb.Close()
		return nil, errPartTooLarge
	}
	return pb, nil
}

// Bytes возвращает содержимое части.
func (pb *partBuffer) Bytes() ([]byte, error) {
	if pb.tmpPath == "" {
		return pb.mem, nil
	}
	data, err := os.ReadFile(pb.tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения части: %w", err)
	}
	return data, nil
}

// stage возвращает содержимое как staged-файл в директории данных.
// Владение временным файлом переходит к вызывающему коду.
func (pb *partBuffer) stage() (*filestore.Staged, error) {
	if pb.tmpPath != "" {
		staged := &filestore.Staged{TmpPath: pb.tmpPath, Size: pb.size}
		pb.tmpPath = ""
		return staged, nil
	}
	return pb.store.Stage(bytes.NewReader(pb.mem), 0)
}

// Close удаляет временный файл части, если он ещё принадлежит буферу.
func (pb *partBuffer) Close() {
	if pb == nil || pb.tmpPath == "" {
		return
	}
	pb.store.Discard(pb.tmpPath)
	pb.tmpPath = ""
}

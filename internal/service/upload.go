// upload.go — сервис загрузки: реестр процессоров и общая запись файла/ссылки.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
)

// Сообщения об ошибках загрузки, общие для процессоров.
const (
	msgProcessorNotFound = "Provided processor could not be found"
	msgInterrupted       = "Upload was interrupted"
	msgUnknownError      = "An unknown error occurred"
	msgNoFreeName        = "No free name is available, please try again"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpsu_uploads_total",
		Help: "Общее количество загрузок по процессору и HTTP-статусу.",
	}, []string{"processor", "status"})

	uploadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpsu_upload_bytes_total",
		Help: "Общее количество принятых байт по процессору.",
	}, []string{"processor"})

	uploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cpsu_upload_duration_seconds",
		Help:    "Длительность обработки загрузки.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"processor"})
)

// UploadRequest — входные данные загрузки.
type UploadRequest struct {
	// Body — тело запроса
	Body io.Reader
	// ContentLength — значение заголовка Content-Length, -1 если заголовка нет
	ContentLength int64
	// ContentType — значение заголовка Content-Type
	ContentType string
}

// UploadResult — ответ на успешную загрузку.
type UploadResult struct {
	Name      string `json:"name"`
	AccessKey string `json:"accessKey"`
}

// processFunc — обработчик одного процессора загрузки.
type processFunc func(ctx context.Context, req *UploadRequest, user *model.User) (*UploadResult, error)

// UploadService — сервис загрузки файлов и ссылок.
type UploadService struct {
	files       repository.FileRepository
	store       *filestore.FileStore
	names       *NameAllocator
	maxFileSize int64
	maxAttempts int
	logger      *slog.Logger

	processors map[string]processFunc
}

// NewUploadService создаёт сервис загрузки.
// maxFileSize — предел размера одного файла в байтах,
// maxAttempts — число попыток вставки при конфликте имени.
func NewUploadService(
	files repository.FileRepository,
	store *filestore.FileStore,
	names *NameAllocator,
	maxFileSize int64,
	maxAttempts int,
	logger *slog.Logger,
) *UploadService {
	s := &UploadService{
		files:       files,
		store:       store,
		names:       names,
		maxFileSize: maxFileSize,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "upload_service")),
	}
	s.processors = map[string]processFunc{
		model.ProcessorSimple: s.processSimple,
		model.ProcessorShareX: s.processShareX,
	}
	return s
}

// Process выполняет загрузку процессором processor от имени user.
// Ошибки всегда имеют тип *UploadError.
func (s *UploadService) Process(
	ctx context.Context,
	processor string,
	req *UploadRequest,
	user *model.User,
) (*UploadResult, error) {
	fn, ok := s.processors[processor]
	if !ok {
		return nil, uploadErr(http.StatusBadRequest, msgProcessorNotFound)
	}

	start := time.Now()
	result, err := fn(ctx, req, user)
	uploadDuration.WithLabelValues(processor).Observe(time.Since(start).Seconds())

	if err != nil {
		uerr := s.classify(err)
		uploadsTotal.WithLabelValues(processor, fmt.Sprint(uerr.StatusCode)).Inc()

		attrs := []slog.Attr{
			slog.String("processor", processor),
			slog.Int64("user_id", user.UserID),
			slog.Int("status", uerr.StatusCode),
			slog.String("error", uerr.Error()),
		}
		level := slog.LevelInfo
		if uerr.StatusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.LogAttrs(ctx, level, "Загрузка отклонена", attrs...)
		return nil, uerr
	}

	uploadsTotal.WithLabelValues(processor, "200").Inc()
	return result, nil
}

// classify приводит ошибку процессора к *UploadError.
func (s *UploadService) classify(err error) *UploadError {
	var uerr *UploadError
	switch {
	case errors.As(err, &uerr):
		return uerr
	case errors.Is(err, ErrNameSpaceExhausted):
		return &UploadError{StatusCode: http.StatusServiceUnavailable, Message: msgNoFreeName, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &UploadError{StatusCode: http.StatusBadRequest, Message: msgInterrupted, Err: err}
	default:
		return &UploadError{StatusCode: http.StatusInternalServerError, Message: msgUnknownError, Err: err}
	}
}

// storeFile публикует staged-файл под свободным именем и добавляет запись.
// Запись добавляется только после того, как файл виден под своим именем.
// Конфликт имени на диске или в БД — новая попытка с новым именем.
// При любой ошибке файл удаляется.
func (s *UploadService) storeFile(
	ctx context.Context,
	staged *filestore.Staged,
	ext, mimeType, processor string,
	user *model.User,
) (*UploadResult, error) {
	src := staged.TmpPath
	stored := false
	defer func() {
		if !stored {
			s.store.Discard(src)
		}
	}()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		name, err := s.names.Allocate(ctx)
		if err != nil {
			return nil, err
		}
		fileName := name + "." + ext

		fullPath, err := s.store.Commit(src, fileName)
		if err != nil {
			if errors.Is(err, filestore.ErrExists) {
				s.logger.Warn("Файл с выбранным именем уже есть на диске, повтор",
					slog.String("file_name", fileName),
				)
				continue
			}
			return nil, err
		}
		src = fullPath

		record := &model.FileRecord{
			Name:      name,
			FileName:  &fileName,
			MimeType:  mimeType,
			Size:      staged.Size,
			UserID:    user.UserID,
			AccessKey: GenerateKey(),
			Processor: processor,
		}
		if err := s.files.Insert(ctx, record); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				s.logger.Warn("Конфликт уникальности при вставке, повтор",
					slog.String("name", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}

		stored = true
		s.logStored(record)
		return &UploadResult{Name: record.Name, AccessKey: record.AccessKey}, nil
	}

	return nil, fmt.Errorf("%w: %d попыток вставки", ErrNameSpaceExhausted, s.maxAttempts)
}

// storeLink добавляет запись сокращателя ссылок.
func (s *UploadService) storeLink(
	ctx context.Context,
	link string,
	size int64,
	processor string,
	user *model.User,
) (*UploadResult, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		name, err := s.names.Allocate(ctx)
		if err != nil {
			return nil, err
		}

		record := &model.FileRecord{
			Name:      name,
			MimeType:  model.MIMETypeURIList,
			Size:      size,
			UserID:    user.UserID,
			AccessKey: GenerateKey(),
			Link:      &link,
			Processor: processor,
		}
		if err := s.files.Insert(ctx, record); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return nil, err
		}

		s.logStored(record)
		return &UploadResult{Name: record.Name, AccessKey: record.AccessKey}, nil
	}

	return nil, fmt.Errorf("%w: %d попыток вставки", ErrNameSpaceExhausted, s.maxAttempts)
}

// logStored пишет лог и метрики успешной загрузки.
func (s *UploadService) logStored(record *model.FileRecord) {
	uploadBytesTotal.WithLabelValues(record.Processor).Add(float64(record.Size))

	s.logger.Info("Файл загружен",
		slog.String("name", record.Name),
		slog.String("file_name", record.StoredName()),
		slog.String("mime_type", record.MimeType),
		slog.Int64("size", record.Size),
		slog.Int64("user_id", record.UserID),
		slog.String("processor", record.Processor),
	)
}

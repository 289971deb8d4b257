// files.go — чтение, превью и удаление загруженных файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
	"github.com/sinnlosername/cpsu/internal/storage/thumbcache"
)

var deletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cpsu_deletions_total",
	Help: "Общее количество удалений файлов по ключу.",
})

// Thumbnailer — построение превью (thumbcache.Cache).
type Thumbnailer interface {
	Generate(name, sourcePath, mimeType string) ([]byte, error)
	Remove(name string)
}

// FileInfo — ответ GET /{name}/info.
type FileInfo struct {
	Name     string  `json:"name"`
	FileName *string `json:"fileName"`
	MimeType string  `json:"mimeType"`
	Size     int64   `json:"size"`
}

// FileService — доступ к загруженным файлам.
type FileService struct {
	files  repository.FileRepository
	store  *filestore.FileStore
	thumbs Thumbnailer
	cache  *RecordCache
	logger *slog.Logger
}

// NewFileService создаёт сервис доступа к файлам.
func NewFileService(
	files repository.FileRepository,
	store *filestore.FileStore,
	thumbs Thumbnailer,
	cache *RecordCache,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:  files,
		store:  store,
		thumbs: thumbs,
		cache:  cache,
		logger: logger.With(slog.String("component", "file_service")),
	}
}

// Resolve ищет живую запись по публичному имени или имени файла на диске.
func (s *FileService) Resolve(ctx context.Context, key string) (*model.FileRecord, error) {
	if record, ok := s.cache.Get(key); ok {
		return record, nil
	}

	record, err := s.files.GetByName(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска файла %s: %w", key, err)
	}
	if record.IsDeleted() {
		return nil, ErrNotFound
	}

	s.cache.Set(key, record)
	return record, nil
}

// Info возвращает публичные метаданные записи.
func (s *FileService) Info(record *model.FileRecord) *FileInfo {
	return &FileInfo{
		Name:     record.Name,
		FileName: record.FileName,
		MimeType: record.MimeType,
		Size:     record.Size,
	}
}

// Open открывает файл записи. Вызывающий код закрывает файл.
func (s *FileService) Open(record *model.FileRecord) (*os.File, error) {
	if record.IsLink() {
		return nil, ErrNotFound
	}

	f, err := s.store.Open(record.StoredName())
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			s.logger.Warn("Файл записи отсутствует на диске",
				slog.String("name", record.Name),
				slog.String("file_name", record.StoredName()),
			)
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// ReadText читает не более maxBytes байт файла (текстовый просмотр).
func (s *FileService) ReadText(record *model.FileRecord, maxBytes int64) ([]byte, error) {
	if record.IsLink() {
		return nil, ErrNotFound
	}

	data, err := s.store.ReadAll(record.StoredName(), maxBytes)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Thumbnail возвращает JPEG-превью файла.
// Для неподдерживаемых типов и ссылок — thumbcache.ErrUnsupported.
func (s *FileService) Thumbnail(record *model.FileRecord) ([]byte, error) {
	if record.IsLink() {
		return nil, thumbcache.ErrUnsupported
	}
	if !s.store.Exists(record.StoredName()) {
		return nil, ErrNotFound
	}
	return s.thumbs.Generate(record.Name, s.store.Path(record.StoredName()), record.MimeType)
}

// Delete мягко удаляет запись по ключу удаления и удаляет файл с диска.
func (s *FileService) Delete(ctx context.Context, accessKey string) (*model.FileRecord, error) {
	record, err := s.files.GetByAccessKey(ctx, accessKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска файла по ключу: %w", err)
	}
	if record.IsDeleted() {
		return nil, ErrAlreadyDeleted
	}

	if err := s.files.MarkDeleted(ctx, record.FileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Параллельное удаление тем же ключом
			return nil, ErrAlreadyDeleted
		}
		return nil, err
	}

	s.cache.Invalidate(record)
	if record.FileName != nil {
		if err := s.store.Delete(*record.FileName); err != nil {
			s.logger.Error("Ошибка удаления файла с диска",
				slog.String("file_name", *record.FileName),
				slog.String("error", err.Error()),
			)
		}
		s.thumbs.Remove(record.Name)
	}

	deletionsTotal.Inc()
	s.logger.Info("Файл удалён",
		slog.String("name", record.Name),
		slog.Int64("file_id", record.FileID),
		slog.Int64("user_id", record.UserID),
	)
	return record, nil
}

// datasync.go — сверка директории данных с БД при старте.
//
// Сверка:
//   - файл на диске без живой записи — импортируется от системного пользователя
//     (processor = datasync, MIME по расширению или содержимому, дата — mtime)
//   - живая запись без файла на диске — мягко удаляется
//
// Скрытые и временные файлы, а также файлы с недопустимым именем пропускаются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
)

// Prometheus-метрики сверки.
var (
	dataSyncRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpsu_datasync_runs_total",
		Help: "Общее количество запусков сверки директории данных.",
	})

	dataSyncActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpsu_datasync_actions_total",
		Help: "Действия сверки по типу (imported, deleted, skipped).",
	}, []string{"action"})

	dataSyncDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cpsu_datasync_duration_seconds",
		Help:    "Длительность сверки директории данных в секундах.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})
)

// DataSyncResult — итог сверки.
type DataSyncResult struct {
	Scanned  int
	Imported int
	Deleted  int
	Skipped  int
}

// DataSyncService — сверка директории данных с таблицей file.
type DataSyncService struct {
	files  repository.FileRepository
	store  *filestore.FileStore
	logger *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
}

// NewDataSyncService создаёт сервис сверки.
func NewDataSyncService(
	files repository.FileRepository,
	store *filestore.FileStore,
	logger *slog.Logger,
) *DataSyncService {
	return &DataSyncService{
		files:  files,
		store:  store,
		logger: logger.With(slog.String("component", "datasync")),
	}
}

// RunOnce выполняет одну сверку.
// Если сверка уже выполняется, возвращает nil, nil.
func (s *DataSyncService) RunOnce(ctx context.Context) (*DataSyncResult, error) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		s.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, nil
	}
	s.inProcess = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProcess = false
		s.mu.Unlock()
	}()

	startedAt := time.Now()
	s.logger.Info("Сверка директории данных с БД начата",
		slog.String("data_dir", s.store.DataDir()),
	)

	result, err := s.sync(ctx)
	if err != nil {
		return nil, err
	}

	duration := time.Since(startedAt)
	dataSyncRunsTotal.Inc()
	dataSyncDurationSeconds.Observe(duration.Seconds())
	dataSyncActionsTotal.WithLabelValues("imported").Add(float64(result.Imported))
	dataSyncActionsTotal.WithLabelValues("deleted").Add(float64(result.Deleted))
	dataSyncActionsTotal.WithLabelValues("skipped").Add(float64(result.Skipped))

	s.logger.Info("Сверка директории данных завершена",
		slog.Int("scanned", result.Scanned),
		slog.Int("imported", result.Imported),
		slog.Int("deleted", result.Deleted),
		slog.Int("skipped", result.Skipped),
		slog.Duration("duration", duration),
	)
	return result, nil
}

// sync выполняет сверку.
func (s *DataSyncService) sync(ctx context.Context) (*DataSyncResult, error) {
	entries, err := s.store.Scan()
	if err != nil {
		return nil, err
	}
	liveNames, err := s.files.ListLiveFileNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения живых файлов: %w", err)
	}

	live := make(map[string]bool, len(liveNames))
	for _, n := range liveNames {
		live[n] = true
	}
	onDisk := make(map[string]bool, len(entries))

	result := &DataSyncResult{Scanned: len(entries)}

	// 1. Файлы на диске без живой записи
	for _, e := range entries {
		onDisk[e.FileName] = true
		if live[e.FileName] {
			continue
		}

		name := strings.TrimSuffix(e.FileName, filepath.Ext(e.FileName))
		if !IsValidName(name) {
			result.Skipped++
			s.logger.Debug("Файл с недопустимым именем пропущен",
				slog.String("file_name", e.FileName),
			)
			continue
		}

		if err := s.importFile(ctx, name, e); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				result.Skipped++
				s.logger.Warn("Имя файла уже занято записью, импорт пропущен",
					slog.String("file_name", e.FileName),
				)
				continue
			}
			return nil, err
		}
		result.Imported++
	}

	// 2. Живые записи без файла на диске
	for _, fileName := range liveNames {
		if onDisk[fileName] {
			continue
		}

		n, err := s.files.MarkDeletedByFileName(ctx, fileName)
		if err != nil {
			return nil, err
		}
		result.Deleted += int(n)
		s.logger.Info("Файл есть в БД, но отсутствует на диске; запись удалена",
			slog.String("file_name", fileName),
		)
	}

	return result, nil
}

// importFile добавляет запись для файла, найденного на диске.
func (s *DataSyncService) importFile(ctx context.Context, name string, e filestore.Entry) error {
	fileName := e.FileName
	record := &model.FileRecord{
		Name:         name,
		FileName:     &fileName,
		MimeType:     DetectMIME(s.store.Path(fileName)),
		Size:         e.Size,
		UserID:       model.SystemUserID,
		AccessKey:    GenerateKey(),
		Processor:    model.ProcessorDataSync,
		CreationDate: e.ModTime.UTC(),
	}
	if err := s.files.Insert(ctx, record); err != nil {
		return err
	}

	s.logger.Info("Файл есть на диске, но не в БД; импортирован от системного пользователя",
		slog.String("file_name", fileName),
		slog.String("mime_type", record.MimeType),
		slog.String("size", humanize.Bytes(uint64(max(e.Size, 0)))),
	)
	return nil
}

// Пакет thumbcache — кэш превью изображений.
//
// Превью 426x240 (растягивание без сохранения пропорций), JPEG quality 90.
// Кэш ограничен суммарным размером в байтах и вытесняет записи в порядке
// вставки (FIFO, не LRU): обращение к записи не продлевает её жизнь.
// Директория кэша очищается при создании, кэш не переживает рестарт.
package thumbcache

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Параметры превью.
const (
	Width   = 426
	Height  = 240
	Quality = 90

	fileSuffix = ".thumbnail.jpg"
)

// ErrUnsupported — для MIME-типа файла превью не строятся.
var ErrUnsupported = errors.New("тип файла не поддерживает превью")

// supportedTypes — MIME-типы, для которых строятся превью.
var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/tiff": true,
}

// Prometheus-метрики кэша превью.
var (
	thumbnailHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpsu_thumbnail_cache_hits_total",
		Help: "Количество попаданий в кэш превью.",
	})

	thumbnailMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpsu_thumbnail_cache_misses_total",
		Help: "Количество промахов кэша превью (генерация превью).",
	})

	thumbnailEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpsu_thumbnail_cache_evictions_total",
		Help: "Количество вытесненных из кэша превью.",
	})

	thumbnailCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cpsu_thumbnail_cache_bytes",
		Help: "Суммарный размер превью в кэше.",
	})
)

// Encoder строит JPEG-превью из исходного файла.
type Encoder func(sourcePath string) ([]byte, error)

// Option — опция конструктора Cache.
type Option func(*Cache)

// WithEncoder подменяет построитель превью (используется в тестах).
func WithEncoder(enc Encoder) Option {
	return func(c *Cache) {
		c.encode = enc
	}
}

// entry — запись кэша, неизменяема после вставки.
type entry struct {
	name     string
	filePath string
	size     int64
}

// Cache — FIFO-кэш превью, ограниченный по суммарному размеру.
type Cache struct {
	dir     string
	maxSize int64
	encode  Encoder
	logger  *slog.Logger

	mu      sync.Mutex
	entries []entry // порядок вставки
	total   int64
}

// New создаёт кэш. Директория создаётся, а если существует — очищается.
func New(dir string, maxSize int64, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if err := resetDir(dir); err != nil {
		return nil, err
	}

	c := &Cache{
		dir:     dir,
		maxSize: maxSize,
		encode:  Render,
		logger:  logger.With(slog.String("component", "thumbnail_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}

	thumbnailCacheBytes.Set(0)
	c.logger.Info("Кэш превью инициализирован",
		slog.String("dir", dir),
		slog.Int64("max_bytes", maxSize),
	)
	return c, nil
}

// Supported возвращает true, если для MIME-типа строятся превью.
func Supported(mimeType string) bool {
	return supportedTypes[baseMIME(mimeType)]
}

// Generate возвращает JPEG-превью файла name.
// Повторный вызов для того же name отдаёт сохранённые байты без перекодирования,
// пока запись не вытеснена. Исходный файл считается неизменяемым.
func (c *Cache) Generate(name, sourcePath, mimeType string) ([]byte, error) {
	if !Supported(mimeType) {
		return nil, ErrUnsupported
	}
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("недопустимое имя превью: %q", name)
	}

	if data, ok := c.lookup(name); ok {
		thumbnailHitsTotal.Inc()
		return data, nil
	}
	thumbnailMissesTotal.Inc()

	// Кодирование вне блокировки: параллельные промахи по одному имени
	// дают повторную работу, но не нарушают учёт размера.
	data, err := c.encode(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения превью %s: %w", name, err)
	}

	c.insert(name, data)
	return data, nil
}

// lookup ищет запись и читает её файл.
// Запись с пропавшим файлом удаляется из кэша.
func (c *Cache) lookup(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(name)
	if idx < 0 {
		return nil, false
	}

	data, err := os.ReadFile(c.entries[idx].filePath)
	if err != nil {
		c.logger.Warn("Файл превью пропал, запись удалена из кэша",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		c.removeAt(idx)
		return nil, false
	}
	return data, true
}

// insert вытесняет старые записи под новый размер и добавляет запись.
func (c *Cache) insert(name string, data []byte) {
	size := int64(len(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	// Параллельный промах мог уже вставить это имя: файл будет перезаписан
	if idx := c.indexOf(name); idx >= 0 {
		c.removeAt(idx)
	}

	for c.total+size > c.maxSize && len(c.entries) > 0 {
		evicted := c.entries[0]
		c.removeAt(0)
		if err := os.Remove(evicted.filePath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("Ошибка удаления вытесненного превью",
				slog.String("name", evicted.name),
				slog.String("error", err.Error()),
			)
		}
		thumbnailEvictionsTotal.Inc()
	}

	filePath := filepath.Join(c.dir, name+fileSuffix)
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		c.logger.Error("Ошибка записи превью, превью не кэшировано",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}

	c.entries = append(c.entries, entry{name: name, filePath: filePath, size: size})
	c.total += size
	thumbnailCacheBytes.Set(float64(c.total))
}

// Remove удаляет превью name из кэша (например, после удаления файла).
func (c *Cache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(name)
	if idx < 0 {
		return
	}
	filePath := c.entries[idx].filePath
	c.removeAt(idx)
	_ = os.Remove(filePath)
}

// Len возвращает количество записей.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalSize возвращает суммарный размер записей в байтах.
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Close удаляет директорию кэша вместе с превью.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.total = 0
	thumbnailCacheBytes.Set(0)
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("ошибка удаления директории кэша превью: %w", err)
	}
	return nil
}

// indexOf возвращает индекс записи name или -1. Вызывается под c.mu.
func (c *Cache) indexOf(name string) int {
	for i := range c.entries {
		if c.entries[i].name == name {
			return i
		}
	}
	return -1
}

// removeAt удаляет запись из списка, не трогая файл. Вызывается под c.mu.
func (c *Cache) removeAt(idx int) {
	c.total -= c.entries[idx].size
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	thumbnailCacheBytes.Set(float64(c.total))
}

// resetDir создаёт директорию или удаляет её содержимое.
func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("ошибка чтения директории кэша превью %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("не удалось создать директорию кэша превью %s: %w", dir, err)
		}
		return nil
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("ошибка очистки директории кэша превью: %w", err)
		}
	}
	return nil
}

// baseMIME отбрасывает параметры MIME-типа и приводит к нижнему регистру.
func baseMIME(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

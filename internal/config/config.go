// Пакет config — загрузка и валидация конфигурации cpsu
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимая длина публичного имени файла.
const (
	MinNameLength = 4
	MaxNameLength = 19
)

// maxSizeMB — верхняя граница размеров в мегабайтах (1 ТиБ), байтовое значение помещается в int64.
const maxSizeMB = 1 << 20

// Config содержит все параметры конфигурации cpsu.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений (0 — значение pgxpool по умолчанию)
	DBMaxConns int

	// --- Хранилище ---

	// Директория с загруженными файлами
	DataDir string
	// Директория кэша превью (очищается при каждом старте)
	ThumbnailDir string
	// Максимальный размер одного загружаемого файла в байтах
	MaxSingleFileSize int64
	// Бюджет кэша превью в байтах
	MaxThumbnailCacheSize int64
	// Сверка директории данных с БД при старте
	DataSync bool

	// --- Имена ---

	// Длина публичного имени файла (4-19)
	NameLength int
	// Максимальное число попыток подобрать свободное имя
	NameMaxAttempts int

	// --- HTTP-поверхность ---

	// Внешний базовый URL (для ShareX-конфига). Пустой — берётся из запроса.
	BaseURL string
	// Принудительный протокол для базового URL (http, https)
	OverwriteProtocol string
	// Значение Cache-Control для отдаваемых файлов
	FileCacheControl string

	// --- Сессии ---

	SessionTTL   time.Duration
	CookieSecure bool

	// --- Кэш записей файлов ---

	CacheMaxSize int
	CacheTTL     time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CPSU_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CPSU_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CPSU_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CPSU_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CPSU_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CPSU_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CPSU_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CPSU_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("CPSU_HTTP_READ_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CPSU_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("CPSU_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CPSU_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("CPSU_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CPSU_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("CPSU_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("CPSU_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CPSU_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("CPSU_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("CPSU_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("CPSU_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("CPSU_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CPSU_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("CPSU_DB_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("CPSU_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 0 {
		return nil, fmt.Errorf("CPSU_DB_MAX_CONNS: значение должно быть >= 0")
	}

	// --- Хранилище ---

	cfg.DataDir = getEnvDefault("CPSU_DATA_DIR", "data")
	cfg.ThumbnailDir = getEnvDefault("CPSU_THUMBNAIL_DIR", filepath.Join(os.TempDir(), "cpsu-thumbnails"))

	// CPSU_MAX_SINGLE_FILE_SIZE_MB — лимит одного файла в мегабайтах (по умолчанию 100)
	maxFileMB, err := getEnvInt64("CPSU_MAX_SINGLE_FILE_SIZE_MB", 100)
	if err != nil {
		return nil, fmt.Errorf("CPSU_MAX_SINGLE_FILE_SIZE_MB: %w", err)
	}
	if maxFileMB <= 0 || maxFileMB > maxSizeMB {
		return nil, fmt.Errorf("CPSU_MAX_SINGLE_FILE_SIZE_MB: значение должно быть в диапазоне 1..%d", maxSizeMB)
	}
	cfg.MaxSingleFileSize = maxFileMB * 1024 * 1024

	// CPSU_MAX_THUMBNAIL_CACHE_MB — бюджет кэша превью в мегабайтах (по умолчанию 50)
	maxThumbMB, err := getEnvInt64("CPSU_MAX_THUMBNAIL_CACHE_MB", 50)
	if err != nil {
		return nil, fmt.Errorf("CPSU_MAX_THUMBNAIL_CACHE_MB: %w", err)
	}
	if maxThumbMB < 0 || maxThumbMB > maxSizeMB {
		return nil, fmt.Errorf("CPSU_MAX_THUMBNAIL_CACHE_MB: значение должно быть в диапазоне 0..%d", maxSizeMB)
	}
	cfg.MaxThumbnailCacheSize = maxThumbMB * 1024 * 1024

	cfg.DataSync, err = getEnvBool("CPSU_DATA_SYNC", true)
	if err != nil {
		return nil, fmt.Errorf("CPSU_DATA_SYNC: %w", err)
	}

	// --- Имена ---

	cfg.NameLength, err = getEnvInt("CPSU_NAME_LENGTH", 6)
	if err != nil {
		return nil, fmt.Errorf("CPSU_NAME_LENGTH: %w", err)
	}
	if cfg.NameLength < MinNameLength || cfg.NameLength > MaxNameLength {
		return nil, fmt.Errorf("CPSU_NAME_LENGTH: значение %d вне допустимого диапазона %d-%d",
			cfg.NameLength, MinNameLength, MaxNameLength)
	}

	cfg.NameMaxAttempts, err = getEnvInt("CPSU_NAME_MAX_ATTEMPTS", 100)
	if err != nil {
		return nil, fmt.Errorf("CPSU_NAME_MAX_ATTEMPTS: %w", err)
	}
	if cfg.NameMaxAttempts < 1 {
		return nil, fmt.Errorf("CPSU_NAME_MAX_ATTEMPTS: значение должно быть > 0")
	}

	// --- HTTP-поверхность ---

	cfg.BaseURL = strings.TrimRight(os.Getenv("CPSU_BASE_URL"), "/")
	cfg.OverwriteProtocol = os.Getenv("CPSU_OVERWRITE_PROTOCOL")
	if cfg.OverwriteProtocol != "" && cfg.OverwriteProtocol != "http" && cfg.OverwriteProtocol != "https" {
		return nil, fmt.Errorf("CPSU_OVERWRITE_PROTOCOL: недопустимое значение %q, допустимые: http, https", cfg.OverwriteProtocol)
	}
	cfg.FileCacheControl = getEnvDefault("CPSU_FILE_CACHE_CONTROL", "public, max-age=604800")

	// --- Сессии ---

	cfg.SessionTTL, err = getEnvDuration("CPSU_SESSION_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CPSU_SESSION_TTL: %w", err)
	}
	cfg.CookieSecure, err = getEnvBool("CPSU_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("CPSU_COOKIE_SECURE: %w", err)
	}

	// --- Кэш записей файлов ---

	cfg.CacheMaxSize, err = getEnvInt("CPSU_CACHE_MAX_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CPSU_CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("CPSU_CACHE_MAX_SIZE: значение должно быть > 0")
	}
	cfg.CacheTTL, err = getEnvDuration("CPSU_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CPSU_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("CPSU_DEPHEALTH_GROUP", "cpsu")
	cfg.DephealthCheckInterval, err = getEnvDuration("CPSU_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CPSU_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("CPSU_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CPSU_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик и лейблов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

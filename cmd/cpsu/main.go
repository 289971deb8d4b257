// Точка входа cpsu — сервис обмена файлами и ссылками.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// сверяет директорию данных с БД, создаёт сервисный слой и HTTP handlers,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/sinnlosername/cpsu/internal/api/handlers"
	"github.com/sinnlosername/cpsu/internal/api/middleware"
	"github.com/sinnlosername/cpsu/internal/auth"
	"github.com/sinnlosername/cpsu/internal/config"
	"github.com/sinnlosername/cpsu/internal/database"
	"github.com/sinnlosername/cpsu/internal/repository"
	"github.com/sinnlosername/cpsu/internal/server"
	"github.com/sinnlosername/cpsu/internal/service"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
	"github.com/sinnlosername/cpsu/internal/storage/thumbcache"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("cpsu запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	if cfg.BaseURL == "" {
		logger.Warn("CPSU_BASE_URL не задан, адрес сервиса вычисляется из заголовка Host")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool).
	// ctx отменяется по SIGINT/SIGTERM: прерывает сверку и останавливает сервер.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Директория данных
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации директории данных", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Репозитории
	fileRepo := repository.NewFileRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 7. Сверка директории данных с БД (CPSU_DATA_SYNC)
	if cfg.DataSync {
		result, syncErr := service.NewDataSyncService(fileRepo, store, logger).RunOnce(ctx)
		if syncErr != nil {
			logger.Error("Ошибка сверки директории данных", slog.String("error", syncErr.Error()))
			os.Exit(1)
		}
		if result != nil {
			logger.Info("Сверка директории данных завершена",
				slog.Int("scanned", result.Scanned),
				slog.Int("imported", result.Imported),
				slog.Int("deleted", result.Deleted),
				slog.Int("skipped", result.Skipped),
			)
		}
	} else {
		logger.Info("Сверка директории данных отключена (CPSU_DATA_SYNC=false)")
	}

	// 8. Кэш миниатюр (директория очищается при старте и остановке)
	thumbs, err := thumbcache.New(cfg.ThumbnailDir, cfg.MaxThumbnailCacheSize, logger)
	if err != nil {
		logger.Error("Ошибка инициализации кэша миниатюр", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if closeErr := thumbs.Close(); closeErr != nil {
			logger.Warn("Ошибка очистки кэша миниатюр", slog.String("error", closeErr.Error()))
		}
	}()

	// 9. Сервисный слой
	names := service.NewNameAllocator(fileRepo, cfg.NameLength, cfg.NameMaxAttempts)
	recordCache := service.NewRecordCache(cfg.CacheMaxSize, cfg.CacheTTL)
	uploadSvc := service.NewUploadService(fileRepo, store, names, cfg.MaxSingleFileSize, cfg.NameMaxAttempts, logger)
	fileSvc := service.NewFileService(fileRepo, store, thumbs, recordCache, logger)
	userSvc := service.NewUserService(userRepo, fileRepo, logger)

	// 10. Сессии dashboard (в памяти процесса)
	sessions := auth.NewSessionStore(cfg.SessionTTL, cfg.CookieSecure, service.GenerateKey)

	// 11. HTTP handlers
	opts := handlers.Options{
		BaseURL:           cfg.BaseURL,
		OverwriteProtocol: cfg.OverwriteProtocol,
		FileCacheControl:  cfg.FileCacheControl,
	}
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), store)
	sessionAuth := middleware.NewSessionAuth(sessions, userSvc, logger)

	apiHandler := handlers.NewAPIHandler(
		handlers.NewFeedHandler(userSvc, uploadSvc, logger),
		handlers.NewFilesHandler(fileSvc, opts, logger),
		handlers.NewSitesHandler(opts, logger),
		handlers.NewDashboardHandler(userSvc, sessions, logger),
		healthHandler,
		sessionAuth.Middleware(),
	)

	// 12. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, err := service.NewDephealthService(cfg, pgDB, logger)
	if err != nil {
		logger.Warn("Ошибка создания topologymetrics, мониторинг зависимостей отключён",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	}
	if dephealthSvc != nil {
		if startErr := dephealthSvc.Start(context.Background()); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler,
		middleware.RequestID(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("cpsu остановлен")
}

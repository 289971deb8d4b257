// dephealth.go — состояние PostgreSQL в метриках topologymetrics.
// Проверка идёт через общий пул (*sql.DB поверх pgxpool), поэтому исчерпание
// пула видно в метриках так же, как недоступность сервера.
package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"

	"github.com/sinnlosername/cpsu/internal/config"
)

// dephealthServiceID — имя вершины cpsu в графе зависимостей.
const dephealthServiceID = "cpsu"

// DephealthService публикует app_dependency_* для PostgreSQL.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService настраивает проверку PostgreSQL по параметрам cfg.
// opts дополняют настройки SDK (например, отдельный registry в тестах).
func NewDephealthService(
	cfg *config.Config,
	db *sql.DB,
	logger *slog.Logger,
	opts ...dephealth.Option,
) (*DephealthService, error) {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.DatabaseURL()),
		dephealth.CheckInterval(cfg.DephealthCheckInterval),
		dephealth.Critical(true),
	}
	if cfg.DephealthIsEntry {
		depOpts = append(depOpts, dephealth.WithLabel("isentry", "yes"))
	}

	all := append([]dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)), depOpts...),
	}, opts...)

	dh, err := dephealth.New(dephealthServiceID, cfg.DephealthGroup, all...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодические проверки.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Проверки PostgreSQL для topologymetrics запущены")
	return ds.dh.Start(ctx)
}

// Stop останавливает проверки.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Проверки PostgreSQL для topologymetrics остановлены")
}

// Health — последнее состояние по ключам "postgresql:<host>:<port>".
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

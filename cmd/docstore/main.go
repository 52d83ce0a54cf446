// Точка входа docstore — сервиса загрузки и выдачи документов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/docstore/internal/api/handlers"
	"github.com/bigkaa/docstore/internal/api/openapi"
	"github.com/bigkaa/docstore/internal/config"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/server"
	"github.com/bigkaa/docstore/internal/service"
	"github.com/bigkaa/docstore/internal/storage/lease"
	"github.com/bigkaa/docstore/internal/store"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("docstore запускается",
		slog.String("version", config.Version),
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("reference_mode", cfg.ReferenceMode),
		slog.String("index_mode", cfg.IndexMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Инициализация компонентов ---

	// 1. Контракт API: встроенная спецификация должна быть валидной
	if _, err := openapi.Load(ctx); err != nil {
		logger.Error("Некорректная спецификация OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Хранилище: каталоги, восстановление журнала, индекс
	var categoryOpts []model.TableOption
	if cfg.AllowImages {
		categoryOpts = append(categoryOpts, model.WithImages())
	}
	st, err := store.New(store.Options{
		Root:          cfg.StorageDir,
		StageDir:      cfg.TempDir,
		WALDir:        cfg.WALDir,
		Categories:    model.NewCategoryTable(categoryOpts...),
		ReferenceMode: store.ReferenceMode(cfg.ReferenceMode),
		IndexMode:     store.IndexMode(cfg.IndexMode),
		CacheSize:     cfg.ResolveCacheSize,
		CacheTTL:      cfg.ResolveCacheTTL,
		RecoverGrace:  cfg.RecoverGrace,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Сервисы
	uploadSvc := service.NewUploadService(cfg, st, logger)
	downloadSvc := service.NewDownloadService(st, logger)

	// 4. Аренда обслуживания: при общем корне хранилища GC и плановую
	// сверку выполняет только один процесс
	maintenanceLease := lease.New(st.Blobs().Root(), instanceID(cfg.Port), 0, logger)
	if err := maintenanceLease.Start(); err != nil {
		logger.Error("Ошибка аренды обслуживания", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Фоновые процессы
	gcSvc := service.NewGCService(st, cfg.GCInterval, cfg.StagingMaxAge, logger)
	gcSvc.UseLease(maintenanceLease)
	gcSvc.Start(ctx)

	reconcileSvc := service.NewReconcileService(st, cfg.ReconcileInterval, cfg.ReconcileChecksum, logger)
	reconcileSvc.UseLease(maintenanceLease)
	reconcileSvc.Start(ctx)

	// 6. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(uploadSvc, downloadSvc, cfg.MaxFileSize, cfg.BaseURL),
		handlers.NewSystemHandler(cfg, st, diskUsageFn(st.Blobs().Root()), logger),
		handlers.NewMaintenanceHandler(reconcileSvc),
		handlers.NewHealthHandler(st.Blobs().Root(), st.Blobs().StageDir(), st.WAL().Dir(), st),
	)

	// 7. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler)
	runErr := srv.Run(ctx)

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	cancel()
	gcSvc.Stop()
	reconcileSvc.Stop()
	maintenanceLease.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("docstore остановлен")
}

// instanceID формирует идентификатор процесса: hostname:port.
func instanceID(port int) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return fmt.Sprintf("%s:%d", hostname, port)
}

// Точка входа BlockEvidence — сервис учёта цепочки хранения улик.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и API handlers, запускает фоновые задачи
// (очередь уведомлений, проверка сроков хранения, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/blockevidence/internal/api/handlers"
	"github.com/bigkaa/blockevidence/internal/api/middleware"
	"github.com/bigkaa/blockevidence/internal/api/openapi"
	"github.com/bigkaa/blockevidence/internal/config"
	"github.com/bigkaa/blockevidence/internal/database"
	"github.com/bigkaa/blockevidence/internal/filestore"
	"github.com/bigkaa/blockevidence/internal/outbox"
	"github.com/bigkaa/blockevidence/internal/server"
	"github.com/bigkaa/blockevidence/internal/service"
)

func main() {
	// 0. Переменные окружения из .env (если файл есть)
	envErr := godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("BlockEvidence запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)
	if envErr != nil {
		logger.Debug("Файл .env не загружен, используются переменные окружения",
			slog.String("reason", envErr.Error()),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище файлов и слой данных
	files, err := filestore.New(cfg.DataDir, cfg.MaxUploadSize)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := service.NewStore(pool)

	// 6. Доставка уведомлений: очередь River или запись в транзакции
	var dispatcher service.NotificationDispatcher = outbox.InlineDispatcher{}
	var queue *outbox.Queue
	if cfg.OutboxEnabled {
		if err := database.MigrateQueue(ctx, pool, logger); err != nil {
			logger.Error("Ошибка миграций очереди", slog.String("error", err.Error()))
			os.Exit(1)
		}
		queue, err = outbox.NewQueue(pool, cfg.OutboxWorkers, logger)
		if err != nil {
			logger.Error("Ошибка создания очереди уведомлений", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := queue.Start(ctx); err != nil {
			logger.Error("Ошибка запуска очереди уведомлений", slog.String("error", err.Error()))
			os.Exit(1)
		}
		dispatcher = queue.Dispatcher()
	} else {
		logger.Info("Очередь уведомлений отключена (BE_OUTBOX_ENABLED=false)")
	}

	// 7. Ключ подписи токенов
	tokens, err := service.NewTokenIssuer(cfg.JWTPrivateKeyPath, cfg.JWTIssuer, cfg.JWTTTL, logger)
	if err != nil {
		logger.Error("Ошибка загрузки ключа подписи", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Services
	authSvc := service.NewAuthService(store, tokens, logger)
	verifySvc := service.NewVerifyService(store, cfg.VerifyCacheSize, cfg.VerifyCacheTTL, logger)
	svc := handlers.Services{
		Auth:           authSvc,
		Cases:          service.NewCaseService(store, logger),
		Evidence:       service.NewEvidenceService(store, files, cfg.AppPublicURL, verifySvc, logger),
		Comments:       service.NewCommentService(store, logger),
		AccessRequests: service.NewAccessRequestService(store, dispatcher, logger),
		Custody:        service.NewCustodyService(store, dispatcher, logger),
		Feed:           service.NewFeedService(store, logger),
		Verify:         verifySvc,
	}

	// 9. Фоновая проверка сроков хранения
	sweeper := service.NewRetentionSweeper(store, dispatcher, cfg.RetentionSweepInterval, logger)
	sweeper.Start(ctx)

	// 10. topologymetrics — мониторинг зависимостей
	var deps handlers.DependencyReporter
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthOptions{
		ServiceID:     "blockevidence",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseURL(),
		RemoteJWKSURL: cfg.JWTRemoteJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Health и API handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), deps, tokens)
	apiHandler := handlers.NewAPIHandler(healthHandler, svc, logger)

	// 12. JWT middleware: токены сервиса и, опционально, внешнего IdP
	jwtAuth, err := middleware.NewJWTAuth(
		tokens.JWKS(),
		tokens.Issuer(),
		middleware.RemoteOptions{
			JWKSURL:         cfg.JWTRemoteJWKSURL,
			Issuer:          cfg.JWTRemoteIssuer,
			RefreshInterval: cfg.JWKSRefreshInterval,
			Resolver:        authSvc,
		},
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	jwtAuth.WithStatusCheck(authSvc, cfg.AuthStatusTTL)
	logger.Info("JWT middleware инициализирован",
		slog.String("issuer", tokens.Issuer()),
		slog.String("remote_jwks_url", cfg.JWTRemoteJWKSURL),
	)

	// 13. Проверка запросов по OpenAPI-контракту (опционально)
	opts := server.Options{
		JWTAuth:       jwtAuth,
		TrustProxy:    cfg.TrustProxy,
		LoginLimiter:  middleware.NewRateLimiter("login", cfg.RateLimitRPS, cfg.RateLimitBurst),
		VerifyLimiter: middleware.NewRateLimiter("verify", cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	if cfg.OpenAPIValidate {
		doc, err := openapi.Load(ctx)
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if opts.Validator, err = openapi.NewValidator(doc, logger); err != nil {
			logger.Error("Ошибка создания OpenAPI-валидатора", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Проверка запросов по OpenAPI-контракту включена")
	}

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, opts)
	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	sweeper.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if queue != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := queue.Stop(stopCtx); err != nil {
			logger.Warn("Очередь уведомлений остановлена с ошибкой", slog.String("error", err.Error()))
		}
		stopCancel()
	}

	logger.Info("BlockEvidence остановлен")
	if runErr != nil {
		os.Exit(1)
	}
}

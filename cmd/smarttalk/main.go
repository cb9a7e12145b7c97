// Точка входа SmartTalk — чат-клиент с ассистентом Gemini.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт сервис аутентификации, реестр браузерных клиентов, поток
// переписки (LISTEN/NOTIFY), мониторинг зависимостей (topologymetrics)
// и HTTP-сервер с graceful shutdown.
//
// Команды:
//
//	smarttalk [serve]             запуск сервера (по умолчанию)
//	smarttalk migrate [up|down]   применение или откат миграций
//	smarttalk grant-admin <email> выдать роль admin
//	smarttalk revoke-admin <email> отозвать роль admin
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	apihandlers "github.com/bigkaa/smarttalk/internal/api/handlers"
	"github.com/bigkaa/smarttalk/internal/api/middleware"
	"github.com/bigkaa/smarttalk/internal/auth"
	"github.com/bigkaa/smarttalk/internal/config"
	"github.com/bigkaa/smarttalk/internal/database"
	"github.com/bigkaa/smarttalk/internal/gemini"
	"github.com/bigkaa/smarttalk/internal/repository"
	"github.com/bigkaa/smarttalk/internal/server"
	"github.com/bigkaa/smarttalk/internal/service"
	uihandlers "github.com/bigkaa/smarttalk/internal/ui/handlers"
	"github.com/bigkaa/smarttalk/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
	"github.com/bigkaa/smarttalk/internal/ui/pages"
	"github.com/bigkaa/smarttalk/internal/ui/session"
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

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg, logger)
	case "migrate":
		err = migrateCmd(cfg, logger, args)
	case "grant-admin", "revoke-admin":
		err = adminCmd(cfg, logger, cmd, args)
	default:
		err = fmt.Errorf("неизвестная команда %q (serve, migrate, grant-admin, revoke-admin)", cmd)
	}
	if err != nil {
		logger.Error("Ошибка выполнения команды",
			slog.String("command", cmd),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("SmartTalk запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("ST_DEPHEALTH_GROUP") == "" {
		logger.Warn("ST_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	identityRepo := repository.NewIdentityRepository(pool)
	authzRepo := repository.NewAuthorizationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	bootstrapAdmins(ctx, cfg, pool, logger)

	// 6. Живой поток переписки (LISTEN messages)
	messageFeed := repository.NewMessageFeed(pool, messageRepo, logger)
	messageFeed.Start(ctx)
	defer messageFeed.Stop()

	// 7. Аутентификация: ключ подписи, выпуск и проверка id-токенов
	signingKey, err := auth.LoadOrGenerateKey(cfg.AuthSigningKeyPath)
	if err != nil {
		return err
	}
	if cfg.AuthSigningKeyPath == "" {
		logger.Warn("ST_AUTH_SIGNING_KEY_PATH не задан, id-токены не переживают рестарт")
	}
	issuer := auth.NewTokenIssuer(signingKey, cfg.AuthIssuer, cfg.AuthTokenTTL)
	verifier, err := auth.NewTokenVerifier(issuer.JWKS(), cfg.AuthIssuer)
	if err != nil {
		return fmt.Errorf("проверка id-токенов: %w", err)
	}
	authSvc := auth.NewService(identityRepo, issuer, verifier, auth.Options{
		BcryptCost:        cfg.BcryptCost,
		MinPasswordLength: cfg.MinPasswordLength,
	}, logger)

	// 8. Gemini API (ключ хранится только на сервере)
	generator := gemini.New(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey, cfg.GeminiTimeout, nil, logger)
	logger.Info("Gemini клиент создан",
		slog.String("url", cfg.GeminiBaseURL),
		slog.String("model", cfg.GeminiModel),
	)

	// 9. Реестр браузерных клиентов
	registry := service.NewClientRegistry(cfg.ClientCacheSize, cfg.ClientIdleTTL,
		func(id string) *service.Client {
			return service.NewClient(id, service.Deps{
				Sessions:      authSvc,
				Authz:         authzRepo,
				Messages:      messageFeed,
				Store:         messageRepo,
				Generator:     generator,
				Identities:    identityRepo,
				LookupTimeout: cfg.AuthzLookupTimeout,
				MaxMessageLen: cfg.MaxMessageLength,
			}, logger)
		},
		authSvc.Forget,
		logger,
	)
	defer registry.Close()

	// Диспетчер JSON API (синхронный ответ ассистента)
	apiDispatcher := service.NewDispatcher(messageRepo, generator, cfg.MaxMessageLength, logger)
	defer apiDispatcher.Close()

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + Gemini API)
	var geminiChecker apihandlers.ReadinessChecker
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "smarttalk",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		GeminiBaseURL: cfg.GeminiBaseURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
		geminiChecker = apihandlers.NewDependencyChecker(dephealthSvc.Health, "gemini-api")
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. API handler
	healthHandler := apihandlers.NewHealthHandler(database.NewReadinessChecker(pool), geminiChecker)
	apiHandler := apihandlers.NewAPIHandler(healthHandler, messageRepo, identityRepo, apiDispatcher, authSvc, logger)

	// 12. UI: cookie клиента, переводы, шаблоны
	cookies, err := session.NewManager(cfg.SessionSecret, cfg.SecureCookie)
	if err != nil {
		return fmt.Errorf("cookie клиента: %w", err)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("ST_SESSION_SECRET не задан, cookie клиентов не переживают рестарт")
	}
	bundle, err := i18n.Load(logger)
	if err != nil {
		return err
	}
	renderer := pages.NewRenderer(bundle)
	uiHandler := uihandlers.New(authSvc, cookies, renderer, cfg.ChatbotName, cfg.SSEKeepalive, logger)

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Components{
		API:           apiHandler,
		BearerAuth:    middleware.NewBearerAuth(authSvc, authzRepo, cookies.TokenFromRequest, cfg.AuthzLookupTimeout, logger),
		UI:            uiHandler,
		ClientContext: uimiddleware.NewClientContext(cookies, authSvc, registry, logger),
	})
	// Закрытие клиентов завершает их SSE-потоки, иначе Shutdown ждал бы таймаута.
	srv.RegisterOnShutdown(registry.Close)

	if err := srv.Run(); err != nil {
		return err
	}

	// 14. Graceful shutdown фоновых задач (defer: реестр, диспетчер, dephealth, поток, пул)
	logger.Info("Останавливаем фоновые задачи...")
	return nil
}

// bootstrapAdmins выдаёт роль admin адресам из ST_BOOTSTRAP_ADMINS.
// Отсутствующие учётные записи пропускаются.
func bootstrapAdmins(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) {
	for _, email := range cfg.BootstrapAdmins {
		err := setAdmin(ctx, pool, email, true)
		switch {
		case err == nil:
			logger.Info("Роль admin выдана при старте", slog.String("email", email))
		case errors.Is(err, repository.ErrNotFound):
			logger.Warn("Учётная запись для ST_BOOTSTRAP_ADMINS не найдена", slog.String("email", email))
		default:
			logger.Error("Ошибка выдачи роли admin",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
	}
}

// setAdmin выдаёт или отзывает роль admin в одной транзакции.
func setAdmin(ctx context.Context, pool *pgxpool.Pool, email string, grant bool) error {
	return repository.NewTxRunner(pool).RunInTx(ctx, func(tx pgx.Tx) error {
		creds, err := repository.NewIdentityRepository(tx).GetCredentials(ctx, repository.NormalizeEmail(email))
		if err != nil {
			return err
		}
		authz := repository.NewAuthorizationRepository(tx)
		if grant {
			return authz.Grant(ctx, creds.Identity.ID)
		}
		return authz.Revoke(ctx, creds.Identity.ID)
	})
}

func migrateCmd(cfg *config.Config, logger *slog.Logger, args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	switch direction {
	case "up":
		return database.Migrate(cfg, logger)
	case "down":
		return database.MigrateDown(cfg, logger)
	default:
		return fmt.Errorf("неизвестное направление миграции %q (up, down)", direction)
	}
}

func adminCmd(cfg *config.Config, logger *slog.Logger, cmd string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("использование: smarttalk %s <email>", cmd)
	}
	email := args[0]

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	grant := cmd == "grant-admin"
	if err := setAdmin(ctx, pool, email, grant); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("учётная запись %s не найдена или роль admin не выдана", email)
		}
		return err
	}
	logger.Info("Роль admin обновлена",
		slog.String("email", email),
		slog.Bool("granted", grant),
	)
	return nil
}

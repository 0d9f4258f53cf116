package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/idlink-api/internal/config"
	"github.com/yourusername/idlink-api/internal/domain/repository"
	"github.com/yourusername/idlink-api/internal/handler"
	"github.com/yourusername/idlink-api/internal/middleware"
	"github.com/yourusername/idlink-api/internal/repository/directory"
	memRepo "github.com/yourusername/idlink-api/internal/repository/memory"
	pgRepo "github.com/yourusername/idlink-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/idlink-api/internal/repository/redis"
	"github.com/yourusername/idlink-api/internal/service"
	"github.com/yourusername/idlink-api/pkg/auth"
	"github.com/yourusername/idlink-api/pkg/database"
	"github.com/yourusername/idlink-api/pkg/keys"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis (rate limiting и, опционально,
	// кеш handshake-сессий)
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	mappingRepo := pgRepo.NewIdentityMappingRepo(db)
	accountRepo := pgRepo.NewAccountRepo(db)
	eventRepo := pgRepo.NewEventLogRepo(db)

	// Кеш handshake-сессий: memory для одного инстанса, redis для
	// горизонтального масштабирования
	var sessionStore repository.SessionStore
	switch cfg.SessionCache.Backend {
	case "redis":
		sessionStore, err = redisRepo.NewSessionStore(redisClient, service.SessionTTL)
		if err != nil {
			log.Printf("Failed to initialize redis session store: %v", err)
			os.Exit(1)
		}
		log.Println("Session cache backend: redis")
	default:
		sessionStore = memRepo.NewSessionStore(cfg.SessionCache.MaxEntries, service.SessionTTL)
		log.Println("Session cache backend: memory")
	}

	// JWT сервис для локальных сессий
	jwtService, err := auth.NewJWTService(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiryMins)*time.Minute,
		time.Duration(cfg.JWT.RefreshExpiryHrs)*time.Hour,
	)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Внешние адреса. Когда линковка выключена, все endpoints отвечают
	// feature_disabled, но коллабораторы все равно должны существовать,
	// поэтому подставляем заведомо нерабочие placeholder'ы.
	providerBaseURL, err := cfg.LinkAuth.NormalizedProviderBaseURL()
	if err != nil {
		if cfg.LinkAuth.Enabled {
			log.Printf("Invalid linkauth provider base url: %v", err)
			os.Exit(1)
		}
		providerBaseURL = "https://provider.invalid"
	}
	directoryURL := cfg.Directory.URL
	if directoryURL == "" {
		if cfg.LinkAuth.Enabled {
			log.Printf("directory.url is required when linkauth is enabled")
			os.Exit(1)
		}
		directoryURL = "https://directory.invalid"
	}

	providerClient, err := service.NewHTTPProviderClient(providerBaseURL)
	if err != nil {
		log.Printf("Failed to initialize provider client: %v", err)
		os.Exit(1)
	}
	dirClient, err := directory.NewClient(directoryURL, cfg.Directory.Timeout())
	if err != nil {
		log.Printf("Failed to initialize directory client: %v", err)
		os.Exit(1)
	}
	repoStore := memRepo.NewRepoStore()
	keygen := keys.NewEd25519Generator()

	// Инициализируем сервисы
	accountService, err := service.NewAccountService(accountRepo, mappingRepo, jwtService)
	if err != nil {
		log.Printf("Failed to initialize AccountService: %v", err)
		os.Exit(1)
	}
	handleService, err := service.NewHandleService(accountService, cfg.LinkAuth.PrimaryHandleDomain())
	if err != nil {
		log.Printf("Failed to initialize HandleService: %v", err)
		os.Exit(1)
	}
	provisionService, err := service.NewProvisionService(
		cfg.LinkAuth,
		providerClient.ProviderKey(),
		cfg.Server.PublicURL,
		mappingRepo,
		eventRepo,
		accountService,
		handleService,
		dirClient,
		repoStore,
		keygen,
	)
	if err != nil {
		log.Printf("Failed to initialize ProvisionService: %v", err)
		os.Exit(1)
	}
	linkService, err := service.NewLinkService(
		cfg.LinkAuth,
		cfg.Server.PublicURL,
		sessionStore,
		providerClient,
		provisionService,
		service.NewApprovalVerifier(cfg.LinkAuth.AllowAll),
		mappingRepo,
	)
	if err != nil {
		log.Printf("Failed to initialize LinkService: %v", err)
		os.Exit(1)
	}

	// Инициализируем обработчики и middleware
	linkHandler := handler.NewLinkHandler(linkService)
	sessionHandler := handler.NewSessionHandler(accountService)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	isProduction := gin.Mode() == gin.ReleaseMode

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// В production (GIN_MODE=release): не доверяем прокси (защита от IP spoofing)
	// При деплое за load balancer: добавьте IP балансировщика в список
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.PublicURL, "http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	// Групповой потолок по IP поверх по-endpoint'ных лимитов
	api.Use(rateLimiter.LimitByIP(middleware.GroupRateLimitConfig()))
	{
		linkGroup := api.Group("/linkauth")
		{
			// init и login уходят к провайдеру/запускают провижининг:
			// строгий лимит. OptionalAuth: оба доступны анонимно, но
			// аутентифицированный вызов меняет семантику (link вместо login).
			strict := rateLimiter.Limit(middleware.StrictLinkRateLimitConfig())
			linkGroup.POST("/init", strict, authMiddleware.OptionalAuth(), linkHandler.Init)
			linkGroup.POST("/login", strict, authMiddleware.OptionalAuth(), linkHandler.Login)

			// callback приходит от провайдера, status опрашивается клиентом
			defaultLimit := rateLimiter.Limit(middleware.DefaultLinkRateLimitConfig())
			linkGroup.POST("/callback", defaultLimit, linkHandler.Callback)
			linkGroup.POST("/status", defaultLimit, linkHandler.Status)

			// Управление существующей привязкой
			linkGroup.GET("/link", authMiddleware.RequireAuth(), linkHandler.GetLink)
			linkGroup.DELETE("/link", authMiddleware.RequireAuth(), linkHandler.Unlink)
		}

		sessionGroup := api.Group("/session")
		{
			sessionGroup.POST("/refresh",
				rateLimiter.Limit(middleware.DefaultLinkRateLimitConfig()),
				sessionHandler.Refresh)
		}
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ждем сигнал остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown с таймаутом
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}

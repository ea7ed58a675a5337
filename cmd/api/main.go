package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "standup-desk/docs" // This is for Swagger
	"standup-desk/internal/auth"
	"standup-desk/internal/config"
	"standup-desk/internal/database"
	"standup-desk/internal/email"
	"standup-desk/internal/handlers"
	"standup-desk/internal/logger"
	"standup-desk/internal/middleware"
	"standup-desk/internal/models"
	"standup-desk/internal/notify"
	"standup-desk/internal/queue"
	"standup-desk/internal/realtime"
	"standup-desk/internal/repository"
	"standup-desk/internal/response"
	"standup-desk/internal/scheduler"
	"standup-desk/internal/service"
	"standup-desk/internal/storage"
	"standup-desk/internal/tasks"
	"standup-desk/internal/vault"
	"standup-desk/migrations"

	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Standup Desk API
// @version 1.0
// @description Backend API for daily standups, blockers and attendance

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	logCloser := logger.Setup(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	// Secrets from Vault override the environment
	var vaultClient *vault.Client
	if cfg.Vault.Enabled {
		ctx, cancel := getContext(10 * time.Second)
		err := vault.LoadSecrets(ctx, cfg)
		cancel()
		if err != nil {
			slog.Error("Failed to load secrets from Vault", "error", err)
			os.Exit(1)
		}
		vaultClient, err = vault.NewClient(&cfg.Vault)
		if err != nil {
			slog.Error("Failed to initialize Vault client", "error", err)
			os.Exit(1)
		}
		slog.Info("Secrets loaded from Vault", "vault_addr", cfg.Vault.Address)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	response.HideInternalErrors(cfg.App.IsProduction())

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"timezone", cfg.App.Timezone,
		"log_level", logger.GetLevel(cfg.Log.Level),
	)

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func(db *database.Database) {
		err := db.Close()
		if err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}(db)

	slog.Info("Database connection established")

	// Run database migrations
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 2*time.Minute)
	applied, err := database.NewMigrator(db.DB, migrations.FS, cfg.Database.MigrationsDir).Up(migrateCtx)
	cancelMigrate()
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed", "applied", applied)

	loc := cfg.App.Location()
	clock := service.SystemClock(loc)
	cutoffHour, cutoffMinute, err := cfg.Scheduler.LateCutoffClock()
	if err != nil {
		slog.Error("Invalid late cutoff", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)
	standupRepo := repository.NewStandupRepository(db.DB)
	blockerRepo := repository.NewBlockerRepository(db.DB)
	attendanceRepo := repository.NewAttendanceRepository(db.DB)
	fileRepo := repository.NewFileRepository(db.DB)
	reportRepo := repository.NewReportRepository(db.DB)
	notificationLogRepo := repository.NewNotificationLogRepository(db.DB)

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		slog.Error("Failed to initialize file storage", "error", err)
		os.Exit(1)
	}

	// Notification channels
	hub := realtime.NewHub(cfg.CORS.AllowedOrigins)
	defer hub.Close()
	var broadcaster notify.Broadcaster
	if cfg.Notify.WebSocketEnabled {
		broadcaster = hub
	}
	emailService := email.NewService(&cfg.Email)
	notifier := notify.NewService(notificationLogRepo, userRepo, emailService, broadcaster, notify.NewSlackClient(10*time.Second), notify.Config{
		ManagerWebhook: cfg.Notify.SlackManagerWebhook,
		AdminWebhook:   cfg.Notify.SlackAdminWebhook,
		ManagerChannel: cfg.Notify.ManagerChannel,
		AdminChannel:   cfg.Notify.AdminChannel,
	})

	llm := service.NewLLMService(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.Timeout, cfg.LLM.Enabled)
	aiService := service.NewAIService(llm, standupRepo, blockerRepo)

	// Task queue: Redis backed when configured, in-process otherwise
	taskHandlers := queue.NewHandlers(aiService, notifier, standupRepo, blockerRepo, userRepo)
	var publisher tasks.Publisher
	var inline *queue.Inline
	var worker *queue.Server
	if cfg.Redis.URL != "" {
		client, err := queue.NewClient(cfg.Redis.URL, cfg.Queue)
		if err != nil {
			slog.Error("Failed to initialize task queue", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		worker, err = queue.NewServer(cfg.Redis.URL, cfg.Queue, slog.Default())
		if err != nil {
			slog.Error("Failed to initialize worker", "error", err)
			os.Exit(1)
		}
		if err := worker.Start(taskHandlers); err != nil {
			slog.Error("Failed to start worker", "error", err)
			os.Exit(1)
		}
		publisher = client
	} else {
		slog.Warn("REDIS_URL is not set - tasks run in-process without retries")
		inline = queue.NewInline(taskHandlers, cfg.Queue.TaskTimeout)
		publisher = inline
	}

	// Initialize services
	tokenService := auth.NewService(&cfg.JWT)
	auditService := service.NewAuditService(auditRepo)
	attendanceService := service.NewAttendanceService(attendanceRepo, clock, cutoffHour, cutoffMinute)
	authService := service.NewAuthService(userRepo, sessionRepo, tokenService, attendanceService, auditService)
	standupService := service.NewStandupService(standupRepo, attendanceService, publisher, clock)
	blockerService := service.NewBlockerService(blockerRepo, standupRepo, userRepo, publisher, clock)
	reportService := service.NewReportService(reportRepo, aiService, clock)
	fileService := service.NewFileService(fileRepo, fileStore, standupRepo, blockerRepo, service.FileLimits{
		MaxFileSize:       cfg.Storage.MaxFileSize,
		MaxFilesPerParent: cfg.Storage.MaxFilesPerParent,
		AllowedExtensions: cfg.Storage.AllowedExtensions,
	})

	// Initialize scheduler
	checks := map[string]handlers.HealthChecker{
		"database": func(context.Context) error { return db.HealthCheck() },
	}
	var locker scheduler.Locker
	if cfg.Redis.URL != "" {
		redisLocker, err := scheduler.NewRedisLocker(cfg.Redis.URL)
		if err != nil {
			slog.Error("Failed to initialize job lock", "error", err)
			os.Exit(1)
		}
		defer redisLocker.Close()
		checks["redis"] = redisLocker.Ping
		locker = redisLocker
	} else {
		locker = scheduler.NewMemoryLocker()
	}
	if vaultClient != nil {
		checks["vault"] = func(context.Context) error { return vaultClient.Health() }
	}

	schedulerService := scheduler.NewScheduler(locker, cfg.Scheduler.LockTTL, loc)
	if err := scheduler.RegisterJobs(schedulerService, cfg.Scheduler, scheduler.Deps{
		Reminders:  userRepo,
		Publisher:  publisher,
		Attendance: attendanceService,
		Reports:    reportService,
		Sender:     notifier,
		Sessions:   sessionRepo,
	}); err != nil {
		slog.Error("Failed to register scheduled jobs", "error", err)
		os.Exit(1)
	}
	schedulerService.Start()
	defer schedulerService.Stop()

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(authService)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)
	defer rateLimiter.Stop()
	auditMw := middleware.NewAuditMiddleware(auditService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(authService)
	sessionHandler := handlers.NewSessionHandler(authService)
	standupHandler := handlers.NewStandupHandler(standupService, loc)
	blockerHandler := handlers.NewBlockerHandler(blockerService, loc)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService, loc)
	aiHandler := handlers.NewAIHandler(aiService, standupService, blockerService)
	reportHandler := handlers.NewReportHandler(reportService, schedulerService)
	logHandler := handlers.NewLogHandler(notificationLogRepo, auditRepo)
	fileHandler := handlers.NewFileHandler(fileService, cfg.Storage.MaxFileSize*int64(cfg.Storage.MaxFilesPerParent)+(1<<20))
	wsHandler := handlers.NewWebSocketHandler(authService, hub)
	systemHandler := handlers.NewSystemHandler(cfg, checks)

	// Setup router
	mux := http.NewServeMux()
	api := &routes{mux: mux, prefix: "/api/v1", auth: authMw, audit: auditMw}

	// Public routes
	api.public("POST", "/auth/login", authHandler.Login)
	api.public("POST", "/auth/refresh", authHandler.Refresh)
	api.public("GET", "/config/app", systemHandler.GetAppConfig)
	api.public("GET", "/health", systemHandler.Health)

	// Account
	api.role(models.RoleEmployee, "POST", "/auth/logout", authHandler.Logout)
	api.role(models.RoleEmployee, "GET", "/users/me", authHandler.Me)
	api.role(models.RoleEmployee, "GET", "/users/me/sessions", sessionHandler.GetMySessions)
	api.role(models.RoleEmployee, "DELETE", "/users/me/sessions/{sessionId}", sessionHandler.DeleteMySession)

	// User administration
	api.role(models.RoleAdmin, "GET", "/admin/users", userHandler.List)
	api.audited(models.RoleAdmin, "POST", "/admin/users", "user.create", "users", userHandler.Create)
	api.audited(models.RoleAdmin, "PUT", "/admin/users/{id}", "user.update", "user:{id}", userHandler.Update)
	api.role(models.RoleAdmin, "POST", "/admin/users/{id}/deactivate", userHandler.Deactivate)
	api.role(models.RoleAdmin, "GET", "/admin/audit-logs", logHandler.AuditLogs)

	// Standups
	api.role(models.RoleEmployee, "POST", "/standups", standupHandler.Create)
	api.role(models.RoleEmployee, "POST", "/standups/goal", standupHandler.SetGoal)
	api.role(models.RoleEmployee, "GET", "/standups/today", standupHandler.Today)
	api.role(models.RoleEmployee, "GET", "/standups/history", standupHandler.History)
	api.role(models.RoleManager, "GET", "/standups/pending-review", standupHandler.PendingReview)
	api.role(models.RoleManager, "GET", "/standups/team", standupHandler.Team)
	api.role(models.RoleEmployee, "GET", "/standups/{id}", standupHandler.Get)
	api.role(models.RoleEmployee, "POST", "/standups/{id}/submit", standupHandler.Submit)
	api.role(models.RoleManager, "POST", "/standups/{id}/review", standupHandler.Review)

	// Blockers
	api.role(models.RoleEmployee, "POST", "/blockers", blockerHandler.Raise)
	api.role(models.RoleEmployee, "GET", "/blockers", blockerHandler.List)
	api.role(models.RoleManager, "GET", "/blockers/analytics", blockerHandler.Analytics)
	api.role(models.RoleEmployee, "GET", "/blockers/{id}", blockerHandler.Get)
	api.role(models.RoleEmployee, "PUT", "/blockers/{id}/status", blockerHandler.UpdateStatus)
	api.role(models.RoleEmployee, "POST", "/blockers/{id}/escalate", blockerHandler.Escalate)
	api.role(models.RoleEmployee, "POST", "/blockers/{id}/resolve", blockerHandler.Resolve)

	// Attendance
	api.role(models.RoleEmployee, "POST", "/attendance/check-in", attendanceHandler.CheckIn)
	api.role(models.RoleEmployee, "POST", "/attendance/check-out", attendanceHandler.CheckOut)
	api.role(models.RoleEmployee, "GET", "/attendance/today", attendanceHandler.Today)
	api.role(models.RoleManager, "GET", "/attendance/report", attendanceHandler.Report)

	// AI advisory
	api.role(models.RoleEmployee, "POST", "/ai/suggest-goal", aiHandler.SuggestGoal)
	api.role(models.RoleEmployee, "POST", "/ai/analyze/standups/{id}", aiHandler.AnalyzeStandup)
	api.role(models.RoleEmployee, "POST", "/ai/analyze/blockers/{id}", aiHandler.TriageBlocker)

	// Reports and jobs
	api.role(models.RoleManager, "GET", "/reports/weekly", reportHandler.Weekly)
	api.role(models.RoleAdmin, "GET", "/admin/jobs", reportHandler.ListJobs)
	api.audited(models.RoleAdmin, "POST", "/admin/jobs/{name}/run", "job.run", "job:{name}", reportHandler.RunJob)
	api.role(models.RoleAdmin, "GET", "/notifications/logs", logHandler.NotificationLogs)

	// Attachments
	api.role(models.RoleEmployee, "POST", "/files/{parentType}/{parentId}", fileHandler.Upload)
	api.role(models.RoleEmployee, "GET", "/files/{parentType}/{parentId}", fileHandler.List)
	api.role(models.RoleEmployee, "GET", "/files/{id}/download", fileHandler.Download)

	// Notification stream authenticates the handshake itself
	if cfg.Notify.WebSocketEnabled {
		api.public("GET", "/ws/notifications", wsHandler.Notifications)
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", systemHandler.Health)

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(
				rateLimiter.Limit(
					envelopeErrors(mux),
				),
			),
		),
	)

	// Create server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	// Graceful shutdown with timeout
	ctx, cancel := getContext(30 * time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// drain background work before the database closes
	if worker != nil {
		worker.Shutdown()
	}
	if inline != nil {
		inline.Wait()
	}

	slog.Info("Server stopped")
}

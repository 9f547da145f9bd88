package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erp-backend/internal/analytics"
	"erp-backend/internal/auth"
	"erp-backend/internal/backup"
	"erp-backend/internal/cache"
	"erp-backend/internal/config"
	"erp-backend/internal/database"
	"erp-backend/internal/db"
	"erp-backend/internal/files"
	"erp-backend/internal/handlers"
	"erp-backend/internal/health"
	h "erp-backend/internal/http"
	"erp-backend/internal/logging"
	"erp-backend/internal/mailer"
	"erp-backend/internal/middleware"
	"erp-backend/internal/monitoring"
	"erp-backend/internal/realtime"
	"erp-backend/internal/repositories"
	"erp-backend/internal/services"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.InMemory {
		return store.OpenInMemory()
	}
	return store.Open(cfg.Store.Path)
}

// connectRemote brings up the optional remote store. A nil service means the
// process runs on the local store alone.
func connectRemote(ctx context.Context, cfg *config.Config, repos *repositories.Repositories, docs *repositories.DocumentRepository, log zerolog.Logger) (*services.SyncService, *pgxpool.Pool) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("remote store unreachable, continuing on local store only")
		return nil, nil
	}
	if err := database.NewMigrator(pool).RunMigrations(ctx); err != nil {
		log.Error().Err(err).Msg("remote store migrations failed, sync disabled")
		pool.Close()
		return nil, nil
	}

	source, _ := os.Hostname()
	syncer := services.NewSyncService(docs, repositories.NewSnapshotRepository(pool), source,
		time.Duration(cfg.Database.SyncIntervalSeconds)*time.Second)

	// Only a fresh local store is overwritten from the remote copy
	if n, err := repos.Users.Count(ctx); err == nil && n == 0 {
		restored, err := syncer.Restore(ctx)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("restore from remote store failed")
		case restored:
			log.Info().Msg("local store restored from remote snapshot")
		}
	}
	return syncer, pool
}

func main() {
	seedDemo := flag.Bool("seed-demo", false, "load demo records when the store has no clients")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)
	timeutil.SetLocation(cfg.Server.Timezone)
	log := logging.For("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local store
	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open store")
	}
	defer st.Close()

	repos := repositories.New(st, nil)
	docs := repos.Documents

	checker := health.NewHealthChecker()
	checker.Add("store", true, st)

	// Remote store
	if cfg.Database.Enabled {
		if syncer, pool := connectRemote(ctx, cfg, repos, docs, log); syncer != nil {
			defer pool.Close()
			st.OnCommit(syncer.MarkDirty)
			syncer.Start()
			defer syncer.Stop()
			checker.Add("remote_store", false, health.PingFunc(pool.Ping))
		}
	}

	seeder := services.NewSeeder(repos, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword)
	if _, err := seeder.EnsureAdmin(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure admin account")
	}
	if *seedDemo || cfg.Seed.DemoData {
		if err := seeder.SeedDemoData(ctx); err != nil {
			log.Error().Err(err).Msg("demo data not loaded")
		}
	}

	// Shared analytics cache
	var redis *cache.Redis
	if cfg.Redis.Addr != "" {
		redis, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, analytics cache is per process")
		} else {
			defer redis.Close()
			checker.Add("redis", false, redis)
		}
	}

	// Notification relay
	hub := realtime.NewHub(time.Duration(cfg.Notifications.QueueMaxAgeHours)*time.Hour, nil)
	go hub.Run(ctx, time.Duration(cfg.Notifications.SweepIntervalMinutes)*time.Minute)
	if cfg.Notifications.NatsURL != "" {
		bridge, err := realtime.ConnectBridge(cfg.Notifications.NatsURL, cfg.Notifications.NatsSubject, hub)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, notifications stay on this instance")
		} else {
			defer bridge.Close()
		}
	}

	// Object storage
	var objects *backup.S3
	var backups *backup.Scheduler
	if cfg.BackupConfigured() {
		objects, err = backup.NewS3(ctx, backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			Bucket:    cfg.Backup.Bucket,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
			Prefix:    cfg.Backup.Prefix,
		})
		if err != nil {
			log.Warn().Err(err).Msg("object storage unavailable, backups disabled")
			objects = nil
		} else {
			checker.Add("object_storage", false, objects)
			backups = backup.NewScheduler(docs, objects, time.Duration(cfg.Backup.IntervalHours)*time.Hour, nil)
			st.OnCommit(backups.MarkDirty)
			if cfg.Backup.Enabled {
				backups.Start()
				defer backups.Stop()
			}
		}
	}

	fileOpts := files.Options{
		Dir:               cfg.Upload.Dir,
		MaxBytes:          cfg.Upload.MaxBytes,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	}
	if objects != nil {
		fileOpts.Mirror = objects
	}
	fileManager, err := files.NewManager(fileOpts)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Upload.Dir).Msg("failed to prepare upload directory")
	}

	// Host monitoring
	var watcher *monitoring.Watcher
	if cfg.Monitoring.Enabled {
		watcher = monitoring.NewWatcher(monitoring.HostSampler(cfg.Store.Path), hub,
			cfg.Monitoring.AlertThreshold, time.Duration(cfg.Monitoring.IntervalSeconds)*time.Second)
		watcher.Start()
		defer watcher.Stop()
		checker.SetHost(watcher.Latest)
	}

	// Services
	mail := mailer.NewFromConfig(cfg)
	defer mail.Wait()
	jwtManager := auth.NewJWTManager(cfg)

	authService := services.NewAuthService(cfg, repos.Users, repos.Tokens, jwtManager, auth.NewTOTPManager(cfg), mail, nil)
	userService := services.NewUserService(repos.Users, auth.NewPasswordPolicy(cfg), mail)
	clientService := services.NewClientService(repos.Clients, repos.Projects)
	projectService := services.NewProjectService(repos, hub)
	leadService := services.NewLeadService(repos, hub, nil)
	attendanceService := services.NewAttendanceService(repos, hub, nil)
	taskService := services.NewTaskService(repos, hub, nil)
	fileService := services.NewFileService(repos.Files, fileManager, hub)
	engine := analytics.New(docs, redis, cfg.AnalyticsCacheDuration(), nil)

	if cfg.Automation.Enabled {
		automation := services.NewAutomationService(repos, leadService, hub,
			time.Duration(cfg.Automation.IntervalMinutes)*time.Minute, cfg.Automation.AutoAssignLeads, nil)
		automation.Start()
		defer automation.Stop()
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute)
	defer limiter.Stop()

	router := h.NewRouter(h.Handlers{
		Auth:          handlers.NewAuthHandler(authService),
		Users:         handlers.NewUserHandler(userService),
		Clients:       handlers.NewClientHandler(clientService),
		Projects:      handlers.NewProjectHandler(projectService),
		Leads:         handlers.NewLeadHandler(leadService),
		Attendance:    handlers.NewAttendanceHandler(attendanceService),
		Tasks:         handlers.NewTaskHandler(taskService),
		Analytics:     handlers.NewAnalyticsHandler(engine),
		Files:         handlers.NewFileHandler(fileService, 4*cfg.Upload.MaxBytes),
		Notifications: handlers.NewNotificationHandler(hub),
		Admin:         handlers.NewAdminHandler(docs, backups, watcher, engine, nil),
		Health:        handlers.NewHealthHandler(checker),
	}, middleware.NewAuthMiddleware(jwtManager, repos.Users, authService), limiter)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           middleware.NewCORS(cfg)(router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-school-api/internal/config"
	"github.com/noah-isme/gema-school-api/internal/database"
	"github.com/noah-isme/gema-school-api/internal/handler"
	"github.com/noah-isme/gema-school-api/internal/middleware"
	"github.com/noah-isme/gema-school-api/internal/repository"
	"github.com/noah-isme/gema-school-api/internal/router"
	"github.com/noah-isme/gema-school-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, performance cache and progress relay disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, import progress stays node local")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	checks := []handler.DependencyCheck{{Name: "database", Run: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}}
	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Run: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	if natsConn != nil {
		checks = append(checks, handler.DependencyCheck{Name: "nats", Run: func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}})
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	accountRepo := repository.NewAccountRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	termRepo := repository.NewTermRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	identityService := service.NewIdentityService(accountRepo, teacherRepo, validate, service.IdentityConfig{
		Secret:   cfg.JWTSecret,
		TokenTTL: cfg.JWTTTL,
		Issuer:   cfg.AppName,
	}, logger)
	termService := service.NewTermService(termRepo, activityService, logger)
	performanceService := service.NewPerformanceService(service.PerformanceRepositories{
		Assessments: assessmentRepo,
		Classes:     classRepo,
		Students:    studentRepo,
		Teachers:    teacherRepo,
	}, redisClient, cfg.PerformanceCacheTTL, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, classRepo, studentRepo, validate, activityService, performanceService, logger)

	progressBroker := service.NewImportProgressBroker(redisClient, cfg.EventChannel, natsConn, logger)
	progressBroker.Start(rootCtx)

	importOptions := service.ImportOptions{FlagFileDuplicates: cfg.ImportFlagFileDuplicates}
	studentImportService := service.NewStudentImportService(studentRepo, classRepo, validate, progressBroker, activityService, importOptions, logger)
	teacherImportService := service.NewTeacherImportService(teacherRepo, accountRepo, identityService, validate, progressBroker, activityService, importOptions, logger)
	curriculumImportService := service.NewCurriculumImportService(curriculumRepo, validate, activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.ImportMaxUploadMB + 1) << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(identityService, logger),
		TermHandler:        handler.NewTermHandler(termService, logger),
		PerformanceHandler: handler.NewPerformanceHandler(performanceService, termService, logger),
		AssessmentHandler:  handler.NewAssessmentHandler(assessmentService, termService, logger),
		ImportHandler: handler.NewImportHandler(handler.ImportServices{
			Students:   studentImportService,
			Teachers:   teacherImportService,
			Curriculum: curriculumImportService,
			Progress:   progressBroker,
		}, cfg.ImportMaxUploadMB, logger),
		ActivityHandler:  handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:    middleware.JWTProtected(cfg.JWTSecret),
		DependencyChecks: checks,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancelRoot)
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	stopBackground()

	log.Println("server stopped")
}

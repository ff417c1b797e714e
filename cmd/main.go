package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmarkov/edumetrics-backend/internal/cache"
	"github.com/tmarkov/edumetrics-backend/internal/clients/openai"
	redisclient "github.com/tmarkov/edumetrics-backend/internal/clients/redis"
	"github.com/tmarkov/edumetrics-backend/internal/db"
	"github.com/tmarkov/edumetrics-backend/internal/handlers"
	"github.com/tmarkov/edumetrics-backend/internal/jobs/processor"
	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/observability"
	"github.com/tmarkov/edumetrics-backend/internal/platform/qdrant"
	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/server"
	"github.com/tmarkov/edumetrics-backend/internal/services"
	"github.com/tmarkov/edumetrics-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "edumetrics",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	jobRepo := repos.NewReportJobRepo(thePG, log)
	reportRepo := repos.NewInstitutionReportRepo(thePG, log)
	marketRepo := repos.NewMarketReportRepo(thePG, log)
	academicRepo := repos.NewAcademicRecordRepo(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	qdrantConfig, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Error("Could not resolve Qdrant config", "error", err)
		os.Exit(1)
	}
	vectorStore, err := qdrant.NewStore(log, qdrantConfig)
	if err != nil {
		log.Error("Could not init Qdrant store", "error", err)
		os.Exit(1)
	}
	eventBus, err := redisclient.NewEventBus(log)
	if err != nil {
		log.Warn("Event bus disabled", "error", err)
		eventBus = nil
	} else {
		defer eventBus.Close()
		if err := eventBus.StartForwarder(ctx, func(evt redisclient.Event) {
			log.Info("Pipeline event",
				"name", evt.Name,
				"job_id", evt.JobID,
				"report_id", evt.ReportID,
				"institution_id", evt.InstitutionID)
		}); err != nil {
			log.Warn("Event forwarder disabled", "error", err)
		}
	}

	// Services
	log.Info("Setting up services from main...")
	documentCache := cache.NewTTL(30*time.Minute, time.Now)
	syncService := services.NewAnalyticsSyncService(vectorStore, openaiClient, documentCache, log)
	reportService := services.NewReportService(academicRepo, reportRepo, marketRepo, openaiClient, syncService, log)
	insightService := services.NewInsightService(academicRepo, reportRepo, vectorStore, openaiClient, openaiClient, log)
	studentMetricsService := services.NewStudentMetricsService(academicRepo, log)

	scheduleConfig, err := services.LoadScheduleConfig(utils.GetEnv("SCHEDULE_CONFIG_PATH", "", log))
	if err != nil {
		log.Error("Could not load schedule config", "error", err)
		os.Exit(1)
	}
	schedulerService := services.NewSchedulerService(jobRepo, academicRepo, scheduleConfig, log)
	go func() {
		if err := schedulerService.Run(ctx); err != nil {
			log.Error("Scheduler stopped", "error", err)
		}
	}()

	// Job processor
	jobProcessor := processor.New(jobRepo, reportService, eventBus, log)
	go func() {
		if err := jobProcessor.Run(ctx); err != nil {
			log.Error("Job processor stopped", "error", err)
		}
	}()

	// Handlers
	log.Info("Setting up handlers from main...")
	jobsHandler := handlers.NewJobsHandler(schedulerService, jobRepo)
	analyticsHandler := handlers.NewAnalyticsHandler(insightService, syncService, reportService, reportRepo, marketRepo)
	studentsHandler := handlers.NewStudentsHandler(studentMetricsService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		JobsHandler:      jobsHandler,
		AnalyticsHandler: analyticsHandler,
		StudentsHandler:  studentsHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown failed", "error", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fellowship-tools/assembly/server/internal/assembly/service"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store/sqlite"
	"github.com/fellowship-tools/assembly/server/internal/config"
	"github.com/fellowship-tools/assembly/server/internal/db"
	"github.com/fellowship-tools/assembly/server/internal/httpapi"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "assembly-server ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	writer := db.NewWorker(conn)
	defer writer.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn); err != nil {
			logger.Printf("dev seed failed: %v", err)
		}
	}

	// Stores
	events := sqlite.NewEventStore(conn, writer)
	attendance := sqlite.NewAttendanceStore(conn, writer)
	audits := sqlite.NewAuditStore(conn, writer)

	// Services
	clock := service.SystemClock()
	notifier := &service.LogNotifier{Logger: logger}
	aggregator := service.NewAggregator(events, attendance)
	recorder := service.NewRecorder(events, attendance, aggregator, audits, clock, logger,
		service.RecorderConfig{AutoCloseOffset: cfg.AutoCloseOffset})
	detector := service.NewConflictDetector(events)
	lifecycle := service.NewLifecycle(events, attendance, detector, recorder, aggregator,
		audits, notifier, clock, logger, service.LifecycleConfig{
			RecurrenceCeiling: cfg.RecurrenceCeiling,
		})

	closer := service.NewCloser(events, lifecycle, notifier, clock, logger, service.CloserConfig{
		CronSpec:        cfg.SweepCron,
		AutoCloseOffset: cfg.AutoCloseOffset,
		ReminderLead:    cfg.ReminderLead,
	})
	if err := closer.Start(ctx); err != nil {
		logger.Fatalf("start closure sweep: %v", err)
	}
	defer closer.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Lifecycle:  lifecycle,
		Recorder:   recorder,
		Events:     events,
		Attendance: attendance,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

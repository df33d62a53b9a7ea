package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edutrack/internal/attendance"
	"edutrack/internal/config"
	"edutrack/internal/model"
	"edutrack/internal/queue"
	"edutrack/internal/report"
	"edutrack/internal/store"
)

// Worker consumes report jobs, gathers school stats, calls the
// generation service, and records the result.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "edutrack:reports")
	}

	attRepo := attendance.NewPostgresRepository(db.Client)
	reports := report.NewPostgresRepository(db.Client)
	client := report.New(cfg.ReportServiceURL, cfg.ReportAPIKey, cfg.ReportModel)

	if !client.Configured() {
		log.Println("WARNING: REPORT_API_KEY not set, reports will contain placeholder text")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeReport {
			continue
		}

		id := string(msg.Body)
		log.Printf("processing report %s", id)

		rep, err := reports.ReportByID(ctx, id)
		if err != nil {
			log.Printf("fetch report %s failed: %v", id, err)
			continue
		}
		if rep == nil {
			log.Printf("report %s not found, dropping", id)
			continue
		}

		sum, err := attRepo.Summary(ctx)
		if err != nil {
			log.Printf("summary query failed for %s: %v", id, err)
			_ = reports.CompleteReport(ctx, id, model.ReportFailed, "", time.Now().UTC())
			continue
		}
		sections, err := attRepo.SectionStats(ctx)
		if err != nil {
			log.Printf("section stats query failed for %s: %v", id, err)
			_ = reports.CompleteReport(ctx, id, model.ReportFailed, "", time.Now().UTC())
			continue
		}

		content, err := client.Generate(ctx, report.BuildPrompt(sum, sections))
		if err != nil {
			log.Printf("generation failed for %s: %v", id, err)
			_ = reports.CompleteReport(ctx, id, model.ReportFailed, "", time.Now().UTC())
			continue
		}

		if err := reports.CompleteReport(ctx, id, model.ReportCompleted, content, time.Now().UTC()); err != nil {
			log.Printf("saving report %s failed: %v", id, err)
			continue
		}
		log.Printf("report %s completed", id)
	}

	log.Println("worker stopped")
}

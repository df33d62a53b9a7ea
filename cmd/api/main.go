package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/cloudinary"
	"edutrack/internal/config"
	"edutrack/internal/gifts"
	"edutrack/internal/httpmiddleware"
	"edutrack/internal/ledger"
	"edutrack/internal/model"
	"edutrack/internal/queue"
	"edutrack/internal/report"
	"edutrack/internal/roster"
	"edutrack/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		ledgerRepo ledger.Repository
		rosterRepo roster.Repository
		attRepo    attendance.Repository
		giftRepo   gifts.Repository
		reportRepo report.Repository
		db         *store.DB
	)

	if cfg.StoreBackend == "memory" {
		mem := store.NewMemory()
		ledgerRepo, rosterRepo, attRepo, giftRepo, reportRepo = mem, mem, mem, mem, mem
		log.Println("using in-memory store (data is not persisted)")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(context.Background(), db.Client); err != nil {
			return err
		}
		ledgerRepo = ledger.NewPostgresRepository(db.Client)
		rosterRepo = roster.NewPostgresRepository(db.Client)
		attRepo = attendance.NewPostgresRepository(db.Client)
		giftRepo = gifts.NewPostgresRepository(db.Client)
		reportRepo = report.NewPostgresRepository(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "edutrack:reports")
	}

	giftSvc := gifts.NewService(giftRepo)
	if err := giftSvc.SeedDefaults(context.Background()); err != nil {
		log.Printf("warning: seeding gift catalog failed: %v", err)
	}

	app := &api{
		cfg:        cfg,
		ledger:     ledger.NewService(ledgerRepo, giftSvc),
		roster:     roster.NewService(rosterRepo),
		attendance: attendance.NewService(attRepo),
		gifts:      giftSvc,
		reports:    reportRepo,
		queue:      q,
	}

	// Cloudinary client (nil when not configured)
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		app.cdn = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil || cfg.StoreBackend == "memory"
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	staff := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, model.RoleAdmin, model.RoleTeacher)
	admin := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, model.RoleAdmin)
	student := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, model.RoleStudent)
	anyUser := auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer)
	app.registerRoutes(r, staff, admin, student, anyUser)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Admin-Key")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

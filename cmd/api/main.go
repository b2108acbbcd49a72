package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/glowcart/backend/internal/config"
	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/database/migrations"
	"github.com/glowcart/backend/internal/jobs"
	"github.com/glowcart/backend/internal/middleware"
	"github.com/glowcart/backend/internal/queue"
	"github.com/glowcart/backend/internal/routes"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/settings"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	jobQueue := queue.NewQueue(redisClient, db)
	jobs.RegisterAllJobHandlers(jobQueue, jobs.LogNotifier{})

	worker := queue.NewWorker(jobQueue, 4)
	jobs.ScheduleRecurringJobs(worker.Scheduler(), settings.NewService(db), ledger.NewService(db))
	worker.Start()
	defer worker.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// 60 requests per second per IP, 10 auth attempts per minute
	rateLimiter := middleware.NewRateLimiter(60, 10, 20, 5)
	routes.RegisterRoutes(router, db, jobQueue, rateLimiter)

	fmt.Printf("GlowCart API server running on port %s\n", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

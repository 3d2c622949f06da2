package main

import (
	"log"
	"time"

	"learning-chat-service/internal/asr"
	"learning-chat-service/internal/config"
	"learning-chat-service/internal/db"
	"learning-chat-service/internal/event"
	"learning-chat-service/internal/feedback"
	"learning-chat-service/internal/handlers"
	"learning-chat-service/internal/lock"
	"learning-chat-service/internal/repository"
	"learning-chat-service/internal/service"
	"learning-chat-service/internal/storage"
	"learning-chat-service/internal/summary"
	"learning-chat-service/internal/validation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	gin.SetMode(cfg.GinMode)
	db.InitMongo(cfg.MongoURI)
	defer db.Close()
	database := db.Client.Database(cfg.MongoDatabase)

	// RabbitMQ event publisher; the flow degrades to no events without it.
	var publisher *event.EventPublisher
	if cfg.RabbitMQURI != "" {
		var err error
		publisher, err = event.NewEventPublisher(cfg.RabbitMQURI, cfg.EventExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
	} else {
		log.Println("RabbitMQ not configured, events will not be published")
	}

	audioStore, err := storage.NewAudioStorage(storage.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccess,
		SecretKey: cfg.MinioSecret,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.AudioBucket,
	})
	if err != nil {
		log.Fatalf("Failed to init MinIO: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	locker := lock.NewRedisLocker(redisClient)

	sessionRepo := repository.NewSessionRepository(database)
	attemptRepo := repository.NewAttemptRepository(database)
	messageRepo := repository.NewMessageRepository(database)
	contentRepo := repository.NewContentRepository(database)

	flowService := service.NewFlowService(
		sessionRepo,
		attemptRepo,
		messageRepo,
		contentRepo,
		validation.NewRuleValidator(),
		feedback.NewTemplateFeedback(),
		asr.NewClient(cfg.ASRBaseURL),
		audioStore,
		locker,
		publisher,
	)
	flowService.Summaries = summary.NewWindowSummarizer()
	sessionService := service.NewSessionService(sessionRepo, messageRepo, contentRepo, publisher)
	progressService := service.NewProgressService(sessionRepo, attemptRepo)

	chatHandler := handlers.NewChatHandler(flowService)
	sessionHandler := handlers.NewSessionHandler(sessionService, progressService)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With", "X-Learner-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	chat := r.Group("/chat")
	{
		chat.POST("/session/:sessionId/pause", sessionHandler.PauseSession)
		chat.POST("/session/:sessionId/resume", sessionHandler.ResumeSession)
		chat.POST("/session/:sessionId/complete", sessionHandler.CompleteSession)
		chat.POST("/session/:sessionId/abandon", sessionHandler.AbandonSession)
		chat.GET("/session/:sessionId/history", sessionHandler.GetHistory)

		chat.POST("/:moduleId/session", sessionHandler.StartSession)
		chat.POST("/:moduleId/begin", chatHandler.BeginModule)
		chat.POST("/:moduleId/segment", chatHandler.NextSegment)
		chat.POST("/:moduleId/exercise", chatHandler.NextExercise)
		chat.POST("/:moduleId/exercise/submit", chatHandler.SubmitAnswer)
		chat.POST("/:moduleId/exercise/pronunciation/submit", chatHandler.SubmitPronunciation)

		chat.GET("/:moduleId/progress", sessionHandler.GetProgress)
		chat.GET("/statistics", sessionHandler.GetStatistics)
		chat.GET("/modules/completed", sessionHandler.GetCompletedModules)
	}

	log.Printf("%s listening on :%s", cfg.ServiceName, cfg.Port)
	r.Run(":" + cfg.Port)
}

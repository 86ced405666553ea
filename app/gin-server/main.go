package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/botcraftengineer/qbs-autonaim-sub007/config"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/api/handlers"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/api/middleware"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/api/routes"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/cache"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/logger"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/providers/llm"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/providers/stt"
	mongorepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/mongo"
	pgrepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/postgres"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/services"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/storage"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/workers"
)

func main() {
	_ = godotenv.Load()
	l := logger.New()

	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	l.Info("storage connected")

	ctx := context.Background()

	bufferTTL := 24 * time.Hour
	if s := os.Getenv("BUFFER_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			bufferTTL = d
		}
	}

	// repositories
	bufferRepo := mongorepo.NewBufferRepo(config.MongoDatabase(), bufferTTL)
	convoRepo := pgrepo.NewConversationRepo(config.PostgresDB)
	answerRepo := pgrepo.NewAnswerRepo(config.PostgresDB)
	vacancyRepo := pgrepo.NewVacancyRepo(config.PostgresDB)
	snaps := cache.NewRedisCache(config.RedisClient)

	// services
	buffers := services.NewMessageBufferService(bufferRepo)
	meta := services.NewConversationMetadataService(convoRepo, snaps, l)
	qa := services.NewQuestionAnswerService(meta, answerRepo, l)

	// providers + workers (optional; the HTTP surface works without them)
	if os.Getenv("GOOGLE_CLOUD_PROJECT") != "" {
		speech, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.Fatalf("Speech init error: %v", err)
		}
		defer speech.Close()

		var voice storage.VoiceStore
		if bucket := os.Getenv("VOICE_BUCKET"); bucket != "" {
			gcsStore, err := storage.NewGCSVoiceStore(ctx, bucket)
			if err != nil {
				log.Fatalf("GCS init error: %v", err)
			}
			defer gcsStore.Close()
			voice = gcsStore
		}

		vw := &workers.VoiceWorkerPool{
			Redis:   config.RedisClient,
			Buffers: buffers,
			STT:     speech,
			Voice:   voice,
			Logger:  l,
		}
		if err := vw.Start(ctx); err != nil {
			log.Fatalf("voice worker error: %v", err)
		}

		gemini, err := llm.NewVertexGemini(ctx,
			os.Getenv("GOOGLE_CLOUD_PROJECT"),
			os.Getenv("GOOGLE_CLOUD_LOCATION"),
			os.Getenv("GEMINI_MODEL"),
			os.Getenv("EMBED_MODEL"),
		)
		if err != nil {
			log.Fatalf("Vertex init error: %v", err)
		}
		defer gemini.Close()

		sw := &workers.ScoreWorkerPool{
			Redis:   config.RedisClient,
			Answers: answerRepo,
			Meta:    meta,
			LLM:     gemini,
			Logger:  l,
		}
		if err := sw.Start(ctx); err != nil {
			log.Fatalf("score worker error: %v", err)
		}
		l.Info("workers started")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Webhook:      handlers.NewWebhookHandler(buffers, config.RedisClient),
		Conversation: handlers.NewConversationHandler(convoRepo, answerRepo, buffers, meta, qa, config.RedisClient),
		Vacancy:      handlers.NewVacancyHandler(vacancyRepo),
		WS:           handlers.NewWSHandler(config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"askgpt/internal/auth"
	"askgpt/internal/automation"
	"askgpt/internal/chat"
	"askgpt/internal/config"
	"askgpt/internal/imaging"
	"askgpt/internal/intent"
	"askgpt/internal/llm"
	"askgpt/internal/router"
	"askgpt/internal/scheduler"
	"askgpt/internal/server"
	"askgpt/internal/store"
)

const persistTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	var (
		window      chat.Window
		invalidator server.WindowInvalidator
	)
	if cfg.RedisAddr != "" {
		cache, err := store.NewHistoryCache(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}), 50)
		if err != nil {
			logger.Warn("history cache unavailable, reads go to the store", zap.Error(err))
		} else {
			defer cache.Close()
			window = cache
			invalidator = cache
		}
	}

	authSvc := auth.New(st, cfg.JWTSecret, cfg.TokenLifetime)

	factory := llm.NewFactory(cfg)
	provider := string(cfg.LLMProvider)

	chatClient, err := factory.CreateClient(provider, cfg.ChatModel, cfg.ChatMaxTokens)
	if err != nil {
		logger.Fatal("failed to create chat client", zap.Error(err))
	}
	codingClient, err := factory.CreateClient(provider, cfg.CodingModel, cfg.CodingMaxTokens)
	if err != nil {
		logger.Fatal("failed to create coding client", zap.Error(err))
	}
	classifierClient, err := factory.CreateClient(provider, cfg.ClassifierModel, 0)
	if err != nil {
		logger.Fatal("failed to create classifier client", zap.Error(err))
	}
	// Vision needs multi-part message support, which only the
	// OpenAI-compatible API provides.
	visionClient := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.VisionModel,
		cfg.OpenRouterReferrer, cfg.OpenRouterTitle, cfg.VisionMaxTokens)

	generator := factory.CreateImageGenerator(cfg.ImageModel, cfg.ImageSize)
	remover := imaging.NewRemovalClient(cfg.RemovalServerURL, cfg.ProviderTimeout)

	agent := automation.NewAgent(
		classifierClient,
		automation.NewSMTPMailer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPEmail, cfg.SMTPPassword),
		automation.NewExecLauncher(),
		logger,
	)

	classifier := intent.New(classifierClient, cfg.ProviderTimeout, logger)
	dispatcher := router.New(agent, generator, remover,
		chatClient, codingClient, visionClient, cfg.ProviderTimeout, logger)

	chatSvc := chat.NewService(st, window, classifier, dispatcher, persistTimeout, logger)

	if cfg.RetentionDays > 0 {
		sched := scheduler.New(cfg.RetentionSchedule, logger)
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		sched.SetCleanupFunction(func(ctx context.Context) error {
			pruned, err := st.PruneConversations(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			logger.Info("pruned stale conversations", zap.Int64("count", pruned))
			return nil
		})
		if err := sched.Start(); err != nil {
			logger.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	srv := server.New(cfg.AllowedOrigin, authSvc, chatSvc, st, invalidator, logger)
	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"increm-coach/internal/ai"
	appsvc "increm-coach/internal/app"
	"increm-coach/internal/cache"
	"increm-coach/internal/config"
	"increm-coach/internal/knowledge"
	"increm-coach/internal/platform/database"
	"increm-coach/internal/platform/postgres"
	rabbitmqClient "increm-coach/internal/platform/rabbitmq"
	redisClient "increm-coach/internal/platform/redis"
	"increm-coach/internal/repository"
	"increm-coach/internal/worker"
)

// App owns every connection and service of the process. Optional
// dependencies (VectorPool, Redis, MQConn) stay nil when not configured.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	VectorPool *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection

	ChatService      *appsvc.ChatService
	EmbeddingService *appsvc.EmbeddingService
	KnowledgeService *appsvc.KnowledgeService
	TurnWorker       *worker.TurnPersistWorker

	turnPublisher *rabbitmqClient.TurnPublisher
	stopWatcher   context.CancelFunc

	StartedAt time.Time
}

// New loads configuration and builds the full server, background workers included.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return Build(ctx, cfg, true)
}

// Build wires the app from cfg. With background=false no queue consumer or
// directory watcher is started, which is what one-shot commands want.
func Build(ctx context.Context, cfg *config.Config, background bool) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.build(ctx, background); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, background bool) error {
	cfg := a.Config

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	a.DB = db

	relationalChunks := cfg.VectorStore.Backend == "relational"
	if err := database.Migrate(db, relationalChunks); err != nil {
		return err
	}

	var store appsvc.KnowledgeStore
	if relationalChunks {
		store = repository.NewKnowledgeChunkRepository(db, cfg.VectorStore.Dimension)
	} else {
		pool, err := postgres.New(ctx, cfg.VectorStore.PostgresDSN)
		if err != nil {
			return err
		}
		a.VectorPool = pool
		if err := postgres.EnsureSchema(ctx, pool, cfg.VectorStore.Dimension); err != nil {
			return err
		}
		store = repository.NewPGVectorChunkRepository(pool)
	}

	var historyCache appsvc.HistoryCache
	var invalidator worker.HistoryInvalidator
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.Redis = client
		hc := cache.NewHistoryCache(
			client,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		historyCache = hc
		invalidator = hc
	}

	conversations := repository.NewConversationRepository(db)
	var writer appsvc.TurnWriter = conversations
	if cfg.Chat.PersistMode == "queue" {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TurnPersistQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		a.turnPublisher = rabbitmqClient.NewTurnPublisher(conn, cfg.RabbitMQ.TurnPersistQueue)
		writer = a.turnPublisher

		if background {
			a.TurnWorker = worker.NewTurnPersistWorker(conn, conversations, invalidator, cfg.RabbitMQ.TurnPersistQueue)
			if err := a.TurnWorker.Start(ctx); err != nil {
				return fmt.Errorf("start turn worker failed: %w", err)
			}
		}
	}

	httpClient := ai.NewHTTPClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second)
	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}, httpClient)
	completer := ai.NewCompletionClient(ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, httpClient)
	if err := embedder.CheckConfig(); err != nil {
		log.Printf("llm provider not configured, function endpoints will fail: %v", err)
	}

	a.EmbeddingService = appsvc.NewEmbeddingService(embedder)
	a.ChatService = appsvc.NewChatService(embedder, completer, store, writer, conversations, historyCache, appsvc.ChatOptions{
		MatchThreshold:      cfg.Retrieval.MatchThreshold,
		MatchCount:          cfg.Retrieval.MatchCount,
		HistoryDefaultLimit: cfg.Chat.HistoryDefaultLimit,
	})
	a.KnowledgeService = appsvc.NewKnowledgeService(store, embedder, appsvc.KnowledgeOptions{
		ChunkSize:       cfg.Knowledge.ChunkSize,
		Concurrency:     cfg.Knowledge.IngestConcurrency,
		DefaultCategory: cfg.Knowledge.DefaultCategory,
		SeedFile:        cfg.Knowledge.SeedFile,
		Dimension:       cfg.VectorStore.Dimension,
	})

	if background && cfg.Knowledge.WatchDir != "" {
		w, err := knowledge.NewWatcher(cfg.Knowledge.WatchDir, cfg.Knowledge.DefaultCategory, a.KnowledgeService.IngestDocument)
		if err != nil {
			return err
		}
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopWatcher = cancel
		go w.Run(watchCtx)
		log.Printf("watching %s for knowledge documents", cfg.Knowledge.WatchDir)
	}

	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.stopWatcher != nil {
		a.stopWatcher()
	}
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.turnPublisher != nil {
		a.turnPublisher.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.VectorPool != nil {
		a.VectorPool.Close()
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

// Package supportbridge provides the support bridge server implementation.
package supportbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/support-bridge/internal/supportbridge/biz"
	"github.com/kart-io/support-bridge/internal/supportbridge/dispatch"
	"github.com/kart-io/support-bridge/internal/supportbridge/handler"
	"github.com/kart-io/support-bridge/internal/supportbridge/router"
	"github.com/kart-io/support-bridge/internal/supportbridge/store"
	"github.com/kart-io/support-bridge/pkg/component/database"
	"github.com/kart-io/support-bridge/pkg/component/intercom"
	milvuscomp "github.com/kart-io/support-bridge/pkg/component/milvus"
	"github.com/kart-io/support-bridge/pkg/llm"
	// Register LLM providers.
	_ "github.com/kart-io/support-bridge/pkg/llm/openai"
	botopts "github.com/kart-io/support-bridge/pkg/options/bot"
	cacheopts "github.com/kart-io/support-bridge/pkg/options/cache"
	dbopts "github.com/kart-io/support-bridge/pkg/options/database"
	intercomopts "github.com/kart-io/support-bridge/pkg/options/intercom"
	llmopts "github.com/kart-io/support-bridge/pkg/options/llm"
	logopts "github.com/kart-io/support-bridge/pkg/options/logger"
	milvusopts "github.com/kart-io/support-bridge/pkg/options/milvus"
	httpopts "github.com/kart-io/support-bridge/pkg/options/server/http"
)

// Name is the name of the application.
const Name = "support-bridge"

// syncOnStartTimeout bounds the startup ingestion pass.
const syncOnStartTimeout = 30 * time.Minute

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	DatabaseOptions  *dbopts.Options
	MilvusOptions    *milvusopts.Options
	IntercomOptions  *intercomopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	BotOptions       *botopts.Options
	CacheOptions     *cacheopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the support bridge server.
type Server struct {
	config      *Config
	httpServer  *http.Server
	pool        *dispatch.Pool
	ingestor    *biz.Ingestor
	client      *intercom.Client
	milvusClose func()
	redisClose  func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting support bridge...",
		"chat.provider", cfg.ChatOptions.Provider,
		"chat.model", cfg.ChatOptions.Model,
		"embedding.model", cfg.EmbeddingOptions.Model,
		"test_mode", cfg.BotOptions.TestMode,
	)

	db, err := database.New(cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sectionStore := store.NewGormStore(db)
	if err := sectionStore.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("Section store initialized")

	milvusClient, err := milvuscomp.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	index := store.NewMilvusIndex(milvusClient, cfg.MilvusOptions.Collection, cfg.MilvusOptions.Dimension)
	if err := index.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure vector collection: %w", err)
	}
	logger.Infow("Vector index initialized", "collection", cfg.MilvusOptions.Collection)

	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}

	var redisClose func()
	if cfg.CacheOptions.Enabled {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.CacheOptions.Addr,
			Password: cfg.CacheOptions.Password,
			DB:       cfg.CacheOptions.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnw("failed to connect to redis, embedding cache disabled", "error", err.Error())
			_ = redisClient.Close()
		} else {
			cacheConfig := llm.DefaultEmbeddingCacheConfig()
			cacheConfig.TTL = cfg.CacheOptions.TTL
			embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisClient, cacheConfig)
			redisClose = func() { _ = redisClient.Close() }
			logger.Infow("Embedding cache initialized",
				"addr", cfg.CacheOptions.Addr,
				"ttl", cfg.CacheOptions.TTL.String(),
			)
		}
	}

	client := intercom.New(cfg.IntercomOptions, cfg.BotOptions.AdminID)

	ingestor := biz.NewIngestor(sectionStore, index, embedProvider)
	retriever := biz.NewRetriever(sectionStore, index, embedProvider, &biz.RetrieverConfig{
		TopK: cfg.BotOptions.RetrievalTopK,
	})
	preparer := biz.NewPreparer(client, &biz.PreparerConfig{
		AdminID:      cfg.BotOptions.AdminID,
		AdminName:    cfg.BotOptions.AdminName,
		HistoryLimit: cfg.BotOptions.HistoryLimit,
	})
	completion := biz.NewCompletionEngine(chatProvider, &biz.CompletionConfig{
		MaxAttempts: cfg.BotOptions.CompletionAttempts,
		Backoff:     cfg.BotOptions.CompletionBackoff,
	})
	orchestrator := biz.NewOrchestrator(client, preparer, retriever, completion, &biz.OrchestratorConfig{
		Company:   cfg.BotOptions.Company,
		AdminID:   cfg.BotOptions.AdminID,
		AdminName: cfg.BotOptions.AdminName,
		TestMode:  cfg.BotOptions.TestMode,
	})
	logger.Info("Reply pipeline initialized")

	pool, err := dispatch.NewPool(cfg.BotOptions.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}

	supportHandler := handler.NewSupportHandler(orchestrator, ingestor, client, sectionStore, index, pool)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, supportHandler, client.ClientSecret())

	httpServer := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("Support bridge is ready")
	return &Server{
		config:      cfg,
		httpServer:  httpServer,
		pool:        pool,
		ingestor:    ingestor,
		client:      client,
		milvusClose: func() { _ = milvusClient.Close(context.Background()) },
		redisClose:  redisClose,
	}, nil
}

// SyncOnce runs a single article ingestion pass and returns. It backs the
// sync subcommand; the HTTP server is never started.
func (s *Server) SyncOnce(ctx context.Context, force bool) error {
	defer func() {
		if s.redisClose != nil {
			s.redisClose()
		}
		s.milvusClose()
		s.pool.Release()
	}()

	articles, err := s.client.ListArticles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list articles: %w", err)
	}
	stats, err := s.ingestor.Sync(ctx, articles, force)
	if err != nil {
		return err
	}
	if err := s.ingestor.PruneOrphans(ctx); err != nil {
		return err
	}
	logger.Infow("sync finished",
		"articles_seen", stats.ArticlesSeen,
		"articles_changed", stats.ArticlesChanged,
		"sections_added", stats.SectionsAdded,
		"sections_removed", stats.SectionsRemoved,
		"sections_healed", stats.SectionsHealed,
	)
	return nil
}

// Run starts the server and blocks until a termination signal arrives.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.redisClose != nil {
			s.redisClose()
		}
		s.milvusClose()
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.config.BotOptions.SyncOnStart {
		s.pool.Submit("sync-articles", func() error {
			syncCtx, cancel := context.WithTimeout(context.Background(), syncOnStartTimeout)
			defer cancel()

			articles, err := s.client.ListArticles(syncCtx)
			if err != nil {
				return err
			}
			if _, err := s.ingestor.Sync(syncCtx, articles, false); err != nil {
				return err
			}
			return s.ingestor.PruneOrphans(syncCtx)
		})
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("http server shutdown failed", "error", err.Error())
	}
	s.pool.Release()
	logger.Info("Shutdown complete")
	return nil
}

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/visual-matcher/internal/cfg"
	v1Http "github.com/DRSN-tech/visual-matcher/internal/delivery/v1/http"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure/images"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure/kafka"
	"github.com/DRSN-tech/visual-matcher/internal/repository/redis"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/clients"
	"github.com/DRSN-tech/visual-matcher/pkg/closer"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/DRSN-tech/visual-matcher/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	shutdownTimeout    = 10 * time.Second
	outboxBufferSize   = 1024
	topicCreateTimeout = 5 * time.Second
)

// App — HTTP-сервис поиска похожих товаров.
type App struct {
	cfg     *config.Config
	logger  logger.Logger
	closer  *closer.Closer
	matchUC *usecase.MatchUseCase
	server  *v1Http.Server
	outbox  *kafka.OutboxWorker
}

// NewApp собирает зависимости сервиса. Необязательные Redis и Kafka подключаются только если настроены.
func NewApp(cfg *config.Config, log logger.Logger) (app *App, err error) {
	cl := closer.NewCloser(2 * time.Second)
	defer func() {
		if err != nil {
			_ = cl.Close(context.Background())
		}
	}()

	promMetrics := metrics.NewPrometheus()

	catalogRepo, err := newCatalogRepo(cfg, log, cl)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := newMLService(cfg, log, cl)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	cache, err := newEmbeddingCache(cfg, log, cl)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	outbox := kafka.NewOutboxWorker(newEventsPublisher(cfg, log, cl), log, outboxBufferSize)

	matchUC := usecase.NewMatchUC(
		catalogRepo,
		ml,
		images.NewImages(cfg.Images, nil),
		cache,
		outbox,
		promMetrics,
		log,
		cfg.Match.TopK,
	)

	r := chi.NewRouter()
	v1Http.NewRouter(r, log).Init(matchUC, promMetrics.Handler(), cfg)

	return &App{
		cfg:     cfg,
		logger:  log,
		closer:  cl,
		matchUC: matchUC,
		server:  v1Http.NewServer(r, cfg.Http),
		outbox:  outbox,
	}, nil
}

// Run загружает каталог, запускает HTTP-сервер и блокируется до сигнала остановки или ошибки сервера.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ошибка загрузки не останавливает сервис: поиск отвечает 503, /health показывает причину
	if _, err := a.matchUC.Catalog(ctx); err != nil {
		a.logger.Errorf(err, "catalog is unavailable")
	}

	a.outbox.Start(ctx)
	a.closer.Add("match events outbox", a.outbox.Stop)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server listening on %s", a.server.Addr())
		if err := a.server.Run(); err != nil {
			errCh <- err
		}
	}()
	a.closer.Add("http server", a.server.Stop)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Warnf("%v", err)
	}

	a.logger.Infof("Application shutdown complete")
	return appErr
}

// newEmbeddingCache возвращает кэш векторов в Redis или заглушку, если Redis выключен.
func newEmbeddingCache(cfg *config.Config, log logger.Logger, cl *closer.Closer) (usecase.EmbeddingCacheRepository, error) {
	if !cfg.Redis.Enabled {
		log.Infof("Redis is not configured, embedding cache disabled")
		return redis.NopCache{}, nil
	}

	redisClient := clients.NewRedisClient(cfg.Redis)
	cl.AddSimple("redis", redisClient.Close)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := redisClient.Ping(ctx); err != nil {
		log.Errorf(err, "failed to connect to redis")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return redis.NewCacheRepo(redisClient, cfg.Redis, log), nil
}

// newEventsPublisher возвращает продюсер Kafka или заглушку. Недоступность брокера при старте не фатальна.
func newEventsPublisher(cfg *config.Config, log logger.Logger, cl *closer.Closer) usecase.EventsInfra {
	if !cfg.Kafka.Enabled {
		log.Infof("Kafka is not configured, match events disabled")
		return kafka.NopPublisher{}
	}

	producer := kafka.NewProducer(log, cfg.Kafka)
	cl.AddSimple("kafka producer", producer.Close)

	if err := producer.EnsureTopic(topicCreateTimeout); err != nil {
		log.Warnf("failed to ensure kafka topic %s: %v", cfg.Kafka.Topic, err)
	}

	return producer
}

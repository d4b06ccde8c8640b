package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulse/internal/cache"
	"pulse/internal/config"
	"pulse/internal/lexicon"
	"pulse/internal/observability"
	"pulse/internal/repository"
	"pulse/internal/service"
	"pulse/internal/transport/rest"
	"pulse/internal/transport/rest/middleware"
	"pulse/internal/transport/ws"
)

const connectTimeout = 5 * time.Second

// App holds the wired services and the HTTP handler
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Handler     http.Handler
	Hub         *ws.Hub
	Auth        *service.AuthService
	Surveys     *service.SurveyService
	Invitations *service.InvitationService

	mongo *mongo.Client
	redis *redis.Client
}

// ConnectMongo opens and pings a MongoDB client
func ConnectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// ConnectRedis opens and pings a Redis client. REDIS_URI may be a redis:// URL or host:port.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(cfg.RedisURI, "://") {
		parsed, err := redis.ParseURL(cfg.RedisURI)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URI: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.RedisURI}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// LoadLexicon returns the lexicon at cfg.LexiconPath, or the built-in one
func LoadLexicon(cfg *config.Config) (*lexicon.Lexicon, error) {
	if cfg.LexiconPath == "" {
		return lexicon.Default(), nil
	}
	return lexicon.Load(cfg.LexiconPath)
}

// New connects the stores and wires every service behind the router
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	mongoClient, err := ConnectMongo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.mongo = mongoClient
	logger.Info("connected to mongodb", "database", cfg.MongoDB)

	db := mongoClient.Database(cfg.MongoDB)
	if err := repository.EnsureIndexes(ctx, db, logger); err != nil {
		logger.Warn("index creation failed", "error", err)
	}

	var (
		aggregates  cache.AggregateCache
		surveyCache cache.SurveyCache
	)
	switch cfg.AggregateBackend {
	case config.BackendRedis:
		rdb, err := ConnectRedis(ctx, cfg)
		if err != nil {
			a.Close(context.Background())
			return nil, err
		}
		a.redis = rdb
		aggregates = cache.NewAggregateCache(rdb, cfg.AppliedMarkerTTL)
		surveyCache = cache.NewSurveyCache(rdb, cfg.SurveyCacheTTL)
		logger.Info("connected to redis", "aggregate_backend", cfg.AggregateBackend)
	default:
		aggregates = cache.NewMemoryAggregateCache()
		logger.Warn("using in-memory aggregate store; aggregates are lost on restart and not shared between instances")
	}

	lex, err := LoadLexicon(cfg)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	pos, neg := lex.Size()
	logger.Info("lexicon loaded", "positive", pos, "negative", neg, "path", cfg.LexiconPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// Initialize repositories
	surveyRepo := repository.NewSurveyRepo(db)
	invitationRepo := repository.NewInvitationRepo(db)
	reportRepo := repository.NewReportRepo(db)

	// Initialize services
	a.Auth = service.NewAuthService(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, using the development secret")
	}
	a.Surveys = service.NewSurveyService(surveyRepo, surveyCache, logger)
	a.Invitations = service.NewInvitationService(a.Surveys, invitationRepo, logger)
	liveSvc := service.NewLiveService(a.Surveys, aggregates, reportRepo, cfg.LiveTopWords, metrics, logger)
	reportSvc := service.NewReportService(reportRepo, aggregates, a.Surveys, cfg.LiveTopWords, logger)
	a.Surveys.SetReportService(reportSvc)

	accumulator := service.NewAccumulator(aggregates, service.RetryPolicy{
		MaxAttempts:     cfg.MergeMaxAttempts,
		InitialInterval: cfg.MergeInitialBackoff,
		MaxInterval:     cfg.MergeMaxBackoff,
	}, metrics, logger)
	submissionSvc := service.NewSubmissionService(
		a.Surveys,
		invitationRepo,
		service.NewNormalizer(lex, cfg.MaxTextLength),
		accumulator,
		liveSvc,
		metrics,
		logger,
	)

	// Inject broadcaster (hub implements service.Broadcaster)
	a.Hub = ws.NewHub(metrics, logger)
	a.Surveys.SetBroadcaster(a.Hub)
	liveSvc.SetBroadcaster(a.Hub)

	a.Handler = rest.NewRouter(&rest.Container{
		AuthService:       a.Auth,
		SurveyService:     a.Surveys,
		InvitationService: a.Invitations,
		SubmissionService: submissionSvc,
		LiveService:       liveSvc,
		ReportService:     reportSvc,
		WSHub:             a.Hub,
		Metrics:           metrics,
		Gatherer:          reg,
		SubmitLimiter:     middleware.NewRateLimiter(cfg.SubmitRatePerSec, cfg.SubmitBurst),
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		Logger:            logger,
	})
	return a, nil
}

// Close stops the hub and disconnects the stores
func (a *App) Close(ctx context.Context) error {
	if a.Hub != nil {
		a.Hub.Stop()
	}
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
	}
	return errors.Join(errs...)
}

package bootstrap

import (
	"context"
	"time"

	"closet_server/adapter/out/llm"
	"closet_server/adapter/out/mongodb"
	"closet_server/adapter/out/persistence"
	"closet_server/adapter/out/provider/gmail"
	"closet_server/config"
	"closet_server/core/port/out"
	"closet_server/core/service/color"
	"closet_server/core/service/dedup"
	"closet_server/core/service/extraction"
	"closet_server/core/service/job"
	"closet_server/core/service/normalize"
	"closet_server/core/service/retailer"
	syncsvc "closet_server/core/service/sync"
	"closet_server/core/service/token"
	"closet_server/infra/database"
	"closet_server/pkg/cache"
	"closet_server/pkg/crypto"
	"closet_server/pkg/httputil"
	"closet_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Dependencies holds every wired adapter and service. Redis and MongoDB
// are optional; the services degrade gracefully when they are absent.
type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client
	Mongo  *mongodb.Client
	Cache  *cache.RedisCache

	// Repositories
	CredentialRepo out.CredentialRepository
	WardrobeRepo   out.WardrobeRepository
	SyncJobRepo    out.SyncJobRepository
	Archive        out.EmailArchive

	// Services
	OAuthConfig  *oauth2.Config
	TokenService *token.Service
	GmailFactory *gmail.Factory
	Normalizer   *normalize.Normalizer
	Classifier   *retailer.Classifier
	Pipeline     *extraction.Pipeline
	DedupEngine  *dedup.Engine
	ColorTagger  *color.Tagger
	JobTracker   *job.Tracker
	SyncService  *syncsvc.Service
}

// NewDependencies wires the full dependency graph and returns a cleanup
// function that closes every connection.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	if err := crypto.Init(); err != nil {
		return nil, nil, err
	}

	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Postgres: pgx pool for health checks, sqlx for repositories.
	pool, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = pool
	cleanups = append(cleanups, pool.Close)

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis (optional): status cache, OAuth state, rate-limit counters.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache")
		} else {
			deps.Redis = redisClient
			deps.Cache = cache.NewRedisCache(redisClient)
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB (optional): raw email archive.
	if cfg.MongoDBURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL, cfg.MongoDBName)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("MongoDB unavailable, continuing without email archive")
		} else {
			deps.Mongo = mongoClient
			archive := mongodb.NewEmailArchiveAdapter(mongoClient)
			if err := archive.EnsureIndexes(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to ensure archive indexes")
			}
			deps.Archive = archive
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mongoClient.Close(ctx)
			})
		}
	}

	// Repositories
	deps.CredentialRepo = persistence.NewCredentialAdapter(sqlDB)
	deps.WardrobeRepo = persistence.NewWardrobeAdapter(sqlDB)
	deps.SyncJobRepo = persistence.NewSyncJobAdapter(sqlDB)

	// OAuth and token lifecycle
	deps.OAuthConfig = &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/gmail.modify",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
	deps.TokenService = token.NewService(deps.CredentialRepo, deps.OAuthConfig, cfg.TokenSkew())
	deps.GmailFactory = gmail.NewFactory(deps.TokenService, deps.OAuthConfig)

	// Extraction pipeline: custom parsers, generic fallback, then AI.
	var aiParser *extraction.AIParser
	if cfg.OpenAIAPIKey != "" {
		aiParser = extraction.NewAIParser(llm.NewOpenAIExtractor(cfg), cfg.AIInputMaxChars)
	} else {
		logger.Warn("OPENAI_API_KEY not set, AI extraction tier disabled")
	}
	deps.Pipeline = extraction.NewPipeline(aiParser,
		&extraction.MyntraParser{},
		&extraction.HMParser{},
		&extraction.ZaraParser{},
	)

	deps.Normalizer = normalize.New(cfg.UnwrapLengthRatio)
	deps.Classifier = retailer.NewClassifier()
	deps.DedupEngine = dedup.NewEngine(deps.WardrobeRepo)
	deps.ColorTagger = color.NewTaggerWithSampler(deps.WardrobeRepo, color.NewImageSampler(httputil.ImageClient()))
	deps.JobTracker = job.NewTracker(deps.SyncJobRepo, deps.Cache)

	deps.SyncService = syncsvc.NewService(syncsvc.Deps{
		Config:     cfg,
		Tokens:     deps.TokenService,
		Providers:  deps.GmailFactory,
		Archive:    deps.Archive,
		Normalizer: deps.Normalizer,
		Classifier: deps.Classifier,
		Pipeline:   deps.Pipeline,
		Dedup:      deps.DedupEngine,
		Tagger:     deps.ColorTagger,
		Tracker:    deps.JobTracker,
		Cache:      deps.Cache,
	})

	logger.Info("Dependencies initialized")
	return deps, cleanup, nil
}

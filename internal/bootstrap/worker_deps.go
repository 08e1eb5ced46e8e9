package bootstrap

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"outreach_worker/adapter/out/llm"
	"outreach_worker/adapter/out/lock"
	"outreach_worker/adapter/out/memory"
	"outreach_worker/adapter/out/messaging"
	"outreach_worker/adapter/out/mongodb"
	"outreach_worker/adapter/out/persistence"
	"outreach_worker/adapter/out/source"
	"outreach_worker/config"
	"outreach_worker/core/port/out"
	"outreach_worker/core/service/aggregate"
	"outreach_worker/core/service/disposition"
	"outreach_worker/core/service/reply"
	"outreach_worker/core/service/syncjob"
	"outreach_worker/infra/database"
	"outreach_worker/pkg/logger"
	"outreach_worker/pkg/metrics"
)

// Dependencies holds every wired component shared by the API and the worker.
type Dependencies struct {
	Config  *config.Config
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	Calls        out.CallRepository
	Activities   out.ActivityRepository
	CopyFeatures out.CopyFeatureRepository
	Campaigns    out.CampaignRepository
	Progress     out.ProgressRepository
	Locker       out.RunLocker
	Archive      out.RawArchive

	// Queue
	Producer *messaging.RedisProducer

	// Services
	Completion   *llm.Client
	Runner       *syncjob.Runner
	Recovery     *syncjob.RecoveryService
	Orchestrator *syncjob.Orchestrator
}

// Queue returns the trigger queue, or nil without Redis.
func (d *Dependencies) Queue() out.JobQueue {
	if d.Producer == nil {
		return nil
	}
	return d.Producer
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// =========================================================================
	// Storage
	// =========================================================================

	if cfg.DatabaseURL != "" {
		db, err := database.NewSQL(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { db.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = persistence.Migrate(ctx, db)
		cancel()
		if err != nil {
			cleanup()
			return nil, nil, err
		}

		deps.SQLDB = db
		deps.Calls = persistence.NewCallAdapter(db)
		deps.Activities = persistence.NewActivityAdapter(db)
		deps.CopyFeatures = persistence.NewCopyFeatureAdapter(db)
		deps.Campaigns = persistence.NewCampaignAdapter(db)
		deps.Progress = persistence.NewProgressAdapter(db)

		if err := prometheus.Register(metrics.NewDBPoolCollector(db.DB)); err != nil {
			logger.Warn("[Bootstrap] DB pool collector not registered: %v", err)
		}
		logger.Info("[Bootstrap] SQL store connected")
	} else {
		store := memory.NewStore()
		deps.Calls = store.Calls()
		deps.Activities = store.Activities()
		deps.CopyFeatures = store.CopyFeatures()
		deps.Campaigns = store.Campaigns()
		deps.Progress = store.Progress()
		logger.Warn("[Bootstrap] DATABASE_URL not set, using in-memory store")
	}

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { client.Close() })

		deps.Redis = client
		deps.Locker = lock.NewRedisLocker(client)
		deps.Producer = messaging.NewRedisProducer(client)
		logger.Info("[Bootstrap] Redis connected")
	} else {
		deps.Locker = memory.NewLocker()
		logger.Warn("[Bootstrap] REDIS_URL not set, using process-local run locks")
	}

	if cfg.MongoDBURL != "" {
		client, db, err := mongodb.Connect(context.Background(), cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			// the archive is best effort
			logger.Warn("[Bootstrap] MongoDB unavailable, raw archive disabled: %v", err)
		} else {
			cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })

			archive := mongodb.NewRawArchiveAdapter(db)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := archive.EnsureIndexes(ctx); err != nil {
				logger.Warn("[Bootstrap] raw archive indexes: %v", err)
			}
			cancel()

			deps.MongoDB = client
			deps.Archive = archive
			logger.Info("[Bootstrap] raw archive enabled")
		}
	}

	// =========================================================================
	// Classifiers
	// =========================================================================

	deps.Completion = llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout(),
	})

	replyOpts := []reply.Option{reply.WithCallDelay(cfg.AICallDelay())}
	if deps.Completion.Available() {
		replyOpts = append(replyOpts, reply.WithAI(reply.NewAIClassifier(deps.Completion, cfg.LLMTemperature)))
		logger.Info("[Bootstrap] AI reply classification enabled (model %s)", cfg.LLMModel)
	} else {
		logger.Warn("[Bootstrap] OPENAI_API_KEY not set, replies are classified by rules only")
	}
	replies := reply.NewClassifier(reply.NewRuleClassifier(reply.DefaultRules...), replyOpts...)
	dispositions := disposition.NewClassifier(disposition.WithConnectionThreshold(cfg.ConnectionDurationThresholdSec))

	// =========================================================================
	// Jobs
	// =========================================================================

	runCfg := syncjob.Config{
		PageSize:         cfg.SyncPageSize,
		MaxPages:         cfg.SyncMaxPages,
		MaxRecords:       cfg.SyncMaxRecords,
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
	}
	orch := syncjob.NewOrchestrator(runCfg, deps.Progress, deps.Locker)

	classifyCfg := runCfg
	classifyCfg.PageSize = cfg.ClassifyBatchSize
	classifyOrch := syncjob.NewOrchestrator(classifyCfg, deps.Progress, deps.Locker)

	var sourceOpts []syncjob.SourceOption
	if deps.Archive != nil {
		sourceOpts = append(sourceOpts, syncjob.WithRawArchive(deps.Archive))
	}

	sources := func(resource string) *source.Provider {
		return source.NewProvider(source.Config{
			BaseURL:      cfg.SourceBaseURL,
			APIKey:       cfg.SourceAPIKey,
			ClientID:     cfg.SourceClientID,
			ClientSecret: cfg.SourceClientSecret,
			TokenURL:     cfg.SourceTokenURL,
			Timeout:      cfg.SourceTimeout(),
		}, resource)
	}
	if cfg.SourceBaseURL == "" {
		logger.Warn("[Bootstrap] SOURCE_BASE_URL not set, source jobs cannot run")
	}

	deps.Runner = syncjob.NewRunner(
		syncjob.NewCallSyncJob(orch, sources("calls"), deps.Calls, dispositions, sourceOpts...),
		syncjob.NewReplySyncJob(orch, sources("replies"), deps.Activities, sourceOpts...),
		syncjob.NewReplyClassifyJob(classifyOrch, deps.Activities, replies, aggregate.NewService(deps.Activities, deps.Campaigns)),
		syncjob.NewCopyFeatureJob(orch, sources("variants"), deps.CopyFeatures, sourceOpts...),
	)
	deps.Recovery = syncjob.NewRecoveryService(deps.Progress, cfg.HeartbeatTimeout())
	deps.Orchestrator = orch

	return deps, cleanup, nil
}

// HealthCheck pings the configured backing services.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if d.SQLDB != nil {
		if err := d.SQLDB.PingContext(ctx); err != nil {
			return err
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

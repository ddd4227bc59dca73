package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bulkhandler "verity/internal/bulk/handler"
	bulkmetrics "verity/internal/bulk/metrics"
	bulkservice "verity/internal/bulk/service"
	casehandler "verity/internal/cases/handler"
	casemetrics "verity/internal/cases/metrics"
	caseservice "verity/internal/cases/service"
	casestore "verity/internal/cases/store"
	"verity/internal/documents"
	"verity/internal/extraction"
	"verity/internal/idempotency"
	"verity/internal/platform/awsutil"
	"verity/internal/platform/config"
	"verity/internal/platform/kafka"
	"verity/internal/platform/kafka/consumer"
	"verity/internal/platform/kafka/producer"
	"verity/internal/platform/metrics"
	"verity/internal/platform/postgres"
	"verity/internal/platform/redis"
	"verity/internal/policy"
	"verity/internal/session"
	"verity/internal/tenant"
	tenantmetrics "verity/internal/tenant/metrics"
	tenantservice "verity/internal/tenant/service"
	tenantstore "verity/internal/tenant/store"
	"verity/internal/validation"
	webhookhandler "verity/internal/webhook/handler"
	webhookmetrics "verity/internal/webhook/metrics"
	"verity/internal/webhook/queue"
	webhookservice "verity/internal/webhook/service"
	webhookstore "verity/internal/webhook/store"
	"verity/pkg/platform/audit"
	"verity/pkg/platform/audit/publisher"
	auditmemory "verity/pkg/platform/audit/store/memory"
	auditpostgres "verity/pkg/platform/audit/store/postgres"
	"verity/pkg/platform/httputil"
	adminmw "verity/pkg/platform/middleware/admin"
	"verity/pkg/platform/middleware/auth"
	"verity/pkg/platform/middleware/metadata"
	"verity/pkg/platform/middleware/requesttime"
)

// Permission names checked on the reviewer routes.
const (
	permDecide = "cases:decide"
	permBulk   = "cases:bulk"
)

type attemptStore interface {
	webhookservice.AttemptStore
	webhookhandler.AttemptLister
}

// backends holds the storage handles picked from config.
type backends struct {
	pool     *pgxpool.Pool
	db       *sql.DB
	redis    *redis.Client
	aws      *aws.Config
	cases    caseservice.Store
	guard    idempotency.Store
	tenants  tenantservice.Store
	attempts attemptStore
	audit    audit.Store
}

type application struct {
	log      *slog.Logger
	router   http.Handler
	cases    *caseservice.Service
	backends *backends
	inproc   *queue.InProcess
	consumer *consumer.Consumer
	producer *producer.Producer
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app := &application{log: log, backends: b}

	auditPublisher := publisher.New(b.audit,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)

	tenantSvc := tenant.NewService(b.tenants, tenantmetrics.New(), log)
	permissions := policy.New(tenantSvc, cfg.Policy.CacheTTL, policy.WithLogger(log))

	webhookMetrics := webhookmetrics.New()
	engine := webhookservice.New(tenantSvc, b.attempts,
		webhookservice.WithLogger(log),
		webhookservice.WithMetrics(webhookMetrics),
		webhookservice.WithAuditPublisher(auditPublisher),
		webhookservice.WithMaxAttempts(cfg.Webhook.MaxAttempts),
		webhookservice.WithAttemptTimeout(cfg.Webhook.AttemptTimeout),
	)
	notifier, err := app.buildQueue(ctx, cfg, engine, webhookMetrics)
	if err != nil {
		return nil, err
	}

	caseMetrics := casemetrics.New()
	guard := idempotency.New(b.guard,
		idempotency.WithLogger(log),
		idempotency.WithLookupCounter(caseMetrics.IdempotencyLookups),
	)
	sessions := session.NewService(cfg.Session.SigningKey, cfg.Session.Issuer)
	app.cases = caseservice.New(b.cases, guard, notifier,
		caseservice.WithLogger(log),
		caseservice.WithMetrics(caseMetrics),
		caseservice.WithAuditPublisher(auditPublisher),
		caseservice.WithSessionIssuer(sessions),
		caseservice.WithSessionTTL(cfg.Session.TTL),
		caseservice.WithExtractor(extraction.NewEngine()),
		caseservice.WithFieldValidator(validation.NewValidator()),
		caseservice.WithCaseTTL(cfg.Server.CaseTTL),
		caseservice.WithSDKBaseURL(cfg.Server.SDKBaseURL),
	)

	bulkSvc := bulkservice.New(app.cases,
		bulkservice.WithLogger(log),
		bulkservice.WithMetrics(bulkmetrics.New()),
		bulkservice.WithMaxItems(cfg.Bulk.MaxItems),
		bulkservice.WithConcurrency(cfg.Bulk.Concurrency),
	)

	uploads, err := buildUploads(ctx, cfg, b)
	if err != nil {
		return nil, err
	}

	caseHandler := casehandler.New(app.cases, uploads, log)
	webhookHandler := webhookhandler.New(app.cases, b.attempts, log)
	bulkHandler := bulkhandler.New(bulkSvc, log)
	tenantHandler := tenant.NewHandler(tenantSvc, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metrics.New().Middleware)

	r.Get("/health", app.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(tenantSvc, log))
		caseHandler.RegisterClientRoutes(r)
		webhookHandler.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(permissions, permDecide, log))
			caseHandler.RegisterDecisionRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermission(permissions, permBulk, log))
			bulkHandler.Register(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSessionToken(sessions, casehandler.CaseIDParam, log))
		caseHandler.RegisterCaptureRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.Server.AdminToken, log))
		tenantHandler.Register(r)
		caseHandler.RegisterAdminRoutes(r)
	})

	app.router = r
	return app, nil
}

// openBackends connects the stores named by STORAGE_BACKEND and
// IDEMPOTENCY_BACKEND. Clients, webhook attempts and audit entries live in
// Postgres whenever a DSN is configured, otherwise in memory.
func openBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		db, err := postgres.OpenDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.db = db
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		b.tenants = tenantstore.NewPostgres(db)
		b.attempts = webhookstore.NewPostgres(pool)
		b.audit = auditpostgres.New(db)
	} else {
		b.tenants = tenantstore.NewInMemoryStore()
		b.attempts = webhookstore.NewInMemoryStore()
		b.audit = auditmemory.NewInMemoryStore()
	}

	if cfg.Storage.Backend == config.BackendDynamoDB || cfg.Storage.IdempotencyBackend == config.BackendDynamoDB || cfg.S3.Bucket != "" {
		awsConfig, err := awsutil.Load(ctx, cfg.DynamoDB.Region)
		if err != nil {
			return nil, err
		}
		b.aws = &awsConfig
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		b.cases = casestore.NewPostgres(b.pool)
	case config.BackendDynamoDB:
		b.cases = casestore.NewDynamoStore(awsutil.NewDynamoDB(*b.aws, cfg.DynamoDB.Endpoint), cfg.DynamoDB.CasesTable, cfg.DynamoDB.StatusIndex)
	default:
		b.cases = casestore.NewInMemoryStore()
	}

	switch cfg.Storage.IdempotencyBackend {
	case "redis":
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.redis = client
		b.guard = idempotency.NewRedisStore(client.Client)
	case config.BackendDynamoDB:
		b.guard = idempotency.NewDynamoStore(awsutil.NewDynamoDB(*b.aws, cfg.DynamoDB.Endpoint), cfg.DynamoDB.IdempotencyTable)
	default:
		b.guard = idempotency.NewInMemoryStore()
	}

	log.Info("storage ready",
		"cases", cfg.Storage.Backend,
		"idempotency", cfg.Storage.IdempotencyBackend,
		"postgres", b.pool != nil,
	)
	return b, nil
}

// buildQueue picks the webhook notifier. The kafka queue also starts a
// consumer that hands jobs back to the engine.
func (a *application) buildQueue(ctx context.Context, cfg *config.Config, engine *webhookservice.Engine, m *webhookmetrics.Metrics) (caseservice.Notifier, error) {
	if cfg.Webhook.Queue != config.QueueKafka {
		a.inproc = queue.NewInProcess(engine, a.log, m)
		return a.inproc, nil
	}

	brokers := cfg.Kafka.BrokerList()
	if err := kafka.EnsureTopic(ctx, brokers, cfg.Kafka.WebhookTopic, cfg.Kafka.Partitions); err != nil {
		return nil, err
	}
	p, err := producer.New(brokers)
	if err != nil {
		return nil, err
	}
	a.producer = p
	c, err := consumer.New(brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.WebhookTopic}, queue.NewWorker(engine, a.log), a.log)
	if err != nil {
		return nil, err
	}
	a.consumer = c
	return queue.NewKafka(p, cfg.Kafka.WebhookTopic, m), nil
}

// buildUploads returns nil when no document bucket is configured; the
// upload-url route then answers 404.
func buildUploads(ctx context.Context, cfg *config.Config, b *backends) (casehandler.UploadPresigner, error) {
	if cfg.S3.Bucket == "" {
		return nil, nil
	}
	if b.aws == nil {
		return nil, fmt.Errorf("aws config missing for bucket %s", cfg.S3.Bucket)
	}
	presigner := s3.NewPresignClient(awsutil.NewS3(*b.aws, ""))
	return documents.New(presigner, cfg.S3.Bucket, cfg.S3.PresignTTL, cfg.S3.MaxFileBytes), nil
}

func (a *application) startBackground(ctx context.Context, sweepPeriod time.Duration) {
	go sweepExpired(ctx, a.cases, sweepPeriod, a.log)
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("webhook consumer stopped", "error", err)
			}
		}()
	}
}

func (a *application) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	checks := map[string]string{}
	if a.backends.pool != nil {
		checks["postgres"] = "ok"
		if err := a.backends.pool.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if a.backends.redis != nil {
		checks["redis"] = "ok"
		if err := a.backends.redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	httputil.WriteEnvelope(ctx, w, status, map[string]any{"status": http.StatusText(status), "checks": checks}, nil)
}

// close drains in-flight webhook jobs and releases connections.
func (a *application) close(ctx context.Context) {
	if a.inproc != nil {
		if err := a.inproc.Close(ctx); err != nil {
			a.log.Warn("webhook queue did not drain", "error", err)
		}
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.backends.redis != nil {
		_ = a.backends.redis.Close()
	}
	if a.backends.db != nil {
		_ = a.backends.db.Close()
	}
	if a.backends.pool != nil {
		a.backends.pool.Close()
	}
}

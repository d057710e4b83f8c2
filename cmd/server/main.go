package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"esfe/internal/audit"
	"esfe/internal/cashdesk"
	cataloghandler "esfe/internal/catalog/handler"
	catalogservice "esfe/internal/catalog/service"
	catalogstore "esfe/internal/catalog/store"
	"esfe/internal/enrollment/cache"
	enrollmenthandler "esfe/internal/enrollment/handler"
	enrollmentmetrics "esfe/internal/enrollment/metrics"
	enrollmentservice "esfe/internal/enrollment/service"
	"esfe/internal/enrollment/store/memory"
	enrollmentpostgres "esfe/internal/enrollment/store/postgres"
	jwttoken "esfe/internal/jwt_token"
	"esfe/internal/notify"
	"esfe/internal/platform/config"
	"esfe/internal/platform/httpserver"
	"esfe/internal/platform/logger"
	"esfe/internal/platform/metrics"
	"esfe/internal/platform/middleware"
	"esfe/internal/platform/postgres"
	"esfe/internal/platform/redis"
	"esfe/internal/ratelimit"
	"esfe/internal/receipt"
	auditplatform "esfe/pkg/platform/audit"
	"esfe/pkg/platform/audit/publisher"
	auditmemory "esfe/pkg/platform/audit/store/memory"
	auditpostgres "esfe/pkg/platform/audit/store/postgres"
)

const (
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// main wires dependencies, exposes the HTTP router and runs the audit relay
// next to the server. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	reg := prometheus.DefaultRegisterer
	httpMetrics := metrics.New(reg)
	enrollmentMetrics := enrollmentmetrics.New(reg)

	auditPublisher := publisher.NewPublisher(infra.auditStore, publisher.WithLogger(log))
	defer auditPublisher.Close()

	catalogSvc := catalogservice.New(infra.catalogStore,
		catalogservice.WithLogger(log),
		catalogservice.WithAuditPublisher(auditPublisher),
	)

	var codes cashdesk.CodeStore = cashdesk.NewInMemory()
	if infra.redis != nil {
		codes = cashdesk.NewRedisStore(infra.redis.Client)
	}
	cashSvc := cashdesk.New(codes, infra.agentStore, infra.enrollmentStore,
		cashdesk.WithTTL(cfg.CashCodeTTL),
		cashdesk.WithLogger(log),
		cashdesk.WithAuditPublisher(auditPublisher),
	)

	artifacts, err := receipt.NewFileStore(cfg.ReceiptDir)
	if err != nil {
		return err
	}

	var statusCache enrollmentservice.StatusCache = cache.NewMemory(cfg.PublicStatusTTL)
	if infra.redis != nil {
		statusCache = cache.NewRedis(infra.redis.Client, cfg.PublicStatusTTL, log)
	}

	enrollmentSvc := enrollmentservice.New(infra.enrollmentStore, infra.tx, catalogSvc,
		enrollmentservice.WithLogger(log),
		enrollmentservice.WithAuditPublisher(auditPublisher),
		enrollmentservice.WithMetrics(enrollmentMetrics),
		enrollmentservice.WithNotifier(newNotifier(cfg.Mail, log)),
		enrollmentservice.WithReceiptRenderer(receipt.NewHTMLRenderer(), artifacts),
		enrollmentservice.WithStatusCache(statusCache),
		enrollmentservice.WithCashVerifier(cashSvc),
		enrollmentservice.WithInstitution(cfg.Institution),
		enrollmentservice.WithPublicBaseURL(cfg.PublicBaseURL),
		enrollmentservice.WithStudentLoginURL(cfg.Mail.StudentLoginURL),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	auth := middleware.RequireStaff(jwtService, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log, httpMetrics))
	r.Use(middleware.Timeout(requestTimeout))
	r.Get("/healthz", infra.health)
	r.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	var limits ratelimit.Store = ratelimit.NewInMemory()
	if infra.redis != nil {
		limits = ratelimit.NewRedisStore(infra.redis.Client)
	}
	publicLimit := ratelimit.New(limits, cfg.PublicRateLimit, time.Minute, log).Limit("public")

	cataloghandler.New(catalogSvc, log).Register(r, auth)
	enrollmenthandler.New(enrollmentSvc, log, enrollmenthandler.WithPublicMiddleware(publicLimit)).Register(r, auth)
	cashdesk.NewHandler(cashSvc, log).Register(r, auth)

	srv := httpserver.New(cfg.Addr, r, httpserver.WithWriteTimeout(2*requestTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting esfe", "addr", cfg.Addr, "env", cfg.Env, "postgres", infra.db != nil, "redis", infra.redis != nil)
		return httpserver.Run(gctx, srv, shutdownTimeout)
	})
	if infra.relay != nil {
		g.Go(func() error {
			if err := infra.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func newNotifier(cfg config.MailConfig, log *slog.Logger) enrollmentservice.Notifier {
	if cfg.SendGridAPIKey == "" {
		log.Warn("no mail provider configured, emails are logged only")
		return notify.NewLog(log)
	}
	sender := notify.NewSendGrid(cfg.SendGridAPIKey, cfg.FromName, cfg.From)
	return notify.NewBreaker(sender, notify.DefaultBreakerConfig(), log)
}

// infra holds the stores picked from configuration: Postgres when a DSN is
// set, in-memory otherwise.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
	relay *audit.Relay

	catalogStore    catalogservice.Store
	enrollmentStore enrollmentservice.Store
	tx              enrollmentservice.TxRunner
	agentStore      cashdesk.AgentStore
	auditStore      auditplatform.Store
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	in.redis = rc

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		mem := memory.New()
		in.catalogStore = catalogstore.NewInMemory()
		in.enrollmentStore = mem
		in.tx = mem
		in.agentStore = cashdesk.NewInMemoryAgents()
		in.auditStore = auditmemory.NewInMemoryStore()
		return in, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		in.close()
		return nil, err
	}
	in.db = db
	in.catalogStore = catalogstore.NewPostgres(db)
	in.enrollmentStore = enrollmentpostgres.New(db)
	in.tx = enrollmentpostgres.NewTxRunner(db)
	in.agentStore = cashdesk.NewPostgresAgents(db)
	outbox := auditpostgres.New(db)
	in.auditStore = outbox

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := audit.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			in.close()
			return nil, err
		}
		in.kafka = client
		if err := audit.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 3); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		in.relay = audit.NewRelay(outbox, client, cfg.Kafka.AuditTopic, audit.WithLogger(log))
	}
	return in, nil
}

func (in *infra) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (in *infra) close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

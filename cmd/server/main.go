package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"certproof/internal/certificate"
	"certproof/internal/certificate/results"
	"certproof/internal/document/analysis"
	"certproof/internal/document/extraction"
	docmetrics "certproof/internal/document/metrics"
	"certproof/internal/document/ocr"
	"certproof/internal/document/pipeline"
	"certproof/internal/document/preprocess"
	"certproof/internal/phone/certification"
	phonemetrics "certproof/internal/phone/metrics"
	"certproof/internal/phone/otp"
	"certproof/internal/phone/visual"
	"certproof/internal/platform/config"
	"certproof/internal/platform/httpserver"
	"certproof/internal/platform/kafka"
	"certproof/internal/platform/logger"
	"certproof/internal/platform/metrics"
	"certproof/internal/platform/postgres"
	"certproof/internal/platform/redis"
	"certproof/internal/platform/tracing"
	"certproof/internal/proof/attest"
	"certproof/internal/session"
	sessionmetrics "certproof/internal/session/metrics"
	"certproof/internal/session/store"
	httptransport "certproof/internal/transport/http"
	"certproof/pkg/platform/audit"
	"certproof/pkg/platform/audit/publisher"
	auditmemory "certproof/pkg/platform/audit/store/memory"
	auditpostgres "certproof/pkg/platform/audit/store/postgres"
	"certproof/pkg/platform/circuit"
	"certproof/pkg/platform/pseudonym"
)

// main wires infrastructure, builds the session service and serves HTTP
// until SIGINT or SIGTERM.
func main() {
	configPath := flag.String("config", os.Getenv("CERTPROOF_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

type infra struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *kgo.Client
}

func (i *infra) checks() []httptransport.Check {
	var checks []httptransport.Check
	if i.pool != nil {
		checks = append(checks, httptransport.Check{Name: "postgres", Probe: i.pool.Ping})
	}
	if i.redis != nil {
		checks = append(checks, httptransport.Check{Name: "redis", Probe: i.redis.Health})
	}
	if i.producer != nil {
		checks = append(checks, httptransport.Check{Name: "kafka", Probe: i.producer.Ping})
	}
	return checks
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	m := metrics.New()
	docObs := docmetrics.New(m.Registry)
	phoneObs := phonemetrics.New(m.Registry)
	sessionObs := sessionmetrics.New(m.Registry)

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	var resultRepo results.Repository = results.NewInMemoryRepository()
	if deps.pool != nil {
		auditStore = auditpostgres.New(deps.pool)
		resultRepo = results.NewPostgresRepository(deps.pool)
	}
	auditor := publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer auditor.Close()

	var snapshots store.SnapshotStore = store.NewInMemoryStore()
	if deps.redis != nil {
		snapshots = store.NewRedisStore(deps.redis.Client)
	}

	pipe := buildPipeline(cfg, log, docObs)
	phone := buildPhone(cfg, log, phoneObs)

	opts := []session.Option{
		session.WithLogger(log),
		session.WithObserver(sessionObs),
		session.WithGauge(m),
		session.WithAuditor(auditor),
		session.WithResults(resultRepo),
		session.WithSnapshotStore(snapshots, cfg.Redis.SnapshotTTL),
		session.WithHasher(pseudonym.New(cfg.Pseudonym.Key)),
		session.WithSlotOptions(pipeline.WithSlotObserver(docObs)),
		session.WithIdleTTL(cfg.Session.IdleTTL),
		session.WithMaxUpload(cfg.Server.MaxUploadBytes),
	}
	if deps.producer != nil {
		opts = append(opts, session.WithFeed(certificate.NewFeed(deps.producer,
			certificate.WithTopic(cfg.Certificate.KafkaTopic),
			certificate.WithFeedLogger(log),
		)))
	}
	svc := session.NewService(pipe, phone,
		attest.NewSigner(cfg.Attestation.SigningKey, cfg.Attestation.Issuer, cfg.Attestation.TTL),
		certificate.NewHTTPIssuer(cfg.Certificate.URL, cfg.Certificate.Timeout),
		opts...,
	)

	sweeper, err := session.NewSweeper(svc, cfg.Session.SweepSpec, log)
	if err != nil {
		return err
	}

	handler := httptransport.New(svc, log, cfg.Server.MaxUploadBytes)
	srv := httpserver.New(cfg.Server, httptransport.NewRouter(handler, m, deps.checks()...), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certproof", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		svc.Close(shutdownCtx)
		return err
	})
	return g.Wait()
}

// connect opens the optional backing services. Each one is skipped when its
// section is empty.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		deps.pool = pool
		if err := postgres.Migrate(ctx, pool); err != nil {
			deps.close()
			return nil, err
		}
		log.Info("postgres connected")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		deps.close()
		return nil, err
	}
	if rc != nil {
		deps.redis = rc
		log.Info("redis connected")
	}

	producer, err := kafka.NewProducer(cfg.Certificate.KafkaBrokers, cfg.Certificate.KafkaTopic)
	if err != nil {
		deps.close()
		return nil, err
	}
	if producer != nil {
		deps.producer = producer
		if err := kafka.EnsureTopic(ctx, producer, cfg.Certificate.KafkaTopic, cfg.Certificate.KafkaPartitions); err != nil {
			log.Warn("failed to ensure certification topic", "topic", cfg.Certificate.KafkaTopic, "error", err)
		}
		log.Info("kafka producer ready", "topic", cfg.Certificate.KafkaTopic)
	}
	return deps, nil
}

func buildPipeline(cfg config.Config, log *slog.Logger, obs *docmetrics.Metrics) *pipeline.Pipeline {
	engineOpts := []extraction.Option{
		extraction.WithLogger(log),
		extraction.WithObserver(obs),
		extraction.WithBreaker(circuit.New("document-analysis",
			circuit.WithFailureThreshold(cfg.Analysis.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.Analysis.SuccessThreshold),
			circuit.WithCooldown(cfg.Analysis.Cooldown),
		)),
	}
	switch cfg.Analysis.Provider {
	case "http":
		engineOpts = append(engineOpts, extraction.WithAnalyzer(
			analysis.NewHTTPAnalyzer(cfg.Analysis.URL, cfg.Analysis.APIKey, cfg.Analysis.Timeout)))
	case "anthropic":
		engineOpts = append(engineOpts, extraction.WithAnalyzer(
			analysis.NewAnthropicAnalyzer(cfg.Analysis.APIKey, cfg.Analysis.Model)))
	}

	recognizer := ocr.NewTesseract(cfg.OCR.Binary, cfg.OCR.Languages).WithTimeout(cfg.OCR.Timeout)
	return pipeline.New(
		preprocess.New(preprocess.WithLogger(log), preprocess.WithObserver(obs)),
		ocr.NewStage(recognizer,
			ocr.WithSlowThreshold(cfg.OCR.SlowThreshold),
			ocr.WithLogger(log),
			ocr.WithObserver(obs),
		),
		extraction.NewEngine(engineOpts...),
		pipeline.WithLogger(log),
		pipeline.WithObserver(obs),
	)
}

func buildPhone(cfg config.Config, log *slog.Logger, obs *phonemetrics.Metrics) *certification.Service {
	opts := []certification.Option{
		certification.WithPurpose(cfg.OTP.Purpose),
		certification.WithLogger(log),
		certification.WithObserver(obs),
	}
	switch cfg.Visual.Provider {
	case "http":
		opts = append(opts, certification.WithVisualAnalyzer(
			visual.NewHTTPAnalyzer(cfg.Visual.URL, cfg.Visual.APIKey, cfg.Visual.Timeout)))
	case "anthropic":
		opts = append(opts, certification.WithVisualAnalyzer(
			visual.NewAnthropicAnalyzer(cfg.Visual.APIKey, cfg.Visual.Model)))
	}
	return certification.NewService(otp.NewClient(cfg.OTP.URL, cfg.OTP.APIKey, cfg.OTP.Timeout), opts...)
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/karibu-backend/internal/data/db"
	"github.com/yungbote/karibu-backend/internal/data/repos"
	types "github.com/yungbote/karibu-backend/internal/domain"
	httpapi "github.com/yungbote/karibu-backend/internal/http"
	httpH "github.com/yungbote/karibu-backend/internal/http/handlers"
	httpMW "github.com/yungbote/karibu-backend/internal/http/middleware"
	"github.com/yungbote/karibu-backend/internal/ingestion/pipeline"
	"github.com/yungbote/karibu-backend/internal/jobs/worker"
	"github.com/yungbote/karibu-backend/internal/observability"
	errs "github.com/yungbote/karibu-backend/internal/pkg/errors"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/gcp"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/platform/objstore"
	"github.com/yungbote/karibu-backend/internal/platform/openai"
	"github.com/yungbote/karibu-backend/internal/services"
	"github.com/yungbote/karibu-backend/internal/synthesis"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

type closer struct {
	name string
	fn   func() error
}

type App struct {
	Log *logger.Logger
	Cfg Config
	DB  *gorm.DB

	Repos     repos.Repos
	Storage   objstore.Storage
	Index     *vectorindex.Index
	Pipeline  *pipeline.Pipeline
	Synthesis *synthesis.Engine
	Documents services.DocumentService
	DNA       services.DNAService
	Metrics   *observability.Metrics

	pg           *db.PostgresService
	pool         *worker.Pool
	checks       map[string]httpH.Pinger
	closers      []closer
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New loads configuration and wires every dependency except the HTTP
// server, which Run builds.
func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Cfg: cfg, checks: map[string]httpH.Pinger{}}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Cfg
	log := a.Log

	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics = observability.Init(log)
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: tracingServiceName(),
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log, cfg.DSN)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pg = pg
	a.onClose("postgres", pg.Close)
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	a.DB = pg.DB()
	a.checks["database"] = pg.Ping
	if a.Metrics != nil {
		a.Metrics.StartPostgresCollector(bg, log, a.DB)
	}

	a.Repos = repos.New(a.DB, log)

	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return classifyStorageProviderBootstrapError(storageCfg, err)
	}
	a.Storage, err = resolveObjectStorage(ctx, log, storageCfg)
	if err != nil {
		return err
	}
	a.onClose("object_storage", a.Storage.Close)
	if p, ok := a.Storage.(interface{ Ping(context.Context) error }); ok {
		a.checks["object_storage"] = p.Ping
	}

	vectorProvider, modeSource := selectVectorProvider(cfg.VectorProvider, storageCfg.Mode)
	provider, err := resolveVectorStoreProvider(ctx, log, vectorProvider, modeSource, a.DB)
	if err != nil {
		return err
	}

	ai, err := openai.NewClient(log)
	if err != nil {
		return fmt.Errorf("init openai: %w", err)
	}
	a.Index, err = vectorindex.New(log, provider, ai)
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	a.checks["vector_store"] = a.Index.Ping

	ext, err := a.buildExtractor(ctx)
	if err != nil {
		return err
	}
	a.pool = worker.NewPool(log, cfg.Worker)
	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Log:       log,
		Documents: a.Repos.Documents,
		Storage:   a.Storage,
		Extractor: ext,
		Chunker:   cfg.Chunker,
		Embedder:  ai,
		Index:     a.Index,
		Pool:      a.pool,
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	locker, err := a.buildLocker(ctx)
	if err != nil {
		return err
	}
	a.Synthesis, err = synthesis.New(synthesis.Deps{
		Log:       log,
		DB:        a.DB,
		Topics:    a.Repos.Topics,
		Subtopics: a.Repos.Subtopics,
		Values:    a.Repos.Values,
		Retriever: a.Index,
		Completer: openai.WithModel(ai, cfg.Synthesis.Model),
		Locker:    locker,
	}, cfg.Synthesis)
	if err != nil {
		return fmt.Errorf("init synthesis: %w", err)
	}

	a.Documents = services.NewDocumentService(log, cfg.Documents, a.Repos.Documents, a.Storage, a.Pipeline, a.Index)
	a.DNA = services.NewDNAService(log, a.Repos, a.Synthesis)

	log.Info("Application wired",
		"vector_provider", vectorProvider,
		"storage_mode", storageCfg.Mode,
		"synthesis_lock", cfg.Synthesis.LockMode,
		"chunk_size", cfg.Chunker.Size,
		"chunk_overlap", cfg.Chunker.Overlap,
	)
	return nil
}

func (a *App) buildServer() (*httpapi.Server, error) {
	verifier, err := services.NewTokenVerifier(a.Log, a.Cfg.JWTSecret, a.Cfg.JWTAudience)
	if err != nil {
		return nil, fmt.Errorf("init token verifier: %w", err)
	}
	tracing := ""
	if envutil.Bool("OTEL_ENABLED", false) {
		tracing = tracingServiceName()
	}
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:             a.Log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(a.Log, verifier),
		DocumentHandler: httpH.NewDocumentHandler(a.Log, a.Documents),
		DNAHandler:      httpH.NewDNAHandler(a.DNA),
		HealthHandler:   httpH.NewHealthHandler(a.Log, a.checks),
		Metrics:         a.Metrics,
		CORSOrigins:     a.Cfg.CORSOrigins,
		TracingService:  tracing,
	}), nil
}

// Run serves the API until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	srv, err := a.buildServer()
	if err != nil {
		return err
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("HTTP server listening", "address", addr)
	return srv.Run(ctx, addr, a.Cfg.ShutdownTimeout)
}

// ReprocessDocument runs the pipeline for one document in the calling
// goroutine and returns the document as stored afterwards.
func (a *App) ReprocessDocument(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	dbc := dbctx.Of(ctx)
	doc, err := a.Repos.Documents.GetByIDUnscoped(dbc, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	a.Pipeline.ProcessDocument(ctx, doc)
	return a.Repos.Documents.GetByID(dbc, doc.OrganizationID, doc.ID)
}

func (a *App) SynthesizeSubtopic(ctx context.Context, organizationID, subtopicID uuid.UUID) (*synthesis.Result, error) {
	return a.Synthesis.Synthesize(ctx, subtopicID, organizationID)
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close drains background work, then releases clients in reverse order of
// construction.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		logClose(a.Log, a.closers[i].name, a.closers[i].fn)
	}
	a.closers = nil
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		logClose(a.Log, "otel", func() error { return a.otelShutdown(ctx) })
		cancel()
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// Migrate applies the relational schema and, for pgvector, the passage table.
func Migrate(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(log, cfg.DSN)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer logClose(log, "postgres", pg.Close)

	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	if VectorProvider(cfg.VectorProvider) == VectorProviderPgvector {
		if _, err := resolveVectorStoreProvider(ctx, log, VectorProviderPgvector, "explicit", pg.DB()); err != nil {
			return err
		}
	}
	log.Info("Migrations applied")
	return nil
}

func tracingServiceName() string {
	return envutil.String("OTEL_SERVICE_NAME", "karibu-backend")
}

package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-backend/internal/admission"
	"github.com/yungbote/neurobridge-backend/internal/bus"
	"github.com/yungbote/neurobridge-backend/internal/clients/gcp"
	"github.com/yungbote/neurobridge-backend/internal/clients/openai"
	"github.com/yungbote/neurobridge-backend/internal/notifier"
	"github.com/yungbote/neurobridge-backend/internal/observability"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
	"github.com/yungbote/neurobridge-backend/internal/storage"
)

// App is the fully wired process: every long-lived collaborator the HTTP
// layer and the in-process pipeline goroutines depend on, assembled once at
// startup. There is no Postgres-backed Repos/Services split here since this
// service persists nothing relationally — the Job Registry's Redis snapshots
// are the only durable state.
type App struct {
	Log     *logger.Logger
	Router  *gin.Engine
	Cfg     Config
	Metrics *observability.Metrics

	rdb          *goredis.Client
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading environment variables")
	cfg := LoadConfig(log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	reg := registry.New(log, rdb, cfg.Registry)
	eventBus := bus.New(log, rdb, cfg.Bus)
	notif := notifier.New(log, cfg.Notifier)

	docAI, err := gcp.NewDocument(log)
	if err != nil {
		log.Warn("document ai client unavailable, PDF_PREPROCESSING will rely on OCR fallback only", "error", err)
	}
	vision, err := gcp.NewVision(log)
	if err != nil {
		log.Warn("vision client unavailable, PDF_PREPROCESSING OCR fallback disabled", "error", err)
	}
	speech, err := gcp.NewSpeech(log)
	if err != nil {
		log.Warn("speech client unavailable, ENRICHMENT falls back to heuristic phoneme estimates only", "error", err)
	}
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	store, err := storage.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init artifact store client: %w", err)
	}

	preprocessing := pipeline.NewPreprocessingWorker(log, docAI, vision, cfg.GCPProjectID, cfg.GCPLocation, cfg.GCPProcessorID)

	stageRegistry := pipeline.NewRegistry()
	for _, w := range []pipeline.Worker{
		pipeline.NewInitializationWorker(log),
		preprocessing,
		pipeline.NewTransformationWorker(log, openaiClient, notif),
		pipeline.NewImageProcessingWorker(log, openaiClient, store),
		pipeline.NewEnrichmentWorker(log, speech),
		pipeline.NewAssemblyWorker(log),
		pipeline.NewStorageWorker(log, store, "documents"),
		pipeline.NewNotificationWorker(log),
	} {
		if err := stageRegistry.Register(w); err != nil {
			log.Sync()
			return nil, fmt.Errorf("register stage worker: %w", err)
		}
	}
	runner := pipeline.NewRunner(log, stageRegistry)

	thumbDeps := pipeline.ThumbnailDeps{
		Preprocessing: preprocessing,
		ImageClient:   openaiClient,
		Storage:       store,
	}

	background := context.Background()
	adm := admission.NewController(log, reg, eventBus, notif, runner, thumbDeps, background)

	// observability.Init reads METRICS_ENABLED itself; Config only carries
	// the scrape server address since the on/off switch already lives there.
	metrics := observability.Init(log)
	if metrics != nil {
		metrics.StartServer(background, log, cfg.MetricsAddr)
		metrics.StartRedisCollector(background, log, cfg.RedisAddr)
	}

	var otelShutdown func(context.Context) error
	if cfg.OtelEnabled {
		otelShutdown = observability.InitOTel(background, log, observability.OtelConfig{
			ServiceName: "docpipeline",
			Environment: logMode,
		})
	}

	handlers := wireHandlers(log, reg, adm)
	router := wireRouter(log, handlers, metrics)

	return &App{
		Log:          log,
		Router:       router,
		Cfg:          cfg,
		Metrics:      metrics,
		rdb:          rdb,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

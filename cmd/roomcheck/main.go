package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vbonduro/roomcheck/internal/attachment"
	"github.com/vbonduro/roomcheck/internal/backend"
	"github.com/vbonduro/roomcheck/internal/checklist"
	"github.com/vbonduro/roomcheck/internal/config"
	"github.com/vbonduro/roomcheck/internal/db"
	"github.com/vbonduro/roomcheck/internal/events"
	"github.com/vbonduro/roomcheck/internal/inspection"
	"github.com/vbonduro/roomcheck/internal/logging"
	"github.com/vbonduro/roomcheck/internal/metrics"
	"github.com/vbonduro/roomcheck/internal/photostore"
	"github.com/vbonduro/roomcheck/internal/photostore/local"
	"github.com/vbonduro/roomcheck/internal/photostore/supabase"
	"github.com/vbonduro/roomcheck/internal/service"
	"github.com/vbonduro/roomcheck/internal/session"
	"github.com/vbonduro/roomcheck/internal/store"
	"github.com/vbonduro/roomcheck/internal/vision"
	claudevision "github.com/vbonduro/roomcheck/internal/vision/claude"
	ollamavision "github.com/vbonduro/roomcheck/internal/vision/ollama"
	"github.com/vbonduro/roomcheck/internal/web"
)

const sweepInterval = time.Minute

func main() {
	os.Exit(serve())
}

func serve() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load configuration: %v", err)
		return 1
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Printf("failed to initialize logger: %v", err)
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("roomcheck stopped", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shape, err := inspection.ParseShape(cfg.PayloadShape)
	if err != nil {
		return err
	}
	variant, err := inspection.VariantByName(cfg.Variant, shape)
	if err != nil {
		return err
	}
	areas, err := checklist.Load(cfg.AreasFile)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	photoStg, err := newPhotoStore(cfg, logger)
	if err != nil {
		return err
	}

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close event publisher", "error", err)
		}
	}()

	m := metrics.New()
	be := newBackend(cfg, variant, logger)
	pipeline := attachment.New(attachment.Options{MaxWidth: cfg.ImageMaxWidth, Quality: cfg.ImageQuality})

	submissions := service.NewSubmissionService(
		store.NewReceiptStore(database),
		store.NewArchiveStore(database),
		photoStg,
		publisher,
		newDescriber(cfg, logger),
		m,
		logger,
	)

	manager := session.NewManager(func() *session.Controller {
		return session.New(session.Deps{
			Backend:   be,
			Variant:   variant,
			Checklist: areas,
			Pipeline:  pipeline,
			Recorder:  submissions,
			Metrics:   m,
			Logger:    logger,
		})
	}, cfg.SessionIdleTTL, cfg.MaxSessions, m, logger)
	go manager.Run(ctx, sweepInterval)

	logger.Info("inspection service configured",
		"variant", variant.Name,
		"payload_shape", string(variant.Shape),
		"backend_mode", cfg.BackendMode,
		"areas", areas.Len(),
	)

	server := web.NewServer(web.Deps{
		Sessions:    manager,
		Inbox:       be,
		Submissions: submissions,
		Metrics:     m,
		Health:      database.PingContext,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}

func newBackend(cfg *config.Config, variant inspection.Variant, logger *slog.Logger) backend.Backend {
	if cfg.BackendMode == "mock" {
		logger.Warn("using in-memory mock backend; submissions are not delivered")
		return backend.NewMockBackend(variant.ContinueStatuses[0])
	}
	return backend.NewHTTPBackend(backend.Endpoints{
		LookupURL:     cfg.LookupURL,
		SubmitURL:     cfg.SubmitURL,
		TasksURL:      cfg.TasksURL,
		FlowDetailURL: cfg.FlowDetailURL,
	}, cfg.BackendTimeout)
}

func newPhotoStore(cfg *config.Config, logger *slog.Logger) (photostore.PhotoStore, error) {
	switch cfg.PhotoBackend {
	case "local":
		logger.Info("archiving evidence to local disk", "path", cfg.PhotoPath)
		return local.NewLocalPhotoStore(cfg.PhotoPath)
	case "supabase":
		logger.Info("archiving evidence to supabase storage", "bucket", cfg.SupabaseBucket)
		return supabase.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	default:
		logger.Info("evidence archive disabled")
		return photostore.Noop{}, nil
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Noop{}
	}
	logger.Info("publishing submission events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}

func newDescriber(cfg *config.Config, logger *slog.Logger) vision.Describer {
	switch cfg.VisionBackend {
	case "claude":
		logger.Info("using Claude vision backend")
		return claudevision.NewClaudeDescriber(cfg.ClaudeAPIKey, cfg.ClaudeModel, "")
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaDescriber(cfg.OllamaHost, cfg.OllamaModel)
	default:
		return nil
	}
}

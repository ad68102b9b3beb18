package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyeonsoft/billscan/internal/config"
	"github.com/hyeonsoft/billscan/internal/core/ports"
	"github.com/hyeonsoft/billscan/internal/core/usecase"
	"github.com/hyeonsoft/billscan/internal/infrastructure/export/excel"
	"github.com/hyeonsoft/billscan/internal/infrastructure/launcher"
	"github.com/hyeonsoft/billscan/internal/infrastructure/llm/gemini"
	"github.com/hyeonsoft/billscan/internal/infrastructure/ocr/clova"
	"github.com/hyeonsoft/billscan/internal/infrastructure/queue/nats"
	"github.com/hyeonsoft/billscan/internal/infrastructure/repository/postgres"
	"github.com/hyeonsoft/billscan/internal/infrastructure/resilience"
	"github.com/hyeonsoft/billscan/internal/infrastructure/storage/azureblob"
	"github.com/hyeonsoft/billscan/internal/infrastructure/storage/localfs"
	"github.com/hyeonsoft/billscan/internal/infrastructure/vision"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.ProcessQueue
	Repo  ports.JobRepository

	UploadUC  ports.BillIngestor
	ProcessUC *usecase.ProcessBillUseCase
	ReviewUC  ports.BillReviewer
	ReadUC    ports.BillReader
	ExportUC  ports.BillExporter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewBillRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := buildStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	engine := vision.NewEngine(logger, time.Duration(cfg.VisionInitWaitMS)*time.Millisecond)
	preprocessor := vision.NewPreprocessor(engine, cfg.VisionWorkDim)

	recognizer := clova.New(clova.Config{
		GeneralURL:  cfg.OCRGeneralURL,
		TemplateURL: cfg.OCRTemplateURL,
		Secret:      cfg.OCRSecret,
		Lang:        cfg.OCRLang,
		TemplateIDs: cfg.TemplateIDList(),
	}, executor)

	extractor := gemini.New(gemini.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
	}, executor)

	processUC := usecase.NewProcessBillUseCase(repo, storage, preprocessor, recognizer, extractor).
		WithOCRMinTextLen(cfg.OCRMinTextLen)

	var queue *nats.Queue
	var launch ports.ProcessLauncher
	if cfg.InProcessLaunchMode || cfg.NATSURL == "" {
		launch = launcher.NewInProcessLauncher(processUC, 100*time.Millisecond, logger)
		logger.Warn("queue disabled, running pipeline in process")
	} else {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		launch = launcher.NewQueueLauncher(queue)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Repo:   repo,

		UploadUC:  usecase.NewUploadBillUseCase(repo, storage, launch),
		ProcessUC: processUC,
		ReviewUC:  usecase.NewReviewBillUseCase(repo, launch),
		ReadUC:    usecase.NewReadBillUseCase(repo),
		ExportUC:  usecase.NewExportBillsUseCase(repo, excel.NewExporter()),

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			_ = db.Close()
		},
	}
	if queue != nil {
		app.Queue = queue
	}
	return app, nil
}

func buildStorage(ctx context.Context, cfg config.Config) (ports.BlobStore, error) {
	switch cfg.StorageBackend {
	case "azure":
		store, err := azureblob.New(cfg.AzureConnectionString, cfg.AzureContainer)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localfs.New(cfg.StoragePath)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

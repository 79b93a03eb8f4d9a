package bootstrap

import (
	"context"
	"database/sql"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/analysis/textract"
	"invoice-backend/internal/documents"
	"invoice-backend/internal/extraction"
	"invoice-backend/internal/processing"
	"invoice-backend/internal/queue"
	"invoice-backend/internal/shared/config"
	"invoice-backend/internal/shared/storage/db"
	"invoice-backend/internal/shared/storage/object"
	"invoice-backend/internal/shared/storage/object/local"
	"invoice-backend/internal/shared/storage/object/s3"
	"invoice-backend/internal/shared/telemetry"
	"invoice-backend/internal/suppliers"
)

// App holds the wired application components shared by the server and worker
// binaries.
type App struct {
	Cfg config.Config
	DB  *sql.DB

	Store    object.ObjectStore
	Analyzer analysis.Client
	Queue    queue.Client

	DocsRepo       documents.Repo
	ExtractionRepo extraction.Repo
	Suppliers      suppliers.Resolver

	Documents   *documents.Service
	Extractions *extraction.Service
	Processing  *processing.Service
	Scheduler   *processing.Scheduler
}

// Build wires repositories, stores and services from configuration. When
// DATABASE_URL is unset the app runs entirely on memory repos.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Cfg: cfg}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, database); err != nil {
			database.Close()
			return nil, err
		}
		app.DB = database
		app.DocsRepo = &documents.PGRepo{DB: database}
		app.ExtractionRepo = &extraction.PGRepo{DB: database}
		app.Suppliers = &suppliers.PGResolver{DB: database}
		telemetry.Info("bootstrap.database_connected", nil)
	} else {
		app.DocsRepo = documents.NewMemoryRepo()
		app.ExtractionRepo = extraction.NewMemoryRepo()
		app.Suppliers = suppliers.NewMemoryResolver()
		telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL not set"})
	}

	if cfg.ObjectStoreType == "s3" && cfg.S3Bucket != "" {
		store, err := s3.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, err
		}
		app.Store = store
	} else {
		app.Store = local.New(cfg.LocalStoreDir)
	}

	if cfg.AnalysisProvider == "textract" {
		client, err := textract.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, err
		}
		app.Analyzer = client
	} else {
		app.Analyzer = analysis.NewMemoryClient()
	}

	if cfg.SQSQueueURL != "" {
		q, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		app.Queue = q
	}

	app.Documents = &documents.Service{
		Store:    app.Store,
		Repo:     app.DocsRepo,
		Analyzer: app.Analyzer,
		Queue:    app.Queue,
		Derived:  app.ExtractionRepo,
	}
	app.Extractions = &extraction.Service{
		Repo:      app.ExtractionRepo,
		Documents: app.DocsRepo,
		Suppliers: app.Suppliers,
	}
	app.Processing = &processing.Service{
		Docs:           app.DocsRepo,
		Extractions:    app.ExtractionRepo,
		Analyzer:       app.Analyzer,
		Store:          app.Store,
		StuckThreshold: cfg.StuckThreshold,
		ScanLimit:      cfg.ScanLimit,
	}
	app.Scheduler = &processing.Scheduler{
		Svc:             app.Processing,
		PollInterval:    cfg.PollInterval,
		JanitorInterval: cfg.JanitorInterval,
	}
	return app, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

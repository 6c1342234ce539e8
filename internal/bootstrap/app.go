package bootstrap

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/analysis"
	googleauth "github.com/sacha-rebbouh/angeldesk-sub005/internal/auth"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/completion"
	openai "github.com/sacha-rebbouh/angeldesk-sub005/internal/completion/openai"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/documents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/orchestrator"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/queue"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/quota"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/config"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/db"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/object"
	localstore "github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/object/local"
	s3store "github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/object/s3"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/users"
)

var errDatabaseRequired = errors.New("DATABASE_URL is required")

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	DealsRepo     deals.Repo
	DocumentsRepo documents.Repo
	SessionsRepo  sessions.Repo
	UsersRepo     users.Repo

	Registry         *agents.Registry
	SessionStore     *sessions.Store
	DealsService     *deals.Service
	DocumentsService *documents.Service
	QuotaService     *quota.Service
	UsersService     *users.Service
	AnalysisService  *analysis.Service

	DealsHandler    *deals.Handler
	DocumentHandler *documents.Handler
	AnalysisHandler *analysis.Handler
	SessionsHandler *sessions.Handler
	QuotaHandler    *quota.Handler
	UsersHandler    *users.Handler
	GoogleAuth      *googleauth.GoogleService
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DealsHandler:    app.DealsHandler,
		DocumentHandler: app.DocumentHandler,
		AnalysisHandler: app.AnalysisHandler,
		SessionsHandler: app.SessionsHandler,
		QuotaHandler:    app.QuotaHandler,
		UsersHandler:    app.UsersHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, errDatabaseRequired
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL)
}

// loadReferenceFacts reads the comparable-deals dataset handed to every
// agent instruction. An empty path means no reference block.
func loadReferenceFacts(path string) (json.RawMessage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference facts: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("reference facts: %s is not valid JSON", path)
	}
	return raw, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var dealsRepo deals.Repo
	var docRepo documents.Repo
	var sessionsRepo sessions.Repo
	var usersRepo users.Repo

	if app.DB != nil {
		dealsRepo = &deals.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		sessionsRepo = &sessions.PGRepo{DB: app.DB}
		usersRepo = &users.PGRepo{DB: app.DB}
	} else {
		dealsRepo = deals.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		sessionsRepo = sessions.NewMemoryRepo()
		usersRepo = users.NewMemoryRepo()
	}

	var quotaSvc *quota.Service
	if app.DB != nil {
		quotaSvc = quota.NewPostgresService(quota.NewPGStore(app.DB))
	} else {
		quotaSvc = quota.NewService()
	}

	client := completion.Client(completion.Placeholder{})
	if app.Config.CompletionProvider == "openai" {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if strings.TrimSpace(apiKey) == "" && isDevLike(app.Config.Env) {
			log.Printf("bootstrap: OPENAI_API_KEY empty; using placeholder completion client")
		} else {
			openaiClient, err := openai.NewClient(apiKey, app.Config.ModelSimple, app.Config.ModelComplex)
			if err != nil {
				return err
			}
			client = openaiClient
		}
	}

	registry, err := agents.NewRegistry(agents.Catalog(client)...)
	if err != nil {
		return err
	}

	dealsSvc := &deals.Service{Repo: dealsRepo}
	docSvc := &documents.Service{
		Store: app.Store,
		Repo:  docRepo,
		Deals: dealsRepo,
	}
	sessionStore := &sessions.Store{
		Repo: sessionsRepo,
		Docs: docSvc,
	}
	scheduler := &orchestrator.Scheduler{
		Registry:    registry,
		MaxParallel: app.Config.MaxParallelAgents,
	}

	analysisSvc := analysis.NewService(sessionStore, registry, scheduler, dealsRepo, docSvc, quotaSvc)
	analysisSvc.Queue = app.Queue

	reference, err := loadReferenceFacts(app.Config.ReferenceFactsFile)
	if err != nil {
		return err
	}
	analysisSvc.Reference = reference

	userSvc := users.NewService(usersRepo)
	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)

	app.DealsRepo = dealsRepo
	app.DocumentsRepo = docRepo
	app.SessionsRepo = sessionsRepo
	app.UsersRepo = usersRepo
	app.Registry = registry
	app.SessionStore = sessionStore
	app.DealsService = dealsSvc
	app.DocumentsService = docSvc
	app.QuotaService = quotaSvc
	app.UsersService = userSvc
	app.AnalysisService = analysisSvc
	app.DealsHandler = deals.NewHandler(dealsSvc)
	app.DocumentHandler = documents.NewHandler(docSvc)
	app.AnalysisHandler = analysis.NewHandler(analysisSvc)
	app.SessionsHandler = sessions.NewHandler(sessionStore, dealsRepo)
	app.QuotaHandler = quota.NewHandler(quotaSvc)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleAuthSvc

	return nil
}

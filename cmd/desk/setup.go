package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/providers/llm"
	"github.com/sandevgo/reliefdesk/internal/providers/pdf"
	"github.com/sandevgo/reliefdesk/internal/providers/source"
	"github.com/sandevgo/reliefdesk/internal/service/authority"
	"github.com/sandevgo/reliefdesk/internal/service/codes"
	"github.com/sandevgo/reliefdesk/internal/service/command"
	"github.com/sandevgo/reliefdesk/internal/service/conversation"
	"github.com/sandevgo/reliefdesk/internal/service/ingest"
	"github.com/sandevgo/reliefdesk/internal/service/query"
	"github.com/sandevgo/reliefdesk/internal/service/relief"
	"github.com/sandevgo/reliefdesk/internal/service/roster"
	"github.com/sandevgo/reliefdesk/internal/service/scheduler"
	"github.com/sandevgo/reliefdesk/internal/service/syncer"
	"github.com/sandevgo/reliefdesk/internal/storage/files"
	"github.com/sandevgo/reliefdesk/internal/storage/sqlite"
	"github.com/sandevgo/reliefdesk/internal/transport/telegram"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"github.com/sandevgo/reliefdesk/pkg/srv"
)

// App holds the wired components shared by every subcommand.
type App struct {
	Config   *config.AppConfig
	Location *time.Location
	DB       *sql.DB

	Identities  *sqlite.IdentityRepo
	Entries     *sqlite.EntryRepo
	Reminders   *sqlite.ReminderRepo
	Maintenance *sqlite.MaintenanceRepo
	Files       *files.Store

	Authority    *authority.Authority
	Codes        *codes.Service
	Conversation *conversation.Engine
	Query        *query.Service
	Syncer       *syncer.Syncer
	Router       *command.Router

	schedulerCfg scheduler.Config
}

// NewApp loads configuration, opens storage and builds every service that
// does not depend on a transport.
func NewApp(ctx context.Context) (*App, error) {
	cfg := config.NewAppConfig(ctx)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	store, err := files.NewStore(cfg.GetStoragePath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize artifact storage: %w", err)
	}

	a := &App{
		Config:      cfg,
		Location:    loc,
		DB:          db,
		Identities:  sqlite.NewIdentityRepo(db),
		Entries:     sqlite.NewEntryRepo(db),
		Reminders:   sqlite.NewReminderRepo(db),
		Maintenance: sqlite.NewMaintenanceRepo(db),
		Files:       store,
	}
	if err := a.wire(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	categories := cfg.CategoryList()

	ai, err := llm.NewProvider(ctx, config.NewLLMConfig(ctx))
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	pipeline := ingest.NewPipeline(ai, pdf.NewOpener(), config.NewIngestConfig(ctx))

	a.Authority = authority.New(a.Identities)
	a.Codes = codes.NewService(sqlite.NewCodeRepo(a.DB), a.Location)

	coverage, err := relief.NewEngine(ai, a.Identities, a.Reminders, &cfg.Reminder, a.Location)
	if err != nil {
		return fmt.Errorf("failed to initialize relief matcher: %w", err)
	}

	convCfg := conversation.Config{
		Categories:      categories,
		SessionTimeout:  cfg.SessionTimeout,
		CodeMaxAttempts: cfg.CodeMaxAttempts,
		Location:        a.Location,
	}
	if cfg.UploadNotice {
		convCfg.Notice = conversation.DefaultNotice
	}
	a.Conversation = conversation.NewEngine(a.Authority, a.Codes, pipeline, a.Entries, a.Files, coverage, convCfg)
	a.Query = query.NewService(ai, a.Entries, categories, a.Location)

	sources, err := initSources(cfg)
	if err != nil {
		return err
	}
	if len(sources) > 0 {
		a.Syncer = syncer.New(sqlite.NewSyncRepo(a.DB), pipeline, coverage, cfg.CoverageCategories, sources)
	}

	a.schedulerCfg, err = scheduler.NewConfig(cfg)
	if err != nil {
		return err
	}

	deps := command.Deps{
		Config:       cfg,
		Location:     a.Location,
		Authority:    a.Authority,
		Identities:   a.Identities,
		Entries:      a.Entries,
		Maintenance:  a.Maintenance,
		Conversation: a.Conversation,
		Codes:        a.Codes,
		Query:        a.Query,
		Purger:       a.Scheduler(nil),
		Roster:       roster.NewImporter(a.Identities, cfg.SuperAdminIDs),
	}
	if a.Syncer != nil {
		deps.Syncer = a.Syncer
	}
	a.Router = command.New(a.Authority, command.NewCommands(deps))
	return nil
}

// Scheduler builds the background scheduler. Without a messenger reminders
// stay pending and purge notices are skipped.
func (a *App) Scheduler(messenger core.Messenger) *scheduler.Scheduler {
	var sources scheduler.SourceSyncer
	if a.Syncer != nil {
		sources = a.Syncer
	}
	return scheduler.New(a.Maintenance, a.Files, a.Reminders, messenger, sources, a.schedulerCfg)
}

func initSources(cfg *config.AppConfig) ([]core.Source, error) {
	sourcesCfg, err := config.LoadSources(cfg.GetSourcesPath())
	if err != nil {
		return nil, err
	}
	fallback := "general"
	if !slices.Contains(cfg.Categories, fallback) && len(cfg.Categories) > 0 {
		fallback = cfg.Categories[len(cfg.Categories)-1]
	}
	classifier, err := source.NewClassifier(source.DefaultRules, cfg.Categories, fallback)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	return source.NewAll(sourcesCfg, classifier)
}

// NewServices wires the long running services for "desk start".
func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	app, err := NewApp(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	services = append(services, srv.NewCleanup("database", app.DB.Close))

	var messenger core.Messenger
	if app.Config.IsTelegramSelected() {
		bot, err := telegram.NewBot(ctx, config.NewTelegramConfig(ctx), app.Router, app.Conversation, app.Reminders)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize telegram")
		}
		messenger = bot.Messenger()
		services = append(services, bot)
		services = append(services, conversation.NewSweeper(app.Conversation, messenger))
	} else {
		logger.Warn().Msg("telegram is disabled, reminders will not be delivered")
	}

	services = append(services, app.Scheduler(messenger))
	return services
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

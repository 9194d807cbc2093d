package app

import (
	"context"
	"time"

	"petintake/config"
	"petintake/internal/controllers"
	"petintake/internal/database"
	"petintake/internal/events"
	"petintake/internal/handlers/middleware"
	"petintake/internal/jobs"
	"petintake/internal/repositories"
	"petintake/internal/services"
	"petintake/internal/sessions"
	"petintake/internal/websockets"

	logger "github.com/Bparsons0904/goLogger"
)

type App struct {
	Database    database.DB
	Middleware  middleware.Middleware
	Websocket   *websockets.Manager
	EventBus    *events.EventBus
	Config      config.Config
	Sessions    *sessions.Manager
	Services    services.Service
	Repos       repositories.Repository
	Controllers controllers.Controllers
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.New()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	return Build(config, db)
}

// Build wires every component on top of an already opened database.
func Build(config config.Config, db database.DB) (*App, error) {
	log := logger.New("app").Function("Build")

	eventBus := events.New(db.Cache.Events)
	repos := repositories.New(db)
	services := services.New(db, config, repos)

	manager := sessions.NewManager(
		sessions.Config{
			TickInterval: config.ProgressTick(),
			DismissDelay: config.RejectionDismiss(),
		},
		eventBus,
		repos.WizardSnapshot,
		repos.IngestionRun,
	)

	websocket, err := websockets.New(eventBus, manager)
	if err != nil {
		manager.Shutdown()
		return &App{}, log.Err("failed to create websocket manager", err)
	}

	if err := jobs.RegisterAllJobs(services.Scheduler, config, manager, repos); err != nil {
		websocket.Close()
		manager.Shutdown()
		return &App{}, log.Err("failed to register jobs", err)
	}

	app := &App{
		Database:    db,
		Config:      config,
		Middleware:  middleware.New(config, manager),
		Websocket:   websocket,
		EventBus:    eventBus,
		Sessions:    manager,
		Services:    services,
		Repos:       repos,
		Controllers: controllers.New(services, manager),
	}

	if err := app.validate(); err != nil {
		_ = app.Close()
		return &App{}, log.Err("failed to validate app", err)
	}

	if config.SchedulerEnabled {
		if err := services.Scheduler.Start(context.Background()); err != nil {
			_ = app.Close()
			return &App{}, log.Err("failed to start scheduler", err)
		}
	}

	return app, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")

	if a.Config.ServerPort <= 0 {
		return log.ErrMsg("config is not initialized")
	}

	nilChecks := map[string]any{
		"websocket":    a.Websocket,
		"eventBus":     a.EventBus,
		"sessions":     a.Sessions,
		"petAPI":       a.Services.PetAPI,
		"ingestion":    a.Services.Ingestion,
		"scheduler":    a.Services.Scheduler,
		"runHistory":   a.Services.RunHistory,
		"intake":       a.Controllers.Intake,
		"wizard":       a.Controllers.Wizard,
		"transactions": a.Services.Transaction,
	}

	for name, check := range nilChecks {
		if check == nil {
			return log.Error("nil check failed", "component", name)
		}
	}

	return nil
}

// Close tears down sessions first so in-flight polls stop before their collaborators go away.
func (a *App) Close() (err error) {
	log := logger.New("app").Function("Close")

	if a.Sessions != nil {
		a.Sessions.Shutdown()
	}

	if a.Websocket != nil {
		a.Websocket.Close()
	}

	if a.Services.Scheduler != nil && a.Services.Scheduler.IsRunning() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := a.Services.Scheduler.Stop(ctx); closeErr != nil {
			log.Er("failed to stop scheduler", closeErr)
			err = closeErr
		}
	}

	if a.EventBus != nil {
		if closeErr := a.EventBus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}

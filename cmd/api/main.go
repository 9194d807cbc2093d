package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"petintake/internal/app"
	"petintake/internal/server"

	logger "github.com/Bparsons0904/goLogger"
)

const shutdownTimeout = 10 * time.Second

func gracefulShutdown(
	app *app.App,
	appServer *server.AppServer,
	done chan bool,
	log logger.Logger,
) {
	log = log.Function("gracefulShutdown")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("shutting down gracefully, press Ctrl+C again to force",
		"activeSessions", app.Sessions.Len(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := appServer.FiberApp.ShutdownWithContext(ctx); err != nil {
		log.Er("Server forced to shutdown", err)
	}

	if err := app.Close(); err != nil {
		log.Er("failed to close app", err)
	}

	log.Info("Server exiting")
	done <- true
}

func main() {
	log := logger.New("main")

	app, err := app.New()
	if err != nil {
		log.Er("failed to build app", err)
		os.Exit(1)
	}

	server, err := server.New(app)
	if err != nil {
		log.Er("failed to build server", err)
		_ = app.Close()
		os.Exit(1)
	}

	log.Info("petintake starting",
		"version", app.Config.GeneralVersion,
		"environment", app.Config.Environment,
		"port", app.Config.ServerPort,
	)

	done := make(chan bool, 1)

	go func() {
		if err := server.Listen(app.Config.ServerPort); err != nil {
			log.Er("server stopped", err)
			_ = app.Close()
			os.Exit(1)
		}
	}()

	go gracefulShutdown(app, server, done, log)

	<-done
	log.Info("Graceful shutdown complete.")
}

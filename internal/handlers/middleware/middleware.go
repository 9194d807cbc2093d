package middleware

import (
	"petintake/config"
	"petintake/internal/sessions"

	logger "github.com/Bparsons0904/goLogger"
)

type Middleware struct {
	Config   config.Config
	sessions *sessions.Manager
	log      logger.Logger
}

func New(config config.Config, sessions *sessions.Manager) Middleware {
	log := logger.New("middleware")

	return Middleware{
		Config:   config,
		sessions: sessions,
		log:      log,
	}
}

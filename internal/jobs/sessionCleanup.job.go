package jobs

import (
	"context"
	"time"

	"petintake/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type IdleSessionCloser interface {
	CloseIdle(maxIdle time.Duration) int
	Len() int
}

// SessionCleanupJob tears down intake sessions nobody has touched for maxIdle. Sessions with a
// submit in flight survive until it resolves.
type SessionCleanupJob struct {
	sessions IdleSessionCloser
	maxIdle  time.Duration
	log      logger.Logger
	schedule services.Schedule
}

func NewSessionCleanupJob(
	sessions IdleSessionCloser,
	maxIdle time.Duration,
	schedule services.Schedule,
) *SessionCleanupJob {
	return &SessionCleanupJob{
		sessions: sessions,
		maxIdle:  maxIdle,
		log:      logger.New("sessionCleanupJob"),
		schedule: schedule,
	}
}

func (j *SessionCleanupJob) Name() string {
	return "IdleSessionCleanup"
}

func (j *SessionCleanupJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	if err := ctx.Err(); err != nil {
		return err
	}

	closed := j.sessions.CloseIdle(j.maxIdle)
	if closed > 0 {
		log.Info("Closed idle sessions", "closed", closed, "remaining", j.sessions.Len())
	}
	return nil
}

func (j *SessionCleanupJob) Schedule() services.Schedule {
	return j.schedule
}

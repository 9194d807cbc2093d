package jobs

import (
	"context"
	"time"

	"petintake/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type RunPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RunRetentionJob struct {
	runs      RunPurger
	retention time.Duration
	now       func() time.Time
	log       logger.Logger
	schedule  services.Schedule
}

func NewRunRetentionJob(runs RunPurger, retention time.Duration, schedule services.Schedule) *RunRetentionJob {
	return &RunRetentionJob{
		runs:      runs,
		retention: retention,
		now:       time.Now,
		log:       logger.New("runRetentionJob"),
		schedule:  schedule,
	}
}

func (j *RunRetentionJob) Name() string {
	return "IngestionRunRetention"
}

func (j *RunRetentionJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	cutoff := j.now().Add(-j.retention)
	purged, err := j.runs.PurgeBefore(ctx, cutoff)
	if err != nil {
		return log.Err("run retention failed", err, "cutoff", cutoff)
	}

	log.Info("Run retention completed", "purged", purged, "cutoff", cutoff)
	return nil
}

func (j *RunRetentionJob) Schedule() services.Schedule {
	return j.schedule
}

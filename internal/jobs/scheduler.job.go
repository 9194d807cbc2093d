package jobs

import (
	"petintake/config"
	"petintake/internal/repositories"
	"petintake/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

func RegisterAllJobs(
	schedulerService *services.SchedulerService,
	config config.Config,
	sessions IdleSessionCloser,
	repos repositories.Repository,
) error {
	log := logger.New("jobs").Function("RegisterAllJobs")

	if !config.SchedulerEnabled {
		log.Info("Scheduler disabled, skipping job registration")
		return nil
	}

	if err := schedulerService.AddJob(
		NewSessionCleanupJob(sessions, config.SessionIdle(), services.EveryMinute),
	); err != nil {
		return log.Err("failed to register session cleanup job", err)
	}

	if repos.IngestionRun != nil && config.RunRetention() > 0 {
		if err := schedulerService.AddJob(
			NewRunRetentionJob(repos.IngestionRun, config.RunRetention(), services.Daily),
		); err != nil {
			return log.Err("failed to register run retention job", err)
		}
	} else {
		log.Info("Run retention disabled", "hasDatabase", repos.IngestionRun != nil)
	}

	return nil
}

package config

import (
	"net/url"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/spf13/viper"
)

type Config struct {
	GeneralVersion       string `mapstructure:"GENERAL_VERSION"`
	Environment          string `mapstructure:"ENVIRONMENT"`
	ServerPort           int    `mapstructure:"SERVER_PORT"`
	DatabaseHost         string `mapstructure:"DB_HOST"`
	DatabasePort         int    `mapstructure:"DB_PORT"`
	DatabaseName         string `mapstructure:"DB_NAME"`
	DatabaseUser         string `mapstructure:"DB_USER"`
	DatabasePassword     string `mapstructure:"DB_PASSWORD"`
	DatabaseCacheAddress string `mapstructure:"DB_CACHE_ADDRESS"`
	DatabaseCachePort    int    `mapstructure:"DB_CACHE_PORT"`
	DatabaseCacheReset   int    `mapstructure:"DB_CACHE_RESET"`
	CorsAllowOrigins     string `mapstructure:"CORS_ALLOW_ORIGINS"`
	PetAPIBaseURL        string `mapstructure:"PET_API_BASE_URL"`
	PetAPITimeoutSeconds int    `mapstructure:"PET_API_TIMEOUT_SECONDS"`
	PollMaxAttempts      int    `mapstructure:"POLL_MAX_ATTEMPTS"`
	PollDelayMS          int    `mapstructure:"POLL_DELAY_MS"`
	ProgressTickMS       int    `mapstructure:"PROGRESS_TICK_MS"`
	RejectionDismissMS   int    `mapstructure:"REJECTION_DISMISS_MS"`
	SessionIdleMinutes   int    `mapstructure:"SESSION_IDLE_MINUTES"`
	RunRetentionDays     int    `mapstructure:"RUN_RETENTION_DAYS"`
	SchedulerEnabled     bool   `mapstructure:"SCHEDULER_ENABLED"`
}

var ConfigInstance Config

var envVars = []string{
	"GENERAL_VERSION", "ENVIRONMENT", "SERVER_PORT", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
	"DB_CACHE_ADDRESS", "DB_CACHE_PORT", "DB_CACHE_RESET",
	"CORS_ALLOW_ORIGINS",
	"PET_API_BASE_URL", "PET_API_TIMEOUT_SECONDS",
	"POLL_MAX_ATTEMPTS", "POLL_DELAY_MS", "PROGRESS_TICK_MS", "REJECTION_DISMISS_MS",
	"SESSION_IDLE_MINUTES", "RUN_RETENTION_DAYS", "SCHEDULER_ENABLED",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("DB_CACHE_RESET", -1)
	v.SetDefault("PET_API_TIMEOUT_SECONDS", 30)
	v.SetDefault("POLL_MAX_ATTEMPTS", 15)
	v.SetDefault("POLL_DELAY_MS", 2000)
	v.SetDefault("PROGRESS_TICK_MS", 200)
	v.SetDefault("REJECTION_DISMISS_MS", 5000)
	v.SetDefault("SESSION_IDLE_MINUTES", 30)
	v.SetDefault("RUN_RETENTION_DAYS", 90)
	v.SetDefault("SCHEDULER_ENABLED", true)
}

func New() (Config, error) {
	log := logger.New("config").Function("New")
	log.Info("Initializing config")

	v := viper.GetViper()
	v.AutomaticEnv()
	setDefaults(v)

	for _, env := range envVars {
		if err := v.BindEnv(env); err != nil {
			log.Warn("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	envVarsSet := v.IsSet("SERVER_PORT") && v.IsSet("PET_API_BASE_URL")

	if envVarsSet {
		log.Info("Environment variables detected, skipping file loading")
	} else {
		log.Info("Environment variables not found, attempting to load from files")

		v.SetConfigFile(".env")
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil {
			log.Warn("Could not find .env file", "error", err)
		} else {
			log.Info("Loaded .env file")
		}

		v.SetConfigFile(".env.local")
		if err := v.MergeInConfig(); err != nil {
			log.Debug("No .env.local file found", "error", err)
		} else {
			log.Info("Loaded .env.local overrides")
		}
	}

	return load(v, log)
}

func load(v *viper.Viper, log logger.Logger) (Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, log.Err("Fatal error: could not unmarshal config", err)
	}

	if err := validateConfig(config, log); err != nil {
		return Config{}, err
	}

	log.Info("Successfully initialized config",
		"environment", config.Environment,
		"serverPort", config.ServerPort,
		"petAPI", config.PetAPIBaseURL,
	)
	return ConfigInstance, nil
}

func GetConfig() Config {
	return ConfigInstance
}

func validateConfig(config Config, log logger.Logger) error {
	if config.ServerPort <= 0 {
		return log.Error(
			"Fatal error: invalid server port",
			"port", config.ServerPort,
		)
	}

	if config.PetAPIBaseURL == "" {
		return log.ErrMsg("Fatal error: PET_API_BASE_URL is required")
	}
	parsed, err := url.Parse(config.PetAPIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return log.Error(
			"Fatal error: PET_API_BASE_URL must be an absolute URL",
			"url", config.PetAPIBaseURL,
		)
	}

	if config.PollMaxAttempts <= 0 {
		return log.Error("Fatal error: POLL_MAX_ATTEMPTS must be positive", "attempts", config.PollMaxAttempts)
	}

	if config.DatabaseHost != "" && config.DatabaseName == "" {
		return log.ErrMsg("Fatal error: DB_NAME required when DB_HOST is set")
	}

	ConfigInstance = config
	return nil
}

func (c Config) PetAPITimeout() time.Duration {
	return time.Duration(c.PetAPITimeoutSeconds) * time.Second
}

func (c Config) PollDelay() time.Duration {
	return time.Duration(c.PollDelayMS) * time.Millisecond
}

func (c Config) ProgressTick() time.Duration {
	return time.Duration(c.ProgressTickMS) * time.Millisecond
}

func (c Config) RejectionDismiss() time.Duration {
	return time.Duration(c.RejectionDismissMS) * time.Millisecond
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// RunRetention is how long ingestion runs are kept. Zero disables purging.
func (c Config) RunRetention() time.Duration {
	if c.RunRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RunRetentionDays) * 24 * time.Hour
}

// DatabaseEnabled reports whether a postgres audit store is configured.
func (c Config) DatabaseEnabled() bool {
	return c.DatabaseHost != ""
}

// CacheEnabled reports whether valkey is configured.
func (c Config) CacheEnabled() bool {
	return c.DatabaseCacheAddress != ""
}

package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"petintake/config"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/valkey-io/valkey-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type CacheClient valkey.Client

type Cache struct {
	General CacheClient
	Session CacheClient
	Events  CacheClient
}

// DB bundles the audit store and the valkey clients. Either side may be nil when it is not
// configured; callers fall back to in-memory behaviour.
type DB struct {
	SQL   *gorm.DB
	Cache Cache
	log   logger.Logger
}

func New(config config.Config) (DB, error) {
	log := logger.New("database").Function("New")

	log.Info("Initializing database")
	db := &DB{log: log}

	if config.DatabaseEnabled() {
		if err := db.initializeDB(config); err != nil {
			return DB{}, log.Err("failed to initialize database", err)
		}
	} else {
		log.Warn("DB_HOST not set, ingestion runs will not be persisted")
	}

	if config.CacheEnabled() {
		if err := db.initializeCacheDB(config); err != nil {
			return DB{}, log.Err("failed to initialize cache database", err)
		}
	} else {
		log.Warn("DB_CACHE_ADDRESS not set, wizard snapshots and events stay in process")
	}

	return *db, nil
}

// FromGorm wraps an already opened gorm connection.
func FromGorm(sql *gorm.DB) DB {
	return DB{SQL: sql, log: logger.New("database")}
}

func (s *DB) initializeDB(config config.Config) error {
	gormLogger := gormLogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		gormLogger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{
		Logger:                 gormLogger,
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	return s.initializePostgresDB(gormConfig, config)
}

func (s *DB) initializePostgresDB(gormConfig *gorm.Config, config config.Config) error {
	log := s.log.Function("initializePostgresDB")

	if config.DatabaseName == "" {
		return log.Error("database name is empty")
	}
	if config.DatabaseUser == "" {
		return log.Error("database user is empty")
	}

	log.Info(
		"Connecting to PostgreSQL",
		"host", config.DatabaseHost,
		"port", config.DatabasePort,
		"database", config.DatabaseName,
	)
	db, err := gorm.Open(postgres.Open(DSN(config)), gormConfig)
	if err != nil {
		return log.Err("failed to open PostgreSQL database with GORM", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return log.Err("failed to get database from GORM", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return log.Err("failed to ping PostgreSQL database through GORM", err)
	}

	log.Info("Successfully connected to PostgreSQL with GORM")
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s.SQL = db
	return nil
}

// DSN builds the lib/pq style connection string shared by gorm and the migration tool.
func DSN(config config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		config.DatabaseHost,
		config.DatabasePort,
		config.DatabaseUser,
		config.DatabasePassword,
		config.DatabaseName,
	)
}

func (s *DB) Close() (err error) {
	if s.SQL != nil {
		sqlDB, dbErr := s.SQL.DB()
		if dbErr == nil {
			if closeErr := sqlDB.Close(); closeErr != nil {
				err = s.log.Err("failed to close database", closeErr)
			}
		}
	}

	for _, client := range []CacheClient{s.Cache.General, s.Cache.Session, s.Cache.Events} {
		if client != nil {
			client.Close()
		}
	}

	return err
}

func (s *DB) SQLWithContext(ctx context.Context) *gorm.DB {
	return s.SQL.WithContext(ctx)
}

func (s *DB) HasSQL() bool {
	return s.SQL != nil
}

func (s *DB) HasCache() bool {
	return s.Cache.Session != nil
}

// Ping checks every configured backend.
func (s *DB) Ping(ctx context.Context) map[string]string {
	status := map[string]string{"database": "disabled", "cache": "disabled"}

	if s.SQL != nil {
		status["database"] = "ok"
		sqlDB, err := s.SQL.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status["database"] = err.Error()
		}
	}

	if s.Cache.General != nil {
		status["cache"] = "ok"
		client := s.Cache.General
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			status["cache"] = err.Error()
		}
	}

	return status
}

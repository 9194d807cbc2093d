package database

import (
	"context"
	"fmt"
	"time"

	"petintake/config"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/valkey-io/valkey-go"
)

// Valkey database indexes.
const (
	// GENERAL_CACHE_INDEX (DB 0) - health checks and anything uncategorized
	GENERAL_CACHE_INDEX = iota

	// SESSION_CACHE_INDEX (DB 1) - wizard snapshots keyed by intake session
	SESSION_CACHE_INDEX

	// EVENTS_CACHE_INDEX (DB 2) - pub/sub for session events
	EVENTS_CACHE_INDEX
)

func (s *DB) initializeCacheDB(config config.Config) error {
	log := s.log.Function("initializeCacheDB")
	log.Info("initializing cache database")

	address := config.DatabaseCacheAddress
	port := config.DatabaseCachePort
	if address == "" || port == 0 {
		return log.Errorf("failed to initialize cache database", "address or port is empty")
	}

	var cacheDB Cache
	clients := []struct {
		target *CacheClient
		index  int
		name   string
	}{
		{&cacheDB.General, GENERAL_CACHE_INDEX, "general"},
		{&cacheDB.Session, SESSION_CACHE_INDEX, "session"},
		{&cacheDB.Events, EVENTS_CACHE_INDEX, "events"},
	}

	for _, c := range clients {
		client, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{fmt.Sprintf("%s:%d", address, port)},
			SelectDB:    c.index,
		})
		if err != nil {
			return log.Err("failed to create valkey client", err, "cache", c.name)
		}
		*c.target = client
	}

	s.Cache = cacheDB

	if config.DatabaseCacheReset != -1 {
		go clearCacheDB(config.DatabaseCacheReset, cacheDB)
	}

	return nil
}

func clearCacheDB(index int, cacheDB Cache) {
	log := logger.New("database").File("cache.database").Function("clearCacheDB")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var client CacheClient
	var dbName string

	switch index {
	case GENERAL_CACHE_INDEX:
		client = cacheDB.General
		dbName = "General"
	case SESSION_CACHE_INDEX:
		client = cacheDB.Session
		dbName = "Session"
	case EVENTS_CACHE_INDEX:
		client = cacheDB.Events
		dbName = "Events"
	default:
		log.Warn("Invalid cache database index", "index", index)
		return
	}

	if err := client.Do(ctx, client.B().Flushdb().Build()).Error(); err != nil {
		log.Er("Failed to clear cache database", err, "index", index, "dbName", dbName)
		return
	}

	log.Info("Successfully cleared cache database", "index", index, "dbName", dbName)
}

// FlushCaches empties every configured valkey database.
func (s *DB) FlushCaches(ctx context.Context) error {
	for index, client := range []CacheClient{s.Cache.General, s.Cache.Session, s.Cache.Events} {
		if client == nil {
			continue
		}
		if err := client.Do(ctx, client.B().Flushdb().Build()).Error(); err != nil {
			return fmt.Errorf("flush cache %d: %w", index, err)
		}
	}
	return nil
}

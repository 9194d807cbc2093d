package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

var (
	ErrCacheKeyRequired   = errors.New("cache key is required")
	ErrCacheValueRequired = errors.New("cache value is required")
)

const (
	defaultCacheTTL     = time.Hour
	defaultCacheTimeout = 5 * time.Second
)

type KeyType interface {
	string | uuid.UUID
}

// CacheBuilder assembles one valkey command for a JSON payload stored under prefix:key.
type CacheBuilder struct {
	cache   valkey.Client
	key     string
	payload []byte
	ttl     time.Duration
	ctx     context.Context
	timeout time.Duration
	err     error
}

func NewCacheBuilder[K KeyType](cache valkey.Client, key K) *CacheBuilder {
	cb := &CacheBuilder{
		cache:   cache,
		ttl:     defaultCacheTTL,
		timeout: defaultCacheTimeout,
		ctx:     context.Background(),
	}

	switch k := any(key).(type) {
	case string:
		cb.key = k
	case uuid.UUID:
		cb.key = k.String()
	}
	return cb
}

func (cb *CacheBuilder) WithValue(value string) *CacheBuilder {
	cb.payload = []byte(value)
	return cb
}

func (cb *CacheBuilder) WithStruct(value any) *CacheBuilder {
	payload, err := json.Marshal(value)
	if err != nil {
		cb.err = fmt.Errorf("failed to marshal value to json: %w", err)
		return cb
	}
	cb.payload = payload
	return cb
}

// WithHash prefixes the key. An empty prefix leaves the key as is.
func (cb *CacheBuilder) WithHash(prefix string) *CacheBuilder {
	if prefix != "" {
		cb.key = prefix + ":" + cb.key
	}
	return cb
}

func (cb *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	cb.ttl = ttl
	return cb
}

func (cb *CacheBuilder) WithContext(ctx context.Context) *CacheBuilder {
	cb.ctx = ctx
	return cb
}

func (cb *CacheBuilder) WithTimeout(timeout time.Duration) *CacheBuilder {
	cb.timeout = timeout
	return cb
}

func (cb *CacheBuilder) Key() string {
	return cb.key
}

func (cb *CacheBuilder) ready() error {
	if cb.err != nil {
		return cb.err
	}
	if cb.key == "" {
		return ErrCacheKeyRequired
	}
	return nil
}

func (cb *CacheBuilder) Set() error {
	if err := cb.ready(); err != nil {
		return err
	}
	if len(cb.payload) == 0 {
		return ErrCacheValueRequired
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	cmd := cb.cache.B().Set().Key(cb.key).Value(valkey.BinaryString(cb.payload)).Ex(cb.ttl).Build()
	return cb.cache.Do(ctx, cmd).Error()
}

// Get decodes the stored JSON into result. found is false on a miss.
func (cb *CacheBuilder) Get(result any) (bool, error) {
	if err := cb.ready(); err != nil {
		return false, err
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	payload, err := cb.cache.Do(ctx, cb.cache.B().Get().Key(cb.key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) || (err == nil && len(payload) == 0) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(payload, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Touch resets the key's TTL. found is false when the key no longer exists.
func (cb *CacheBuilder) Touch() (bool, error) {
	if err := cb.ready(); err != nil {
		return false, err
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	set, err := cb.cache.Do(ctx, cb.cache.B().Expire().Key(cb.key).Seconds(int64(cb.ttl.Seconds())).Build()).AsBool()
	if err != nil {
		return false, err
	}
	return set, nil
}

func (cb *CacheBuilder) Delete() error {
	if err := cb.ready(); err != nil {
		return err
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	return cb.cache.Do(ctx, cb.cache.B().Del().Key(cb.key).Build()).Error()
}

// createTimeoutContext keeps the caller's deadline when it is the tighter one.
func (cb *CacheBuilder) createTimeoutContext() (context.Context, context.CancelFunc) {
	if deadline, ok := cb.ctx.Deadline(); ok && time.Until(deadline) < cb.timeout {
		return context.WithCancel(cb.ctx)
	}
	return context.WithTimeout(cb.ctx, cb.timeout)
}

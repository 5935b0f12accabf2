package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

const cacheBypassFor = 30 * time.Second

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts derived read models (the enrollment report) with Redis.
// The cache is never authoritative: a disabled or failing backend degrades to
// misses and the caller reads the academic store instead.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	now        func() time.Time

	mu          sync.Mutex
	bypassUntil time.Time

	// writeMu orders conditional writes against invalidations.
	writeMu    sync.Mutex
	generation uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:       repo,
		metrics:    metrics,
		defaultTTL: defaultTTL,
		logger:     logger,
		enabled:    enabled,
		now:        time.Now,
	}
}

// Enabled indicates whether caching is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get looks up key and decodes it into dest. It reports true on a hit. A
// backend failure is returned as ErrUnavailable and suspends the cache for a
// short window.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.active() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		return false, s.fail("get", key, err)
	}
}

// Generation returns a counter that every Invalidate advances. Read it
// before loading the data to be cached and hand it to SetIfGeneration.
func (s *CacheService) Generation() uint64 {
	if s == nil {
		return 0
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.generation
}

// SetIfGeneration stores value only if no Invalidate ran since gen was read,
// so a value computed from data that changed meanwhile is never cached. It
// reports whether the value was written.
func (s *CacheService) SetIfGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, gen uint64) (bool, error) {
	if !s.active() {
		return false, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.generation != gen {
		s.logger.Debug("cache write skipped after invalidation", zap.String("key", key))
		return false, nil
	}
	if err := s.set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key. A zero ttl uses the configured default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.active() {
		return nil
	}
	return s.set(ctx, key, value, ttl)
}

func (s *CacheService) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		return s.fail("set", key, err)
	}
	return nil
}

// Invalidate removes every cached value matching pattern and advances the
// generation. It runs even while the cache is suspended so a recovered
// backend never serves stale reports.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	s.writeMu.Lock()
	s.generation++
	s.writeMu.Unlock()
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		return s.fail("invalidate", pattern, err)
	}
	return nil
}

func (s *CacheService) active() bool {
	if !s.Enabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.bypassUntil)
}

func (s *CacheService) fail(op, key string, err error) error {
	s.mu.Lock()
	s.bypassUntil = s.now().Add(cacheBypassFor)
	s.mu.Unlock()
	s.logger.Warn("cache backend failed, bypassing",
		zap.String("op", op),
		zap.String("key", key),
		zap.Duration("bypass", cacheBypassFor),
		zap.Error(err),
	)
	return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "report cache unavailable")
}

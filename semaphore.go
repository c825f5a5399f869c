package distlimiter

import (
	"context"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultExpirySeconds is the TTL, in seconds, refreshed on every
	// release when the caller doesn't override it with WithSemaphoreExpiry.
	defaultExpirySeconds = 30

	// permitSentinel is the opaque value pushed for each available permit.
	// Its content carries no meaning; only the list's length does.
	permitSentinel = "1"
)

// SemaphoreOption configures a Semaphore at construction time.
type SemaphoreOption func(*semaphoreOptions) error

type semaphoreOptions struct {
	maxSleep      time.Duration
	expiry        time.Duration
	connectionURL string
	poolSize      int
	client        redis.UniversalClient
	logger        hclog.Logger
	sink          *metrics.Metrics
}

// WithSemaphoreMaxSleep bounds how long Acquire may wait before failing with
// ErrMaxSleepExceeded. Zero (the default) means no client-imposed bound.
func WithSemaphoreMaxSleep(d time.Duration) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		if d < 0 {
			return newErr(KindValue, "configure", "", errNegativeDuration("max_sleep"))
		}
		o.maxSleep = d
		return nil
	}
}

// WithSemaphoreExpiry overrides the TTL refreshed on every release. Default 30s.
func WithSemaphoreExpiry(d time.Duration) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		if d <= 0 {
			return newErr(KindValue, "configure", "", errNonPositiveDuration("expiry"))
		}
		o.expiry = d
		return nil
	}
}

// WithSemaphoreConnectionURL sets the Redis connection URL. Default
// redis://127.0.0.1:6379. Accepted schemes: redis, rediss, redis+unix, unix.
func WithSemaphoreConnectionURL(url string) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		o.connectionURL = url
		return nil
	}
}

// WithSemaphorePoolSize overrides the connection pool size. Default 15.
func WithSemaphorePoolSize(n int) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		if n <= 0 {
			return newErr(KindValue, "configure", "", errNonPositiveInt("pool_size"))
		}
		o.poolSize = n
		return nil
	}
}

// WithSemaphoreRedisClient injects a pre-built client, bypassing URL/pool
// construction entirely. Useful for sharing one client across many
// primitives in a process, or for pointing at a test server.
func WithSemaphoreRedisClient(c redis.UniversalClient) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		o.client = c
		return nil
	}
}

// WithSemaphoreLogger sets the structured logger. Defaults to a no-op logger.
func WithSemaphoreLogger(l hclog.Logger) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		o.logger = l
		return nil
	}
}

// WithSemaphoreMetrics sets the go-metrics sink. Defaults to no metrics.
func WithSemaphoreMetrics(m *metrics.Metrics) SemaphoreOption {
	return func(o *semaphoreOptions) error {
		o.sink = m
		return nil
	}
}

// Semaphore is a distributed counting semaphore: it bounds the number of
// concurrent holders of a named resource across any number of client
// processes, backed by a Redis list of permits and a sentinel existence key.
// See scripts/semaphore_init.lua and the package doc for the full protocol.
type Semaphore struct {
	name     string
	capacity uint32
	maxSleep time.Duration
	expiry   time.Duration

	client     redis.UniversalClient
	ownsClient bool
	init       *script
	tel        telemetry
}

// NewSemaphore constructs a Semaphore named name with the given capacity.
// Construction never touches Redis; the permit list is created lazily by
// the first Acquire.
func NewSemaphore(name string, capacity uint32, opts ...SemaphoreOption) (*Semaphore, error) {
	if name == "" {
		return nil, newErr(KindValue, "configure", name, errEmptyName)
	}

	o := &semaphoreOptions{expiry: defaultExpirySeconds * time.Second}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	client := o.client
	ownsClient := false
	if client == nil {
		c, err := newRedisClient(o.connectionURL, o.poolSize)
		if err != nil {
			return nil, err
		}
		client = c
		ownsClient = true
	}

	return &Semaphore{
		name:       name,
		capacity:   capacity,
		maxSleep:   o.maxSleep,
		expiry:     o.expiry,
		client:     client,
		ownsClient: ownsClient,
		init:       newScript(semaphoreInitSource),
		tel:        newTelemetry(o.logger, o.sink),
	}, nil
}

// Acquire blocks until a permit is available, ctx is done, or max_sleep (if
// configured) elapses, whichever comes first. On success the caller holds
// exactly one permit and must call Release exactly once.
func (s *Semaphore) Acquire(ctx context.Context) error {
	logger := s.tel.logger.With("semaphore", s.name)

	expirySeconds := int64(s.expiry / time.Second)
	if _, err := s.init.run(ctx, s.client, []string{queueKey(s.name), existsKey(s.name)}, s.capacity, expirySeconds); err != nil {
		s.tel.incrCounter([]string{"semaphore", "acquire", "error"}, metrics.Label{Name: "name", Value: s.name})
		return newErr(KindRedis, "acquire", s.name, err)
	}

	start := nowMillis()
	blockFor := s.maxSleep
	if blockFor < 0 {
		blockFor = 0
	}

	defer s.tel.measureSince([]string{"semaphore", "acquire", "wait"}, time.UnixMilli(start), metrics.Label{Name: "name", Value: s.name})

	_, err := s.client.BLPop(ctx, blockFor, queueKey(s.name)).Result()
	switch {
	case err == redis.Nil:
		s.tel.incrCounter([]string{"semaphore", "acquire", "timeout"}, metrics.Label{Name: "name", Value: s.name})
		logger.Debug("acquire timed out waiting for a permit")
		return newErr(KindMaxSleepExceeded, "acquire", s.name, nil)
	case err == context.Canceled, err == context.DeadlineExceeded:
		return newErr(KindRuntime, "acquire", s.name, err)
	case err != nil:
		s.tel.incrCounter([]string{"semaphore", "acquire", "error"}, metrics.Label{Name: "name", Value: s.name})
		return newErr(KindRedis, "acquire", s.name, err)
	}

	// Guard against a pop that returned slightly late: a permit was
	// handed to us, but if we already blew past max_sleep, give it back
	// immediately rather than let the caller believe it was fast.
	elapsed := time.Duration(nowMillis()-start) * time.Millisecond
	if !withinMaxSleep(elapsed, s.maxSleep) {
		s.releaseFireAndForget(context.Background())
		s.tel.incrCounter([]string{"semaphore", "acquire", "timeout"}, metrics.Label{Name: "name", Value: s.name})
		return newErr(KindMaxSleepExceeded, "acquire", s.name, nil)
	}

	s.tel.incrCounter([]string{"semaphore", "acquire", "success"}, metrics.Label{Name: "name", Value: s.name})
	logger.Debug("acquired a permit")
	return nil
}

// Release returns the permit to the semaphore and refreshes both keys' TTL
// to expiry_seconds in a single pipelined round trip. It never blocks on
// success and never fails on a capacity check: it is the holder's
// responsibility to call Release exactly once per successful Acquire.
func (s *Semaphore) Release(ctx context.Context) error {
	expirySeconds := int64(s.expiry / time.Second)

	pipe := s.client.Pipeline()
	pushCmd := pipe.RPush(ctx, queueKey(s.name), permitSentinel)
	queueExpireCmd := pipe.Expire(ctx, queueKey(s.name), time.Duration(expirySeconds)*time.Second)
	existsExpireCmd := pipe.Expire(ctx, existsKey(s.name), time.Duration(expirySeconds)*time.Second)
	_, _ = pipe.Exec(ctx)

	if err := joinRedisErrors("release", s.name, pushCmd.Err(), queueExpireCmd.Err(), existsExpireCmd.Err()); err != nil {
		return err
	}
	s.tel.incrCounter([]string{"semaphore", "release"}, metrics.Label{Name: "name", Value: s.name})
	s.tel.logger.With("semaphore", s.name).Debug("released a permit")
	return nil
}

// releaseFireAndForget best-effort returns a permit the caller will never
// see, used only by Acquire's own post-timeout guard above.
func (s *Semaphore) releaseFireAndForget(ctx context.Context) {
	_ = s.Release(ctx)
}

// Do acquires the semaphore, runs fn, and releases on every exit path
// (including fn panicking or returning an error), so callers never have to
// remember the release half of the protocol themselves.
func (s *Semaphore) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release(ctx)
	return fn(ctx)
}

// Close releases the underlying Redis client if this Semaphore created it
// itself (i.e. no WithSemaphoreRedisClient was supplied).
func (s *Semaphore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

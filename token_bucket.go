package distlimiter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultMinBuffer is the slack, in milliseconds, below which a
	// persisted slot is treated as having already passed. Tuned for
	// typical WAN latencies; override with WithMinBuffer for tighter
	// deployments.
	defaultMinBuffer = 20 * time.Millisecond

	// bucketStateTTL is the fixed TTL refreshed on every schedule
	// invocation, so an abandoned bucket's state eventually expires.
	bucketStateTTL = 30 * time.Second
)

// TokenBucketOption configures a TokenBucket at construction time.
type TokenBucketOption func(*tokenBucketOptions) error

type tokenBucketOptions struct {
	maxSleep      time.Duration
	minBuffer     time.Duration
	connectionURL string
	poolSize      int
	client        redis.UniversalClient
	logger        hclog.Logger
	sink          *metrics.Metrics
}

// WithTokenBucketMaxSleep bounds how long Acquire may sleep before failing
// with ErrMaxSleepExceeded, checked before sleeping begins. Zero means no
// client-imposed bound.
func WithTokenBucketMaxSleep(d time.Duration) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		if d < 0 {
			return newErr(KindValue, "configure", "", errNegativeDuration("max_sleep"))
		}
		o.maxSleep = d
		return nil
	}
}

// WithMinBuffer overrides the 20ms threshold the schedule script uses to
// decide whether a persisted slot has effectively already passed. Useful
// for tuning tighter than typical WAN latencies would otherwise allow.
func WithMinBuffer(d time.Duration) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		if d < 0 {
			return newErr(KindValue, "configure", "", errNegativeDuration("min_buffer"))
		}
		o.minBuffer = d
		return nil
	}
}

// WithTokenBucketConnectionURL sets the Redis connection URL. Default
// redis://127.0.0.1:6379.
func WithTokenBucketConnectionURL(url string) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		o.connectionURL = url
		return nil
	}
}

// WithTokenBucketPoolSize overrides the connection pool size. Default 15.
func WithTokenBucketPoolSize(n int) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		if n <= 0 {
			return newErr(KindValue, "configure", "", errNonPositiveInt("pool_size"))
		}
		o.poolSize = n
		return nil
	}
}

// WithTokenBucketRedisClient injects a pre-built client, bypassing URL/pool
// construction entirely.
func WithTokenBucketRedisClient(c redis.UniversalClient) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		o.client = c
		return nil
	}
}

// WithTokenBucketLogger sets the structured logger. Defaults to a no-op logger.
func WithTokenBucketLogger(l hclog.Logger) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		o.logger = l
		return nil
	}
}

// WithTokenBucketMetrics sets the go-metrics sink. Defaults to no metrics.
func WithTokenBucketMetrics(m *metrics.Metrics) TokenBucketOption {
	return func(o *tokenBucketOptions) error {
		o.sink = m
		return nil
	}
}

// TokenBucket paces requests against a named resource at a configured
// refill rate and burst capacity by assigning each arriving caller a future
// wake-up instant computed by the coordination server, then sleeping until
// it. See scripts/token_bucket_schedule.lua for the scheduling algorithm.
type TokenBucket struct {
	name            string
	capacity        uint32
	refillFrequency time.Duration
	refillAmount    uint32
	maxSleep        time.Duration
	minBuffer       time.Duration

	client     redis.UniversalClient
	ownsClient bool
	schedule   *script
	tel        telemetry
}

// NewTokenBucket constructs a TokenBucket named name. refillFrequency must
// be positive and refillAmount and capacity must be at least 1; violations
// fail construction with a KindValue error.
func NewTokenBucket(name string, capacity uint32, refillFrequency time.Duration, refillAmount uint32, opts ...TokenBucketOption) (*TokenBucket, error) {
	if name == "" {
		return nil, newErr(KindValue, "configure", name, errEmptyName)
	}
	if capacity == 0 {
		return nil, newErr(KindValue, "configure", name, errNonPositiveInt("capacity"))
	}
	if refillFrequency <= 0 {
		return nil, newErr(KindValue, "configure", name, errNonPositiveDuration("refill_frequency"))
	}
	if refillAmount == 0 {
		return nil, newErr(KindValue, "configure", name, errNonPositiveInt("refill_amount"))
	}

	o := &tokenBucketOptions{minBuffer: defaultMinBuffer}
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

	return &TokenBucket{
		name:            name,
		capacity:        capacity,
		refillFrequency: refillFrequency,
		refillAmount:    refillAmount,
		maxSleep:        o.maxSleep,
		minBuffer:       o.minBuffer,
		client:          client,
		ownsClient:      ownsClient,
		schedule:        newScript(tokenBucketScheduleSource),
		tel:             newTelemetry(o.logger, o.sink),
	}, nil
}

// scheduleOnce invokes T1 and returns the assigned slot, in server-clock
// milliseconds, without sleeping. Split out of Acquire so tests can inspect
// the scheduling algorithm's pure behavior (monotonic slots, rate
// conformance) without paying for real wall-clock sleeps.
func (t *TokenBucket) scheduleOnce(ctx context.Context) (int64, error) {
	refillRateMs := t.refillFrequency.Milliseconds()
	minBufferMs := t.minBuffer.Milliseconds()
	ttlSeconds := int64(bucketStateTTL / time.Second)

	res, err := t.schedule.run(ctx, t.client,
		[]string{bucketKey(t.name)},
		t.capacity, refillRateMs, t.refillAmount, minBufferMs, ttlSeconds,
	)
	if err != nil {
		t.tel.incrCounter([]string{"token_bucket", "acquire", "error"}, metrics.Label{Name: "name", Value: t.name})
		return 0, newErr(KindRedis, "acquire", t.name, err)
	}

	slotStr, ok := res.(string)
	if !ok {
		return 0, newErr(KindRuntime, "acquire", t.name, errUnexpectedScriptResult)
	}
	slotMs, err := strconv.ParseInt(slotStr, 10, 64)
	if err != nil {
		return 0, newErr(KindRuntime, "acquire", t.name, err)
	}
	return slotMs, nil
}

// Acquire asks the coordination server for the next available slot and
// sleeps until it, bounded by the configured max-sleep. The server's
// clock, not the client's, decides the slot; only the sleep duration
// crosses the client/server clock boundary, which is intentional - two
// machines' clocks can disagree about "now", but both agree on how long a
// local timer needs to run.
func (t *TokenBucket) Acquire(ctx context.Context) error {
	logger := t.tel.logger.With("token_bucket", t.name)

	slotMs, err := t.scheduleOnce(ctx)
	if err != nil {
		return err
	}

	sleepMs := slotMs - nowMillis()
	if sleepMs < 0 {
		sleepMs = 0
	}
	sleepFor := time.Duration(sleepMs) * time.Millisecond

	defer t.tel.measureSince([]string{"token_bucket", "acquire", "sleep"}, time.Now().Add(-sleepFor), metrics.Label{Name: "name", Value: t.name})

	if err := sleepBounded(ctx, sleepFor, t.maxSleep); err != nil {
		if errors.Is(err, ErrMaxSleepExceeded) {
			t.tel.incrCounter([]string{"token_bucket", "acquire", "timeout"}, metrics.Label{Name: "name", Value: t.name})
			logger.Debug("assigned slot exceeds configured max-sleep bound", "sleep_ms", sleepMs)
			return newErr(KindMaxSleepExceeded, "acquire", t.name, nil)
		}
		return newErr(KindRuntime, "acquire", t.name, err)
	}

	t.tel.incrCounter([]string{"token_bucket", "acquire", "success"}, metrics.Label{Name: "name", Value: t.name})
	logger.Debug("acquired a slot", "slot_ms", slotMs)
	return nil
}

// Release is a no-op: token buckets have no per-holder state to give back,
// since the slot was already consumed atomically at Acquire time and
// cannot be reclaimed on cancellation. Present so TokenBucket and Semaphore
// satisfy the same scoped-acquisition shape.
func (t *TokenBucket) Release(ctx context.Context) error {
	return nil
}

// Do acquires the next slot, sleeps for it, then runs fn.
func (t *TokenBucket) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := t.Acquire(ctx); err != nil {
		return err
	}
	defer t.Release(ctx)
	return fn(ctx)
}

// Close releases the underlying Redis client if this TokenBucket created it
// itself.
func (t *TokenBucket) Close() error {
	if t.ownsClient {
		return t.client.Close()
	}
	return nil
}

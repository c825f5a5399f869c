package distlimiter

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

//go:embed scripts/semaphore_init.lua
var semaphoreInitSource string

//go:embed scripts/token_bucket_schedule.lua
var tokenBucketScheduleSource string

// script wraps a go-redis *redis.Script, which already tracks its own SHA1
// and, on a cold cache, falls back from EVALSHA to EVAL (uploading the
// source) transparently on NOSCRIPT - the "prefer cached-hash invocation,
// fall back to source upload" rule. A singleflight group is used only by
// Warmup below, to collapse concurrently-racing preloads into one SCRIPT
// LOAD rather than serializing every ordinary Run call through it.
type script struct {
	rs    *redis.Script
	group singleflight.Group
}

func newScript(source string) *script {
	return &script{rs: redis.NewScript(source)}
}

// run executes the script, letting go-redis handle the EVALSHA/EVAL
// fallback. Concurrent callers run independently; only Warmup coalesces.
func (s *script) run(ctx context.Context, c redis.Scripter, keys []string, args ...interface{}) (interface{}, error) {
	return s.rs.Run(ctx, c, keys, args...).Result()
}

// warmup loads the script into Redis's script cache if it is not already
// present, deduplicating concurrent callers with a singleflight group so N
// goroutines calling Warmup at process startup produce one SCRIPT LOAD.
// Calls are coalesced per client, so warming up two servers loads both.
func (s *script) warmup(ctx context.Context, c redis.Scripter) error {
	_, err, _ := s.group.Do(fmt.Sprintf("%p", c), func() (interface{}, error) {
		return nil, s.rs.Load(ctx, c).Err()
	})
	return err
}

// The script values WarmupScripts loads through, shared by every call so
// that concurrent calls meet in the same singleflight groups.
var (
	warmupSemaphoreInit       = newScript(semaphoreInitSource)
	warmupTokenBucketSchedule = newScript(tokenBucketScheduleSource)
)

// WarmupScripts preloads both primitives' Lua scripts into c's script
// cache and verifies c understands EVAL/EVALSHA at all, so that a Redis
// proxy without Lua support (Twemproxy, Codis) is discovered at startup
// rather than on the first Acquire. It is optional: go-redis already
// handles a cold cache transparently on every call.
func WarmupScripts(ctx context.Context, c redis.UniversalClient) error {
	if err := warmupSemaphoreInit.warmup(ctx, c); err != nil {
		return newErr(KindRedis, "warmup", "", err)
	}
	if err := warmupTokenBucketSchedule.warmup(ctx, c); err != nil {
		return newErr(KindRedis, "warmup", "", err)
	}
	return nil
}

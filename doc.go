// Package distlimiter provides two distributed rate-limiting primitives
// backed by Redis: a counting Semaphore that bounds concurrent holders of a
// named resource, and a TokenBucket that paces requests at a configured
// refill rate and burst capacity.
//
// Both primitives are meant to be used as scoped acquisitions: acquire,
// perform work, release, with release happening on every exit path. Do
// wraps that pattern directly; callers preferring manual control can call
// Acquire and Release themselves, but must release exactly once per
// successful acquire.
//
// The hard part of both primitives lives in two Lua scripts, embedded from
// scripts/, that run atomically against Redis: semaphore_init.lua performs
// create-if-absent initialization of a permit list, and
// token_bucket_schedule.lua computes a future wake-up instant using Redis's
// own clock.
package distlimiter

import "context"

// Limiter is satisfied by both Semaphore and TokenBucket, letting callers
// write primitive-agnostic scoped-acquisition code.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
	Do(ctx context.Context, fn func(context.Context) error) error
}

var (
	_ Limiter = (*Semaphore)(nil)
	_ Limiter = (*TokenBucket)(nil)
)

package distlimiter

// keyPrefix namespaces every key this library writes so that primitive state
// never collides with application keys on the shared Redis instance.
const keyPrefix = "__self-limiters:"

// existsSuffix marks the sentinel key that records whether a semaphore's
// permit list has ever been initialized, independent of the list's current
// length (which reaches zero under full contention).
const existsSuffix = "-exists"

func queueKey(name string) string {
	return keyPrefix + name
}

func existsKey(name string) string {
	return keyPrefix + name + existsSuffix
}

func bucketKey(name string) string {
	return keyPrefix + name
}

package distlimiter

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// defaultConnectionURL is the default Redis connection target.
const defaultConnectionURL = "redis://127.0.0.1:6379"

// defaultPoolSize is shared by both primitives when the caller does not
// override it.
const defaultPoolSize = 15

// newRedisClient builds a pooled go-redis client from a connection URL. A
// single *redis.Client already multiplexes many concurrent commands over a
// bounded set of TCP connections via its own connection pool, so this is
// the only pool construction needed - there is no separate checkout step
// layered on top.
//
// Accepted schemes: redis, rediss, redis+unix, unix. Anything else, or a URL
// go-redis itself rejects, is a KindRedis construction error.
func newRedisClient(rawURL string, poolSize int) (redis.UniversalClient, error) {
	if rawURL == "" {
		rawURL = defaultConnectionURL
	}
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, newErr(KindRedis, "configure", "", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, newErr(KindRedis, "configure", "", err)
		}
		opts.PoolSize = poolSize
		return redis.NewClient(opts), nil

	case "unix", "redis+unix":
		// redis+unix://[:password@]/path/to/socket[?db=N]
		// unix:///path/to/socket[?db=N]
		opts := &redis.Options{
			Network:  "unix",
			Addr:     u.Path,
			PoolSize: poolSize,
		}
		if u.User != nil {
			opts.Username = u.User.Username()
			if pw, ok := u.User.Password(); ok {
				opts.Password = pw
			}
		}
		if db := u.Query().Get("db"); db != "" {
			n, err := strconv.Atoi(db)
			if err != nil {
				return nil, newErr(KindRedis, "configure", "", err)
			}
			opts.DB = n
		}
		if opts.Addr == "" {
			return nil, newErr(KindRedis, "configure", "", errMissingSocketPath)
		}
		return redis.NewClient(opts), nil

	default:
		return nil, newErr(KindRedis, "configure", "", errUnsupportedScheme(u.Scheme))
	}
}

var errMissingSocketPath = errors.New("connection_url: missing unix socket path")

func errUnsupportedScheme(scheme string) error {
	return fmt.Errorf("connection_url: unsupported scheme %q", scheme)
}

package oracle

import (
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/ecotrace/pkg/models"
)

const cacheTTL = 24 * time.Hour

// classificationCache memoizes classifications in Redis, keyed by the
// normalized item name. Classifications are stable per item so a shared
// cache saves model calls across users. All failures fall through to the
// model call; the cache is an optimization, never a dependency.
type classificationCache struct {
	pool *redis.Pool
}

// newClassificationCache creates a cache backed by the given Redis address.
// An empty address returns nil (caching disabled).
func newClassificationCache(addr string) *classificationCache {
	if addr == "" {
		return nil
	}
	return &classificationCache{
		pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 4 * time.Minute,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr,
					redis.DialConnectTimeout(2*time.Second),
					redis.DialReadTimeout(2*time.Second),
					redis.DialWriteTimeout(2*time.Second),
				)
			},
		},
	}
}

func cacheKey(itemName string) string {
	return "ecotrace:classify:" + strings.ToLower(strings.TrimSpace(itemName))
}

// get returns a cached classification, or false when absent or on error.
func (c *classificationCache) get(itemName string) (models.Classification, bool) {
	if c == nil {
		return models.Classification{}, false
	}

	conn := c.pool.Get()
	defer conn.Close()

	values, err := redis.Values(conn.Do("HMGET", cacheKey(itemName), "category", "confidence"))
	if err != nil {
		log.Debug().Err(err).Msg("Classification cache read failed")
		return models.Classification{}, false
	}

	var category string
	var confidence float64
	if _, err := redis.Scan(values, &category, &confidence); err != nil || category == "" {
		return models.Classification{}, false
	}

	return models.Classification{
		Category:   models.ParseCategory(category),
		Confidence: confidence,
	}, true
}

// put stores a classification with a TTL. Errors are logged and dropped.
func (c *classificationCache) put(itemName string, cls models.Classification) {
	if c == nil {
		return
	}

	conn := c.pool.Get()
	defer conn.Close()

	key := cacheKey(itemName)
	if err := conn.Send("HSET", key, "category", string(cls.Category), "confidence", cls.Confidence); err != nil {
		log.Debug().Err(err).Msg("Classification cache write failed")
		return
	}
	if err := conn.Send("EXPIRE", key, int(cacheTTL.Seconds())); err != nil {
		log.Debug().Err(err).Msg("Classification cache expire failed")
		return
	}
	if err := conn.Flush(); err != nil {
		log.Debug().Err(err).Msg("Classification cache flush failed")
	}
}

// close releases the Redis pool.
func (c *classificationCache) close() error {
	if c == nil {
		return nil
	}
	return c.pool.Close()
}

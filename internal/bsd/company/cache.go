package company

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	id "bordereau/pkg/domain"
)

// CacheTTL enforces freshness for directory data: close/dormancy changes
// must surface within minutes, not days.
const CacheTTL = 5 * time.Minute

// CachedDirectory wraps a directory lookup with a redis cache and a
// singleflight group so concurrent signatures on documents naming the same
// establishment trigger one upstream call.
type CachedDirectory struct {
	upstream DirectoryLookup
	redis    *redis.Client
	group    singleflight.Group
}

func NewCachedDirectory(upstream DirectoryLookup, rdb *redis.Client) *CachedDirectory {
	return &CachedDirectory{upstream: upstream, redis: rdb}
}

func cacheKey(siret id.Siret) string {
	return "company:status:" + siret.String()
}

func (c *CachedDirectory) Lookup(ctx context.Context, siret id.Siret) (*Info, error) {
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, cacheKey(siret)).Bytes(); err == nil {
			var info Info
			if err := json.Unmarshal(raw, &info); err == nil {
				return &info, nil
			}
		}
	}

	v, err, _ := c.group.Do(siret.String(), func() (any, error) {
		info, err := c.upstream.Lookup(ctx, siret)
		if err != nil {
			return nil, err
		}
		if c.redis != nil {
			if raw, err := json.Marshal(info); err == nil {
				// Cache write failures are not fatal: the lookup succeeded.
				c.redis.Set(ctx, cacheKey(siret), raw, CacheTTL)
			}
		}
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("directory lookup for %s: %w", siret, err)
	}
	return v.(*Info), nil
}

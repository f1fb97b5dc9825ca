package engine

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// definitionCache stores parsed definitions keyed by content hash. Population
// is single-writer-per-key: concurrent requests for the same uncached source
// share one in-flight parse. Reads of a cached entry take no lock beyond the
// concurrent map's own.
type definitionCache struct {
	entries sync.Map // content hash -> *skill.Definition
	group   singleflight.Group
	builds  atomic.Int64
}

// get returns the cached definition for hash, building it at most once per
// key under concurrent load.
func (c *definitionCache) get(hash string, build func() (*skill.Definition, error)) (*skill.Definition, error) {
	if cached, ok := c.entries.Load(hash); ok {
		return cached.(*skill.Definition), nil
	}

	def, err, _ := c.group.Do(hash, func() (any, error) {
		if cached, ok := c.entries.Load(hash); ok {
			return cached.(*skill.Definition), nil
		}
		c.builds.Add(1)
		built, err := build()
		if err != nil {
			return nil, err
		}
		c.entries.Store(hash, built)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return def.(*skill.Definition), nil
}

// evict removes a cached definition, e.g. when a collaborator detects that a
// skill source changed and its old hash no longer matches.
func (c *definitionCache) evict(hash string) {
	c.entries.Delete(hash)
}

func (c *definitionCache) buildCount() int64 {
	return c.builds.Load()
}

// Package weekcache caches the records of an owner's ISO week.
package weekcache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

const (
	DefaultSize = 64
	DefaultTTL  = 5 * time.Minute
)

// Cache maps (owner, ISO week, timezone) to that week's records. Values are
// copied in and out.
type Cache struct {
	lru *expirable.LRU[string, []model.TimeRecord]
}

// New returns a cache holding at most size weeks for ttl each. Non-positive
// arguments select the defaults.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: expirable.NewLRU[string, []model.TimeRecord](size, nil, ttl)}
}

func key(owner, week, tz string) string {
	return owner + "|" + week + "|" + tz
}

// Get returns the cached records for the week, if present.
func (c *Cache) Get(owner, week, tz string) ([]model.TimeRecord, bool) {
	records, ok := c.lru.Get(key(owner, week, tz))
	if !ok {
		return nil, false
	}
	return model.CloneAll(records), true
}

// Put caches records for the week.
func (c *Cache) Put(owner, week, tz string, records []model.TimeRecord) {
	c.lru.Add(key(owner, week, tz), model.CloneAll(records))
}

// InvalidateOwner drops every week cached for owner.
func (c *Cache) InvalidateOwner(owner string) {
	prefix := owner + "|"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of cached weeks.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Package cache provides a small in-memory TTL cache for read-heavy
// dashboard queries. Mutating operations invalidate all entries for the
// affected care recipient before returning, so a read that follows a
// write in the same family never sees stale data.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL map keyed by strings. Keys are namespaced per care
// recipient so invalidation can sweep one recipient's entries.
type Cache struct {
	mu    sync.Mutex
	items map[string]item
	ttl   time.Duration
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		items: make(map[string]item),
		ttl:   ttl,
	}
}

// Key builders. All cached reads are scoped to a care recipient.

func CurrentShiftKey(careRecipientID int64) string {
	return fmt.Sprintf("%d:current", careRecipientID)
}

func UpcomingShiftsKey(careRecipientID int64) string {
	return fmt.Sprintf("%d:upcoming", careRecipientID)
}

func DayScheduleKey(careRecipientID int64, date string) string {
	return fmt.Sprintf("%d:day:%s", careRecipientID, date)
}

func MedicationDayKey(careRecipientID int64, date string) string {
	return fmt.Sprintf("%d:medday:%s", careRecipientID, date)
}

// Get returns the cached value for key, or false if absent or expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return it.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	c.items[key] = item{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateRecipient removes every cached entry for the care recipient.
func (c *Cache) InvalidateRecipient(careRecipientID int64) {
	prefix := fmt.Sprintf("%d:", careRecipientID)
	c.mu.Lock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

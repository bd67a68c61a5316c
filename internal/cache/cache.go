// Package cache is the in-memory index of every device and group.
//
// The cache holds references: a Manageable returned by Get or Query is the
// same instance the manager mutates, so a field change is visible to every
// later lookup without a write back. The mutex protects the index only; the
// entities themselves are owned by the manager's event loop.
package cache

import (
	"sort"
	"sync"

	"github.com/nerrad567/manage-core/internal/manageable"
)

// Logger is the logging interface used by the cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cache indexes manageables by id.
//
// All public methods are thread-safe.
type Cache struct {
	mu     sync.RWMutex
	items  map[string]manageable.Manageable
	logger Logger
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		items:  make(map[string]manageable.Manageable),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Add inserts m, replacing any manageable with the same id.
func (c *Cache) Add(m manageable.Manageable) {
	id := m.Base().ID

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[id]; exists {
		c.logger.Debug("replacing cached manageable", "id", id)
	}
	c.items[id] = m
}

// Remove evicts m. It reports false when m is not the cached instance.
func (c *Cache) Remove(m manageable.Manageable) bool {
	id := m.Base().ID

	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.items[id]
	if !ok || cached.Base() != m.Base() {
		return false
	}
	delete(c.items, id)
	return true
}

// Get returns the manageable with the given id.
func (c *Cache) Get(id string) (manageable.Manageable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.items[id]
	return m, ok
}

// Device returns the device with the given id.
func (c *Cache) Device(id string) (*manageable.Device, bool) {
	m, ok := c.Get(id)
	if !ok {
		return nil, false
	}
	d, ok := m.(*manageable.Device)
	return d, ok
}

// Group returns the group with the given id.
func (c *Cache) Group(id string) (*manageable.Group, bool) {
	m, ok := c.Get(id)
	if !ok {
		return nil, false
	}
	g, ok := m.(*manageable.Group)
	return g, ok
}

// Query returns every manageable whose property key equals value, ordered
// by id.
func (c *Cache) Query(key, value string) []manageable.Manageable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []manageable.Manageable
	for _, m := range c.items {
		if v, ok := m.Property(key); ok && v == value {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Base().ID < out[j].Base().ID
	})
	return out
}

// Devices returns every cached device ordered by id.
func (c *Cache) Devices() []*manageable.Device {
	return devices(c.Query("type", string(manageable.TypeDevice)))
}

// Groups returns every cached group ordered by id.
func (c *Cache) Groups() []*manageable.Group {
	items := c.Query("type", string(manageable.TypeGroup))
	out := make([]*manageable.Group, 0, len(items))
	for _, m := range items {
		if g, ok := m.(*manageable.Group); ok {
			out = append(out, g)
		}
	}
	return out
}

// Members returns the devices belonging to groupID ordered by id.
func (c *Cache) Members(groupID string) []*manageable.Device {
	if groupID == "" {
		return nil
	}
	return devices(c.Query("group", groupID))
}

// Count returns the number of cached manageables of type t.
func (c *Cache) Count(t manageable.Type) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, m := range c.items {
		if m.Base().Type == t {
			n++
		}
	}
	return n
}

// Len returns the number of cached manageables.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func devices(items []manageable.Manageable) []*manageable.Device {
	out := make([]*manageable.Device, 0, len(items))
	for _, m := range items {
		if d, ok := m.(*manageable.Device); ok {
			out = append(out, d)
		}
	}
	return out
}

// Package queue persists sanitized results that could not be delivered, so
// a flaky network costs retries later instead of lost measurements.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Item is one queued submission. Payload is the sanitized wire body,
// stored verbatim so a drained item is byte-identical to a direct submit.
type Item struct {
	// Name orders the queue: "{epoch-millis}-{preset}.json".
	Name    string
	Payload []byte
}

// Store is the persistence backend for the retry queue.
type Store interface {
	// Put persists one item under its name.
	Put(ctx context.Context, item Item) error
	// List returns all queued items ordered by name ascending, which is
	// chronological because names lead with a fixed-width-enough epoch.
	List(ctx context.Context) ([]Item, error)
	// Delete removes a delivered item.
	Delete(ctx context.Context, name string) error
}

// Config selects and parameterizes a Store backend.
type Config struct {
	Backend string
	// Dir is the queue directory for the dir backend.
	Dir string
	// RedisAddr is host:port for the redis backend.
	RedisAddr string
}

// Factory builds a Store from config.
type Factory func(cfg Config) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a backend factory under a name. Called from package
// init functions; duplicate names panic.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name = strings.ToLower(strings.TrimSpace(name))
	if _, dup := registry[name]; dup {
		panic("queue: duplicate backend " + name)
	}
	registry[name] = f
}

// Open builds the configured backend. An empty backend name means dir.
func Open(cfg Config) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" {
		name = "dir"
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("queue: unknown backend %q (have %s)", name, strings.Join(Backends(), ", "))
	}
	return f(cfg)
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}

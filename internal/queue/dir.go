package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func init() {
	Register("dir", func(cfg Config) (Store, error) {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("queue: dir backend requires a directory")
		}
		return &DirStore{dir: cfg.Dir}, nil
	})
}

// DirStore keeps each queued item as one JSON file in a flat directory.
// Lexicographic filename order doubles as submission order.
type DirStore struct {
	dir string
}

func (s *DirStore) Put(_ context.Context, item Item) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, item.Name), item.Payload, 0o644)
}

func (s *DirStore) List(_ context.Context) ([]Item, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Name: e.Name(), Payload: payload})
	}
	sortItems(items)
	return items, nil
}

func (s *DirStore) Delete(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ItemName builds the queue filename for a record finished now.
func ItemName(preset string, now time.Time) string {
	p := strings.TrimSpace(preset)
	if p == "" {
		p = "default"
	}
	// Presets are flat names but a custom one could try to escape the dir.
	p = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, p)
	return fmt.Sprintf("%d-%s.json", now.UnixMilli(), p)
}

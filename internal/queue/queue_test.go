package queue

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/platinumlabs/encbench/pkg/domain"
)

func TestItemName(t *testing.T) {
	now := time.UnixMilli(1724900000123)
	tests := []struct {
		preset string
		want   string
	}{
		{"medium", "1724900000123-medium.json"},
		{"p5", "1724900000123-p5.json"},
		{"", "1724900000123-default.json"},
		{"../evil", "1724900000123-__evil.json"},
	}
	for _, tt := range tests {
		if got := ItemName(tt.preset, now); got != tt.want {
			t.Errorf("ItemName(%q) = %q, want %q", tt.preset, got, tt.want)
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "postgres"}); err == nil {
		t.Fatal("unknown backend must error")
	}
}

func TestOpenDefaultsToDir(t *testing.T) {
	s, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*DirStore); !ok {
		t.Fatalf("default backend = %T, want *DirStore", s)
	}
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return map[string]Store{
		"dir":   &DirStore{dir: t.TempDir()},
		"redis": NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			q := 23
			rec := domain.ResultRecord{
				CPUModel: "Test CPU", RAMGB: 16, OS: "Linux",
				Codec: "h264", Preset: "fast", Quality: &q,
				FPS: 240.5, FileSizeBytes: 1 << 20, RunMs: 4200,
			}
			payload, err := rec.Sanitize()
			if err != nil {
				t.Fatal(err)
			}

			item := Item{Name: ItemName(rec.Preset, time.UnixMilli(1000)), Payload: payload}
			if err := store.Put(ctx, item); err != nil {
				t.Fatal(err)
			}

			items, err := store.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 1 {
				t.Fatalf("got %d items, want 1", len(items))
			}
			// The drained payload must match a direct submission byte for byte.
			if !bytes.Equal(items[0].Payload, payload) {
				t.Errorf("payload = %s, want %s", items[0].Payload, payload)
			}

			if err := store.Delete(ctx, item.Name); err != nil {
				t.Fatal(err)
			}
			items, err = store.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 0 {
				t.Fatalf("after delete got %d items, want 0", len(items))
			}
		})
	}
}

func TestStoreListOrder(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			names := []string{
				"1724900000300-slow.json",
				"1724900000100-fast.json",
				"1724900000200-medium.json",
			}
			for _, n := range names {
				if err := store.Put(ctx, Item{Name: n, Payload: []byte("{}")}); err != nil {
					t.Fatal(err)
				}
			}
			items, err := store.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, it := range items {
				got = append(got, it.Name)
			}
			want := "1724900000100-fast.json,1724900000200-medium.json,1724900000300-slow.json"
			if strings.Join(got, ",") != want {
				t.Errorf("order = %v", got)
			}
		})
	}
}

func TestDirStoreIgnoresStrays(t *testing.T) {
	dir := t.TempDir()
	store := &DirStore{dir: dir}
	ctx := context.Background()

	if err := store.Put(ctx, Item{Name: "100-x.json", Payload: []byte("{}")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, Item{Name: "notes.txt", Payload: []byte("hi")}); err != nil {
		t.Fatal(err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "100-x.json" {
		t.Fatalf("items = %+v, want only the .json entry", items)
	}
}

func TestDirStoreMissingDir(t *testing.T) {
	store := &DirStore{dir: t.TempDir() + "/never-created"}
	items, err := store.List(context.Background())
	if err != nil || len(items) != 0 {
		t.Fatalf("List on missing dir = (%v, %v), want empty", items, err)
	}
	if err := store.Delete(context.Background(), "100-x.json"); err != nil {
		t.Fatalf("Delete of missing item = %v, want nil", err)
	}
}

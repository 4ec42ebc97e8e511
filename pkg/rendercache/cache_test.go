package rendercache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestCache creates a Cache over a temp directory with an in-memory
// index database.
func setupTestCache(tb testing.TB) *Cache {
	tb.Helper()

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", tb.Name()))
	if err != nil {
		tb.Fatalf("failed to open in-memory db: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	if err = SetupSchema(db); err != nil {
		tb.Fatalf("failed to setup schema: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := New(logger, db, tb.TempDir())
	if err != nil {
		tb.Fatalf("New failed: %v", err)
	}
	tb.Cleanup(cache.Close)
	return cache
}

func TestGetOrRender_Idempotent(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()
	key := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp1"}

	renders := 0
	render := func() ([]byte, error) {
		renders++
		return []byte("artifact-v1"), nil
	}

	first, err := cache.GetOrRender(ctx, key, ".png", render)
	if err != nil {
		t.Fatalf("GetOrRender failed: %v", err)
	}
	second, err := cache.GetOrRender(ctx, key, ".png", render)
	if err != nil {
		t.Fatalf("GetOrRender failed: %v", err)
	}

	if renders != 1 {
		t.Errorf("expected exactly one render, got %d", renders)
	}
	if !bytes.Equal(first, second) || string(first) != "artifact-v1" {
		t.Error("cached bytes are not identical to the rendered bytes")
	}
}

func TestGetOrRender_FingerprintInvalidates(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	v1 := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp1"}
	v2 := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp2"}

	out, err := cache.GetOrRender(ctx, v1, ".png", func() ([]byte, error) {
		return []byte("old"), nil
	})
	if err != nil {
		t.Fatalf("GetOrRender failed: %v", err)
	}
	if string(out) != "old" {
		t.Fatalf("unexpected bytes: %s", out)
	}

	// Same path and size, new fingerprint: the render must run again, and
	// the stale bytes must not come back.
	out, err = cache.GetOrRender(ctx, v2, ".png", func() ([]byte, error) {
		return []byte("new"), nil
	})
	if err != nil {
		t.Fatalf("GetOrRender failed: %v", err)
	}
	if string(out) != "new" {
		t.Errorf("stale artifact served for a changed fingerprint: %s", out)
	}
}

func TestGetOrRender_DistinctKeysDistinctArtifacts(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	keys := []Key{
		{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp"},
		{Path: "arrow.svg", Width: 20, Height: 20, Fingerprint: "fp"},
		{Path: "dot.svg", Width: 10, Height: 20, Fingerprint: "fp"},
	}
	seen := make(map[string]struct{})
	for _, key := range keys {
		name := key.filename(".png")
		if _, dup := seen[name]; dup {
			t.Fatalf("filename collision for key %+v", key)
		}
		seen[name] = struct{}{}
		payload := fmt.Sprintf("%s-%dx%d", key.Path, key.Width, key.Height)
		out, err := cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
			return []byte(payload), nil
		})
		if err != nil {
			t.Fatalf("GetOrRender failed: %v", err)
		}
		if string(out) != payload {
			t.Errorf("key %+v returned %q, want %q", key, out, payload)
		}
	}
}

func TestGetOrRender_ErrorIsNotCached(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()
	key := Key{Path: "bad.svg", Width: 4, Height: 4, Fingerprint: "fp"}

	renderErr := errors.New("engine exploded")
	if _, err := cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
		return nil, renderErr
	}); !errors.Is(err, renderErr) {
		t.Fatalf("expected the render error to surface, got %v", err)
	}

	// A failed render leaves nothing behind; the next call renders again.
	out, err := cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
		return []byte("recovered"), nil
	})
	if err != nil {
		t.Fatalf("GetOrRender failed after earlier error: %v", err)
	}
	if string(out) != "recovered" {
		t.Errorf("unexpected bytes: %s", out)
	}
}

// TestGetOrRender_Concurrent checks the per-key dedup contract: many
// concurrent first-time requests for one key perform a single render, and
// every caller observes the same bytes.
func TestGetOrRender_Concurrent(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()
	key := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp"}

	var renders atomic.Int32
	render := func() ([]byte, error) {
		renders.Add(1)
		time.Sleep(25 * time.Millisecond)
		return []byte("artifact"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrRender(ctx, key, ".png", render)
		}(i)
	}
	wg.Wait()

	if got := renders.Load(); got != 1 {
		t.Errorf("expected exactly one render, got %d", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("goroutine %d failed: %v", i, errs[i])
		}
		if string(results[i]) != "artifact" {
			t.Errorf("goroutine %d observed %q", i, results[i])
		}
	}
}

func TestPrune(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	v1 := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp1"}
	v2 := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp2"}
	other := Key{Path: "dot.svg", Width: 4, Height: 4, Fingerprint: "fp1"}

	for _, key := range []Key{v1, v2, other} {
		if _, err := cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
			return []byte(key.Fingerprint), nil
		}); err != nil {
			t.Fatalf("GetOrRender failed: %v", err)
		}
	}

	removed, err := cache.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 superseded artifact removed, got %d", removed)
	}

	if _, err = os.Stat(filepath.Join(cache.Dir(), v1.filename(".png"))); !os.IsNotExist(err) {
		t.Error("superseded artifact still on disk")
	}
	for _, key := range []Key{v2, other} {
		if _, err = os.Stat(filepath.Join(cache.Dir(), key.filename(".png"))); err != nil {
			t.Errorf("live artifact for %+v missing: %v", key, err)
		}
	}

	// Pruning again finds nothing to do.
	removed, err = cache.Prune(ctx)
	if err != nil {
		t.Fatalf("second Prune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("second prune removed %d artifacts", removed)
	}
}

// TestPrune_RevertKeepsLiveArtifact covers a content revert: after
// fingerprints A, B, A the older A row is served straight from disk and never
// re-inserted, so pruning must go by the serve time, not insertion order.
func TestPrune_RevertKeepsLiveArtifact(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	keyA := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fpA"}
	keyB := Key{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fpB"}

	for _, key := range []Key{keyA, keyB} {
		if _, err := cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
			return []byte(key.Fingerprint), nil
		}); err != nil {
			t.Fatalf("GetOrRender failed: %v", err)
		}
	}

	// The revert: A hits on disk, refreshing its index timestamp.
	out, err := cache.GetOrRender(ctx, keyA, ".png", func() ([]byte, error) {
		t.Fatal("a disk hit must not render")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrRender failed: %v", err)
	}
	if string(out) != "fpA" {
		t.Fatalf("unexpected bytes: %s", out)
	}

	removed, err := cache.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 superseded artifact removed, got %d", removed)
	}
	if _, err = os.Stat(filepath.Join(cache.Dir(), keyA.filename(".png"))); err != nil {
		t.Errorf("live artifact missing after prune: %v", err)
	}
	if _, err = os.Stat(filepath.Join(cache.Dir(), keyB.filename(".png"))); !os.IsNotExist(err) {
		t.Error("superseded artifact still on disk")
	}
}

func TestStats(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	for _, key := range []Key{
		{Path: "arrow.svg", Width: 10, Height: 20, Fingerprint: "fp1"},
		{Path: "arrow.svg", Width: 20, Height: 40, Fingerprint: "fp1"},
		{Path: "dot.svg", Width: 4, Height: 4, Fingerprint: "fp1"},
	} {
		if _, err := cache.GetOrRender(ctx, key, ".png", func() ([]byte, error) {
			return []byte("12345"), nil
		}); err != nil {
			t.Fatalf("GetOrRender failed: %v", err)
		}
	}

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected stats for 2 paths, got %d", len(stats))
	}
	if stats[0].Path != "arrow.svg" || stats[0].Artifacts != 2 || stats[0].ByteSize != 10 {
		t.Errorf("unexpected stats for arrow.svg: %+v", stats[0])
	}
	if stats[1].Path != "dot.svg" || stats[1].Artifacts != 1 || stats[1].ByteSize != 5 {
		t.Errorf("unexpected stats for dot.svg: %+v", stats[1])
	}
}

package fonts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fontServer serves body on /font and counts requests
func fontServer(t *testing.T, status int, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Mozilla/5.0") {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestResolver(dir string, assets ...Asset) *Resolver {
	return New(Options{
		Dir:      dir,
		Assets:   assets,
		RetryMax: 0,
		Timeout:  5 * time.Second,
		Logger:   zerolog.Nop(),
	})
}

var validFont = bytes.Repeat([]byte{0x00, 0x01, 0x00, 0x00}, 1024)

func TestResolveCachedFileMakesNoNetworkCalls(t *testing.T) {
	dir := t.TempDir()
	srv, hits := fontServer(t, http.StatusOK, validFont)
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf", URL: srv.URL + "/font"})

	first, err := r.Resolve(context.Background(), RoleRegular)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("first resolve made %d requests, want 1", got)
	}

	second, err := r.Resolve(context.Background(), RoleRegular)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("second resolve made %d additional requests, want 0", got-1)
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
}

func TestResolvePrePopulatedCache(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "regular.ttf"), validFont, 0o644); err != nil {
		t.Fatal(err)
	}
	srv, hits := fontServer(t, http.StatusOK, validFont)
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf", URL: srv.URL})

	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), RoleRegular); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(hits); got != 0 {
		t.Errorf("network calls = %d, want 0", got)
	}
}

func TestResolveFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	primary, primaryHits := fontServer(t, http.StatusNotFound, nil)
	backup, backupHits := fontServer(t, http.StatusOK, validFont)
	r := newTestResolver(dir, Asset{
		Role:      RoleBold,
		Filename:  "bold.ttf",
		URL:       primary.URL,
		BackupURL: backup.URL,
	})

	path, err := r.Resolve(context.Background(), RoleBold)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if atomic.LoadInt32(primaryHits) != 1 || atomic.LoadInt32(backupHits) != 1 {
		t.Errorf("hits primary=%d backup=%d", *primaryHits, *backupHits)
	}
	if !Valid(path, MinValidSize) {
		t.Error("resolved file is not valid")
	}
}

func TestResolveRejectsTruncatedDownload(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   []byte
	}{
		{name: "tiny body", status: http.StatusOK, body: []byte("not a font")},
		{name: "exactly threshold", status: http.StatusOK, body: bytes.Repeat([]byte{1}, int(MinValidSize))},
		{name: "server error", status: http.StatusInternalServerError, body: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			srv, _ := fontServer(t, tt.status, tt.body)
			r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf", URL: srv.URL})

			_, err := r.Resolve(context.Background(), RoleRegular)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("Resolve() error = %v, want ErrUnavailable", err)
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				var names []string
				for _, e := range entries {
					names = append(names, e.Name())
				}
				t.Errorf("cache dir not clean: %v", names)
			}
		})
	}
}

func TestResolveReplacesInvalidCachedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regular.ttf")
	if err := os.WriteFile(path, []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, hits := fontServer(t, http.StatusOK, validFont)
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf", URL: srv.URL})

	if _, err := r.Resolve(context.Background(), RoleRegular); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected a re-fetch")
	}
	info, _ := os.Stat(path)
	if info.Size() != int64(len(validFont)) {
		t.Errorf("size = %d, want %d", info.Size(), len(validFont))
	}
}

func TestResolveKeepsNonRegularEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regular.ttf")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf"})

	if _, err := r.Resolve(context.Background(), RoleRegular); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrUnavailable", err)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Errorf("entry at cache path was removed: %v", err)
	}
}

func TestResolveDiscardsUndersizedFileWithoutSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regular.ttf")
	if err := os.WriteFile(path, []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf"})

	if _, err := r.Resolve(context.Background(), RoleRegular); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrUnavailable", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("undersized file still present: %v", err)
	}
}

func TestResolveUnknownRole(t *testing.T) {
	r := newTestResolver(t.TempDir(), Asset{Role: RoleRegular, Filename: "r.ttf"})
	if _, err := r.Resolve(context.Background(), RoleBold); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("Resolve() error = %v, want ErrUnknownRole", err)
	}
}

func TestResolveNoSources(t *testing.T) {
	r := newTestResolver(t.TempDir(), Asset{Role: RoleRegular, Filename: "r.ttf"})
	if _, err := r.Resolve(context.Background(), RoleRegular); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Resolve() error = %v, want ErrUnavailable", err)
	}
}

func TestBestUsesSystemFallback(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(t.TempDir(), "system.ttf")
	collection := filepath.Join(t.TempDir(), "system.ttc")
	for _, p := range []string{system, collection} {
		if err := os.WriteFile(p, validFont, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := New(Options{
		Dir:             dir,
		Assets:          []Asset{{Role: RoleRegular, Filename: "r.ttf"}},
		SystemFallbacks: []string{"/nonexistent/font.ttf", collection, system},
		Logger:          zerolog.Nop(),
	})

	got, err := r.Best(context.Background(), RoleRegular)
	if err != nil {
		t.Fatalf("Best() error = %v", err)
	}
	if got != system {
		t.Errorf("Best() = %q, want %q", got, system)
	}
}

func TestLoadCachesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.ttf")
	if err := os.WriteFile(path, validFont, 0o644); err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "r.ttf"})

	first, err := r.Load(context.Background(), RoleRegular)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := r.Load(context.Background(), RoleRegular)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if &first[0] != &second[0] {
		t.Error("second Load() should return the cached buffer")
	}

	// A rewritten file is picked up
	bigger := append(append([]byte{}, validFont...), validFont...)
	if err := os.WriteFile(path, bigger, 0o644); err != nil {
		t.Fatal(err)
	}
	third, err := r.Load(context.Background(), RoleRegular)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(third) != len(bigger) {
		t.Errorf("len = %d, want %d", len(third), len(bigger))
	}
}

func TestListAvailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "regular.ttf"), validFont, 0o644); err != nil {
		t.Fatal(err)
	}
	r := newTestResolver(dir,
		Asset{Role: RoleRegular, Filename: "regular.ttf", Description: "Regular"},
		Asset{Role: RoleBold, Filename: "bold.ttf", Description: "Bold"},
	)

	list := r.ListAvailable()
	if len(list) != 2 {
		t.Fatalf("ListAvailable() returned %d entries", len(list))
	}
	if list[0].Role != RoleRegular || !list[0].Available || list[0].Size != int64(len(validFont)) {
		t.Errorf("regular = %+v", list[0])
	}
	if list[1].Role != RoleBold || list[1].Available {
		t.Errorf("bold = %+v", list[1])
	}
}

func TestCleanupIncomplete(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"good.ttf":               validFont,
		"empty.ttf":              {},
		"tiny.ttf":               []byte("abc"),
		"fresh.ttf.123.part":     []byte("in progress"),
		"abandoned.ttf.456.part": validFont,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "abandoned.ttf.456.part"), old, old); err != nil {
		t.Fatal(err)
	}

	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "good.ttf"})
	removed, err := r.CleanupIncomplete()
	if err != nil {
		t.Fatalf("CleanupIncomplete() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	for name, wantPresent := range map[string]bool{
		"good.ttf":               true,
		"fresh.ttf.123.part":     true,
		"empty.ttf":              false,
		"tiny.ttf":               false,
		"abandoned.ttf.456.part": false,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		if present := err == nil; present != wantPresent {
			t.Errorf("%s present = %v, want %v", name, present, wantPresent)
		}
	}
}

func TestCleanupIncompleteMissingDir(t *testing.T) {
	r := newTestResolver(filepath.Join(t.TempDir(), "absent"), Asset{Role: RoleRegular, Filename: "r.ttf"})
	if n, err := r.CleanupIncomplete(); err != nil || n != 0 {
		t.Errorf("CleanupIncomplete() = %d, %v", n, err)
	}
}

func TestEnsureReadyNeverFails(t *testing.T) {
	srv, _ := fontServer(t, http.StatusServiceUnavailable, nil)
	r := newTestResolver(t.TempDir(),
		Asset{Role: RoleRegular, Filename: "r.ttf", URL: srv.URL},
		Asset{Role: RoleBold, Filename: "b.ttf"},
	)
	// Returns without panicking or blocking
	r.EnsureReady(context.Background())
}

func TestConcurrentResolve(t *testing.T) {
	dir := t.TempDir()
	srv, _ := fontServer(t, http.StatusOK, validFont)
	r := newTestResolver(dir, Asset{Role: RoleRegular, Filename: "regular.ttf", URL: srv.URL})

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := r.Resolve(context.Background(), RoleRegular)
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Resolve() error = %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "regular.ttf"))
	if err != nil || !bytes.Equal(data, validFont) {
		t.Errorf("final file corrupt: len=%d err=%v", len(data), err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %d entries", len(entries))
	}
}

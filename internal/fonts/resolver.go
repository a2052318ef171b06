// Package fonts locates, downloads, validates and caches the CJK font files used by the
// document builders. The on-disk cache is the only state shared between requests.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/metrics"
)

// Role names a font slot
type Role string

const (
	RoleRegular Role = "regular"
	RoleBold    Role = "bold"
)

// MinValidSize separates a genuine font from a truncated download. Valid files are strictly larger.
const MinValidSize int64 = 1000

// ErrUnavailable is returned when no valid font can be produced for a role
var ErrUnavailable = errors.New("font unavailable")

// ErrUnknownRole is returned for a role without a configured asset
var ErrUnknownRole = errors.New("unknown font role")

// Asset describes one downloadable font
type Asset struct {
	Role        Role
	Filename    string
	URL         string
	BackupURL   string
	Description string
}

// DefaultAssets are the Noto Sans CJK JP variable fonts
func DefaultAssets() []Asset {
	return []Asset{
		{
			Role:        RoleRegular,
			Filename:    "NotoSansCJKjp-VF.ttf",
			URL:         "https://github.com/googlefonts/noto-cjk/raw/main/Sans/Variable/TTF/NotoSansCJKjp-VF.ttf",
			Description: "Noto Sans CJK JP Variable",
		},
		{
			Role:        RoleBold,
			Filename:    "NotoSansMonoCJKjp-VF.ttf",
			URL:         "https://github.com/googlefonts/noto-cjk/raw/main/Sans/Variable/TTF/Mono/NotoSansMonoCJKjp-VF.ttf",
			Description: "Noto Sans Mono CJK JP Variable",
		},
	}
}

// Status is the diagnostic view of one configured font
type Status struct {
	Role        Role   `json:"role"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Size        int64  `json:"size"`
}

// Options configures a Resolver
type Options struct {
	// Dir is the font cache directory, created on first download
	Dir    string
	Assets []Asset
	// SystemFallbacks are local font files tried by Best when resolution fails
	SystemFallbacks []string
	MinSize         int64
	RetryMax        int
	Timeout         time.Duration
	UserAgent       string
	Logger          zerolog.Logger
}

type cachedFont struct {
	size    int64
	modTime time.Time
	data    []byte
}

// Resolver resolves font roles to validated files
type Resolver struct {
	dir       string
	assets    map[Role]Asset
	order     []Role
	fallbacks []string
	minSize   int64
	userAgent string
	client    *retryablehttp.Client
	log       zerolog.Logger

	// mu guards loaded; disk writes need no lock because they end in an atomic rename
	mu     sync.Mutex
	loaded map[string]cachedFont
}

// New creates a Resolver
func New(opts Options) *Resolver {
	if len(opts.Assets) == 0 {
		opts.Assets = DefaultAssets()
	}
	if opts.MinSize <= 0 {
		opts.MinSize = MinValidSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil

	r := &Resolver{
		dir:       opts.Dir,
		assets:    make(map[Role]Asset, len(opts.Assets)),
		fallbacks: opts.SystemFallbacks,
		minSize:   opts.MinSize,
		userAgent: opts.UserAgent,
		client:    client,
		log:       opts.Logger.With().Str("component", "fonts").Logger(),
		loaded:    make(map[string]cachedFont),
	}
	for _, a := range opts.Assets {
		if _, dup := r.assets[a.Role]; !dup {
			r.order = append(r.order, a.Role)
		}
		r.assets[a.Role] = a
	}
	return r
}

// Dir returns the cache directory
func (r *Resolver) Dir() string {
	return r.dir
}

// Valid reports whether path is a regular file strictly larger than minSize
func Valid(path string, minSize int64) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() > minSize
}

func (r *Resolver) pathFor(a Asset) string {
	return filepath.Join(r.dir, a.Filename)
}

// Resolve returns the path of a validated font file for role, downloading it when the cache
// holds no valid copy. It returns ErrUnavailable when every source fails.
func (r *Resolver) Resolve(ctx context.Context, role Role) (string, error) {
	a, ok := r.assets[role]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	path := r.pathFor(a)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		if info.Size() > r.minSize {
			metrics.FontCacheHits.Inc()
			return path, nil
		}
		// Undersized copies are discarded before re-fetching
		r.log.Warn().Str("path", path).Int64("size", info.Size()).Msg("discarding invalid cached font")
		_ = os.Remove(path)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Warn().Err(err).Str("dir", r.dir).Msg("font cache directory unavailable")
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, role, err)
	}

	sources := []struct{ name, url string }{{"primary", a.URL}, {"backup", a.BackupURL}}
	var lastErr error
	for _, src := range sources {
		if src.url == "" {
			continue
		}
		err := r.download(ctx, src.url, path)
		if err == nil {
			metrics.FontDownloads.WithLabelValues(string(role), src.name, "ok").Inc()
			r.log.Info().Str("role", string(role)).Str("source", src.name).Str("path", path).Msg("font downloaded")
			return path, nil
		}
		metrics.FontDownloads.WithLabelValues(string(role), src.name, "failed").Inc()
		r.log.Warn().Err(err).Str("role", string(role)).Str("source", src.name).Msg("font download failed")
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no download source configured")
	}
	return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, role, lastErr)
}

// Best returns a usable font for role: the resolved asset, else the first valid system fallback
func (r *Resolver) Best(ctx context.Context, role Role) (string, error) {
	path, err := r.Resolve(ctx, role)
	if err == nil {
		return path, nil
	}
	for _, fb := range r.fallbacks {
		if Valid(fb, r.minSize) && isTrueType(fb) {
			r.log.Warn().Str("role", string(role)).Str("path", fb).Msg("using system fallback font")
			return fb, nil
		}
	}
	return "", err
}

// TrueType collections cannot be embedded by the builders
func isTrueType(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".ttf" || ext == ".otf"
}

// Load returns the bytes of the best font for role. Bytes are cached in process and reread
// when the file changes on disk.
func (r *Resolver) Load(ctx context.Context, role Role) ([]byte, error) {
	path, err := r.Best(ctx, role)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.Lock()
	c, ok := r.loaded[path]
	r.mu.Unlock()
	if ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.mu.Lock()
	r.loaded[path] = cachedFont{size: info.Size(), modTime: info.ModTime(), data: data}
	r.mu.Unlock()
	return data, nil
}

// ListAvailable reports every configured font and whether a valid copy is cached
func (r *Resolver) ListAvailable() []Status {
	out := make([]Status, 0, len(r.order))
	for _, role := range r.order {
		a := r.assets[role]
		path := r.pathFor(a)
		st := Status{
			Role:        role,
			Filename:    a.Filename,
			Path:        path,
			Description: a.Description,
		}
		if info, err := os.Stat(path); err == nil {
			st.Size = info.Size()
			st.Available = info.Mode().IsRegular() && info.Size() > r.minSize
		}
		out = append(out, st)
	}
	return out
}

// stalePart is how long an interrupted download may linger before cleanup removes it
const stalePart = time.Hour

// CleanupIncomplete deletes cached files at or under the size threshold and abandoned partial downloads
func (r *Resolver) CleanupIncomplete() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read font directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		partial := strings.HasSuffix(e.Name(), partSuffix)
		if partial && time.Since(info.ModTime()) < stalePart {
			continue
		}
		if partial || info.Size() <= r.minSize {
			if err := os.Remove(path); err == nil {
				removed++
				r.log.Info().Str("path", path).Int64("size", info.Size()).Msg("removed incomplete font file")
			}
		}
	}
	return removed, nil
}

// EnsureReady warms up every configured role. Failures are logged and never returned.
func (r *Resolver) EnsureReady(ctx context.Context) {
	for _, role := range r.order {
		if _, err := r.Resolve(ctx, role); err != nil {
			r.log.Warn().Err(err).Str("role", string(role)).Msg("font not ready, documents will use a core font")
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadBytesEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := LoadBytes(nil, "empty.hcl")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("empty file changed defaults: %+v", cfg)
	}
}

func TestLoadBytes(t *testing.T) {
	src := `
server {
  address       = ":9000"
  read_timeout  = "5s"
  cors_origins  = ["https://app.example.com"]
  rate_limit    = 30
}

storage {
  pdf_dir        = "/var/lib/unmeiori/pdfs"
  in_memory      = true
  retention_days = 7
}

fonts {
  min_size = 2048
  timeout  = "2m"
  system_fallbacks = ["/usr/share/fonts/noto/NotoSansCJK-Regular.ttc"]

  font "regular" {
    filename   = "Regular.ttf"
    url        = "https://fonts.example.com/Regular.ttf"
    backup_url = "https://mirror.example.com/Regular.ttf"
  }
}

renderer {
  enabled = false
}

services {
  kyusei_url       = "http://kyusei:8000"
  breaker_failures = 2
  breaker_timeout  = "45s"
}

logging {
  level  = "debug"
  format = "console"
  file   = "/var/log/unmeiori.log"
}
`
	cfg, err := LoadBytes([]byte(src), "unmeiori.hcl")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"server.address", cfg.Server.Address, ":9000"},
		{"server.read_timeout", cfg.Server.ReadTimeout, 5 * time.Second},
		{"server.write_timeout default", cfg.Server.WriteTimeout, Default().Server.WriteTimeout},
		{"server.cors_origins", cfg.Server.CORSOrigins, []string{"https://app.example.com"}},
		{"server.rate_limit", cfg.Server.RateLimit, 30},
		{"storage.pdf_dir", cfg.Storage.PDFDir, "/var/lib/unmeiori/pdfs"},
		{"storage.logo_dir default", cfg.Storage.LogoDir, Default().Storage.LogoDir},
		{"storage.in_memory", cfg.Storage.InMemory, true},
		{"storage.retention_days", cfg.Storage.RetentionDays, 7},
		{"fonts.min_size", cfg.Fonts.MinSize, int64(2048)},
		{"fonts.timeout", cfg.Fonts.Timeout, 2 * time.Minute},
		{"fonts.system_fallbacks", len(cfg.Fonts.SystemFallbacks), 1},
		{"renderer.enabled", cfg.Renderer.Enabled, false},
		{"renderer.binary default", cfg.Renderer.Binary, "wkhtmltopdf"},
		{"services.kyusei_url", cfg.Services.KyuseiURL, "http://kyusei:8000"},
		{"services.seimei_url default", cfg.Services.SeimeiURL, Default().Services.SeimeiURL},
		{"services.breaker_failures", cfg.Services.BreakerFailures, uint32(2)},
		{"services.breaker_timeout", cfg.Services.BreakerTimeout, 45 * time.Second},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.format", cfg.Logging.Format, "console"},
		{"logging.file", cfg.Logging.File, "/var/log/unmeiori.log"},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	want := FontAsset{
		Role:      "regular",
		Filename:  "Regular.ttf",
		URL:       "https://fonts.example.com/Regular.ttf",
		BackupURL: "https://mirror.example.com/Regular.ttf",
	}
	if len(cfg.Fonts.Assets) != 1 || cfg.Fonts.Assets[0] != want {
		t.Errorf("fonts.assets = %+v", cfg.Fonts.Assets)
	}
}

func TestEnvFunction(t *testing.T) {
	t.Setenv("UNMEIORI_TEST_KYUSEI", "http://from-env:8001")
	t.Setenv("UNMEIORI_TEST_RATE", "15")

	src := `
server {
  rate_limit = env("UNMEIORI_TEST_RATE", "60")
}
services {
  kyusei_url = env("UNMEIORI_TEST_KYUSEI", "http://localhost:8001")
  seimei_url = env("UNMEIORI_TEST_UNSET", "http://fallback:8002")
}
logging {
  file = env("UNMEIORI_TEST_UNSET")
}
`
	cfg, err := LoadBytes([]byte(src), "env.hcl")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if cfg.Services.KyuseiURL != "http://from-env:8001" {
		t.Errorf("kyusei_url = %q", cfg.Services.KyuseiURL)
	}
	if cfg.Services.SeimeiURL != "http://fallback:8002" {
		t.Errorf("seimei_url = %q", cfg.Services.SeimeiURL)
	}
	if cfg.Server.RateLimit != 15 {
		t.Errorf("rate_limit = %d", cfg.Server.RateLimit)
	}
	if cfg.Logging.File != "" {
		t.Errorf("file = %q, want empty", cfg.Logging.File)
	}
}

func TestLoadBytesErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "syntax", src: `server {`, want: "parse"},
		{name: "unknown attribute", src: `server { port = 80 }`, want: "invalid config"},
		{name: "unknown block", src: `database {}`, want: "invalid config"},
		{name: "bad duration", src: `server { read_timeout = "soon" }`, want: "server.read_timeout"},
		{name: "negative duration", src: `renderer { timeout = "-1s" }`, want: "renderer.timeout"},
		{name: "bad log format", src: `logging { format = "xml" }`, want: "logging.format"},
		{name: "negative retention", src: `storage { retention_days = -1 }`, want: "retention_days"},
		{name: "zero breaker threshold", src: `services { breaker_failures = 0 }`, want: "breaker_failures"},
		{
			name: "duplicate font role",
			src: `fonts {
  font "regular" {
    filename = "a.ttf"
    url      = "https://x/a.ttf"
  }
  font "regular" {
    filename = "b.ttf"
    url      = "https://x/b.ttf"
  }
}`,
			want: "declared twice",
		},
		{
			name: "font without url",
			src: `fonts {
  font "bold" {
    filename = "b.ttf"
  }
}`,
			want: "invalid config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.src), "bad.hcl")
			if err == nil {
				t.Fatal("LoadBytes() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmeiori.hcl")
	if err := os.WriteFile(path, []byte(`server { address = ":7000" }`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != ":7000" {
		t.Errorf("address = %q", cfg.Server.Address)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl")); err == nil {
		t.Error("Load() succeeded for a missing file")
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/api"
	"github.com/ankek/unmeiori/internal/config"
	"github.com/ankek/unmeiori/internal/divination"
	"github.com/ankek/unmeiori/internal/docx"
	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/generator"
	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/logging"
	"github.com/ankek/unmeiori/internal/pdf"
	"github.com/ankek/unmeiori/internal/preview"
	"github.com/ankek/unmeiori/internal/renderer"
	"github.com/ankek/unmeiori/internal/storage"
	"github.com/ankek/unmeiori/internal/supervisor"
)

// version is set by the build
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the HCL configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "unmeiori: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree("unmeiori", log, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.Add(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.Add(supervisor.NewOnceService("font-warmup", func(ctx context.Context) error {
		a.fonts.EnsureReady(ctx)
		return nil
	}, log))
	tree.Add(supervisor.NewPeriodicService("sweeper", cfg.Storage.SweepInterval, a.sweep, log))

	log.Info().Str("version", version).Str("address", cfg.Server.Address).Msg("Server starting")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// app is the wired component graph
type app struct {
	handler   http.Handler
	generator *generator.Generator
	fonts     interfaces.FontResolver
	retention int
	log       zerolog.Logger
	closers   []func() error
}

func newApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	resolver := fonts.New(fonts.Options{
		Dir:             cfg.Storage.FontDir,
		Assets:          fontAssets(cfg.Fonts.Assets),
		SystemFallbacks: cfg.Fonts.SystemFallbacks,
		MinSize:         cfg.Fonts.MinSize,
		RetryMax:        cfg.Fonts.RetryMax,
		Timeout:         cfg.Fonts.Timeout,
		Logger:          log.With().Str("component", "fonts").Logger(),
	})
	diagrams := renderer.New(renderer.Options{Fonts: resolver, Logger: log.With().Str("component", "renderer").Logger()})
	pdfBuilder := pdf.New(pdf.Options{Fonts: resolver, Diagrams: diagrams, Logger: log.With().Str("component", "pdf").Logger()})
	flowBuilder := docx.New(docx.Options{Diagrams: diagrams, Logger: log.With().Str("component", "docx").Logger()})

	content := storage.NewContentStore(cfg.Storage.PDFDir, log.With().Str("component", "content").Logger())
	db, err := storage.OpenBadger(cfg.Storage.DatabaseDir, cfg.Storage.InMemory, log)
	if err != nil {
		return nil, err
	}
	records := storage.NewBadgerStore(db)

	var converter interfaces.PreviewRenderer = preview.DisabledRenderer{}
	if cfg.Renderer.Enabled {
		pr := preview.NewProcessRenderer(cfg.Renderer.Binary, log.With().Str("component", "preview").Logger())
		if !pr.Available() {
			log.Warn().Str("binary", cfg.Renderer.Binary).Msg("PDF converter not found, preview PDFs will use the fallback document")
		}
		converter = pr
	}
	chain := preview.NewChain(preview.Options{
		Renderer: converter,
		Minimal:  pdfBuilder,
		Store:    content,
		Timeout:  cfg.Renderer.Timeout,
		Logger:   log.With().Str("component", "preview").Logger(),
	})

	serviceOpts := func(url string) divination.Options {
		return divination.Options{
			BaseURL:         url,
			Timeout:         cfg.Services.Timeout,
			RetryMax:        cfg.Services.RetryMax,
			BreakerFailures: cfg.Services.BreakerFailures,
			BreakerTimeout:  cfg.Services.BreakerTimeout,
			Logger:          log.With().Str("component", "divination").Logger(),
		}
	}
	calendar := divination.NewCalendar(serviceOpts(cfg.Services.KyuseiURL))
	names := divination.NewNames(serviceOpts(cfg.Services.SeimeiURL))

	gen := generator.New(generator.Options{
		Records:       records,
		Templates:     records,
		Content:       content,
		PDF:           pdfBuilder,
		Flow:          flowBuilder,
		Preview:       chain,
		Calendar:      calendar,
		Names:         names,
		RetentionDays: cfg.Storage.RetentionDays,
		LogoDir:       cfg.Storage.LogoDir,
		Logger:        log,
	})

	handler := api.NewRouter(api.Options{
		Generator: gen,
		Fonts:     resolver,
		Health: map[string]api.HealthChecker{
			"kyusei": calendar,
			"seimei": names,
		},
		PreviewBaseURL: cfg.Server.PreviewBaseURL,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimit:      cfg.Server.RateLimit,
		Logger:         log,
	})

	return &app{
		handler:   handler,
		generator: gen,
		fonts:     resolver,
		retention: cfg.Storage.RetentionDays,
		log:       log,
		closers:   []func() error{db.Close},
	}, nil
}

// sweep removes expired PDFs and truncated font downloads
func (a *app) sweep(ctx context.Context) error {
	removed, err := a.generator.CleanupOld(ctx, a.retention)
	if err != nil {
		return err
	}
	fontsRemoved, err := a.fonts.CleanupIncomplete()
	if err != nil {
		return err
	}
	a.log.Debug().Int("pdfs", removed).Int("fonts", fontsRemoved).Msg("Sweep finished")
	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("Close failed")
		}
	}
}

func fontAssets(in []config.FontAsset) []fonts.Asset {
	if len(in) == 0 {
		return nil
	}
	out := make([]fonts.Asset, 0, len(in))
	for _, a := range in {
		out = append(out, fonts.Asset{
			Role:        fonts.Role(a.Role),
			Filename:    a.Filename,
			URL:         a.URL,
			BackupURL:   a.BackupURL,
			Description: a.Description,
		})
	}
	return out
}

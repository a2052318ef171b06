package config

import (
	"fmt"
	"time"
)

// fileSchema mirrors the HCL layout. Pointers distinguish unset from zero.
type fileSchema struct {
	Server   *serverBlock   `hcl:"server,block"`
	Storage  *storageBlock  `hcl:"storage,block"`
	Fonts    *fontsBlock    `hcl:"fonts,block"`
	Renderer *rendererBlock `hcl:"renderer,block"`
	Services *servicesBlock `hcl:"services,block"`
	Logging  *loggingBlock  `hcl:"logging,block"`
}

type serverBlock struct {
	Address         *string  `hcl:"address,optional"`
	ReadTimeout     *string  `hcl:"read_timeout,optional"`
	WriteTimeout    *string  `hcl:"write_timeout,optional"`
	ShutdownTimeout *string  `hcl:"shutdown_timeout,optional"`
	CORSOrigins     []string `hcl:"cors_origins,optional"`
	RateLimit       *int     `hcl:"rate_limit,optional"`
	PreviewBaseURL  *string  `hcl:"preview_base_url,optional"`
}

type storageBlock struct {
	PDFDir        *string `hcl:"pdf_dir,optional"`
	LogoDir       *string `hcl:"logo_dir,optional"`
	FontDir       *string `hcl:"font_dir,optional"`
	DatabaseDir   *string `hcl:"database_dir,optional"`
	InMemory      *bool   `hcl:"in_memory,optional"`
	RetentionDays *int    `hcl:"retention_days,optional"`
	SweepInterval *string `hcl:"sweep_interval,optional"`
}

type fontsBlock struct {
	MinSize         *int64      `hcl:"min_size,optional"`
	RetryMax        *int        `hcl:"retry_max,optional"`
	Timeout         *string     `hcl:"timeout,optional"`
	SystemFallbacks []string    `hcl:"system_fallbacks,optional"`
	Fonts           []fontBlock `hcl:"font,block"`
}

type fontBlock struct {
	Role        string  `hcl:"role,label"`
	Filename    string  `hcl:"filename"`
	URL         string  `hcl:"url"`
	BackupURL   *string `hcl:"backup_url,optional"`
	Description *string `hcl:"description,optional"`
}

type rendererBlock struct {
	Enabled *bool   `hcl:"enabled,optional"`
	Binary  *string `hcl:"binary,optional"`
	Timeout *string `hcl:"timeout,optional"`
}

type servicesBlock struct {
	KyuseiURL       *string `hcl:"kyusei_url,optional"`
	SeimeiURL       *string `hcl:"seimei_url,optional"`
	Timeout         *string `hcl:"timeout,optional"`
	RetryMax        *int    `hcl:"retry_max,optional"`
	BreakerFailures *int    `hcl:"breaker_failures,optional"`
	BreakerTimeout  *string `hcl:"breaker_timeout,optional"`
}

type loggingBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
	File   *string `hcl:"file,optional"`
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, name string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	*dst = d
	return nil
}

// apply overlays the decoded file onto cfg
func (f *fileSchema) apply(cfg *Config) error {
	if s := f.Server; s != nil {
		setString(&cfg.Server.Address, s.Address)
		if s.CORSOrigins != nil {
			cfg.Server.CORSOrigins = s.CORSOrigins
		}
		setInt(&cfg.Server.RateLimit, s.RateLimit)
		setString(&cfg.Server.PreviewBaseURL, s.PreviewBaseURL)
		if err := setDuration(&cfg.Server.ReadTimeout, s.ReadTimeout, "server.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Server.WriteTimeout, s.WriteTimeout, "server.write_timeout"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Server.ShutdownTimeout, s.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
			return err
		}
	}

	if s := f.Storage; s != nil {
		setString(&cfg.Storage.PDFDir, s.PDFDir)
		setString(&cfg.Storage.LogoDir, s.LogoDir)
		setString(&cfg.Storage.FontDir, s.FontDir)
		setString(&cfg.Storage.DatabaseDir, s.DatabaseDir)
		setBool(&cfg.Storage.InMemory, s.InMemory)
		setInt(&cfg.Storage.RetentionDays, s.RetentionDays)
		if err := setDuration(&cfg.Storage.SweepInterval, s.SweepInterval, "storage.sweep_interval"); err != nil {
			return err
		}
	}

	if s := f.Fonts; s != nil {
		if s.MinSize != nil {
			cfg.Fonts.MinSize = *s.MinSize
		}
		setInt(&cfg.Fonts.RetryMax, s.RetryMax)
		if s.SystemFallbacks != nil {
			cfg.Fonts.SystemFallbacks = s.SystemFallbacks
		}
		if err := setDuration(&cfg.Fonts.Timeout, s.Timeout, "fonts.timeout"); err != nil {
			return err
		}
		for _, fb := range s.Fonts {
			a := FontAsset{Role: fb.Role, Filename: fb.Filename, URL: fb.URL}
			setString(&a.BackupURL, fb.BackupURL)
			setString(&a.Description, fb.Description)
			cfg.Fonts.Assets = append(cfg.Fonts.Assets, a)
		}
	}

	if s := f.Renderer; s != nil {
		setBool(&cfg.Renderer.Enabled, s.Enabled)
		setString(&cfg.Renderer.Binary, s.Binary)
		if err := setDuration(&cfg.Renderer.Timeout, s.Timeout, "renderer.timeout"); err != nil {
			return err
		}
	}

	if s := f.Services; s != nil {
		setString(&cfg.Services.KyuseiURL, s.KyuseiURL)
		setString(&cfg.Services.SeimeiURL, s.SeimeiURL)
		setInt(&cfg.Services.RetryMax, s.RetryMax)
		if s.BreakerFailures != nil {
			if *s.BreakerFailures < 1 {
				return fmt.Errorf("services.breaker_failures must be at least 1")
			}
			cfg.Services.BreakerFailures = uint32(*s.BreakerFailures)
		}
		if err := setDuration(&cfg.Services.Timeout, s.Timeout, "services.timeout"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Services.BreakerTimeout, s.BreakerTimeout, "services.breaker_timeout"); err != nil {
			return err
		}
	}

	if s := f.Logging; s != nil {
		setString(&cfg.Logging.Level, s.Level)
		setString(&cfg.Logging.Format, s.Format)
		setString(&cfg.Logging.File, s.File)
	}
	return nil
}

package fonts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
)

const partSuffix = ".part"

// download fetches url into dest through a temp file in the same directory.
// The temp file is validated before the rename and removed on any failure.
func (r *Resolver) download(ctx context.Context, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch font: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// ContentLength is -1 when the server does not advertise it
	if resp.ContentLength >= 0 && resp.ContentLength <= r.minSize {
		return fmt.Errorf("advertised size %d is below threshold %d", resp.ContentLength, r.minSize)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*"+partSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write font: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if !Valid(tmpPath, r.minSize) {
		return fmt.Errorf("downloaded file failed validation")
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move font into place: %w", err)
	}
	committed = true
	return nil
}

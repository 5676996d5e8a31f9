package classifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/logging"
)

const (
	defaultModelFile   = "model.onnx"
	downloadRetries    = 4
	downloadTimeout    = 2 * time.Minute
	maxDownloadBackoff = 10 * time.Second
)

// FetchModel resolves location to a local model file. http(s) locations are
// downloaded into cacheDir, retrying transient failures; file:// URLs and
// plain paths are returned as-is after checking they exist.
func FetchModel(ctx context.Context, location, cacheDir string, logger *zap.Logger) (string, error) {
	opLogger := logging.WithOperation(logger, "classifier.fetch_model", "")

	u, err := url.Parse(location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		local := location
		if err == nil && u.Scheme == "file" {
			local = filepath.FromSlash(u.Host + u.Path)
		}
		if _, statErr := os.Stat(local); statErr != nil {
			return "", logging.NewOperationError("classifier.fetch_model", "", statErr)
		}
		opLogger.Info("using local model artifact", zap.String("path", local))
		return local, nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", logging.NewOperationError("classifier.fetch_model", "", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = defaultModelFile
	}
	dest := filepath.Join(cacheDir, name)

	client := &http.Client{Timeout: downloadTimeout}
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = maxDownloadBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, downloadRetries), ctx)

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		err := download(ctx, client, location, dest)
		if err != nil {
			opLogger.Warn("model download failed", zap.Error(err), zap.Int("attempt", attempt))
		}
		return err
	}, retry)
	if err != nil {
		return "", logging.NewOperationError("classifier.fetch_model", "", err)
	}

	opLogger.Info("model artifact downloaded", zap.String("url", location), zap.String("path", dest))
	return dest, nil
}

func download(ctx context.Context, client *http.Client, location, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

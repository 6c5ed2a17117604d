package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"pluginforge.io/cli/internal/core/domain/plugin"
)

// HTTPSource fetches plugin metadata and script bytes over plain HTTP. The
// manifest lives at <baseURL>/manifest.json; each plugin's locator is either
// an absolute URL or a path relative to the base.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource creates an HTTP source for the given base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Longer timeout for large downloads
		},
	}
}

// FetchMetadata downloads and decodes the source manifest.
func (s *HTTPSource) FetchMetadata(ctx context.Context) ([]plugin.PluginMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/manifest.json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest request: %w", err)
	}
	req.Header.Set("User-Agent", "pluginforge-cli/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch failed with status %d", resp.StatusCode)
	}

	var metadata []plugin.PluginMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return metadata, nil
}

// Materialize streams the script bytes from the plugin's locator URL to
// targetPath.
func (s *HTTPSource) Materialize(ctx context.Context, md plugin.PluginMetadata, targetPath string) error {
	url := md.SourceLocator
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = s.baseURL + "/" + strings.TrimLeft(url, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "pluginforge-cli/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write script: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to finish writing script: %w", err)
	}

	return nil
}

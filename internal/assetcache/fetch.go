package assetcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileFetcher serves assets from a directory, treating request paths as
// slash-separated paths relative to Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + p)
	data, err := os.ReadFile(filepath.Join(f.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return data, nil
}

// HTTPFetcher fetches assets from a remote origin.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	// MaxBytes bounds the response size; zero means 32 MiB.
	MaxBytes int64
}

func (f HTTPFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(f.BaseURL, "/")+p, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", p, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("fetch %s: response exceeds %d bytes", p, limit)
	}
	return data, nil
}

package fetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teaxyz/chai/core"
)

const maxExtractedFileSize = 1 << 30 // 1 GiB per file, a sanity ceiling against a runaway/hostile archive.

// TarballFetcher downloads a gzip-compressed tar archive over HTTP(S) and
// extracts it into a fresh snapshot directory. No library in the pack
// specializes in tar/gzip extraction, so this is a documented stdlib
// carve-out (DESIGN.md): archive/tar + compress/gzip + net/http.
type TarballFetcher struct {
	Client *http.Client
}

func (f TarballFetcher) Fetch(ctx context.Context, dataRoot, packageManager string, spec Spec) (string, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := openHTTPBody(ctx, client, spec.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	gz, err := gzip.NewReader(body)
	if err != nil {
		return "", fmt.Errorf("%w: open gzip stream: %v", core.ErrTransientFetch, err)
	}
	defer gz.Close()

	dir := snapshotDir(dataRoot, packageManager, time.Now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: create snapshot dir: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrCancellationRequested, err)
		}
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: read tar entry: %v", core.ErrTransientFetch, err)
		}
		if err := extractTarEntry(dir, header, tr); err != nil {
			return "", err
		}
	}

	return dir, nil
}

func extractTarEntry(dir string, header *tar.Header, r io.Reader) error {
	target, err := safeJoin(dir, header.Name)
	if err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("fetch: create extracted file %s: %w", target, err)
		}
		defer out.Close()
		if _, err := io.Copy(out, io.LimitReader(r, maxExtractedFileSize)); err != nil {
			return fmt.Errorf("fetch: write extracted file %s: %w", target, err)
		}
		return nil
	default:
		// Symlinks, devices, etc. are not part of any upstream dump CHAI
		// consumes; skip rather than fail the whole fetch.
		return nil
	}
}

// safeJoin resolves name under dir, rejecting any path ("..", an absolute
// path) that would escape it — a zip-slip style guard against a hostile or
// corrupt archive entry.
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("fetch: archive entry %q is an absolute path", name)
	}
	root := filepath.Clean(dir)
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("fetch: archive entry %q escapes snapshot directory", name)
	}
	return target, nil
}

// GzipFetcher downloads a single gzip-compressed file (e.g. Debian's
// Packages.gz) over HTTP(S) and decompresses it into the snapshot
// directory under its ungzipped name. Same stdlib carve-out as
// TarballFetcher.
type GzipFetcher struct {
	Client   *http.Client
	// FileName names the decompressed file inside the snapshot directory;
	// defaults to the URL's base name with a trailing ".gz" stripped.
	FileName string
}

func (f GzipFetcher) Fetch(ctx context.Context, dataRoot, packageManager string, spec Spec) (string, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := openHTTPBody(ctx, client, spec.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	gz, err := gzip.NewReader(body)
	if err != nil {
		return "", fmt.Errorf("%w: open gzip stream: %v", core.ErrTransientFetch, err)
	}
	defer gz.Close()

	dir := snapshotDir(dataRoot, packageManager, time.Now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: create snapshot dir: %w", err)
	}

	name := f.FileName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(spec.URL), ".gz")
	}
	target := filepath.Join(dir, name)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("fetch: create decompressed file %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, gz); err != nil {
		return "", fmt.Errorf("%w: decompress %s: %v", core.ErrTransientFetch, spec.URL, err)
	}

	return dir, nil
}

func openHTTPBody(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrTransientFetch, url, err)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned status %d", core.ErrTransientFetch, url, resp.StatusCode)
	}
	return resp.Body, nil
}

// Package assets checks that offer images can be loaded, standing in for a
// browser's image loading.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp" // register decoder
)

var (
	// ErrNotImage is returned when an asset is not an image.
	ErrNotImage = errors.New("asset is not an image")

	// ErrOutsideRoot is returned when a local asset path escapes the
	// assets directory.
	ErrOutsideRoot = errors.New("asset path outside assets directory")
)

// headerSize is enough for filetype to recognize every image type it knows.
const headerSize = 262

// Prober verifies offer image assets. Remote sources are fetched over HTTP;
// anything else is a path inside Root.
type Prober struct {
	Root   string
	client *http.Client
	logger *slog.Logger
}

// NewProber creates a prober for local assets under root.
func NewProber(root string, timeout time.Duration, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{
		Root: root,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Probe loads the asset at source and returns nil when it is a readable
// image.
func (p *Prober) Probe(ctx context.Context, source string) error {
	rc, err := p.open(ctx, source)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := checkImage(rc); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	p.logger.Debug("asset loaded", "source", source)
	return nil
}

// open returns a reader for a remote or local asset.
func (p *Prober) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid asset URL: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch asset: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch asset %s: HTTP %d", source, resp.StatusCode)
		}

		return resp.Body, nil
	}

	path, err := p.resolve(source)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}
	return f, nil
}

// resolve maps a local source onto the assets directory.
func (p *Prober) resolve(source string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(source, "/"))
	path := filepath.Join(p.Root, rel)

	within, err := filepath.Rel(p.Root, path)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, source)
	}

	return path, nil
}

// checkImage sniffs the header and decodes the image configuration. Image
// types without a registered decoder pass on the sniff alone.
func checkImage(r io.Reader) error {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return ErrNotImage
		}
		return fmt.Errorf("failed to read asset: %w", err)
	}
	header = header[:n]

	if !filetype.IsImage(header) {
		return ErrNotImage
	}

	_, _, err = image.DecodeConfig(io.MultiReader(bytes.NewReader(header), r))
	if errors.Is(err, image.ErrFormat) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("corrupt image: %w", err)
	}

	return nil
}

// Package parser loads raw stories lists from files or URLs.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned when a stories list is in a format the
// parser cannot read.
var ErrUnsupportedFormat = errors.New("unsupported stories format")

// Format identifies a stories list encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatM3U  Format = "m3u"
)

// listKeys are the object keys a document may carry its list under.
var listKeys = []string{"stories", "offers"}

// ParseStories fetches a stories list from a local path or an http(s) URL
// and decodes it into raw data for the normalizer. The format is taken from
// the file extension, falling back to the response content type for URLs.
func ParseStories(location string) (any, error) {
	if isRemote(location) {
		return parseRemote(location)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read stories: %w", err)
	}

	format, ok := formatFromExt(filepath.Ext(location))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, location)
	}

	return Decode(data, format, "")
}

// parseRemote fetches and decodes a stories list over HTTP.
func parseRemote(location string) (any, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch stories: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stories: %w", err)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid stories URL: %w", err)
	}

	format, ok := formatFromExt(path.Ext(u.Path))
	if !ok {
		format, ok = formatFromContentType(resp.Header.Get("Content-Type"))
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, location)
	}

	return Decode(data, format, location)
}

// Decode decodes a stories list. For M3U lists, relative entries are
// resolved against baseURL when it is set.
func Decode(data []byte, format Format, baseURL string) (any, error) {
	switch format {
	case FormatJSON:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON stories: %w", err)
		}
		return unwrap(doc), nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML stories: %w", err)
		}
		return unwrap(doc), nil
	case FormatM3U:
		return decodeM3U(data, baseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// decodeM3U reads a media playlist whose entries are images. The #EXTINF
// title becomes the alt text.
func decodeM3U(data []byte, baseURL string) (any, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse M3U stories: %w", err)
	}

	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("expected media playlist, got master playlist")
	}

	mediaPlaylist, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	entries := make([]any, 0, mediaPlaylist.Count())
	for _, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}

		source := seg.URI
		if baseURL != "" {
			source, err = resolveURL(baseURL, seg.URI)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve story URL: %w", err)
			}
		}

		entries = append(entries, map[string]any{
			"source":  source,
			"altText": strings.TrimSpace(seg.Title),
		})
	}

	return entries, nil
}

// unwrap returns the list stored under a known key when the document is an
// object, otherwise the document itself.
func unwrap(doc any) any {
	obj, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	for _, k := range listKeys {
		if list, ok := obj[k]; ok {
			return list
		}
	}
	return doc
}

func formatFromExt(ext string) (Format, bool) {
	switch strings.ToLower(ext) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".m3u", ".m3u8":
		return FormatM3U, true
	default:
		return "", false
	}
}

func formatFromContentType(contentType string) (Format, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}

	switch mediaType {
	case "application/json":
		return FormatJSON, true
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML, true
	case "application/vnd.apple.mpegurl", "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl":
		return FormatM3U, true
	default:
		return "", false
	}
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	// Resolve the relative URL against the base
	resolved := base.ResolveReference(rel)
	return resolved.String(), nil
}

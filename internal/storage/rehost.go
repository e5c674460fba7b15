package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaxImageBytes caps a single fetched or decoded image.
const DefaultMaxImageBytes = 10 << 20

var (
	ErrSourceNotAllowed = errors.New("storage: image source host is not allowed")
	ErrImageTooLarge    = errors.New("storage: image exceeds size limit")
	ErrNotImage         = errors.New("storage: source is not an image")
	ErrBadDataURL       = errors.New("storage: malformed data url")
)

// Image is a loaded source image ready to be re-uploaded.
type Image struct {
	Data        []byte
	ContentType string
}

// Fetcher loads generated images so they can be copied into durable storage.
// Sources are either data: URLs or http(s) URLs on an allowed host.
type Fetcher struct {
	client   *http.Client
	allow    map[string]struct{}
	maxBytes int64
}

// NewFetcher returns a fetcher. An empty allowlist accepts every host.
func NewFetcher(client *http.Client, allowlist []string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	allow := make(map[string]struct{}, len(allowlist))
	for _, h := range allowlist {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allow[h] = struct{}{}
		}
	}
	return &Fetcher{client: client, allow: allow, maxBytes: DefaultMaxImageBytes}
}

// Load resolves source into image bytes.
func (f *Fetcher) Load(ctx context.Context, source string) (Image, error) {
	source = strings.TrimSpace(source)
	if strings.HasPrefix(source, "data:") {
		return f.decodeDataURL(source)
	}
	return f.fetch(ctx, source)
}

func (f *Fetcher) decodeDataURL(source string) (Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(source, "data:"), ",")
	if !ok {
		return Image{}, ErrBadDataURL
	}
	isBase64 := strings.HasSuffix(meta, ";base64")
	contentType := strings.TrimSuffix(meta, ";base64")
	if contentType == "" {
		contentType = "text/plain"
	}

	var data []byte
	if isBase64 {
		if int64(base64.StdEncoding.DecodedLen(len(payload))) > f.maxBytes {
			return Image{}, ErrImageTooLarge
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Image{}, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return Image{}, fmt.Errorf("%w: %v", ErrBadDataURL, err)
		}
		data = []byte(unescaped)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, ErrImageTooLarge
	}
	return imageFrom(data, contentType)
}

func (f *Fetcher) fetch(ctx context.Context, source string) (Image, error) {
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Image{}, fmt.Errorf("storage: unsupported image source %q", source)
	}
	if !f.allowed(u.Hostname()) {
		return Image{}, fmt.Errorf("%w: %s", ErrSourceNotAllowed, u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return Image{}, fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("storage: fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("storage: fetch image: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return Image{}, ErrImageTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("storage: read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, ErrImageTooLarge
	}
	return imageFrom(data, resp.Header.Get("Content-Type"))
}

func (f *Fetcher) allowed(host string) bool {
	if len(f.allow) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for {
		if _, ok := f.allow[host]; ok {
			return true
		}
		_, parent, found := strings.Cut(host, ".")
		if !found || !strings.Contains(parent, ".") {
			return false
		}
		host = parent
	}
}

// imageFrom settles on a content type, sniffing when the declared one is
// missing or generic.
func imageFrom(data []byte, declared string) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrNotImage
	}
	contentType := ""
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		contentType = mt
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mt
		}
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, ErrNotImage
	}
	return Image{Data: data, ContentType: contentType}, nil
}

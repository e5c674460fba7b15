package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"companion/internal/infra"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// FirebaseOptions configures a callable function client.
type FirebaseOptions struct {
	URL        string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// FirebaseCallable calls an HTTPS callable function that wraps an image model.
// Requests use the callable envelope {"data": {...}}.
type FirebaseCallable struct {
	url        string
	httpClient *http.Client
	logger     infra.Logger
}

type callableEnvelope struct {
	Data callableData `json:"data"`
}

type callableData struct {
	Prompt         string `json:"prompt"`
	SourceImageURL string `json:"sourceImageUrl,omitempty"`
	NumSamples     int    `json:"numSamples"`
}

// NewFirebaseCallable constructs a client for one callable function URL.
func NewFirebaseCallable(opts FirebaseOptions) (*FirebaseCallable, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("firebase: function url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 150 * time.Second}
	}
	logger := infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &FirebaseCallable{
		url:        url,
		httpClient: httpClient,
		logger:     infra.Component(logger, "firebase"),
	}, nil
}

// Generate fulfils the Endpoint interface.
func (c *FirebaseCallable) Generate(ctx context.Context, req Request) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("firebase: prompt is required")
	}
	samples := req.NumSamples
	if samples <= 0 {
		samples = 1
	}
	body, err := json.Marshal(callableEnvelope{Data: callableData{
		Prompt:         prompt,
		SourceImageURL: strings.TrimSpace(req.SourceImageURL),
		NumSamples:     samples,
	}})
	if err != nil {
		return nil, fmt.Errorf("firebase: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("firebase: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("firebase: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("firebase: read response: %w", err)
	}
	c.logger.Debug().
		Int("status", resp.StatusCode).
		Int("samples", samples).
		Bool("conditioned", req.SourceImageURL != "").
		Dur("took", time.Since(start)).
		Msg("callable responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Detail: errorDetail(raw, resp.Status)}
	}
	return raw, nil
}

// errorDetail extracts error.message or a string error field from an error
// body, falling back to the raw text.
func errorDetail(raw []byte, fallback string) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(body.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		if len(text) > 512 {
			text = text[:512]
		}
		return text
	}
	return fallback
}

var _ Endpoint = (*FirebaseCallable)(nil)

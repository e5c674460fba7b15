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

// Prediction statuses reported by the predictions API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ErrMissingToken indicates that the client was configured without credentials.
var ErrMissingToken = errors.New("replicate: api token is required")

// ReplicateOptions configures the predictions client.
type ReplicateOptions struct {
	BaseURL      string
	APIToken     string
	Model        string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Replicate creates a prediction and polls it until it settles. The final
// prediction body is returned as-is; its output array is picked up by
// Normalize.
type Replicate struct {
	baseURL      string
	token        string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       infra.Logger
	sleep        func(context.Context, time.Duration) error
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt     string `json:"prompt"`
	NumOutputs int    `json:"num_outputs"`
	Image      string `json:"image,omitempty"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  json.RawMessage `json:"error"`
}

// NewReplicate constructs a predictions client.
func NewReplicate(opts ReplicateOptions) (*Replicate, error) {
	token := strings.TrimSpace(opts.APIToken)
	if token == "" {
		return nil, ErrMissingToken
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Replicate{
		baseURL:      baseURL,
		token:        token,
		model:        strings.TrimSpace(opts.Model),
		pollInterval: interval,
		httpClient:   httpClient,
		logger:       infra.Component(logger, "replicate"),
		sleep:        sleepContext,
	}, nil
}

// Generate fulfils the Endpoint interface.
func (c *Replicate) Generate(ctx context.Context, req Request) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("replicate: prompt is required")
	}
	samples := req.NumSamples
	if samples <= 0 {
		samples = 1
	}
	payload := predictionRequest{Input: predictionInput{
		Prompt:     prompt,
		NumOutputs: samples,
		Image:      strings.TrimSpace(req.SourceImageURL),
	}}

	// Versioned models post to /predictions; "owner/name" models use the
	// model-scoped endpoint.
	endpoint := c.baseURL + "/predictions"
	if c.model != "" {
		if strings.Contains(c.model, ":") {
			payload.Version = c.model[strings.Index(c.model, ":")+1:]
		} else {
			endpoint = c.baseURL + "/models/" + c.model + "/predictions"
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	raw, pred, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("prediction_id", pred.ID).Str("status", pred.Status).Msg("prediction created")

	for {
		switch pred.Status {
		case StatusSucceeded:
			return raw, nil
		case StatusFailed, StatusCanceled:
			return nil, &UpstreamError{Detail: predictionError(pred)}
		case StatusStarting, StatusProcessing:
		default:
			return nil, &UpstreamError{Detail: fmt.Sprintf("unexpected prediction status %q", pred.Status)}
		}
		if pred.ID == "" {
			return nil, &UpstreamError{Detail: "prediction id missing"}
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
		raw, pred, err = c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+pred.ID, nil)
		if err != nil {
			return nil, err
		}
	}
}

func (c *Replicate) do(ctx context.Context, method, url string, body []byte) ([]byte, prediction, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, prediction{}, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, prediction{}, fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, prediction{}, fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, prediction{}, &UpstreamError{StatusCode: resp.StatusCode, Detail: replicateDetail(raw, resp.Status)}
	}
	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, prediction{}, fmt.Errorf("replicate: decode response: %w", err)
	}
	return raw, pred, nil
}

func predictionError(p prediction) string {
	if len(p.Error) > 0 && string(p.Error) != "null" {
		var s string
		if err := json.Unmarshal(p.Error, &s); err == nil && s != "" {
			return s
		}
		return string(p.Error)
	}
	return "image generation failed"
}

// replicateDetail prefers the API's "detail" field over the generic error body.
func replicateDetail(raw []byte, fallback string) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return errorDetail(raw, fallback)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Endpoint = (*Replicate)(nil)

package image

import (
	"context"
	"fmt"
	"strings"
)

// Sample counts requested from the upstream services.
const (
	FaceSamples = 1
	BodySamples = 4
)

// Request describes one call to an image service. It is built once per
// generation stage and not modified afterwards.
type Request struct {
	Prompt         string
	NumSamples     int
	SourceImageURL string
}

// Endpoint is the contract implemented by every image service client. It
// returns the raw JSON body of a successful response; shape differences are
// resolved by Normalize.
type Endpoint interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// Endpoints pairs the services used for the two generation stages.
type Endpoints struct {
	Face Endpoint
	Body Endpoint
}

// UpstreamError is a failure reported by the remote service itself, either as
// a non-2xx status or as a failed prediction.
type UpstreamError struct {
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		detail = "upstream failure"
	}
	if e.StatusCode == 0 {
		return "image: " + detail
	}
	return fmt.Sprintf("image: status %d: %s", e.StatusCode, detail)
}

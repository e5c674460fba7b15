package image

import (
	"encoding/json"
	"fmt"

	"companion/internal/domain"
)

// Normalize maps the response shapes returned by the image services onto a
// GenerationResult. The primary URL is resolved in this order, first match
// wins: result.imageUrl, result.imageUrls[0], imageUrl, imageUrls[0],
// output[0]. A response without any image yields an empty result; callers
// decide whether that is a failure.
func Normalize(raw map[string]any, prompt string) domain.GenerationResult {
	out := domain.GenerationResult{Prompt: prompt, ImageURLs: []string{}}
	if raw == nil {
		return out
	}
	result, _ := raw["result"].(map[string]any)

	candidates := []func() string{
		func() string { return stringField(result, "imageUrl") },
		func() string { return firstString(result, "imageUrls") },
		func() string { return stringField(raw, "imageUrl") },
		func() string { return firstString(raw, "imageUrls") },
		func() string { return firstString(raw, "output") },
	}
	for _, c := range candidates {
		if v := c(); v != "" {
			out.ImageURL = v
			break
		}
	}

	for _, list := range [][]string{
		stringList(result, "imageUrls"),
		stringList(raw, "imageUrls"),
		stringList(raw, "output"),
	} {
		if len(list) > 0 {
			out.ImageURLs = list
			break
		}
	}
	if len(out.ImageURLs) == 0 && out.ImageURL != "" {
		out.ImageURLs = []string{out.ImageURL}
	}
	if out.ImageURL == "" && len(out.ImageURLs) > 0 {
		out.ImageURL = out.ImageURLs[0]
	}
	return out
}

// NormalizeJSON decodes body and normalizes it. Only malformed JSON is an error.
func NormalizeJSON(body []byte, prompt string) (domain.GenerationResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.GenerationResult{Prompt: prompt, ImageURLs: []string{}}, fmt.Errorf("image: decode response: %w", err)
	}
	return Normalize(raw, prompt), nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	arr, ok := m[key].([]any)
	if !ok || len(arr) == 0 {
		return ""
	}
	s, _ := arr[0].(string)
	return s
}

func stringList(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

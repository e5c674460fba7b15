package image

import (
	"reflect"
	"testing"
)

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantURL  string
		wantURLs []string
	}{
		{
			name:     "result image url",
			body:     `{"result":{"imageUrl":"r1"}}`,
			wantURL:  "r1",
			wantURLs: []string{"r1"},
		},
		{
			name:     "result image urls",
			body:     `{"result":{"imageUrls":["r1","r2"]}}`,
			wantURL:  "r1",
			wantURLs: []string{"r1", "r2"},
		},
		{
			name:     "top level url",
			body:     `{"imageUrl":"t1"}`,
			wantURL:  "t1",
			wantURLs: []string{"t1"},
		},
		{
			name:     "top level urls",
			body:     `{"imageUrls":["t1","t2","t3"]}`,
			wantURL:  "t1",
			wantURLs: []string{"t1", "t2", "t3"},
		},
		{
			name:     "non string first entry",
			body:     `{"imageUrls":[null,"b"]}`,
			wantURL:  "b",
			wantURLs: []string{"b"},
		},
		{
			name:     "output array",
			body:     `{"output":["a","b"]}`,
			wantURL:  "a",
			wantURLs: []string{"a", "b"},
		},
		{
			name:     "result wins over top level",
			body:     `{"result":{"imageUrl":"r1"},"imageUrl":"t1","output":["o1"]}`,
			wantURL:  "r1",
			wantURLs: []string{"o1"},
		},
		{
			name:     "result urls win over top level url",
			body:     `{"result":{"imageUrls":["r1"]},"imageUrl":"t1"}`,
			wantURL:  "r1",
			wantURLs: []string{"r1"},
		},
		{
			name:     "top level url beats output",
			body:     `{"imageUrl":"t1","output":["o1","o2"]}`,
			wantURL:  "t1",
			wantURLs: []string{"o1", "o2"},
		},
		{
			name:     "output string is not an array",
			body:     `{"output":"o1"}`,
			wantURL:  "",
			wantURLs: []string{},
		},
		{
			name:     "empty response",
			body:     `{}`,
			wantURL:  "",
			wantURLs: []string{},
		},
		{
			name:     "empty arrays",
			body:     `{"result":{"imageUrls":[]},"output":[]}`,
			wantURL:  "",
			wantURLs: []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeJSON([]byte(tc.body), "prompt")
			if err != nil {
				t.Fatalf("NormalizeJSON returned error: %v", err)
			}
			if got.ImageURL != tc.wantURL {
				t.Fatalf("ImageURL = %q, want %q", got.ImageURL, tc.wantURL)
			}
			if !reflect.DeepEqual(got.ImageURLs, tc.wantURLs) {
				t.Fatalf("ImageURLs = %#v, want %#v", got.ImageURLs, tc.wantURLs)
			}
			if got.Prompt != "prompt" {
				t.Fatalf("Prompt = %q", got.Prompt)
			}
		})
	}
}

func TestNormalizeJSONRejectsMalformedBody(t *testing.T) {
	if _, err := NormalizeJSON([]byte("<html>"), "p"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNormalizeNilMap(t *testing.T) {
	got := Normalize(nil, "p")
	if got.HasImage() || got.ImageURLs == nil {
		t.Fatalf("unexpected result: %#v", got)
	}
}

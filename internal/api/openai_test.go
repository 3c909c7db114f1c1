package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestMapSizeToRatio(t *testing.T) {
	cases := []struct {
		size string
		want string
	}{
		{"1024x1024", "1:1"},
		{"512x512", "1:1"},
		{"256x256", "1:1"},
		{"1024x1792", "9:16"},
		{"720x1280", "9:16"},
		{"1080x1920", "9:16"},
		{"1792x1024", "16:9"},
		{"1280x720", "16:9"},
		{"1920x1080", "16:9"},
		{"640x480", "1:1"},
		{"", "1:1"},
	}
	for _, tc := range cases {
		if got := mapSizeToRatio(tc.size); got != tc.want {
			t.Errorf("mapSizeToRatio(%q) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

func TestMapResolution(t *testing.T) {
	cases := []struct {
		model   string
		quality string
		want    string
	}{
		{"imagebridge-2k", "", "2K"},
		{"imagebridge-1k", "hd", "1K"},
		{"IMAGEBRIDGE-2K", "", "2K"},
		{"dall-e-3", "hd", "2K"},
		{"dall-e-3", "high", "2K"},
		{"dall-e-3", "standard", "1K"},
		{"", "", "1K"},
	}
	for _, tc := range cases {
		if got := mapResolution(tc.model, tc.quality); got != tc.want {
			t.Errorf("mapResolution(%q, %q) = %q, want %q", tc.model, tc.quality, got, tc.want)
		}
	}
}

func TestModelsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	w := doRequest(t, s, http.MethodGet, "/v1/models", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	doc := gjson.ParseBytes(w.Body.Bytes())
	if doc.Get("object").String() != "list" {
		t.Errorf("object = %q", doc.Get("object").String())
	}
	ids := doc.Get("data.#.id").Array()
	if len(ids) != 2 {
		t.Fatalf("models = %s", w.Body.String())
	}
}

func TestImageGenerations(t *testing.T) {
	s := newTestServer(t, nil)
	w := doRequest(t, s, http.MethodPost, "/v1/images/generations",
		`{"prompt":"a red fox","size":"1792x1024","n":2,"response_format":"url"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	doc := gjson.ParseBytes(w.Body.Bytes())
	data := doc.Get("data").Array()
	if len(data) != 2 {
		t.Fatalf("data length = %d, want 2", len(data))
	}
	for _, item := range data {
		if !strings.HasSuffix(item.Get("url").String(), "/assets/out.png") {
			t.Errorf("url = %q", item.Get("url").String())
		}
	}
}

func TestImageGenerationsB64(t *testing.T) {
	s := newTestServer(t, nil)
	w := doRequest(t, s, http.MethodPost, "/v1/images/generations",
		`{"prompt":"p","response_format":"b64_json"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gjson.ParseBytes(w.Body.Bytes()).Get("data.0.b64_json").String() == "" {
		t.Errorf("b64_json missing: %s", w.Body.String())
	}
}

func TestImageGenerationsRejectsLargeN(t *testing.T) {
	s := newTestServer(t, nil)
	w := doRequest(t, s, http.MethodPost, "/v1/images/generations",
		`{"prompt":"p","n":5}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := gjson.ParseBytes(w.Body.Bytes()).Get("error.type").String(); got != "invalid_request_error" {
		t.Errorf("error.type = %q", got)
	}
}

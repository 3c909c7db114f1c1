package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zcc135820/imagebridge/internal/config"
	"github.com/zcc135820/imagebridge/internal/gallery"
	"github.com/zcc135820/imagebridge/internal/session"
	"github.com/zcc135820/imagebridge/internal/upstream"
)

func validToken(t *testing.T) string {
	t.Helper()
	payload := fmt.Sprintf(`{"sub":"op","exp":%d}`, time.Now().Add(30*24*time.Hour).Unix())
	return "h." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".s"
}

// testHarness runs a fake provider and returns a gateway pointed at it.
type testHarness struct {
	gateway       *Gateway
	upstreamCalls *atomic.Int32
}

func newHarness(t *testing.T, generateBody string) *testHarness {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/generate", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, generateBody)
	})
	mux.HandleFunc("/assets/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("image-bytes"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Upstream.BaseURL = server.URL
	cfg.Upstream.GeneratePath = "/v1/images/generate"
	cfg.Upstream.TimeoutSeconds = 5

	store := session.NewStore(nil)
	store.Seed(validToken(t), "")
	refresher := session.NewRefresher(store, server.URL+"/authorize", server.URL+"/token", server.Client())

	galleryStore, err := gallery.NewStore(t.TempDir(), 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	return &testHarness{
		gateway:       New(store, refresher, upstream.NewClient(cfg), galleryStore, nil),
		upstreamCalls: &calls,
	}
}

func TestGenerateRejectsBadParametersBeforeNetwork(t *testing.T) {
	h := newHarness(t, `{}`)
	cases := []Request{
		{Prompt: "", Ratio: "1:1", Resolution: "1K"},
		{Prompt: "p", Ratio: "2:3", Resolution: "1K"},
		{Prompt: "p", Ratio: "1:1", Resolution: "4K"},
	}
	for _, req := range cases {
		if _, err := h.gateway.Generate(context.Background(), req); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Generate(%+v) error = %v, want ErrInvalidParameter", req, err)
		}
	}
	if got := h.upstreamCalls.Load(); got != 0 {
		t.Errorf("upstream saw %d calls for invalid requests, want 0", got)
	}
}

func TestGenerateURLFormat(t *testing.T) {
	h := newHarness(t, `{"data":{"url":"https://cdn.example/out.png"}}`)
	result, err := h.gateway.Generate(context.Background(), Request{
		Prompt: "a red fox", ResponseFormat: FormatURL,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.URL != "https://cdn.example/out.png" {
		t.Errorf("URL = %q", result.URL)
	}
	if got := h.upstreamCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (no download for url format)", got)
	}
}

func TestGenerateLocalFormatStoresArtifact(t *testing.T) {
	h := newHarnessWithAsset(t)

	result, err := h.gateway.Generate(context.Background(), Request{Prompt: "a red fox"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(result.URL, "/images/files/") {
		t.Errorf("URL = %q, want locally served path", result.URL)
	}
	if !strings.HasSuffix(result.FileName, "_a_red_fox.png") {
		t.Errorf("FileName = %q", result.FileName)
	}
	artifacts, total, err := h.gateway.Gallery().List(1, 10)
	if err != nil || total != 1 || len(artifacts) != 1 {
		t.Errorf("gallery state after save: %v items=%d err=%v", artifacts, total, err)
	}
}

func TestGenerateB64Format(t *testing.T) {
	h := newHarnessWithAsset(t)

	result, err := h.gateway.Generate(context.Background(), Request{
		Prompt: "p", ResponseFormat: FormatB64JSON,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(result.B64JSON)
	if err != nil {
		t.Fatalf("result not base64: %v", err)
	}
	if string(decoded) != "image-bytes" {
		t.Errorf("decoded payload = %q", decoded)
	}
}

func TestGenerateNoImageURL(t *testing.T) {
	h := newHarness(t, `{"status":"done","note":"no links here"}`)
	if _, err := h.gateway.Generate(context.Background(), Request{Prompt: "p", ResponseFormat: FormatURL}); !errors.Is(err, ErrImageURLNotFound) {
		t.Errorf("Generate error = %v, want ErrImageURLNotFound", err)
	}
}

func TestGenerateExpiredSessionFailsBeforeUpstream(t *testing.T) {
	h := newHarness(t, `{}`)
	expired := fmt.Sprintf(`{"sub":"op","exp":%d}`, time.Now().Add(-time.Hour).Unix())
	_ = h.gateway.Store().SetAccessToken(context.Background(),
		"h."+base64.RawURLEncoding.EncodeToString([]byte(expired))+".s")

	_, err := h.gateway.Generate(context.Background(), Request{Prompt: "p", ResponseFormat: FormatURL})
	if !errors.Is(err, session.ErrSessionExpired) {
		t.Errorf("Generate error = %v, want ErrSessionExpired", err)
	}
	if got := h.upstreamCalls.Load(); got != 0 {
		t.Errorf("upstream saw %d generate calls with expired session, want 0", got)
	}
}

func TestForwardArtifactDoesNotBlockResponse(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newHarnessWithAsset(t)
	h.gateway.notifier = notifier

	if _, err := h.gateway.Generate(context.Background(), Request{Prompt: "p"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	notifier.wait(t)
	if got := notifier.prompt(); got != "p" {
		t.Errorf("notifier prompt = %q", got)
	}
}

// newHarnessWithAsset builds a harness whose generate response points at its
// own asset endpoint, so downloads hit the same fake server.
func newHarnessWithAsset(t *testing.T) *testHarness {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/v1/images/generate", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"data":{"url":"%s/assets/out.png"}}`, serverURL)
	})
	mux.HandleFunc("/assets/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	})
	server := httptest.NewServer(mux)
	serverURL = server.URL
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Upstream.BaseURL = server.URL
	cfg.Upstream.GeneratePath = "/v1/images/generate"
	cfg.Upstream.TimeoutSeconds = 5

	store := session.NewStore(nil)
	store.Seed(validToken(t), "")
	refresher := session.NewRefresher(store, server.URL+"/authorize", server.URL+"/token", server.Client())
	galleryStore, err := gallery.NewStore(t.TempDir(), 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testHarness{
		gateway:       New(store, refresher, upstream.NewClient(cfg), galleryStore, nil),
		upstreamCalls: &calls,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	done   bool
	gotten string
}

func (n *recordingNotifier) ForwardArtifact(prompt string, image []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gotten = prompt
	n.done = true
}

func (n *recordingNotifier) wait(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		done := n.done
		n.mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("notifier was never invoked")
}

func (n *recordingNotifier) prompt() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gotten
}

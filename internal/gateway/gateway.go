// Package gateway orchestrates a generation request end to end: session
// check, upstream call, image URL resolution, and artifact handling.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/zcc135820/imagebridge/internal/gallery"
	"github.com/zcc135820/imagebridge/internal/session"
	"github.com/zcc135820/imagebridge/internal/upstream"
)

var (
	// ErrInvalidParameter marks a request rejected before any network call.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrImageURLNotFound means the upstream response held no usable URL.
	ErrImageURLNotFound = errors.New("no image URL found in upstream response")
)

// Ratios enumerates the aspect ratios the provider accepts.
var Ratios = []string{"1:1", "3:4", "4:3", "16:9", "9:16", "21:9", "9:21"}

// Resolutions enumerates the quality tiers the provider accepts.
var Resolutions = []string{"1K", "2K"}

// Response formats.
const (
	FormatURL     = "url"      // raw upstream URL, nothing stored
	FormatB64JSON = "b64_json" // downloaded and base64-encoded
	FormatLocal   = "local"    // downloaded, stored on disk, served locally
)

// Request carries one generation request into the gateway.
type Request struct {
	Prompt         string
	Ratio          string
	Resolution     string
	NoWatermark    bool
	ResponseFormat string
}

// Result is the gateway's answer, populated per the requested format.
type Result struct {
	URL      string
	B64JSON  string
	FileName string
}

// Notifier forwards finished artifacts somewhere out of band. It must not
// surface errors; the primary response path never waits on it.
type Notifier interface {
	ForwardArtifact(prompt string, image []byte)
}

// Gateway wires the session, the upstream client, and the artifact store.
type Gateway struct {
	store     *session.Store
	refresher *session.Refresher
	client    *upstream.Client
	gallery   *gallery.Store
	notifier  Notifier
}

// New constructs a gateway. notifier may be nil.
func New(store *session.Store, refresher *session.Refresher, client *upstream.Client, galleryStore *gallery.Store, notifier Notifier) *Gateway {
	return &Gateway{
		store:     store,
		refresher: refresher,
		client:    client,
		gallery:   galleryStore,
		notifier:  notifier,
	}
}

// ValidRatio reports whether r is an accepted aspect ratio.
func ValidRatio(r string) bool {
	for _, known := range Ratios {
		if known == r {
			return true
		}
	}
	return false
}

// ValidResolution reports whether r is an accepted quality tier.
func ValidResolution(r string) bool {
	for _, known := range Resolutions {
		if known == r {
			return true
		}
	}
	return false
}

// Generate runs one generation. Parameter violations fail before any network
// traffic; everything after goes through the session state machine.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidParameter)
	}
	if req.Ratio == "" {
		req.Ratio = "1:1"
	}
	if req.Resolution == "" {
		req.Resolution = "1K"
	}
	if !ValidRatio(req.Ratio) {
		return nil, fmt.Errorf("%w: ratio %q not in %v", ErrInvalidParameter, req.Ratio, Ratios)
	}
	if !ValidResolution(req.Resolution) {
		return nil, fmt.Errorf("%w: resolution %q not in %v", ErrInvalidParameter, req.Resolution, Resolutions)
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = FormatLocal
	}

	if err := g.refresher.EnsureUsable(ctx); err != nil {
		return nil, err
	}

	accessToken := g.store.AccessToken()
	doc, err := g.client.Generate(ctx, accessToken, req.Prompt, req.Ratio, req.Resolution, req.NoWatermark)
	if err != nil {
		return nil, err
	}

	imageURL, ok := upstream.FindImageURL(doc, g.client.AssetPathHint())
	if !ok {
		log.Debugf("unresolvable upstream response: %s", doc.Raw)
		return nil, ErrImageURLNotFound
	}
	log.WithFields(log.Fields{"ratio": req.Ratio, "resolution": req.Resolution, "format": req.ResponseFormat}).
		Info("image generated")

	if req.ResponseFormat == FormatURL {
		return &Result{URL: imageURL}, nil
	}

	data, err := g.client.Download(ctx, imageURL, accessToken)
	if err != nil {
		return nil, err
	}
	g.forward(req.Prompt, data)

	if req.ResponseFormat == FormatB64JSON {
		return &Result{B64JSON: base64.StdEncoding.EncodeToString(data)}, nil
	}

	artifact, err := g.gallery.Save(req.Prompt, data)
	if err != nil {
		return nil, err
	}
	return &Result{URL: artifact.URL, FileName: artifact.FileName}, nil
}

// forward hands the artifact to the notifier without blocking the response.
func (g *Gateway) forward(prompt string, image []byte) {
	if g.notifier == nil {
		return
	}
	go g.notifier.ForwardArtifact(prompt, image)
}

// SessionInfo exposes the session snapshot for the HTTP facade.
func (g *Gateway) SessionInfo() session.Info {
	return g.store.Info()
}

// Refresh triggers a manual session refresh.
func (g *Gateway) Refresh(ctx context.Context) bool {
	return g.refresher.Refresh(ctx)
}

// Gallery exposes the artifact store for listing and static serving.
func (g *Gateway) Gallery() *gallery.Store {
	return g.gallery
}

// Store exposes the session store for token management endpoints.
func (g *Gateway) Store() *session.Store {
	return g.store
}

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zcc135820/imagebridge/internal/gateway"
)

// Model ids advertised on /v1/models. Clients sending other ids (dall-e-3
// and friends) still work; resolution then comes from the quality field.
var modelIDs = []string{"imagebridge-1k", "imagebridge-2k"}

// sizeToRatio maps OpenAI pixel sizes onto provider aspect ratios.
var sizeToRatio = map[string]string{
	"1024x1024": "1:1",
	"512x512":   "1:1",
	"256x256":   "1:1",
	"1024x1792": "9:16",
	"720x1280":  "9:16",
	"1080x1920": "9:16",
	"1792x1024": "16:9",
	"1280x720":  "16:9",
	"1920x1080": "16:9",
}

// mapSizeToRatio resolves a size string; unrecognized sizes become square.
func mapSizeToRatio(size string) string {
	if ratio, ok := sizeToRatio[size]; ok {
		return ratio
	}
	return "1:1"
}

// mapResolution picks the quality tier from the model id when it names one,
// otherwise from the quality field.
func mapResolution(model, quality string) string {
	switch strings.ToLower(model) {
	case "imagebridge-2k":
		return "2K"
	case "imagebridge-1k":
		return "1K"
	}
	switch strings.ToLower(quality) {
	case "hd", "high":
		return "2K"
	}
	return "1K"
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func (s *Server) handleModels(c *gin.Context) {
	data := make([]modelEntry, 0, len(modelIDs))
	for _, id := range modelIDs {
		data = append(data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "imagebridge",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

type imageGenerationsRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	ResponseFormat string `json:"response_format"`
}

type imageDatum struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

func (s *Server) handleImageGenerations(c *gin.Context) {
	var req imageGenerationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: "+err.Error())
		return
	}
	if req.N <= 0 {
		req.N = 1
	}
	if req.N > 4 {
		writeError(c, http.StatusBadRequest, "invalid_request_error", "n must be between 1 and 4")
		return
	}

	format := gateway.FormatLocal
	if req.ResponseFormat == "b64_json" {
		format = gateway.FormatB64JSON
	}

	data := make([]imageDatum, 0, req.N)
	for i := 0; i < req.N; i++ {
		result, err := s.gw.Generate(c.Request.Context(), gateway.Request{
			Prompt:         req.Prompt,
			Ratio:          mapSizeToRatio(req.Size),
			Resolution:     mapResolution(req.Model, req.Quality),
			ResponseFormat: format,
		})
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		data = append(data, imageDatum{URL: result.URL, B64JSON: result.B64JSON})
	}
	c.JSON(http.StatusOK, gin.H{"created": time.Now().Unix(), "data": data})
}

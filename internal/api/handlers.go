package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zcc135820/imagebridge/internal/buildinfo"
	"github.com/zcc135820/imagebridge/internal/gateway"
)

type generateRequest struct {
	Prompt         string `json:"prompt"`
	Ratio          string `json:"ratio"`
	Resolution     string `json:"resolution"`
	NoWatermark    bool   `json:"no_watermark"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Success bool         `json:"success"`
	Data    generateData `json:"data"`
}

type generateData struct {
	URL      string `json:"url,omitempty"`
	B64JSON  string `json:"b64_json,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": buildinfo.Version})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.gw.Generate(c.Request.Context(), gateway.Request{
		Prompt:         req.Prompt,
		Ratio:          req.Ratio,
		Resolution:     req.Resolution,
		NoWatermark:    req.NoWatermark,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, generateResponse{Success: true, Data: generateData{
		URL:      result.URL,
		B64JSON:  result.B64JSON,
		FileName: result.FileName,
	}})
}

func (s *Server) handleListImages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	artifacts, total, err := s.gw.Gallery().List(page, pageSize)
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"images":    artifacts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ratios":           gateway.Ratios,
		"resolutions":      gateway.Resolutions,
		"response_formats": []string{gateway.FormatURL, gateway.FormatB64JSON, gateway.FormatLocal},
	})
}

func (s *Server) handleSessionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.gw.SessionInfo())
}

type sessionUpdateRequest struct {
	AccessToken   string `json:"access_token"`
	ExchangeToken string `json:"exchange_token"`
}

func (s *Server) handleSessionUpdate(c *gin.Context) {
	var req sessionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: "+err.Error())
		return
	}
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	req.ExchangeToken = strings.TrimSpace(req.ExchangeToken)
	if req.AccessToken == "" && req.ExchangeToken == "" {
		writeError(c, http.StatusBadRequest, "invalid_request_error",
			"access_token or exchange_token is required")
		return
	}

	store := s.gw.Store()
	if req.AccessToken != "" {
		if err := store.SetAccessToken(c.Request.Context(), req.AccessToken); err != nil {
			writeGatewayError(c, err)
			return
		}
	}
	if req.ExchangeToken != "" {
		if err := store.SetExchangeToken(c.Request.Context(), req.ExchangeToken); err != nil {
			writeGatewayError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, store.Info())
}

func (s *Server) handleSessionRefresh(c *gin.Context) {
	refreshed := s.gw.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"refreshed": refreshed,
		"session":   s.gw.SessionInfo(),
	})
}

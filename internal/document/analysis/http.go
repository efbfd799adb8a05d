// Package analysis adapts remote document-analysis services to the
// extraction.Analyzer port.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"certproof/internal/document/extraction"
	"certproof/pkg/platform/collaborator"
)

const collaboratorName = "document-analysis"

// maxResponseBytes bounds service replies.
const maxResponseBytes = 1 << 20

// HTTPAnalyzer calls a JSON document-analysis endpoint.
type HTTPAnalyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPAnalyzer posts to baseURL + "/analyze".
func NewHTTPAnalyzer(baseURL, apiKey string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		endpoint: strings.TrimRight(baseURL, "/") + "/analyze",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, req extraction.AnalysisRequest) (extraction.AnalysisResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return extraction.AnalysisResponse{}, collaborator.FromTransport(collaboratorName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return extraction.AnalysisResponse{}, collaborator.FromStatus(collaboratorName, resp.StatusCode)
	}

	var out extraction.AnalysisResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, fmt.Sprintf("decode response from %s", a.endpoint), err)
	}
	return out, nil
}

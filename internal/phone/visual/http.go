// Package visual adapts screenshot analyzers to certification.VisualAnalyzer.
// Adapters forward the image in the request body only; nothing is written to
// disk or kept after the call returns.
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"certproof/internal/phone/certification"
	"certproof/pkg/platform/collaborator"
)

const collaboratorName = "visual-analyzer"

type analyzeRequest struct {
	ImageBase64   string `json:"image_base64"`
	MediaType     string `json:"media_type"`
	ReferenceName string `json:"reference_name"`
}

type analyzeResponse struct {
	ExtractedName   *string `json:"extracted_name"`
	NameMatchResult *struct {
		MatchScore float64 `json:"match_score"`
	} `json:"name_match_result"`
	CanCertify bool `json:"can_certify"`
}

func (r analyzeResponse) capture() certification.Capture {
	c := certification.Capture{ExtractedName: r.ExtractedName, CanCertify: r.CanCertify}
	if r.ExtractedName != nil && strings.TrimSpace(*r.ExtractedName) == "" {
		c.ExtractedName = nil
	}
	if r.NameMatchResult != nil {
		score := r.NameMatchResult.MatchScore
		c.MatchScore = &score
	}
	return c
}

// HTTPAnalyzer posts screenshots to {base}/analyze.
type HTTPAnalyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPAnalyzer(baseURL, apiKey string, timeout time.Duration) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		endpoint: strings.TrimRight(baseURL, "/") + "/analyze",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, shot certification.Screenshot, referenceName string) (certification.Capture, error) {
	body, err := json.Marshal(analyzeRequest{
		ImageBase64:   base64.StdEncoding.EncodeToString(shot.Data),
		MediaType:     shot.MediaType,
		ReferenceName: referenceName,
	})
	if err != nil {
		return certification.Capture{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return certification.Capture{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return certification.Capture{}, collaborator.FromTransport(collaboratorName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return certification.Capture{}, collaborator.FromStatus(collaboratorName, resp.StatusCode)
	}
	var out analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return certification.Capture{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "decode response", err)
	}
	return out.capture(), nil
}

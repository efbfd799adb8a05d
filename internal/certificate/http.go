package certificate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"certproof/pkg/platform/collaborator"
)

const collaboratorName = "certificate-service"

// HTTPIssuer posts requests to {base}/certificates. The attestation is also
// sent as a bearer token.
type HTTPIssuer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPIssuer(baseURL string, timeout time.Duration) *HTTPIssuer {
	return &HTTPIssuer{
		endpoint: strings.TrimRight(baseURL, "/") + "/certificates",
		client:   &http.Client{Timeout: timeout},
	}
}

func (i *HTTPIssuer) Issue(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Attestation)
	httpReq.Header.Set("Idempotency-Key", req.SessionID)

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return Response{}, collaborator.FromTransport(collaboratorName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Response{}, collaborator.FromStatus(collaboratorName, resp.StatusCode)
	}
	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return Response{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "decode response", err)
	}
	return out, nil
}

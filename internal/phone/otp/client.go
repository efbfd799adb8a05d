// Package otp is the HTTP adapter for the OTP delivery and verification service.
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"certproof/internal/phone/certification"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/collaborator"
)

const collaboratorName = "otp"

// DefaultExpiry applies when the service omits expires_in_seconds.
const DefaultExpiry = 5 * time.Minute

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Purpose     string `json:"purpose"`
}

type sendResponse struct {
	MaskedPhone      string `json:"masked_phone"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type verifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Purpose     string `json:"purpose"`
}

type verifyResponse struct {
	Success bool `json:"success"`
}

// Client calls POST {base}/send and POST {base}/verify.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Send asks the service to deliver a code.
func (c *Client) Send(ctx context.Context, phone id.PhoneNumber, purpose string) (certification.Dispatch, error) {
	var out sendResponse
	if err := c.post(ctx, "/send", sendRequest{PhoneNumber: phone.String(), Purpose: purpose}, &out); err != nil {
		return certification.Dispatch{}, err
	}
	d := certification.Dispatch{
		MaskedPhone: out.MaskedPhone,
		ExpiresIn:   time.Duration(out.ExpiresInSeconds) * time.Second,
	}
	if d.MaskedPhone == "" {
		d.MaskedPhone = phone.Masked()
	}
	if d.ExpiresIn <= 0 {
		d.ExpiresIn = DefaultExpiry
	}
	return d, nil
}

// Verify checks a code. A rejected code is (false, nil), not an error.
func (c *Client) Verify(ctx context.Context, phone id.PhoneNumber, code, purpose string) (bool, error) {
	var out verifyResponse
	err := c.post(ctx, "/verify", verifyRequest{PhoneNumber: phone.String(), Code: code, Purpose: purpose}, &out)
	if err != nil {
		// Some deployments answer a wrong code with 400/422 instead of success=false.
		if collaborator.GetCategory(err) == collaborator.ErrorRejected {
			return false, nil
		}
		return false, err
	}
	return out.Success, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return collaborator.FromTransport(collaboratorName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return collaborator.FromStatus(collaboratorName, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(out); err != nil {
		return collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "decode "+path+" response", err)
	}
	return nil
}

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"certproof/internal/document/extraction"
	"certproof/pkg/platform/collaborator"
)

const systemPrompt = `You extract identity fields from OCR text of West African identity documents
(CNI, passports, residence permits, driver licenses, voter cards).
Reply with a single JSON object and nothing else, using only these keys:
full_name, birth_date, document_number, expiry_date, nationality, gender,
place_of_birth, mrz_validated, is_uemoa, is_cedeao, extraction_confidence, raw_fields.
Dates use DD/MM/YYYY. Omit keys you cannot read; never invent values.
mrz_validated is true only when a machine-readable zone is present and every
ICAO 9303 check digit is correct. extraction_confidence is 0-100.`

// MessageClient is the subset of the Anthropic messages API used here.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicAnalyzer parses OCR text with a Claude model.
type AnthropicAnalyzer struct {
	messages MessageClient
	model    string
}

// NewAnthropicAnalyzer builds a client from an API key.
func NewAnthropicAnalyzer(apiKey, model string, opts ...option.RequestOption) *AnthropicAnalyzer {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return NewAnthropicAnalyzerWithClient(&client.Messages, model)
}

func NewAnthropicAnalyzerWithClient(messages MessageClient, model string) *AnthropicAnalyzer {
	return &AnthropicAnalyzer{messages: messages, model: model}
}

func (a *AnthropicAnalyzer) Analyze(ctx context.Context, req extraction.AnalysisRequest) (extraction.AnalysisResponse, error) {
	prompt, err := json.Marshal(req)
	if err != nil {
		return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorInternal, collaboratorName, "encode prompt", err)
	}

	message, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(prompt))),
		},
	})
	if err != nil {
		return extraction.AnalysisResponse{}, classifyAnthropicError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return DecodeModelJSON(block.Text)
		}
	}
	return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "no text content in model response", nil)
}

// DecodeModelJSON reads the first JSON object in a model reply, tolerating
// code fences and surrounding prose.
func DecodeModelJSON(text string) (extraction.AnalysisResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "no json object in model response", nil)
	}
	var out extraction.AnalysisResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "invalid json in model response", err)
	}
	return out, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		ce := collaborator.FromStatus(collaboratorName, apiErr.StatusCode)
		ce.Underlying = err
		return ce
	}
	return collaborator.FromTransport(collaboratorName, err)
}

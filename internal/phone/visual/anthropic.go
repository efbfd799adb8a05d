package visual

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"certproof/internal/phone/certification"
	"certproof/pkg/platform/collaborator"
)

const systemPrompt = `You inspect screenshots of mobile-money account profiles (Orange Money, MTN MoMo,
Moov Money, Wave) captured from a USSD menu or an operator app.
Reply with a single JSON object and nothing else:
{"extracted_name": string or null, "can_certify": boolean}
extracted_name is the account holder name exactly as displayed.
can_certify is true only when the image is an unedited operator screen that
clearly shows the holder name.`

// MessageClient is the subset of the Anthropic messages API used here.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicAnalyzer reads the holder name with a vision model. The name
// score is left to the caller so matching stays deterministic.
type AnthropicAnalyzer struct {
	messages MessageClient
	model    string
}

func NewAnthropicAnalyzer(apiKey, model string, opts ...option.RequestOption) *AnthropicAnalyzer {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return NewAnthropicAnalyzerWithClient(&client.Messages, model)
}

func NewAnthropicAnalyzerWithClient(messages MessageClient, model string) *AnthropicAnalyzer {
	return &AnthropicAnalyzer{messages: messages, model: model}
}

type modelReply struct {
	ExtractedName *string `json:"extracted_name"`
	CanCertify    bool    `json:"can_certify"`
}

func (a *AnthropicAnalyzer) Analyze(ctx context.Context, shot certification.Screenshot, _ string) (certification.Capture, error) {
	if len(shot.Data) == 0 {
		return certification.Capture{}, collaborator.NewError(collaborator.ErrorRejected, collaboratorName, "empty screenshot", nil)
	}

	message, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(shot.MediaType, base64.StdEncoding.EncodeToString(shot.Data)),
				anthropic.NewTextBlock("Read the account holder name."),
			),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			ce := collaborator.FromStatus(collaboratorName, apiErr.StatusCode)
			ce.Underlying = err
			return certification.Capture{}, ce
		}
		return certification.Capture{}, collaborator.FromTransport(collaboratorName, err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return decodeReply(block.Text)
		}
	}
	return certification.Capture{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "no text content in model response", nil)
}

func decodeReply(text string) (certification.Capture, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return certification.Capture{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "no json object in model response", nil)
	}
	var r modelReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return certification.Capture{}, collaborator.NewError(collaborator.ErrorBadData, collaboratorName, "invalid json in model response", err)
	}
	return analyzeResponse{ExtractedName: r.ExtractedName, CanCertify: r.CanCertify}.capture(), nil
}

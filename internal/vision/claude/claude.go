package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/roomcheck/internal/vision"
)

const defaultModel = "claude-3-5-haiku-latest"

type ClaudeDescriber struct {
	client *anthropic.Client
	model  string
}

// NewClaudeDescriber creates a describer. baseURL may be empty to use the
// public API.
func NewClaudeDescriber(apiKey, model, baseURL string) *ClaudeDescriber {
	if model == "" {
		model = defaultModel
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeDescriber{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (d *ClaudeDescriber) Describe(ctx context.Context, r io.Reader, mimeType, areaLabel string) (*vision.Suggestion, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := d.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(d.model),
		// One sentence is expected.
		MaxTokens: 200,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					base64.StdEncoding.EncodeToString(imageData),
				)),
				anthropic.NewTextMessageContent(vision.PromptFor(areaLabel)),
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeText {
			text.WriteString(c.GetText())
		}
	}

	raw := text.String()
	return &vision.Suggestion{Note: vision.ParseNote(raw), RawResponse: raw}, nil
}

// normaliseMIME maps MIME types to the set accepted by the Claude API.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}

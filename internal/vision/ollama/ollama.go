package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vbonduro/roomcheck/internal/vision"
)

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type OllamaDescriber struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaDescriber(host, model string) *OllamaDescriber {
	return &OllamaDescriber{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (d *OllamaDescriber) Describe(ctx context.Context, r io.Reader, mimeType, areaLabel string) (*vision.Suggestion, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	payload, err := json.Marshal(generateRequest{
		Model:  d.model,
		Prompt: vision.PromptFor(areaLabel),
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var respBody struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &vision.Suggestion{
		Note:        vision.ParseNote(respBody.Response),
		RawResponse: respBody.Response,
	}, nil
}

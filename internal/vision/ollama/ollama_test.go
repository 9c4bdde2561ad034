package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "moondream", req.Model)
		assert.Len(t, req.Images, 1)
		assert.Contains(t, req.Prompt, "Bathroom sink")
		assert.False(t, req.Stream)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":    req.Model,
			"response": "- Chipped enamel at the rim",
		})
	}))
	defer server.Close()

	d := NewOllamaDescriber(server.URL, "moondream")
	s, err := d.Describe(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xE0}), "image/jpeg", "Bathroom sink")

	require.NoError(t, err)
	assert.Equal(t, "Chipped enamel at the rim", s.Note)
	assert.Equal(t, "- Chipped enamel at the rim", s.RawResponse)
}

func TestOllamaDescribeNothingFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "none"})
	}))
	defer server.Close()

	s, err := NewOllamaDescriber(server.URL, "moondream").
		Describe(context.Background(), bytes.NewReader([]byte{1}), "image/jpeg", "Desk")
	require.NoError(t, err)
	assert.Empty(t, s.Note)
}

func TestOllamaDescribeNetworkError(t *testing.T) {
	d := NewOllamaDescriber("http://localhost:99999", "moondream")
	_, err := d.Describe(context.Background(), bytes.NewReader([]byte{0xFF}), "image/jpeg", "Desk")
	assert.Error(t, err)
}

func TestOllamaDescribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewOllamaDescriber(server.URL, "moondream").
		Describe(context.Background(), bytes.NewReader([]byte{0xFF}), "image/jpeg", "Desk")
	assert.Error(t, err)
}

func TestOllamaDescribeEmptyImage(t *testing.T) {
	_, err := NewOllamaDescriber("http://localhost:11434", "moondream").
		Describe(context.Background(), bytes.NewReader(nil), "image/jpeg", "Desk")
	assert.Error(t, err)
}

// Package pdf wraps the serverless PDF-rendering endpoint. The endpoint
// accepts a document payload and returns a stored-file URL; rendering itself
// happens out of process.
package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Renderer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// RenderRequest is the payload sent to the render endpoint.
type RenderRequest struct {
	TemplateKey string `json:"template_key"`
	Subject     string `json:"subject"`
	BodyHTML    string `json:"body_html"`
	ClientName  string `json:"client_name"`
}

type renderResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func NewRenderer(endpoint, apiKey string) *Renderer {
	return &Renderer{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Render submits the document and returns the stored-file URL.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("render endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read render response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed renderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse render response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("render failed: %s", parsed.Error)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("render endpoint returned no document URL")
	}

	return parsed.URL, nil
}

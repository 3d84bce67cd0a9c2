// Package mailer wraps the serverless outbound-email endpoint.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Mailer struct {
	endpoint   string
	apiKey     string
	from       string
	httpClient *http.Client
}

// Message is one outbound email. Either BodyHTML or DocumentURL must be set;
// when DocumentURL is given the endpoint attaches the stored document.
type Message struct {
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	BodyHTML    string   `json:"body_html,omitempty"`
	DocumentURL string   `json:"document_url,omitempty"`
	From        string   `json:"from,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func NewMailer(endpoint, apiKey, from string) *Mailer {
	return &Mailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Send submits the message for delivery and returns the provider message id.
func (m *Mailer) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("no recipients")
	}
	if msg.BodyHTML == "" && msg.DocumentURL == "" {
		return "", fmt.Errorf("either body_html or document_url is required")
	}
	if msg.From == "" {
		msg.From = m.from
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build email request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("email endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read email response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("email endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse email response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("email delivery rejected: %s", parsed.Error)
	}

	return parsed.MessageID, nil
}

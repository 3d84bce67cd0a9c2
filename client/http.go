package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HTTPAPI talks to the REST API using the standard response envelope.
type HTTPAPI struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	if env.Status != "success" {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, env.Error, resp.StatusCode)
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (a *HTTPAPI) GetCase(ctx context.Context, caseID uuid.UUID) (*Case, error) {
	var out Case
	if err := a.do(ctx, http.MethodGet, "/api/balance-cases/"+caseID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) ChangeStatus(ctx context.Context, caseID uuid.UUID, target, note string) (*Case, error) {
	var out Case
	payload := map[string]string{"target": target, "note": note}
	if err := a.do(ctx, http.MethodPatch, "/api/balance-cases/"+caseID.String()+"/status", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) FetchMessages(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != nil {
		q.Set("before", before.Format(time.RFC3339Nano))
	}

	var out []Message
	path := "/api/balance-cases/" + caseID.String() + "/chat?" + q.Encode()
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) SendMessage(ctx context.Context, caseID uuid.UUID, content string) (*Message, error) {
	var out Message
	payload := map[string]string{"content": content}
	if err := a.do(ctx, http.MethodPost, "/api/balance-cases/"+caseID.String()+"/chat", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) MarkRead(ctx context.Context, caseID uuid.UUID) error {
	return a.do(ctx, http.MethodPost, "/api/balance-cases/"+caseID.String()+"/chat/read", nil, nil)
}

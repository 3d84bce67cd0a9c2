// Package client is the Go SDK for the balance back office. It keeps a
// per-session cache of one balance case and its chat feed, applies user
// actions optimistically, and reconciles against server responses and the
// realtime stream. The server stays authoritative throughout; everything
// here is a possibly-stale copy with a defined rollback path.
package client

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the minimal sender identity kept in the local enrichment cache.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
}

// Message mirrors the chat message wire format.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	CaseID      uuid.UUID  `json:"case_id"`
	AuthorID    *uuid.UUID `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorEmail string     `json:"author_email,omitempty"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Case mirrors the balance case wire format.
type Case struct {
	ID                  uuid.UUID  `json:"id"`
	Tenant              string     `json:"tenant"`
	ClientID            uuid.UUID  `json:"client_id"`
	ClientName          string     `json:"client_name,omitempty"`
	TaxYear             int        `json:"tax_year"`
	Status              string     `json:"status"`
	StatusLabel         string     `json:"status_label"`
	StatusColor         string     `json:"status_color"`
	MaterialsReceivedAt *time.Time `json:"materials_received_at"`
	WorkStartedAt       *time.Time `json:"work_started_at"`
	WorkCompletedAt     *time.Time `json:"work_completed_at"`
	OfficeApprovedAt    *time.Time `json:"office_approved_at"`
	ReportTransmittedAt *time.Time `json:"report_transmitted_at"`
	AdvancesUpdatedAt   *time.Time `json:"advances_updated_at"`
	AuditorID           *uuid.UUID `json:"auditor_id"`
	AuditorName         string     `json:"auditor_name,omitempty"`
	AuditorConfirmed    bool       `json:"auditor_confirmed"`
	Notes               string     `json:"notes"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// API is the request/response side of the SDK. The HTTP implementation lives
// in http.go; tests substitute fakes.
type API interface {
	GetCase(ctx context.Context, caseID uuid.UUID) (*Case, error)
	ChangeStatus(ctx context.Context, caseID uuid.UUID, target, note string) (*Case, error)
	FetchMessages(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]Message, error)
	SendMessage(ctx context.Context, caseID uuid.UUID, content string) (*Message, error)
	MarkRead(ctx context.Context, caseID uuid.UUID) error
}

// Stream is the realtime push side. The websocket implementation lives in
// stream.go. Messages yields raw frames until the stream is closed, at which
// point the channel is closed.
type Stream interface {
	Messages() <-chan []byte
	Close() error
}

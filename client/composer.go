package client

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrSendInFlight rejects a submit while the previous one has not resolved.
var ErrSendInFlight = errors.New("send already in flight")

// Composer holds the draft text for one case's chat input. It carries no
// state beyond the draft and the in-flight flag: a successful submit clears
// the draft and fires the focus hook, a failed submit keeps the draft so the
// user can resend it unchanged.
type Composer struct {
	mu      sync.Mutex
	feed    *Feed
	draft   string
	sending bool
	onClear func()
}

// NewComposer wires a composer to its feed. onClear runs after every
// successful submit (the UI uses it to return focus to the input); nil is
// fine.
func NewComposer(feed *Feed, onClear func()) *Composer {
	return &Composer{feed: feed, onClear: onClear}
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// CanSend reports whether a submit would be accepted right now: no send in
// flight, a non-blank draft, and a feed that is not in an error state.
func (c *Composer) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending || strings.TrimSpace(c.draft) == "" {
		return false
	}
	return c.feed.Err() == nil
}

// Submit sends the current draft through the feed. While the send is in
// flight further submits are rejected.
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	draft := c.draft
	c.sending = true
	c.mu.Unlock()

	_, err := c.feed.Send(ctx, draft)

	c.mu.Lock()
	c.sending = false
	if err == nil {
		c.draft = ""
	}
	c.mu.Unlock()

	if err == nil && c.onClear != nil {
		c.onClear()
	}
	return err
}

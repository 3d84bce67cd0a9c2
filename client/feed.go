package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultPageLimit matches the server's chat page size.
const DefaultPageLimit = 50

// ErrFeedClosed is returned from operations on a torn-down feed.
var ErrFeedClosed = errors.New("feed closed")

// SendError reports a failed send. Content carries the original text so the
// caller can resubmit it unchanged.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string { return fmt.Sprintf("send failed: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// Feed maintains the ordered, deduplicated list of visible messages for one
// case. Three inputs feed it: the initial page fetch, "load earlier"
// pagination, and the realtime stream. A message the current user just sent
// arrives on two of those paths (the send acknowledgment and the realtime
// echo) with different ids, so dedup works on a (user, content) fingerprint
// recorded before the request is dispatched. id-based dedup alone cannot
// bridge the optimistic entry's client-generated id to the server-assigned
// one.
type Feed struct {
	mu sync.Mutex

	api    API
	caseID uuid.UUID
	self   User
	users  map[uuid.UUID]User

	messages []Message
	pending  map[string]bool // (user, content) fingerprints of in-flight sends
	loadErr  error
	loaded   bool
	closed   bool
}

func NewFeed(api API, caseID uuid.UUID, self User) *Feed {
	return &Feed{
		api:     api,
		caseID:  caseID,
		self:    self,
		users:   map[uuid.UUID]User{self.ID: self},
		pending: map[string]bool{},
	}
}

// CacheUser adds a sender to the local enrichment map used for realtime
// messages that arrive without display data.
func (f *Feed) CacheUser(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func fingerprint(userID uuid.UUID, content string) string {
	return userID.String() + "\x00" + content
}

// Messages returns a copy of the visible list, ascending by created_at.
func (f *Feed) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// Err returns the load error the feed is currently stuck on, if any. A
// subsequent successful Load or LoadEarlier clears it.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

// Load fetches the newest page and merges it into the visible list by id, so
// it doubles as the catch-up path after a realtime disconnect. On the first
// successful load it also marks the case read, best effort. Results arriving
// after Close are discarded.
func (f *Feed) Load(ctx context.Context) error {
	if f.isClosed() {
		return ErrFeedClosed
	}

	page, err := f.api.FetchMessages(ctx, f.caseID, DefaultPageLimit, nil)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	if err != nil {
		f.loadErr = err
		f.mu.Unlock()
		return err
	}
	f.loadErr = nil
	for _, m := range page {
		if !f.hasLocked(m.ID) {
			f.insertLocked(m)
		}
	}
	firstLoad := !f.loaded
	f.loaded = true
	f.mu.Unlock()

	if firstLoad {
		if err := f.api.MarkRead(ctx, f.caseID); err != nil {
			logrus.WithError(err).Debug("mark read failed")
		}
	}
	return nil
}

// LoadEarlier prepends the page immediately preceding the oldest visible
// message. Already-visible messages in the page are skipped; the existing
// list is never reordered.
func (f *Feed) LoadEarlier(ctx context.Context) error {
	if f.isClosed() {
		return ErrFeedClosed
	}

	f.mu.Lock()
	var before *time.Time
	if len(f.messages) > 0 {
		t := f.messages[0].CreatedAt
		before = &t
	}
	f.mu.Unlock()

	page, err := f.api.FetchMessages(ctx, f.caseID, DefaultPageLimit, before)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	if err != nil {
		f.loadErr = err
		return err
	}
	f.loadErr = nil

	seen := make(map[uuid.UUID]bool, len(f.messages))
	for _, m := range f.messages {
		seen[m.ID] = true
	}
	var fresh []Message
	for _, m := range page {
		if !seen[m.ID] {
			fresh = append(fresh, m)
		}
	}
	sortByTimestamp(fresh)
	f.messages = append(fresh, f.messages...)
	return nil
}

// Send appends an optimistic entry and dispatches the message. The (user,
// content) fingerprint is recorded before the network call so a realtime echo
// racing ahead of the acknowledgment is suppressed instead of rendered twice.
// On success the optimistic entry is swapped for the server-assigned one; on
// failure the entry is removed, the fingerprint cleared, and a SendError
// carrying the content is returned so the caller can retry.
func (f *Feed) Send(ctx context.Context, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty message")
	}

	fp := fingerprint(f.self.ID, content)
	authorID := f.self.ID
	temp := Message{
		ID:          uuid.New(),
		CaseID:      f.caseID,
		AuthorID:    &authorID,
		AuthorName:  f.self.DisplayName,
		AuthorEmail: f.self.Email,
		Content:     content,
		MessageType: "user",
		CreatedAt:   time.Now(),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	f.pending[fp] = true
	f.insertLocked(temp)
	f.mu.Unlock()

	sent, err := f.api.SendMessage(ctx, f.caseID, content)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.removeLocked(temp.ID)
		delete(f.pending, fp)
		return nil, &SendError{Content: content, Err: err}
	}

	// The fingerprint stays pending: the realtime echo of this message may
	// not have arrived yet and still needs suppressing. HandleRealtime
	// consumes it on match.
	f.removeLocked(temp.ID)
	if !f.hasLocked(sent.ID) {
		f.insertLocked(*sent)
	}
	return sent, nil
}

// HandleRealtime reconciles one pushed message against the visible list:
// a pending-send fingerprint match is the echo of an optimistic send and is
// consumed, a known id is a reconnection replay and is dropped, anything
// else is enriched from the user cache and inserted in timestamp order.
func (f *Feed) HandleRealtime(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithError(err).Warn("dropping malformed realtime message")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	if msg.AuthorID != nil {
		fp := fingerprint(*msg.AuthorID, msg.Content)
		if f.pending[fp] {
			delete(f.pending, fp)
			return
		}
	}
	if f.hasLocked(msg.ID) {
		return
	}

	if msg.AuthorID != nil && msg.AuthorName == "" {
		if u, ok := f.users[*msg.AuthorID]; ok {
			msg.AuthorName = u.DisplayName
			msg.AuthorEmail = u.Email
		}
	}
	f.insertLocked(msg)
}

// Subscribe pumps a realtime stream into the feed until the subscription is
// closed or the stream ends.
func (f *Feed) Subscribe(stream Stream) *Subscription {
	sub := &Subscription{stream: stream}
	go func() {
		for raw := range stream.Messages() {
			if sub.isClosed() {
				return
			}
			f.HandleRealtime(raw)
		}
	}()
	return sub
}

// Close tears the feed down. In-flight fetch results are discarded once the
// flag is set, so a previous case cannot bleed into a newly opened one.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Feed) hasLocked(id uuid.UUID) bool {
	for _, m := range f.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// insertLocked places msg in ascending created_at order. Equal timestamps
// keep arrival order.
func (f *Feed) insertLocked(msg Message) {
	i := sort.Search(len(f.messages), func(i int) bool {
		return f.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	f.messages = append(f.messages, Message{})
	copy(f.messages[i+1:], f.messages[i:])
	f.messages[i] = msg
}

func (f *Feed) removeLocked(id uuid.UUID) {
	for i, m := range f.messages {
		if m.ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return
		}
	}
}

func sortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Subscription is the handle returned by Subscribe. Close is idempotent and
// stops delivery even if the underlying stream takes a moment to drain.
type Subscription struct {
	mu     sync.Mutex
	stream Stream
	closed bool
}

func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.stream.Close()
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

package client

import (
	"sync"

	"github.com/nivtax/balanca-backend/internal/permission"
)

// CaseStore holds the session's cached copy of one balance case. Mutations
// go through ApplyOptimistic, which snapshots the pre-mutation state so a
// failed server round-trip can roll the copy back. Reconcile replaces the
// copy with an authoritative server read and drops any pending snapshot.
type CaseStore struct {
	mu       sync.Mutex
	current  *Case
	snapshot *Case
}

func NewCaseStore(initial *Case) *CaseStore {
	return &CaseStore{current: cloneCase(initial)}
}

func cloneCase(c *Case) *Case {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Get returns a copy of the cached case, or nil when none is loaded.
func (s *CaseStore) Get() *Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCase(s.current)
}

// ApplyOptimistic mutates the cached case immediately. The first optimistic
// mutation since the last reconcile keeps a snapshot for Rollback; stacked
// mutations roll back together to that snapshot.
func (s *CaseStore) ApplyOptimistic(mutate func(*Case)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	if s.snapshot == nil {
		s.snapshot = cloneCase(s.current)
	}
	mutate(s.current)
}

// Reconcile installs an authoritative server copy and clears any pending
// optimistic snapshot.
func (s *CaseStore) Reconcile(server *Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = cloneCase(server)
	s.snapshot = nil
}

// Rollback restores the state captured before the current optimistic
// mutation. No-op when nothing is pending.
func (s *CaseStore) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		s.current = s.snapshot
		s.snapshot = nil
	}
}

// Dirty reports whether an optimistic mutation is awaiting confirmation.
func (s *CaseStore) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil
}

// CanChat evaluates chat access for the given viewer against the cached
// case. Callers re-run this after every Reconcile, since a change of
// assigned auditor changes the answer for bookkeepers.
func (s *CaseStore) CanChat(role permission.Role, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	auditorID := ""
	if s.current.AuditorID != nil {
		auditorID = s.current.AuditorID.String()
	}
	return permission.CanAccessChat(role, userID, permission.ChatCase{AuditorID: auditorID})
}

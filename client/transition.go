package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/workflow"
)

const maxTransitionNote = 1000

var (
	ErrTransitionDenied  = errors.New("role may not perform this transition")
	ErrNoNextStatus      = errors.New("case is already at the final status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionCommand drives one guarded status change: validate locally,
// apply the new status to the cached case optimistically, then perform the
// authoritative update. On failure the authoritative case is reloaded to
// discard the optimistic change and the server error is returned for inline
// display; unlike a failed chat send there is no retry handle, the caller
// simply reopens the dialog.
type TransitionCommand struct {
	api    API
	store  *CaseStore
	role   permission.Role
	userID string
}

func NewTransitionCommand(api API, store *CaseStore, role permission.Role, userID string) *TransitionCommand {
	return &TransitionCommand{api: api, store: store, role: role, userID: userID}
}

// Execute performs the transition. An empty target means "advance one step
// on the normal path".
func (t *TransitionCommand) Execute(ctx context.Context, target workflow.Status, note string) (*Case, error) {
	current := t.store.Get()
	if current == nil {
		return nil, errors.New("no case loaded")
	}
	if len(note) > maxTransitionNote {
		return nil, fmt.Errorf("note exceeds %d characters", maxTransitionNote)
	}

	from := workflow.Status(current.Status)
	if target == "" {
		next, ok := workflow.Next(from)
		if !ok {
			return nil, ErrNoNextStatus
		}
		target = next
	}

	isAdmin := t.role == permission.RoleAdmin
	if !permission.Has(t.role, permission.ActionChangeStatus) {
		return nil, ErrTransitionDenied
	}
	if !workflow.IsValidTransition(from, target, isAdmin) {
		return nil, ErrInvalidTransition
	}

	meta, _ := workflow.MetaOf(target)
	t.store.ApplyOptimistic(func(c *Case) {
		c.Status = string(target)
		c.StatusLabel = meta.Label
		c.StatusColor = meta.Color
	})

	server, err := t.api.ChangeStatus(ctx, current.ID, string(target), note)
	if err != nil {
		// Discard the optimistic status by reloading authoritative state;
		// fall back to a plain rollback when the reload itself fails.
		if fresh, reloadErr := t.api.GetCase(ctx, current.ID); reloadErr == nil {
			t.store.Reconcile(fresh)
		} else {
			logrus.WithError(reloadErr).Warn("case reload after failed transition")
			t.store.Rollback()
		}
		return nil, err
	}

	t.store.Reconcile(server)
	return server, nil
}

package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/workflow"
)

func TestTransitionDefaultsToNextStatus(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusWaitingForMaterials))
	api := &fakeAPI{}
	var gotTarget string
	api.change = func(target, _ string) (*Case, error) {
		gotTarget = target
		return testCase(workflow.StatusMaterialsReceived), nil
	}

	cmd := NewTransitionCommand(api, store, permission.RoleBookkeeper, "u1")
	if _, err := cmd.Execute(context.Background(), "", ""); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotTarget != string(workflow.StatusMaterialsReceived) {
		t.Fatalf("expected next-status default, sent %q", gotTarget)
	}
	if store.Get().Status != string(workflow.StatusMaterialsReceived) {
		t.Fatal("server state not reconciled into the store")
	}
}

func TestTransitionRejectsSkippingAhead(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusMaterialsReceived))
	api := &fakeAPI{}
	api.change = func(string, string) (*Case, error) {
		t.Fatal("invalid transition must not reach the server")
		return nil, nil
	}

	cmd := NewTransitionCommand(api, store, permission.RoleBookkeeper, "u1")
	_, err := cmd.Execute(context.Background(), workflow.StatusReportTransmitted, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if store.Get().Status != string(workflow.StatusMaterialsReceived) {
		t.Fatal("rejected transition must leave the store untouched")
	}
}

func TestTransitionRejectsOfficeApprovedForNonAdmins(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusWorkCompleted))
	cmd := NewTransitionCommand(&fakeAPI{}, store, permission.RoleAccountant, "u1")

	if _, err := cmd.Execute(context.Background(), workflow.StatusOfficeApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionAdminMayRevert(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusInProgress))
	api := &fakeAPI{}
	api.change = func(target, _ string) (*Case, error) {
		return testCase(workflow.Status(target)), nil
	}

	cmd := NewTransitionCommand(api, store, permission.RoleAdmin, "admin")
	if _, err := cmd.Execute(context.Background(), workflow.StatusMaterialsReceived, "sent back"); err != nil {
		t.Fatalf("admin revert: %v", err)
	}
	if store.Get().Status != string(workflow.StatusMaterialsReceived) {
		t.Fatal("revert not applied")
	}
}

func TestTransitionFailureReloadsAuthoritativeCase(t *testing.T) {
	original := testCase(workflow.StatusWaitingForMaterials)
	store := NewCaseStore(original)
	api := &fakeAPI{}
	api.change = func(string, string) (*Case, error) {
		return nil, errors.New("conflict: case changed")
	}
	api.get = func() (*Case, error) {
		fresh := *original
		return &fresh, nil
	}

	cmd := NewTransitionCommand(api, store, permission.RoleAccountant, "u1")
	_, err := cmd.Execute(context.Background(), "", "")
	if err == nil {
		t.Fatal("expected server error")
	}
	if got := store.Get().Status; got != string(workflow.StatusWaitingForMaterials) {
		t.Fatalf("optimistic status not discarded, got %s", got)
	}
	if store.Dirty() {
		t.Error("store should be clean after the reload")
	}
}

func TestTransitionFailureFallsBackToRollback(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusWaitingForMaterials))
	api := &fakeAPI{}
	api.change = func(string, string) (*Case, error) {
		return nil, errors.New("server error")
	}
	api.get = func() (*Case, error) {
		return nil, errors.New("reload also failed")
	}

	cmd := NewTransitionCommand(api, store, permission.RoleAccountant, "u1")
	if _, err := cmd.Execute(context.Background(), "", ""); err == nil {
		t.Fatal("expected server error")
	}
	if got := store.Get().Status; got != string(workflow.StatusWaitingForMaterials) {
		t.Fatalf("rollback fallback did not restore status, got %s", got)
	}
}

func TestTransitionBoundsNoteLength(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusWaitingForMaterials))
	cmd := NewTransitionCommand(&fakeAPI{}, store, permission.RoleAdmin, "admin")

	if _, err := cmd.Execute(context.Background(), "", strings.Repeat("x", maxTransitionNote+1)); err == nil {
		t.Fatal("expected note length error")
	}
}

func TestTransitionAtTerminalStatus(t *testing.T) {
	store := NewCaseStore(testCase(workflow.StatusAdvancesUpdated))
	cmd := NewTransitionCommand(&fakeAPI{}, store, permission.RoleAccountant, "u1")

	if _, err := cmd.Execute(context.Background(), "", ""); !errors.Is(err, ErrNoNextStatus) {
		t.Fatalf("expected ErrNoNextStatus, got %v", err)
	}
}

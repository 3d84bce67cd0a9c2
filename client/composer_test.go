package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestComposerClearsDraftOnSuccess(t *testing.T) {
	api := &fakeAPI{}
	api.send = func(content string) (*Message, error) {
		m := serverMsg(testSelf.ID, content, time.Now())
		return &m, nil
	}
	feed := NewFeed(api, testCaseID, testSelf)

	cleared := 0
	comp := NewComposer(feed, func() { cleared++ })
	comp.SetDraft("done with 2025")

	if !comp.CanSend() {
		t.Fatal("composer should accept a non-blank draft")
	}
	if err := comp.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if comp.Draft() != "" {
		t.Errorf("draft not cleared: %q", comp.Draft())
	}
	if cleared != 1 {
		t.Errorf("focus hook fired %d times", cleared)
	}
}

func TestComposerKeepsDraftOnFailure(t *testing.T) {
	api := &fakeAPI{}
	api.send = func(string) (*Message, error) {
		return nil, errors.New("unavailable")
	}
	feed := NewFeed(api, testCaseID, testSelf)

	comp := NewComposer(feed, nil)
	comp.SetDraft("try again later")
	if err := comp.Submit(context.Background()); err == nil {
		t.Fatal("expected submit error")
	}
	if comp.Draft() != "try again later" {
		t.Errorf("failed submit must keep the draft, got %q", comp.Draft())
	}
}

func TestComposerRejectsBlankDraft(t *testing.T) {
	feed := NewFeed(&fakeAPI{}, uuid.New(), testSelf)
	comp := NewComposer(feed, nil)
	comp.SetDraft("   \n  ")
	if comp.CanSend() {
		t.Fatal("blank draft should not be sendable")
	}
}

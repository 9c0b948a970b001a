package services

import (
	"context"
	"testing"
	"time"
)

func TestAdmissionDropsRapidNearDuplicates(t *testing.T) {
	f := NewAdmissionFilter()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if !f.Check("g", "u", "check out my new project", at) {
		t.Fatalf("first message must always be admitted")
	}
	// Identical message 1s later: inside the window, similarity 1.0.
	if f.Check("g", "u", "check out my new project", at.Add(1*time.Second)) {
		t.Fatalf("rapid duplicate must be dropped")
	}
	// Same pair 5s apart: outside the window.
	if !f.Check("g", "u", "check out my new project", at.Add(6*time.Second)) {
		t.Fatalf("duplicate outside the spam window must be admitted")
	}
}

func TestAdmissionKeepsDissimilarMessages(t *testing.T) {
	f := NewAdmissionFilter()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f.Check("g", "u", "good morning everyone", at)
	if !f.Check("g", "u", "what's for lunch today?", at.Add(1*time.Second)) {
		t.Fatalf("dissimilar rapid message must be admitted")
	}
}

func TestAdmissionIsPerUser(t *testing.T) {
	f := NewAdmissionFilter()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f.Check("g", "u1", "same exact text", at)
	if !f.Check("g", "u2", "same exact text", at.Add(1*time.Second)) {
		t.Fatalf("another user's identical message must be admitted")
	}
}

func TestAdmissionComparesAgainstLatestAttempt(t *testing.T) {
	f := NewAdmissionFilter()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f.Check("g", "u", "spam spam spam spam", at)
	// Dropped, but becomes the new last-seen entry.
	f.Check("g", "u", "spam spam spam spam!", at.Add(1*time.Second))
	// Still near-identical to the latest attempt: dropped too.
	if f.Check("g", "u", "spam spam spam spam!!", at.Add(2*time.Second)) {
		t.Fatalf("burst continuation must be compared to the latest attempt and dropped")
	}
}

func TestSpamDropMutatesNoState(t *testing.T) {
	cfg := testConfig()
	svc, st, _ := newTestIngestion(cfg)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := svc.HandleMessage(ctx, event("u1", "identical spam line", at)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := svc.HandleMessage(ctx, event("u1", "identical spam line", at.Add(1*time.Second))); err != nil {
		t.Fatalf("handle: %v", err)
	}

	u := mustGetUser(t, st, testGuild, "u1")
	if u.TotalMessages != 1 {
		t.Fatalf("spam-dropped message must not mutate state, got totalMessages %d", u.TotalMessages)
	}
	// The dropped message must not refresh lastMessageAt either.
	if u.LastMessageAt == nil || !u.LastMessageAt.Equal(at) {
		t.Fatalf("spam drop must not update lastMessageAt, got %v", u.LastMessageAt)
	}
}

func TestAdmissionCacheEviction(t *testing.T) {
	f := NewAdmissionFilter()
	f.limit = 10
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		f.Check("g", string(rune('a'+i)), "hello", at.Add(time.Duration(i)*time.Second))
	}
	if f.Len() > 10 {
		t.Fatalf("cache must stay bounded, got %d entries", f.Len())
	}
}

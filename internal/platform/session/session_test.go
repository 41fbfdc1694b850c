package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_TouchAndRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := s.LastActivity(ctx, "u1"); ok {
		t.Fatal("expected no session before Touch")
	}

	now := time.Now()
	if err := s.Touch(ctx, "u1", now); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	at, ok, err := s.LastActivity(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("LastActivity: ok=%v err=%v", ok, err)
	}
	if !at.Equal(now) {
		t.Errorf("LastActivity = %v, want %v", at, now)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Touch(ctx, "u1", time.Now())
	if err := s.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.LastActivity(ctx, "u1"); ok {
		t.Fatal("expected session cleared")
	}

	// Clearing an absent session is a no-op.
	if err := s.Clear(ctx, "u2"); err != nil {
		t.Fatalf("Clear absent: %v", err)
	}
}

func TestMemoryStore_ConcurrentTouch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				s.Touch(ctx, "shared", time.Now())
				s.LastActivity(ctx, "shared")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if _, ok, _ := s.LastActivity(ctx, "shared"); !ok {
		t.Fatal("expected session present after concurrent touches")
	}
}

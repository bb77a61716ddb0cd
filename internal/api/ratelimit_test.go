package api

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-1") {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}
	if rl.Allow("client-1") {
		t.Error("Expected request over the limit to be denied")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("client-1") {
		t.Fatal("Expected first request to be allowed")
	}
	if rl.Allow("client-1") {
		t.Error("Expected client-1 to be limited")
	}
	if !rl.Allow("client-2") {
		t.Error("Expected client-2 to have its own budget")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)

	rl.Allow("client-1")
	rl.Allow("client-1")
	if rl.Allow("client-1") {
		t.Fatal("Expected limit to be hit inside the window")
	}

	time.Sleep(60 * time.Millisecond)

	if !rl.Allow("client-1") {
		t.Error("Expected budget to recover after the window passed")
	}
}

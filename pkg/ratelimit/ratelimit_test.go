package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHostLimiterDisabled(t *testing.T) {
	for _, l := range []*HostLimiter{nil, NewHostLimiter(0)} {
		start := time.Now()
		for range 5 {
			if err := l.Wait(context.Background(), "a.com"); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		if time.Since(start) > 50*time.Millisecond {
			t.Error("disabled limiter should not wait")
		}
		if !l.CanProceed("a.com") {
			t.Error("disabled limiter should always proceed")
		}
	}
}

func TestHostLimiterSpacesSameHost(t *testing.T) {
	l := NewHostLimiter(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx, "a.com"); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three requests to one host took %v, want at least 80ms", elapsed)
	}
	if l.CanProceed("a.com") {
		t.Error("host should still be in its delay window")
	}
}

func TestHostLimiterIndependentHosts(t *testing.T) {
	l := NewHostLimiter(time.Second)
	ctx := context.Background()

	start := time.Now()
	for _, host := range []string{"a.com", "b.com", "c.com"} {
		if err := l.Wait(ctx, host); err != nil {
			t.Fatalf("Wait(%s) error = %v", host, err)
		}
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Error("different hosts should not wait for each other")
	}
}

func TestHostLimiterCancel(t *testing.T) {
	l := NewHostLimiter(time.Hour)
	if err := l.Wait(context.Background(), "a.com"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "a.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestHostKey(t *testing.T) {
	tests := map[string]string{
		"https://Example.com/a":      "example.com",
		"http://example.com:8080/b":  "example.com",
		"not a url":                  "not a url",
		"https://sub.example.com/?q": "sub.example.com",
	}
	for in, want := range tests {
		if got := HostKey(in); got != want {
			t.Errorf("HostKey(%q) = %q, want %q", in, got, want)
		}
	}
}

package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitReady_ImmediateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewWithInterval(10 * time.Millisecond).WaitReady(context.Background(), srv.URL, time.Second)
	if !out.Ready {
		t.Fatalf("expected ready, got %+v", out)
	}
	if out.LastStatus != http.StatusOK {
		t.Errorf("expected last status 200, got %d", out.LastStatus)
	}
}

func TestWaitReady_RedirectCountsAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	out := NewWithInterval(10 * time.Millisecond).WaitReady(context.Background(), srv.URL, time.Second)
	if !out.Ready {
		t.Fatalf("3xx must count as ready, got %+v", out)
	}
}

func TestWaitReady_ServerErrorUntilDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := NewWithInterval(10 * time.Millisecond).WaitReady(context.Background(), srv.URL, 100*time.Millisecond)
	if out.Ready {
		t.Fatal("5xx must not count as ready")
	}
	if out.LastStatus != http.StatusInternalServerError {
		t.Errorf("expected last status 500, got %d", out.LastStatus)
	}
}

func TestWaitReady_EventualSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewWithInterval(10 * time.Millisecond).WaitReady(context.Background(), srv.URL, 5*time.Second)
	if !out.Ready {
		t.Fatalf("expected eventual ready, got %+v", out)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 probes, got %d", calls.Load())
	}
}

func TestWaitReady_ConnectionRefused(t *testing.T) {
	out := NewWithInterval(10 * time.Millisecond).WaitReady(context.Background(), "http://127.0.0.1:1", 50*time.Millisecond)
	if out.Ready {
		t.Fatal("expected not ready for refused connection")
	}
	if out.LastErr == nil {
		t.Error("expected transport error recorded")
	}
}

func TestWaitReady_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := NewWithInterval(time.Second).WaitReady(ctx, srv.URL, time.Hour)
	if out.Ready {
		t.Fatal("expected not ready after cancellation")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("cancellation was not honored promptly")
	}
}

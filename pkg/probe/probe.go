// Package probe polls an HTTP endpoint until it answers or a deadline
// elapses. Readiness failure is an expected branch for the caller, so the
// result is an Outcome value rather than an error.
package probe

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultDeadline is how long the prober waits for the service overall.
	DefaultDeadline = 120 * time.Second
	// DefaultInterval is the pause between successive probes.
	DefaultInterval = 2 * time.Second
	// requestTimeout bounds each individual GET.
	requestTimeout = 3 * time.Second
)

// Outcome reports the result of a readiness wait.
type Outcome struct {
	// Ready is true when a response in the 200–399 range was observed.
	Ready bool

	// Elapsed is the time spent probing.
	Elapsed time.Duration

	// LastStatus is the HTTP status of the last response, 0 if none.
	LastStatus int

	// LastErr is the last transport error, nil if the last probe got a
	// response.
	LastErr error
}

// Prober issues short-timeout GETs at a fixed interval.
type Prober struct {
	client   *http.Client
	interval time.Duration
}

// New creates a Prober with the default per-request timeout and interval.
func New() *Prober {
	return &Prober{
		client:   &http.Client{Timeout: requestTimeout},
		interval: DefaultInterval,
	}
}

// NewWithInterval creates a Prober with a custom polling interval, used in
// tests to keep polling cheap.
func NewWithInterval(interval time.Duration) *Prober {
	p := New()
	p.interval = interval
	return p
}

// WaitReady polls url until it answers in the success range or deadline
// elapses. The context cancels the wait early; cancellation reports NotReady.
func (p *Prober) WaitReady(ctx context.Context, url string, deadline time.Duration) Outcome {
	start := time.Now()
	out := Outcome{}

	for {
		status, err := p.probeOnce(ctx, url)
		out.LastStatus = status
		out.LastErr = err
		if err == nil && status >= 200 && status < 400 {
			out.Ready = true
			out.Elapsed = time.Since(start)
			return out
		}

		if time.Since(start)+p.interval > deadline {
			out.Elapsed = time.Since(start)
			return out
		}

		select {
		case <-ctx.Done():
			out.Elapsed = time.Since(start)
			out.LastErr = ctx.Err()
			return out
		case <-time.After(p.interval):
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

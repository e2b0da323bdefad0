package llm

import (
	"context"
	"time"
)

// operation labels a request for metrics. Set it with WithOperation before
// calling a chained client; unclassified requests report as "other".
type operationKey struct{}

// WithOperation tags the context with the logical operation being performed
// (generate, refine, judge).
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation tag, or "other" when unset.
func OperationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "other"
}

// Recorder receives observations about completed requests. It is satisfied
// by the metrics package recorders.
type Recorder interface {
	ObserveLLMRequest(model, operation, status string, promptTokens, completionTokens int, duration time.Duration)
}

// MetricsMiddleware records request counts, token usage, and latency for
// every completion call.
func MetricsMiddleware(rec Recorder) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, req Request) (Response, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				status := "success"
				if err != nil {
					status = "error"
				}
				rec.ObserveLLMRequest(next.ModelName(), OperationFrom(ctx), status,
					resp.PromptTokens, resp.CompletionTokens, time.Since(start))
				return resp, err
			},
			next.ModelName,
		)
	}
}

// TimeoutMiddleware bounds each completion call with its own timeout
// context.
func TimeoutMiddleware(duration time.Duration) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, req Request) (Response, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.ModelName,
		)
	}
}

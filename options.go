package sieve

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/pipz"
)

// Option wraps the extraction pipeline with a reliability feature.
// The core never retries on its own; everything here is caller policy layered
// around the single provider call.
type Option func(pipz.Chainable[*Request]) pipz.Chainable[*Request]

// WithRetry retries failed provider calls up to maxAttempts times.
// Sensible for ErrEndpoint-class failures; a malformed reply is surfaced
// after the pipeline and is not retried here.
func WithRetry(maxAttempts int) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewRetry("retry", pipeline, maxAttempts)
	}
}

// WithBackoff retries with exponential backoff, starting at baseDelay and
// doubling after each failure.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewBackoff("backoff", pipeline, maxAttempts, baseDelay)
	}
}

// WithTimeout cancels provider calls exceeding the duration.
// The terminal processor propagates the cancellation as a context error, not
// an ErrEndpoint.
func WithTimeout(duration time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewTimeout("timeout", pipeline, duration)
	}
}

// WithCircuitBreaker opens the circuit for recovery after 'failures'
// consecutive failures.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewCircuitBreaker("circuit-breaker", pipeline, failures, recovery)
	}
}

// WithRateLimit limits provider calls to rps requests per second with the
// given burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		rateLimiter := pipz.NewRateLimiter[*Request]("rate-limit", rps, burst)
		return pipz.NewSequence("rate-limited", rateLimiter, pipeline)
	}
}

// WithErrorHandler routes pipeline errors through a handler for logging or
// alerting. The handler observes errors; it does not swallow them.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*Request]]) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewHandle("error-handler", pipeline, handler)
	}
}

// PipelineProvider is implemented by types that can provide a pipeline for
// composition. Both Extractor and TypedExtractor satisfy it.
type PipelineProvider interface {
	GetPipeline() pipz.Chainable[*Request]
}

// WithFallback tries the fallback extractor's pipeline when the primary
// fails, typically to shift to a different provider.
func WithFallback(fallback PipelineProvider) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewFallback("with-fallback", pipeline, fallback.GetPipeline())
	}
}

// WithDebug prints the rendered prompt and raw reply around the provider
// call. For troubleshooting only.
func WithDebug() Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.Apply("debug", func(ctx context.Context, req *Request) (*Request, error) {
			fmt.Println("\n=== DEBUG: Prompt ===")
			fmt.Println(req.Prompt.Render())
			fmt.Println("=====================")

			processed, err := pipeline.Process(ctx, req)
			if err != nil {
				fmt.Printf("\n=== DEBUG: Error ===\n%v\n==================\n\n", err)
				return processed, err
			}

			fmt.Println("\n=== DEBUG: Raw Reply ===")
			fmt.Println(processed.Response)
			fmt.Println("========================")

			return processed, nil
		})
	}
}

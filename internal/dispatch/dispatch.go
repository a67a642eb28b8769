// Package dispatch issues a single upstream call against a ranked
// provider: circuit check, endpoint selection, health tracking, per-call
// timeout composition, and same-provider retry on transient failure.
package dispatch

import (
	"context"
	"time"

	"github.com/coreflux/llmorchestrator/internal/adapter"
	"github.com/coreflux/llmorchestrator/internal/balancer"
	"github.com/coreflux/llmorchestrator/internal/breaker"
	"github.com/coreflux/llmorchestrator/internal/health"
	"github.com/coreflux/llmorchestrator/internal/metrics"
	"github.com/coreflux/llmorchestrator/internal/models"
)

// Config controls retry and timeout behavior.
type Config struct {
	MaxRetries        int
	DefaultCallTimeout time.Duration
}

// DefaultConfig matches the core's fixed defaults: 1 retry, 60s default
// call timeout.
func DefaultConfig() Config {
	return Config{MaxRetries: 1, DefaultCallTimeout: 60 * time.Second}
}

// Registry is the subset of adapters the dispatcher can invoke, keyed by
// provider ID. Populated at startup; the dispatcher never constructs an
// adapter itself.
type Registry map[string]adapter.Adapter

// Dispatcher issues upstream calls, consulting a CircuitBreaker registry,
// a LoadBalancer, and a HealthTracker around every attempt.
type Dispatcher struct {
	cfg      Config
	health   *health.Tracker
	balancer *balancer.LoadBalancer
	circuit  *breaker.Registry
	adapters Registry
}

// New returns a Dispatcher wired to the given service-mesh components and
// adapter registry.
func New(cfg Config, healthTracker *health.Tracker, lb *balancer.LoadBalancer, circuitRegistry *breaker.Registry, adapters Registry) *Dispatcher {
	return &Dispatcher{cfg: cfg, health: healthTracker, balancer: lb, circuit: circuitRegistry, adapters: adapters}
}

// Dispatch issues one (possibly retried) call to provider/model with
// prompt/params, forwarding tokens on the returned channel until a
// terminal TokenEnd or TokenErr event, after which the channel is closed.
// deadline is the caller's overall deadline for this call; the effective
// per-attempt timeout is min(deadline-now, DefaultCallTimeout).
func (d *Dispatcher) Dispatch(ctx context.Context, provider models.Provider, modelID, prompt string, params adapter.Params, deadline time.Time) <-chan adapter.Token {
	out := make(chan adapter.Token)

	go func() {
		defer close(out)

		if !deadline.IsZero() && time.Now().After(deadline) {
			emit(ctx, out, adapter.Token{Kind: adapter.TokenErr, Err: &adapter.ClassifiedError{Class: adapter.ClassTimeout, Message: "deadline already past at entry"}})
			return
		}

		if !d.circuit.Allow(provider.ID) {
			emit(ctx, out, adapter.Token{Kind: adapter.TokenErr, Err: &adapter.ClassifiedError{Class: adapter.ClassShortCircuited, Message: "circuit open for provider " + provider.ID}})
			return
		}

		attempts := 1 + d.cfg.MaxRetries
		var lastErr *adapter.ClassifiedError
		anyTokenSent := false

		for attempt := 0; attempt < attempts; attempt++ {
			endpoint, ok := d.balancer.Choose(provider.ID, provider.Endpoints)
			if !ok {
				emit(ctx, out, adapter.Token{Kind: adapter.TokenErr, Err: &adapter.ClassifiedError{Class: adapter.ClassTransport, Message: "no endpoints configured"}})
				return
			}

			callCtx, cancel := d.boundedContext(ctx, deadline)
			sent, outcome, errClass := d.attempt(callCtx, provider, endpoint, modelID, prompt, params, out)
			cancel()

			anyTokenSent = anyTokenSent || sent
			if outcome == models.OutcomeSuccess {
				return
			}
			lastErr = errClass

			retryable := errClass != nil && isRetryable(errClass.Class) && !anyTokenSent
			if !retryable || attempt == attempts-1 {
				break
			}
		}

		if lastErr != nil {
			emit(ctx, out, adapter.Token{Kind: adapter.TokenErr, Err: lastErr})
		}
	}()

	return out
}

// attempt runs a single endpoint call: health bookkeeping, adapter
// invocation, token forwarding, and circuit reporting. Returns whether any
// text token reached the caller, the terminal outcome, and the classified
// error (nil on success).
func (d *Dispatcher) attempt(ctx context.Context, provider models.Provider, endpoint models.Endpoint, modelID, prompt string, params adapter.Params, out chan<- adapter.Token) (bool, models.Outcome, *adapter.ClassifiedError) {
	ad, ok := d.adapters[provider.ID]
	if !ok {
		return false, models.OutcomeError, &adapter.ClassifiedError{Class: adapter.ClassTransport, Message: "no adapter registered for provider " + provider.ID}
	}

	start := time.Now()
	d.health.BeginCall(endpoint.ID)

	sent := false
	outcome := models.OutcomeError
	totalTokens := 0
	var classified *adapter.ClassifiedError

	tokens, err := ad.Invoke(ctx, modelID, prompt, params)
	if err != nil {
		classified = classify(err)
		outcome = outcomeFor(classified, ctx)
	} else {
	drain:
		for {
			select {
			case tok, ok := <-tokens:
				if !ok {
					break drain
				}
				switch tok.Kind {
				case adapter.TokenText:
					sent = true
					emit(ctx, out, tok)
				case adapter.TokenEnd:
					outcome = models.OutcomeSuccess
					totalTokens = tok.TotalTokens
					emit(ctx, out, tok)
				case adapter.TokenErr:
					classified = tok.Err
					outcome = outcomeFor(classified, ctx)
				}
			case <-ctx.Done():
				outcome = models.OutcomeCancelled
				break drain
			}
		}
	}

	elapsed := time.Since(start).Milliseconds()
	d.health.EndCall(endpoint.ID, elapsed, outcome == models.OutcomeSuccess)
	d.reportCircuit(provider.ID, outcome, classified)

	metrics.DispatchTotal.WithLabelValues(provider.ID, string(outcome)).Inc()
	metrics.DispatchDuration.WithLabelValues(provider.ID, modelID).Observe(float64(elapsed) / 1000.0)
	if totalTokens > 0 {
		metrics.TokensTotal.WithLabelValues(provider.ID).Add(float64(totalTokens))
	}

	return sent, outcome, classified
}

func (d *Dispatcher) reportCircuit(providerID string, outcome models.Outcome, classified *adapter.ClassifiedError) {
	if outcome == models.OutcomeSuccess {
		d.circuit.ReportSuccess(providerID)
		return
	}
	if outcome == models.OutcomeCancelled {
		return
	}
	if classified != nil && errorKindFor(classified.Class).IsFailure() {
		d.circuit.ReportFailure(providerID)
	}
}

func (d *Dispatcher) boundedContext(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	callTimeout := d.cfg.DefaultCallTimeout
	if !deadline.IsZero() {
		if remaining := time.Until(deadline); remaining < callTimeout {
			callTimeout = remaining
		}
	}
	return context.WithTimeout(parent, callTimeout)
}

func emit(ctx context.Context, out chan<- adapter.Token, tok adapter.Token) {
	select {
	case out <- tok:
	case <-ctx.Done():
	}
}

func isRetryable(class adapter.ErrorClass) bool {
	switch class {
	case adapter.ClassTimeout, adapter.ClassTransport, adapter.ClassUpstream5xx:
		return true
	default:
		return false
	}
}

func outcomeFor(c *adapter.ClassifiedError, ctx context.Context) models.Outcome {
	if ctx.Err() == context.Canceled {
		return models.OutcomeCancelled
	}
	if c == nil {
		return models.OutcomeSuccess
	}
	if c.Class == adapter.ClassTimeout || ctx.Err() == context.DeadlineExceeded {
		return models.OutcomeTimeout
	}
	return models.OutcomeError
}

func errorKindFor(class adapter.ErrorClass) models.ErrorKind {
	switch class {
	case adapter.ClassTimeout:
		return models.ErrTimeout
	case adapter.ClassTransport:
		return models.ErrTransport
	case adapter.ClassUpstream5xx:
		return models.ErrUpstream5xx
	case adapter.ClassUpstream4xx:
		return models.ErrUpstream4xx
	case adapter.ClassInvalidRequest:
		return models.ErrInvalidRequest
	case adapter.ClassShortCircuited:
		return models.ErrShortCircuited
	default:
		return models.ErrTransport
	}
}

func classify(err error) *adapter.ClassifiedError {
	if ce, ok := err.(*adapter.ClassifiedError); ok {
		return ce
	}
	return &adapter.ClassifiedError{Class: adapter.ClassTransport, Message: err.Error(), Cause: err}
}

// Collect drains a token channel into a single Response, concatenating
// TokenText events until a terminal TokenEnd or TokenErr. Used by callers
// (PublicAPI.complete, FanOut) that need a whole Response rather than a
// live stream.
func Collect(tokens <-chan adapter.Token, providerID, modelID string, start time.Time) models.Response {
	var text string
	var totalTokens int
	outcome := models.OutcomeSuccess
	var coreErr *models.CoreError

	for tok := range tokens {
		switch tok.Kind {
		case adapter.TokenText:
			text += tok.Text
		case adapter.TokenEnd:
			if tok.TotalTokens > 0 {
				totalTokens = tok.TotalTokens
			}
		case adapter.TokenErr:
			outcome = outcomeFromClass(tok.Err.Class)
			coreErr = models.NewError(errorKindFor(tok.Err.Class), tok.Err.Message, tok.Err.Cause)
		}
	}

	return models.Response{
		Text:       text,
		ProviderID: providerID,
		ModelID:    modelID,
		Tokens:     totalTokens,
		ElapsedMs:  time.Since(start).Milliseconds(),
		Outcome:    outcome,
		Error:      coreErr,
	}
}

func outcomeFromClass(class adapter.ErrorClass) models.Outcome {
	switch class {
	case adapter.ClassTimeout:
		return models.OutcomeTimeout
	case adapter.ClassShortCircuited:
		return models.OutcomeShortCircuited
	default:
		return models.OutcomeError
	}
}

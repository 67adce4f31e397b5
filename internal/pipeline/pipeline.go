// Package pipeline turns chunks into (chunk, vector) pairs by calling the
// external embedding provider under batching, cooperative rate limiting and
// bounded retry.
//
// The chunking stage and the embedding stage are decoupled by a bounded
// channel: a slow provider produces backpressure on the producers rather
// than unbounded memory growth. Batch dispatch is paced with a token-bucket
// limiter, mirroring the capture tool's delay between provider requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/logger"
)

// Default configuration values.
const (
	DefaultBatchSize      = 16
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultQueueSize      = 64
	DefaultConcurrency    = 1
	DefaultRateLimit      = rate.Limit(2) // batches per second
)

// Config holds tuning parameters for the pipeline.
type Config struct {
	// BatchSize bounds how many chunks go into one provider call.
	// Larger batches amortise per-call overhead but increase the blast
	// radius of a single failure.
	BatchSize int

	// MaxRetries bounds retry attempts for a transient batch failure.
	MaxRetries int

	// InitialBackoff is the first retry delay; it doubles per attempt
	// up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimit paces batch dispatch (batches per second). This is a
	// cooperative limiter, not a hard global lock.
	RateLimit rate.Limit

	// QueueSize bounds the channel between chunking and embedding.
	QueueSize int

	// Concurrency is the bounded fan-out of in-flight batches.
	Concurrency int
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Result pairs a chunk with its embedding.
type Result struct {
	Chunk  domain.Chunk
	Vector []float32
}

// BatchError reports a batch whose retry budget was exhausted or that
// failed permanently. The chunks are carried so the caller can report or
// reprocess them; they are never silently dropped or guess-filled.
type BatchError struct {
	Chunks []domain.Chunk
	Err    error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch of %d chunks failed: %v", len(e.Chunks), e.Err)
}

// Unwrap exposes the underlying cause.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// Pipeline generates embeddings for chunks.
type Pipeline struct {
	provider driven.EmbeddingProvider
	cfg      Config
	limiter  *rate.Limiter
}

// New creates a pipeline over the given provider.
func New(provider driven.EmbeddingProvider, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(cfg.RateLimit, 1),
	}
}

// QueueSize returns the configured bound of the chunk queue, so producers
// can size their channel to create backpressure rather than buffering.
func (p *Pipeline) QueueSize() int {
	return p.cfg.QueueSize
}

// Embed processes chunks in batches and returns the successful pairs plus
// per-batch failures. A failed batch does not fail the remaining batches;
// ctx cancellation aborts the run.
func (p *Pipeline) Embed(ctx context.Context, chunks []domain.Chunk) ([]Result, []*BatchError, error) {
	var (
		results []Result
		failed  []*BatchError
	)

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		res, err := p.embedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return results, failed, ctx.Err()
			}
			logger.Warn("embedding batch failed: %v", err)
			failed = append(failed, &BatchError{Chunks: batch, Err: err})
			continue
		}
		results = append(results, res...)
	}

	return results, failed, nil
}

// EmbedQuery embeds a single query string (a single-item batch) with the
// same retry discipline as chunk batches.
func (p *Pipeline) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := p.callWithRetry(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Run consumes chunks from the bounded input channel, embedding them with
// the configured fan-out. Results and batch failures are delivered on the
// returned channels, both closed when the input drains or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, in <-chan domain.Chunk) (<-chan Result, <-chan *BatchError) {
	out := make(chan Result, p.cfg.QueueSize)
	errs := make(chan *BatchError, 1)

	batches := make(chan []domain.Chunk, p.cfg.Concurrency)

	// Batcher: groups incoming chunks up to BatchSize.
	go func() {
		defer close(batches)
		batch := make([]domain.Chunk, 0, p.cfg.BatchSize)

		flush := func() {
			if len(batch) == 0 {
				return
			}
			b := batch
			batch = make([]domain.Chunk, 0, p.cfg.BatchSize)
			select {
			case batches <- b:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					flush()
					return
				}
				batch = append(batch, chunk)
				if len(batch) >= p.cfg.BatchSize {
					flush()
				}
			}
		}
	}()

	// Workers: bounded fan-out of provider calls.
	g := new(errgroup.Group)
	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			for batch := range batches {
				res, err := p.embedBatch(ctx, batch)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					select {
					case errs <- &BatchError{Chunks: batch, Err: err}:
					case <-ctx.Done():
						return ctx.Err()
					}
					continue
				}
				for _, r := range res {
					select {
					case out <- r:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
		close(errs)
	}()

	return out, errs
}

// embedBatch calls the provider for one batch and pairs vectors with chunks.
func (p *Pipeline) embedBatch(ctx context.Context, batch []domain.Chunk) ([]Result, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := p.callWithRetry(ctx, texts)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(batch))
	for i := range batch {
		results[i] = Result{Chunk: batch[i], Vector: vectors[i]}
	}
	return results, nil
}

// callWithRetry dispatches one provider call under the rate limiter,
// retrying transient failures with exponential backoff up to the budget.
// Permanent failures surface immediately.
func (p *Pipeline) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := p.cfg.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := p.provider.EmbedBatch(ctx, texts)
		if err == nil {
			if verr := p.validate(texts, vectors); verr != nil {
				// A malformed response is a provider contract violation,
				// not a transient condition: fail fast.
				return nil, verr
			}
			return vectors, nil
		}

		if !isTransient(err) {
			return nil, err
		}
		lastErr = err

		if attempt == p.cfg.MaxRetries {
			break
		}

		logger.Debug("transient embedding failure (attempt %d/%d), backing off %s: %v",
			attempt+1, p.cfg.MaxRetries, backoff, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(backoff)):
		}

		backoff *= 2
		if backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}

	return nil, fmt.Errorf("retry budget exhausted after %d attempts: %w",
		p.cfg.MaxRetries+1, lastErr)
}

// validate checks the provider's response shape: one vector per input, all
// at the provider's declared dimensionality.
func (p *Pipeline) validate(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: provider returned %d vectors for %d inputs",
			domain.ErrInvalidInput, len(vectors), len(texts))
	}
	want := p.provider.Dimensions()
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				domain.ErrDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrProviderUnavailable) {
		return true
	}
	// Request-scoped timeouts are transient; caller cancellation is not.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// jitter spreads retries by up to 25% to avoid thundering herds.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

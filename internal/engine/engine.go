// Package engine dispatches text units to an injected processor through
// an adaptive pool of worker goroutines. It owns all resilience policy:
// retry with backoff, rate-limit detection with global cooldown and
// concurrency reduction, and terminal failure recording.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/policy"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/translate"
)

// Recorder receives terminal unit transitions. The job store adapter
// implements it; tests substitute their own.
type Recorder interface {
	// RecordSuccess persists a completed unit's result.
	RecordSuccess(index int, result string) error
	// RecordFailure persists a terminal failure.
	RecordFailure(index int, errMsg string) error
}

// NopRecorder discards transitions.
type NopRecorder struct{}

// RecordSuccess does nothing.
func (NopRecorder) RecordSuccess(int, string) error { return nil }

// RecordFailure does nothing.
func (NopRecorder) RecordFailure(int, string) error { return nil }

// Config holds tunable engine parameters.
type Config struct {
	// InitialWorkers is the starting worker count.
	InitialWorkers int
	// MinWorkers is the floor the pool never shrinks below.
	MinWorkers int
	// MaxWorkers is the ceiling the pool never grows beyond.
	MaxWorkers int
	// MaxRetries bounds retry attempts for non-rate-limit failures.
	MaxRetries int
	// RequestsPerMinute paces dequeues. Zero disables pacing.
	RequestsPerMinute float64
	// RampUpEvery grows the pool after this many cumulative successes.
	// An empirical tunable, not a derived law.
	RampUpEvery int
	// RampUpQuietPeriod is how long after the last rate-limit event the
	// pool may grow again.
	RampUpQuietPeriod time.Duration
	// PerCallTimeout bounds a single processor call. Zero means no
	// deadline.
	PerCallTimeout time.Duration
	// StopTimeout bounds how long Stop waits for workers to drain.
	StopTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		InitialWorkers:    3,
		MinWorkers:        1,
		MaxWorkers:        10,
		MaxRetries:        10,
		RequestsPerMinute: 60,
		RampUpEvery:       10,
		RampUpQuietPeriod: 60 * time.Second,
		PerCallTimeout:    10 * time.Minute,
		StopTimeout:       10 * time.Second,
	}
}

// Poll intervals for the worker loop. Short sleeps rather than busy
// spins; granularity trades shutdown latency for wakeups.
const (
	popTimeout       = 1 * time.Second
	cooldownSleep    = 1 * time.Second
	notEligibleSleep = 500 * time.Millisecond
	parkedSleep      = 250 * time.Millisecond
	waitPollInterval = 200 * time.Millisecond
)

// Engine is the concurrent dispatcher. Create with New, feed with
// Enqueue, then Start, Wait, Stop.
type Engine struct {
	cfg        Config
	processor  translate.Processor
	classifier *policy.Classifier
	recorder   Recorder
	reporter   ProgressReporter
	logger     *slog.Logger

	softBackoff      policy.Strategy
	emptyBackoff     policy.Strategy
	rateLimitBackoff policy.Strategy

	queue   *Queue
	state   *State
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	results  map[int]string
	total    int
	maxIndex int
	running  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets the terminal-transition recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithReporter sets the progress sink.
func WithReporter(r ProgressReporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithClassifier overrides the rate-limit classifier.
func WithClassifier(c *policy.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithBackoff overrides the three backoff profiles (soft failure,
// empty result, rate limit). Nil entries keep the default.
func WithBackoff(soft, empty, rateLimit policy.Strategy) Option {
	return func(e *Engine) {
		if soft != nil {
			e.softBackoff = soft
		}
		if empty != nil {
			e.emptyBackoff = empty
		}
		if rateLimit != nil {
			e.rateLimitBackoff = rateLimit
		}
	}
}

// New creates an engine sized for capacity queued units.
func New(processor translate.Processor, capacity int, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:              cfg,
		processor:        processor,
		classifier:       policy.NewClassifier(),
		recorder:         NopRecorder{},
		reporter:         NopReporter{},
		logger:           logger,
		softBackoff:      policy.SoftFailure(),
		emptyBackoff:     policy.EmptyResult(),
		rateLimitBackoff: policy.RateLimit(),
		queue:            NewQueue(capacity),
		state:            NewState(cfg.InitialWorkers, cfg.MinWorkers, cfg.MaxWorkers),
		ctx:              ctx,
		cancel:           cancel,
		results:          make(map[int]string),
		maxIndex:         -1,
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue adds a pending unit.
func (e *Engine) Enqueue(index int, content string) error {
	if err := e.queue.Push(NewUnit(index, content)); err != nil {
		return err
	}
	e.mu.Lock()
	e.total++
	if index > e.maxIndex {
		e.maxIndex = index
	}
	e.mu.Unlock()
	return nil
}

// Start launches the worker goroutines. The pool is sized at
// MaxWorkers; workers above the current active count park until the
// ramp-up heuristic admits them.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("dispatch engine starting",
		"initial_workers", e.state.ActiveWorkers(),
		"max_workers", e.state.MaxWorkers(),
		"queued_units", e.queue.Len())

	for i := 0; i < e.state.MaxWorkers(); i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Stop sets the cooperative shutdown flag and joins the workers with a
// bounded timeout. A unit mid-flight stays Processing in memory but was
// never recorded completed, so a later resume safely retries it.
func (e *Engine) Stop() {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("dispatch engine stopped")
	case <-time.After(e.cfg.StopTimeout):
		e.logger.Warn("dispatch engine stop timed out; workers may still be draining",
			"timeout", e.cfg.StopTimeout)
	}
}

// Wait blocks until every unit has reached a terminal state or ctx is
// cancelled.
func (e *Engine) Wait(ctx context.Context) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			completed, failed, _, _ := e.state.Counts()
			e.mu.Lock()
			total := e.total
			e.mu.Unlock()
			if completed+failed >= total {
				return nil
			}
		}
	}
}

// Progress returns a point-in-time snapshot.
func (e *Engine) Progress() Snapshot {
	completed, failed, processing, rateLimited := e.state.Counts()
	e.mu.Lock()
	total := e.total
	e.mu.Unlock()
	return Snapshot{
		Total:            total,
		Completed:        completed,
		Failed:           failed,
		Pending:          e.queue.Len(),
		Processing:       processing,
		RateLimitedCount: rateLimited,
	}
}

// Report sends the current snapshot to the progress sink.
func (e *Engine) Report() {
	e.reporter.Report(e.Progress())
}

// Results returns a copy of the completed results keyed by index.
func (e *Engine) Results() map[int]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]string, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

// MaxIndex returns the highest index ever enqueued, or -1.
func (e *Engine) MaxIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxIndex
}

// worker is the loop run by each pool goroutine. The shutdown flag is
// checked at the top of every iteration and before each processor call.
func (e *Engine) worker(id int) {
	defer e.wg.Done()
	logger := e.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-e.ctx.Done():
			logger.Debug("worker stopping")
			return
		default:
		}

		// Workers above the current active count park instead of
		// exiting so the pool can grow again without respawning.
		if id >= e.state.ActiveWorkers() {
			sleepCtx(e.ctx, parkedSleep)
			continue
		}

		// Global cooldown gates every worker, independent of any
		// single unit's eligibility.
		if e.state.CooldownActive() {
			sleepCtx(e.ctx, cooldownSleep)
			continue
		}

		unit, ok := e.queue.Pop(popTimeout)
		if !ok {
			continue
		}

		// Not yet eligible: push back to the tail and briefly yield so
		// other units keep flowing.
		if !unit.NextEligibleAt.IsZero() && time.Now().Before(unit.NextEligibleAt) {
			if err := e.queue.Push(unit); err != nil {
				logger.Error("failed to requeue waiting unit", "unit_index", unit.Index, "error", err)
			}
			sleepCtx(e.ctx, notEligibleSleep)
			continue
		}

		select {
		case <-e.ctx.Done():
			// Shut down before the call: leave the unit queued state
			// untouched so resume picks it up.
			if err := e.queue.Push(unit); err != nil {
				logger.Error("failed to return unit to queue on shutdown", "unit_index", unit.Index, "error", err)
			}
			return
		default:
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(e.ctx); err != nil {
				// Engine stopping; requeue and exit.
				if pushErr := e.queue.Push(unit); pushErr != nil {
					logger.Error("failed to return unit to queue on shutdown", "unit_index", unit.Index, "error", pushErr)
				}
				return
			}
		}

		e.processUnit(unit, logger)
	}
}

// processUnit invokes the processor once and applies the outcome rules.
func (e *Engine) processUnit(unit *Unit, logger *slog.Logger) {
	unit.Status = UnitProcessing
	e.state.MarkProcessing()
	defer e.state.DoneProcessing()

	// The call context is deliberately detached from the engine's
	// shutdown context: cancellation granularity is "finish the current
	// call". A per-call deadline still bounds a hung transport.
	callCtx := context.Background()
	if e.cfg.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, e.cfg.PerCallTimeout)
		defer cancel()
	}

	result, err := e.processor.Process(callCtx, unit.Content)

	switch {
	case err == nil && result != "":
		e.completeUnit(unit, result, logger)
	case err == nil || errors.Is(err, translate.ErrEmptyResult):
		e.handleEmptyResult(unit, logger)
	case errors.Is(err, translate.ErrPermanent):
		logger.Warn("permanent failure, not retrying",
			"unit_index", unit.Index,
			"error", err)
		e.failUnit(unit, err.Error(), logger)
	case e.classifier.IsRateLimited(err.Error()):
		e.handleRateLimited(unit, err, logger)
	default:
		e.handleTransientError(unit, err, logger)
	}
}

// completeUnit finishes a unit successfully and considers growing the
// pool.
func (e *Engine) completeUnit(unit *Unit, result string, logger *slog.Logger) {
	unit.Status = UnitCompleted
	unit.Result = result

	e.mu.Lock()
	e.results[unit.Index] = result
	e.mu.Unlock()

	if err := e.recorder.RecordSuccess(unit.Index, result); err != nil {
		logger.Error("failed to record unit success",
			"unit_index", unit.Index,
			"error", err)
	}

	completed := e.state.AddCompleted()
	logger.Info("unit completed",
		"unit_index", unit.Index,
		"completed_total", completed)

	if workers, grew := e.state.ConsiderRampUp(e.cfg.RampUpEvery, e.cfg.RampUpQuietPeriod); grew {
		logger.Info("processing is smooth, increasing worker count",
			"active_workers", workers)
	}
}

// handleEmptyResult treats an empty result as a soft failure with a
// linear retry schedule.
func (e *Engine) handleEmptyResult(unit *Unit, logger *slog.Logger) {
	unit.RetryCount++
	unit.LastError = translate.ErrEmptyResult.Error()
	if unit.RetryCount >= e.cfg.MaxRetries {
		logger.Warn("unit returned no result and exhausted retries",
			"unit_index", unit.Index,
			"retry_count", unit.RetryCount)
		e.failUnit(unit, translate.ErrExhaustedRetries.Error()+": "+unit.LastError, logger)
		return
	}
	delay := e.emptyBackoff.Delay(unit.RetryCount - 1)
	e.scheduleRetry(unit, delay, logger)
	logger.Warn("unit returned no result, retrying",
		"unit_index", unit.Index,
		"retry_count", unit.RetryCount,
		"max_retries", e.cfg.MaxRetries,
		"delay", delay)
}

// handleRateLimited applies the rate-limit outcome: global cooldown,
// worker reduction, larger backoff, and an unconditional requeue. Rate
// limiting is not attributable to the unit, so the retry budget never
// expires this path.
func (e *Engine) handleRateLimited(unit *Unit, cause error, logger *slog.Logger) {
	unit.Status = UnitRateLimited
	delay := e.rateLimitBackoff.Delay(unit.RetryCount)
	unit.RetryCount++
	unit.LastError = cause.Error()
	unit.Backoff = delay

	e.state.EnterRateLimit(delay)
	if workers, reduced := e.state.ReduceWorkers(); reduced {
		logger.Info("rate limit detected, reducing worker count",
			"active_workers", workers)
	}

	unit.NextEligibleAt = time.Now().Add(delay)
	unit.Status = UnitPending
	if err := e.queue.Push(unit); err != nil {
		logger.Error("failed to requeue rate-limited unit",
			"unit_index", unit.Index,
			"error", err)
	}
	logger.Warn("rate limit detected on unit, backing off",
		"unit_index", unit.Index,
		"retry_count", unit.RetryCount,
		"delay", delay)
}

// handleTransientError retries a generic failure with exponential
// backoff until the retry budget runs out.
func (e *Engine) handleTransientError(unit *Unit, cause error, logger *slog.Logger) {
	unit.RetryCount++
	unit.LastError = cause.Error()
	if unit.RetryCount >= e.cfg.MaxRetries {
		logger.Warn("unit exhausted retries",
			"unit_index", unit.Index,
			"retry_count", unit.RetryCount,
			"error", cause)
		e.failUnit(unit, translate.ErrExhaustedRetries.Error()+": "+unit.LastError, logger)
		return
	}
	delay := e.softBackoff.Delay(unit.RetryCount)
	e.scheduleRetry(unit, delay, logger)
	logger.Warn("unit failed, retrying",
		"unit_index", unit.Index,
		"retry_count", unit.RetryCount,
		"max_retries", e.cfg.MaxRetries,
		"delay", delay,
		"error", cause)
}

// scheduleRetry returns a unit to the queue tail with a delay.
func (e *Engine) scheduleRetry(unit *Unit, delay time.Duration, logger *slog.Logger) {
	unit.Backoff = delay
	unit.NextEligibleAt = time.Now().Add(delay)
	unit.Status = UnitPending
	if err := e.queue.Push(unit); err != nil {
		logger.Error("failed to requeue unit for retry",
			"unit_index", unit.Index,
			"error", err)
	}
}

// failUnit records a terminal failure. The job continues: no single
// unit's failure aborts the run.
func (e *Engine) failUnit(unit *Unit, errMsg string, logger *slog.Logger) {
	unit.Status = UnitFailed
	unit.LastError = errMsg
	if err := e.recorder.RecordFailure(unit.Index, errMsg); err != nil {
		logger.Error("failed to record unit failure",
			"unit_index", unit.Index,
			"error", err)
	}
	e.state.AddFailed()
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

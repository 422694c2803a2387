// Package app orchestrates a full translation job: split the input,
// create or resume persisted job state, run the dispatch engine, merge
// results into ordered output, and audit the finished job.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/aggregate"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/audit"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/chunk"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/config"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/engine"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/job"
	"github.com/Gotti0/batch-translator-with-gemini-ko-sub001/internal/translate"
)

// progressInterval is how often the progress sink receives a snapshot.
const progressInterval = time.Second

// Service wires the components of a translation job together.
type Service struct {
	cfg       *config.Config
	store     *job.Store
	processor translate.Processor
	reporter  engine.ProgressReporter
	logger    *slog.Logger

	// lastSnapshot is the engine's final progress snapshot, written
	// after the engine has stopped and read only by Run.
	lastSnapshot *engine.Snapshot
}

// NewService creates a Service. A nil reporter defaults to the no-op
// sink.
func NewService(
	cfg *config.Config,
	store *job.Store,
	processor translate.Processor,
	reporter engine.ProgressReporter,
	logger *slog.Logger,
) *Service {
	if reporter == nil {
		reporter = engine.NopReporter{}
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		processor: processor,
		reporter:  reporter,
		logger:    logger,
	}
}

// Summary describes a finished (possibly partially successful) job.
type Summary struct {
	TotalUnits      int
	Completed       int
	Failed          int
	RateLimitEvents int
	Elapsed         time.Duration
	Anomalies       []audit.Anomaly
	OutputPath      string
}

// Run executes a translation job end to end. A failed unit never
// aborts the job; the returned Summary reflects partial success.
func (s *Service) Run(ctx context.Context, inputPath, outputPath string) (*Summary, error) {
	start := time.Now()

	content, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	units := chunk.Split(string(content), s.cfg.Job.ChunkSize)
	s.logger.Info("input split into units",
		"input", inputPath,
		"total_units", len(units))

	chunkedPath := chunkedOutputPath(inputPath)
	meta, resume, err := s.prepareMetadata(inputPath, chunkedPath, outputPath, len(units))
	if err != nil {
		return nil, err
	}

	// Sanitize the block file: reload keeps only complete blocks, the
	// rewrite drops a truncated tail left by a crash mid-append.
	persisted, err := s.store.LoadOutputs(chunkedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reload persisted outputs: %w", err)
	}
	if len(persisted) > 0 {
		if err := s.store.SaveMergedOutputs(chunkedPath, persisted); err != nil {
			return nil, err
		}
	}

	toProcess := s.selectUnits(units, meta, resume)
	s.logger.Info("units selected for processing",
		"resume", resume,
		"already_completed", len(meta.Completed),
		"to_process", len(toProcess))

	results := persisted
	if len(toProcess) > 0 {
		if err := s.store.SetStatus(inputPath, job.StatusInProgress); err != nil {
			return nil, err
		}
		engineResults, err := s.dispatch(ctx, inputPath, chunkedPath, len(units), toProcess)
		if err != nil {
			return nil, err
		}
		results = aggregate.Merge(results, engineResults)
	}

	// Assemble final ordered output. Every positional slot is present;
	// failed units carry the placeholder.
	maxIndex := len(units) - 1
	ordered := aggregate.Ordered(results, maxIndex)
	if err := writeFinalOutput(outputPath, ordered); err != nil {
		return nil, err
	}

	finalMeta, _ := s.store.Load(inputPath)
	if finalMeta == nil {
		finalMeta = meta
	}

	anomalies := s.auditJob(units, results, finalMeta)

	summary := &Summary{
		TotalUnits:      len(units),
		Completed:       len(finalMeta.Completed),
		Failed:          len(finalMeta.Failed),
		RateLimitEvents: 0,
		Elapsed:         time.Since(start),
		Anomalies:       anomalies,
		OutputPath:      outputPath,
	}
	if snap := s.lastSnapshot; snap != nil {
		summary.RateLimitEvents = snap.RateLimitedCount
	}

	s.logger.Info("translation job finished",
		"total_units", summary.TotalUnits,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"rate_limit_events", summary.RateLimitEvents,
		"elapsed", summary.Elapsed,
		"anomalies", len(summary.Anomalies),
		"output", outputPath)
	return summary, nil
}

// prepareMetadata loads existing metadata and decides between resuming
// and restarting. A fingerprint or unit-count mismatch is surfaced in
// the log and restarts the job; the store itself never resumes silently
// across drift.
func (s *Service) prepareMetadata(inputPath, chunkedPath, outputPath string, totalUnits int) (*job.Metadata, bool, error) {
	fingerprint := job.Fingerprint(s.cfg.FingerprintMap())

	if meta, ok := s.store.Load(inputPath); ok {
		switch {
		case meta.ConfigFingerprint != fingerprint:
			s.logger.Warn("configuration changed since last run, restarting job",
				"stored_fingerprint", meta.ConfigFingerprint,
				"current_fingerprint", fingerprint)
		case meta.TotalUnits != totalUnits:
			s.logger.Warn("unit count changed since last run, restarting job",
				"stored_units", meta.TotalUnits,
				"current_units", totalUnits)
		default:
			s.logger.Info("resuming previous job",
				"job_id", meta.JobID,
				"completed", len(meta.Completed),
				"failed", len(meta.Failed))
			return meta, true, nil
		}
		// Restart: discard stale outputs so old blocks cannot leak
		// into the new run.
		for _, p := range []string{chunkedPath, outputPath} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return nil, false, fmt.Errorf("failed to reset output file %q: %w", p, err)
			}
		}
	}

	meta, err := s.store.Create(inputPath, totalUnits, s.cfg.FingerprintMap())
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("created new job metadata", "job_id", meta.JobID, "total_units", totalUnits)
	return meta, false, nil
}

// selectUnits returns the (index, content) pairs that still need
// processing.
func (s *Service) selectUnits(units []string, meta *job.Metadata, resume bool) map[int]string {
	toProcess := make(map[int]string)
	if !resume {
		for i, u := range units {
			toProcess[i] = u
		}
		return toProcess
	}
	if s.cfg.Job.RetryFailedOnly {
		for i := range meta.Failed {
			if i >= 0 && i < len(units) {
				toProcess[i] = units[i]
			}
		}
		return toProcess
	}
	for i, u := range units {
		if _, done := meta.Completed[i]; !done {
			toProcess[i] = u
		}
	}
	return toProcess
}

// dispatch runs the engine over the selected units and returns its
// in-memory results.
func (s *Service) dispatch(ctx context.Context, inputPath, chunkedPath string, totalUnits int, toProcess map[int]string) (map[int]string, error) {
	engCfg := engine.Config{
		InitialWorkers:    s.cfg.Engine.InitialWorkers,
		MinWorkers:        s.cfg.Engine.MinWorkers,
		MaxWorkers:        s.cfg.Engine.MaxWorkers,
		MaxRetries:        s.cfg.Engine.MaxRetries,
		RequestsPerMinute: s.cfg.Engine.RequestsPerMinute,
		RampUpEvery:       s.cfg.Engine.RampUpEvery,
		RampUpQuietPeriod: s.cfg.Engine.RampUpQuietPeriod(),
		PerCallTimeout:    s.cfg.Engine.PerCallTimeout(),
		StopTimeout:       s.cfg.Engine.StopTimeout(),
	}

	recorder := &storeRecorder{
		store:       s.store,
		inputRef:    inputPath,
		chunkedPath: chunkedPath,
	}
	eng := engine.New(s.processor, totalUnits, engCfg, s.logger,
		engine.WithRecorder(recorder),
		engine.WithReporter(s.reporter),
	)
	for index, content := range toProcess {
		if err := eng.Enqueue(index, content); err != nil {
			return nil, fmt.Errorf("failed to enqueue unit %d: %w", index, err)
		}
	}

	eng.Start()
	defer eng.Stop()

	// The ticker goroutine exits via context cancellation once the
	// engine's wait finishes.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancelRun()
		return eng.Wait(gCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				eng.Report()
			}
		}
	})
	waitErr := g.Wait()

	snap := eng.Progress()
	s.lastSnapshot = &snap

	if waitErr != nil {
		return nil, fmt.Errorf("dispatch interrupted: %w", waitErr)
	}
	return eng.Results(), nil
}

// auditJob runs the output-length anomaly detector over completed
// units and logs every flagged index.
func (s *Service) auditJob(units []string, results map[int]string, meta *job.Metadata) []audit.Anomaly {
	samples := make([]audit.Sample, 0, len(meta.Completed))
	for index := range meta.Completed {
		if index < 0 || index >= len(units) {
			continue
		}
		result, ok := results[index]
		if !ok {
			continue
		}
		samples = append(samples, audit.Sample{
			Index:        index,
			SourceLength: len(units[index]),
			OutputLength: len(result),
		})
	}

	anomalies := audit.Analyze(samples)
	for _, a := range anomalies {
		s.logger.Warn("suspicious output length detected",
			"unit_index", a.Index,
			"issue_type", a.IssueType,
			"source_length", a.SourceLength,
			"output_length", a.OutputLength,
			"expected_length", a.ExpectedLength,
			"ratio", a.Ratio,
			"z_score", a.ZScore)
	}
	return anomalies
}

// storeRecorder adapts job.Store to the engine's Recorder interface,
// binding the job's file paths.
type storeRecorder struct {
	store       *job.Store
	inputRef    string
	chunkedPath string
}

// RecordSuccess appends the result block and marks the unit completed.
func (r *storeRecorder) RecordSuccess(index int, result string) error {
	if err := r.store.AppendOutput(r.chunkedPath, index, result); err != nil {
		return err
	}
	return r.store.RecordSuccess(r.inputRef, index)
}

// RecordFailure marks the unit terminally failed.
func (r *storeRecorder) RecordFailure(index int, errMsg string) error {
	return r.store.RecordFailure(r.inputRef, index, errMsg)
}

// chunkedOutputPath derives the index-tagged backup file path for an
// input file: input.txt → input_translated_chunked.txt.
func chunkedOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(filepath.Dir(inputPath), stem+"_translated_chunked.txt")
}

// writeFinalOutput writes the ordered results as plain text, separated
// by blank lines.
func writeFinalOutput(path string, ordered []string) error {
	var b strings.Builder
	for _, r := range ordered {
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write final output %q: %w", path, err)
	}
	return nil
}

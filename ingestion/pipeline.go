package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/panjf2000/ants/v2"
)

// DefaultChunkSize bounds the number of records persisted together.
const DefaultChunkSize = 64

// Loader turns a partition key into raw records.
type Loader[T any] interface {
	Load(ctx context.Context, key core.PartitionKey) ([]T, error)
	// Describe names the source of key, e.g. a file path. It is the Source
	// of error events for that partition.
	Describe(key core.PartitionKey) string
}

// Stage transforms raw records and persists them chunk by chunk.
type Stage[T, U any] interface {
	// Transform is pure. Returning false drops the record.
	Transform(rec T) (U, bool)
	// Persist writes one non-empty chunk. A failed chunk persists nothing.
	Persist(ctx context.Context, key core.PartitionKey, batch []U) error
}

// FailurePolicy decides what a worker does after a failed partition.
type FailurePolicy int

const (
	// SkipPartition reports the failure and moves on to the next partition.
	SkipPartition FailurePolicy = iota
	// StopWorker reports the failure and stops the worker for the rest of
	// the run. Other workers keep draining the queue.
	StopWorker
)

func (p FailurePolicy) String() string {
	switch p {
	case SkipPartition:
		return "skip-partition"
	case StopWorker:
		return "stop-worker"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy is the inverse of FailurePolicy.String.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "skip-partition", "":
		return SkipPartition, nil
	case "stop-worker":
		return StopWorker, nil
	default:
		return SkipPartition, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Summary describes a finished run.
type Summary struct {
	Partitions int // keys passed to Run
	Skipped    int // already completed by an earlier run
	Completed  int
	Failed     int
	Unclaimed  int // left in the queue because workers stopped
	Chunks     int // chunks persisted
	Persisted  int // records persisted
	Dropped    int // records rejected by Transform
	Errors     int // error events reported
	Events     []ErrorEvent
}

// Pipeline runs a Loader and a Stage over partitions with a fixed number of
// workers.
type Pipeline[T, U any] struct {
	pipelineConfig
	loader Loader[T]
	stage  Stage[T, U]
}

// Option configures a Pipeline.
type Option func(*pipelineConfig) error

type pipelineConfig struct {
	workers     int
	chunkSize   int
	policy      FailurePolicy
	reporterCap int
	progress    io.Writer
	checkpoints storage.CheckpointRepository
	job         string
	logger      *slog.Logger
}

// WithWorkers sets the number of concurrent workers. Default is 4.
func WithWorkers(n int) Option {
	return func(c *pipelineConfig) error {
		if n < 1 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		c.workers = n
		return nil
	}
}

// WithChunkSize sets the maximum chunk size. Default is DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(c *pipelineConfig) error {
		if size < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		c.chunkSize = size
		return nil
	}
}

// WithFailurePolicy sets what a worker does after a failure. Default is
// SkipPartition.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(c *pipelineConfig) error {
		c.policy = policy
		return nil
	}
}

// WithReporterCapacity sets the error channel capacity.
func WithReporterCapacity(n int) Option {
	return func(c *pipelineConfig) error {
		if n < 1 {
			return fmt.Errorf("reporter capacity must be positive, got %d", n)
		}
		c.reporterCap = n
		return nil
	}
}

// WithProgress prints partition progress to w.
func WithProgress(w io.Writer) Option {
	return func(c *pipelineConfig) error {
		c.progress = w
		return nil
	}
}

// WithCheckpoints skips partitions a previous run of job completed and
// records each partition this run completes.
func WithCheckpoints(repo storage.CheckpointRepository, job string) Option {
	return func(c *pipelineConfig) error {
		if repo == nil {
			return fmt.Errorf("%w: checkpoint repository is nil", ErrCheckpoint)
		}
		if job == "" {
			return fmt.Errorf("%w: job name is empty", ErrCheckpoint)
		}
		c.checkpoints = repo
		c.job = job
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *pipelineConfig) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline from a loader and a stage.
func NewPipeline[T, U any](loader Loader[T], stage Stage[T, U], opts ...Option) (*Pipeline[T, U], error) {
	if loader == nil {
		return nil, ErrLoaderRequired
	}
	if stage == nil {
		return nil, ErrStageRequired
	}

	cfg := &pipelineConfig{
		workers:     4,
		chunkSize:   DefaultChunkSize,
		policy:      SkipPartition,
		reporterCap: DefaultReporterCapacity,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	cfg.logger = cfg.logger.With("component", "pipeline")
	return &Pipeline[T, U]{
		pipelineConfig: *cfg,
		loader:         loader,
		stage:          stage,
	}, nil
}

// runState is shared by the workers of one Run.
type runState struct {
	queue    *Queue
	reporter *Reporter
	progress *ProgressTracker

	completed atomic.Int64
	failed    atomic.Int64
	chunks    atomic.Int64
	persisted atomic.Int64
	dropped   atomic.Int64
}

// Run processes every key once and returns when all workers are done and
// the reporter has logged every event. Partition failures do not make Run
// fail; they are counted in the Summary. Run returns an error only if the
// run could not start.
func (p *Pipeline[T, U]) Run(ctx context.Context, keys []core.PartitionKey) (Summary, error) {
	summary := Summary{Partitions: len(keys)}

	pending, err := p.pending(ctx, keys)
	if err != nil {
		return summary, err
	}
	summary.Skipped = len(keys) - len(pending)
	if summary.Skipped > 0 {
		p.logger.Info("skipping completed partitions", "job", p.job, "count", summary.Skipped)
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return summary, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	st := &runState{
		queue:    NewQueue(pending),
		reporter: NewReporter(p.reporterCap, p.logger),
	}
	if p.progress != nil {
		st.progress = NewProgressTracker(p.progress, len(pending), 1, "partitions")
		st.progress.Start()
	}

	p.logger.Info("starting pipeline", "partitions", len(pending), "workers", p.workers,
		"chunkSize", p.chunkSize, "policy", p.policy)

	var wg sync.WaitGroup
	var submitErr error
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		id := i
		if err := pool.Submit(func() {
			defer wg.Done()
			p.worker(ctx, id, st)
		}); err != nil {
			wg.Done()
			submitErr = fmt.Errorf("failed to start worker %d: %w", id, err)
			break
		}
	}

	// Every worker has returned before the channel closes, so no Report
	// can race with Close.
	wg.Wait()
	st.reporter.Close()
	st.reporter.Wait()
	if st.progress != nil {
		st.progress.Finish()
	}

	summary.Completed = int(st.completed.Load())
	summary.Failed = int(st.failed.Load())
	summary.Unclaimed = st.queue.Len()
	summary.Chunks = int(st.chunks.Load())
	summary.Persisted = int(st.persisted.Load())
	summary.Dropped = int(st.dropped.Load())
	summary.Events = st.reporter.Events()
	summary.Errors = len(summary.Events)

	p.logger.Info("pipeline finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"unclaimed", summary.Unclaimed,
		"persisted", summary.Persisted,
		"dropped", summary.Dropped,
		"errors", summary.Errors)

	return summary, submitErr
}

// pending removes checkpointed keys.
func (p *Pipeline[T, U]) pending(ctx context.Context, keys []core.PartitionKey) ([]core.PartitionKey, error) {
	if p.checkpoints == nil {
		return keys, nil
	}
	done, err := p.checkpoints.Completed(ctx, p.job)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	pending := make([]core.PartitionKey, 0, len(keys))
	for _, k := range keys {
		if !done[k] {
			pending = append(pending, k)
		}
	}
	return pending, nil
}

// worker pops partitions until the queue is empty, or until the first
// failure under StopWorker.
func (p *Pipeline[T, U]) worker(ctx context.Context, id int, st *runState) {
	logger := p.logger.With("worker", id)
	for {
		key, ok := st.queue.Pop()
		if !ok {
			logger.Debug("queue empty, worker exiting")
			return
		}

		err := p.process(ctx, logger, key, st)
		if st.progress != nil {
			st.progress.Increment(1)
		}
		if err != nil {
			st.failed.Add(1)
			st.reporter.Report(ErrorEvent{Source: p.loader.Describe(key), Err: err})
			if p.policy == StopWorker {
				logger.Warn("worker stopping after failure", "partition", key.String())
				return
			}
			continue
		}

		st.completed.Add(1)
		if p.checkpoints != nil {
			if err := p.checkpoints.MarkComplete(ctx, p.job, key); err != nil {
				st.reporter.Report(ErrorEvent{
					Source: p.loader.Describe(key),
					Err:    fmt.Errorf("%w: %w", ErrCheckpoint, err),
				})
			}
		}
	}
}

// process runs load, transform and persist for one partition. It stops at
// the first failed chunk; chunks before it stay persisted.
func (p *Pipeline[T, U]) process(ctx context.Context, logger *slog.Logger, key core.PartitionKey, st *runState) error {
	records, err := p.loader.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPartitionLoad, err)
	}

	transformed := make([]U, 0, len(records))
	for _, rec := range records {
		if out, ok := p.stage.Transform(rec); ok {
			transformed = append(transformed, out)
		}
	}
	dropped := len(records) - len(transformed)
	st.dropped.Add(int64(dropped))

	for i, chunk := range Chunk(transformed, p.chunkSize) {
		if err := p.stage.Persist(ctx, key, chunk); err != nil {
			return fmt.Errorf("chunk %d of %s: %w", i, key, err)
		}
		st.chunks.Add(1)
		st.persisted.Add(int64(len(chunk)))
	}

	logger.Debug("partition done", "partition", key.String(), "records", len(records), "dropped", dropped)
	return nil
}

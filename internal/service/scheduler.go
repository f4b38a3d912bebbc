// Package service runs the resolution of a whole row set across a pool of
// workers and merges their results back into input order.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/UnknownOlympus/waypoint/internal/cache"
	"github.com/UnknownOlympus/waypoint/internal/metrics"
	"github.com/UnknownOlympus/waypoint/internal/models"
)

var (
	// ErrInvalidWorkers is returned when fewer than one worker is requested.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
	// ErrDuplicateKey is returned when two input rows share a key.
	ErrDuplicateKey = errors.New("duplicate row key")
)

// RowResolver resolves a single row. Implementations are used by one worker
// at a time.
type RowResolver interface {
	ResolveRow(ctx context.Context, row models.Row) models.Result
}

// RowResolverFunc adapts a function to RowResolver.
type RowResolverFunc func(ctx context.Context, row models.Row) models.Result

func (f RowResolverFunc) ResolveRow(ctx context.Context, row models.Row) models.Result {
	return f(ctx, row)
}

// ResolverFactory builds the resolver of one worker around the cache handle
// that worker owns.
type ResolverFactory func(c cache.Cache) RowResolver

// ChunkScheduler splits rows into balanced chunks and resolves every chunk on
// its own worker with its own cache handle.
type ChunkScheduler struct {
	log         *slog.Logger     // Logger for scheduler and worker activity
	opener      cache.Opener     // Opens one cache handle per worker
	newResolver ResolverFactory  // Builds the per-worker resolver
	metrics     *metrics.Metrics // Metrics for rows and workers
	onResult    func(models.Result)
}

// NewChunkScheduler creates a new instance of ChunkScheduler.
func NewChunkScheduler(
	log *slog.Logger,
	opener cache.Opener,
	newResolver ResolverFactory,
	metrics *metrics.Metrics,
) *ChunkScheduler {
	return &ChunkScheduler{
		log:         log,
		opener:      opener,
		newResolver: newResolver,
		metrics:     metrics,
	}
}

// OnResult registers fn to be called for every result a worker delivers. The
// calls are made from a single goroutine.
func (s *ChunkScheduler) OnResult(fn func(models.Result)) {
	s.onResult = fn
}

// Split partitions rows into n contiguous chunks whose sizes differ by at most
// one. The first len(rows)%n chunks get the extra row.
func Split(rows []models.Row, n int) [][]models.Row {
	if n < 1 {
		return nil
	}

	size, extra := len(rows)/n, len(rows)%n
	chunks := make([][]models.Row, 0, n)
	start := 0
	for i := range n {
		end := start + size
		if i < extra {
			end++
		}
		chunks = append(chunks, rows[start:end])
		start = end
	}

	return chunks
}

// ResolveAll resolves every row and returns exactly one result per row, in
// input order. Rows a worker never reported are returned without coordinates
// as worker_lost, or as cancelled when ctx ended first. Worker failures never
// fail the run.
func (s *ChunkScheduler) ResolveAll(ctx context.Context, rows []models.Row, workers int) ([]models.Result, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, workers)
	}
	if err := checkKeys(rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.Result{}, nil
	}

	chunks := Split(rows, min(workers, len(rows)))
	s.log.InfoContext(ctx, "Starting worker pool", "rows", len(rows), "num_workers", len(chunks))

	out := make(chan models.Result, len(chunks))
	var wgr sync.WaitGroup
	for i, chunk := range chunks {
		wgr.Add(1)
		go s.worker(ctx, i+1, &wgr, chunk, out)
	}
	go func() {
		wgr.Wait()
		close(out)
	}()

	merged := make(map[int]models.Result, len(rows))
	for result := range out {
		merged[result.Key] = result
		if s.onResult != nil {
			s.onResult(result)
		}
	}

	results := make([]models.Result, len(rows))
	lost := 0
	for i, row := range rows {
		result, ok := merged[row.Key]
		if !ok {
			outcome := models.OutcomeWorkerLost
			if ctx.Err() != nil {
				outcome = models.OutcomeCancelled
			}
			result = models.Unresolved(row.Key, outcome)
			lost++
		}
		s.metrics.RowsProcessed.WithLabelValues(string(result.Outcome)).Inc()
		results[i] = result
	}

	if lost > 0 {
		s.log.WarnContext(ctx, "Rows without a worker result", "rows", lost, "cancelled", ctx.Err() != nil)
	}
	s.log.InfoContext(ctx, "Processing batch finished", "rows", len(rows))

	return results, nil
}

// worker resolves its chunk sequentially with a cache handle it opens and
// closes itself. A panic ends the worker; its remaining rows are reported lost
// by the merge.
func (s *ChunkScheduler) worker(
	ctx context.Context,
	idx int,
	wg *sync.WaitGroup,
	chunk []models.Row,
	out chan<- models.Result,
) {
	defer wg.Done()

	s.metrics.ActiveWorkers.Inc()
	defer s.metrics.ActiveWorkers.Dec()

	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "Worker crashed", "worker", idx, "panic", r)
		}
	}()

	handle, err := s.opener(ctx)
	if err != nil {
		s.metrics.CacheErrors.WithLabelValues("open").Inc()
		s.log.ErrorContext(ctx, "Worker could not open cache", "worker", idx, "rows", len(chunk), "error", err)
		return
	}
	defer func() {
		if err = handle.Close(); err != nil {
			s.log.ErrorContext(ctx, "Failed to close cache", "worker", idx, "error", err)
		}
	}()

	resolver := s.newResolver(handle)
	s.log.DebugContext(ctx, "Worker started", "worker", idx, "rows", len(chunk))

	for _, row := range chunk {
		if ctx.Err() != nil {
			s.log.InfoContext(ctx, "Worker stopped", "worker", idx, "reason", ctx.Err())
			return
		}
		out <- resolver.ResolveRow(ctx, row)
	}

	s.log.DebugContext(ctx, "Worker finished", "worker", idx)
}

func checkKeys(rows []models.Row) error {
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.Key]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateKey, row.Key)
		}
		seen[row.Key] = struct{}{}
	}
	return nil
}

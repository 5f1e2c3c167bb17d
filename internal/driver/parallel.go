package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"modscan/internal/decl"
	"modscan/internal/pipeline"
	"modscan/internal/trace"
)

// ShardLoader decodes one shard into its records.
type ShardLoader interface {
	Load(path string) ([]*decl.Decl, error)
}

// Options configures MergeShards.
type Options struct {
	// Jobs is the number of workers; <= 0 uses GOMAXPROCS. 1 merges serially.
	Jobs int
	// Loader decodes shards. Required.
	Loader ShardLoader
	// Progress receives one event per merged shard. Optional.
	Progress pipeline.ProgressSink
	// Logger receives worker lifecycle logs. Optional.
	Logger *zap.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Table   decl.Table
	Shards  int
	Records int
	Workers int
	Timings pipeline.Timings
	Summary string
}

// errNoLoader is returned when Options.Loader is nil.
var errNoLoader = errors.New("driver: no shard loader configured")

// MergeShards folds every record of every shard into one table.
//
// Workers pop paths from a shared queue and merge into private tables, so
// no table is ever touched by two goroutines. Once the queue is drained the
// worker tables are combined in the order the workers finished. The first
// decode or consistency error cancels the remaining workers and is returned;
// no partial table is returned with it.
func MergeShards(ctx context.Context, paths []string, opts Options) (*Result, error) {
	if opts.Loader == nil {
		return nil, errNoLoader
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	jobs = max(1, min(jobs, len(paths)))

	m := &merger{
		loader:   opts.Loader,
		progress: opts.Progress,
		logger:   logger,
		tracer:   trace.FromContext(ctx),
		queue:    newShardQueue(paths),
	}

	span := trace.Begin(m.tracer, trace.ScopePhase, "merge", trace.RunSpan(ctx)).
		Count("shards", len(paths)).
		Count("jobs", jobs)
	m.parent = span.ID()

	var (
		table decl.Table
		err   error
	)
	if jobs == 1 {
		table, err = m.runSerial(ctx)
	} else {
		table, err = m.runParallel(ctx, jobs)
	}
	if err != nil {
		m.metrics.errors.Add(1)
		span.End("failed")
		return nil, err
	}
	span.End("")

	shards, records, err := m.metrics.counts()
	if err != nil {
		return nil, err
	}
	res := &Result{
		Table:   table,
		Shards:  shards,
		Records: records,
		Workers: jobs,
		Timings: m.timings,
		Summary: m.metrics.summary(table.Len(), jobs),
	}
	logger.Debug("merged shards", zap.String("summary", res.Summary))
	return res, nil
}

type merger struct {
	loader   ShardLoader
	progress pipeline.ProgressSink
	logger   *zap.Logger
	tracer   trace.Tracer
	queue    *shardQueue
	parent   uint64
	metrics  mergeMetrics

	timingsMu sync.Mutex
	timings   pipeline.Timings
}

// runSerial merges every shard directly into a single table, in path order.
func (m *merger) runSerial(ctx context.Context) (decl.Table, error) {
	table := decl.NewTable(0)
	var local pipeline.Timings
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok := m.queue.Pop()
		if !ok {
			break
		}
		if err := m.mergeShard(table, path, m.parent, &local); err != nil {
			return nil, err
		}
	}
	m.timings.Merge(local)
	return table, nil
}

func (m *merger) runParallel(ctx context.Context, jobs int) (decl.Table, error) {
	tables := make([]decl.Table, jobs)
	var finished atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < jobs; w++ {
		g.Go(func() error {
			local, err := m.work(gctx, w)
			if err != nil {
				return err
			}
			tables[finished.Add(1)-1] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return m.reduce(tables[:finished.Load()])
}

// work drains the queue into a table private to worker id.
func (m *merger) work(ctx context.Context, id int) (decl.Table, error) {
	span := trace.Begin(m.tracer, trace.ScopeWorker, "worker:"+strconv.Itoa(id), m.parent)
	defer span.End("")

	table := decl.NewTable(0)
	var local pipeline.Timings
	shards := 0
	for {
		if err := ctx.Err(); err != nil {
			m.logger.Debug("worker cancelled", zap.Int("worker", id), zap.Int("shards", shards))
			return nil, err
		}
		path, ok := m.queue.Pop()
		if !ok {
			break
		}
		if err := m.mergeShard(table, path, span.ID(), &local); err != nil {
			m.logger.Debug("worker failed", zap.Int("worker", id), zap.String("shard", path), zap.Error(err))
			return nil, err
		}
		shards++
	}

	m.timingsMu.Lock()
	m.timings.Merge(local)
	m.timingsMu.Unlock()

	m.logger.Debug("worker drained queue",
		zap.Int("worker", id),
		zap.Int("shards", shards),
		zap.Int("symbols", table.Len()))
	return table, nil
}

// mergeShard loads path and folds its records into table.
func (m *merger) mergeShard(table decl.Table, path string, parent uint64, timings *pipeline.Timings) error {
	span := trace.Begin(m.tracer, trace.ScopeShard, "shard", parent).Tag("path", path)

	start := time.Now()
	records, err := m.loader.Load(path)
	loaded := time.Now()
	timings.Add(pipeline.StageLoad, loaded.Sub(start))
	if err != nil {
		span.End("decode failed")
		m.emit(path, pipeline.StageLoad, pipeline.StatusError, err, loaded.Sub(start))
		return err
	}

	if err := table.MergeAll(records); err != nil {
		span.End("merge failed")
		m.emit(path, pipeline.StageMerge, pipeline.StatusError, err, time.Since(start))
		return fmt.Errorf("merge %s: %w", path, err)
	}
	timings.Add(pipeline.StageMerge, time.Since(loaded))

	m.metrics.shards.Add(1)
	m.metrics.records.Add(int64(len(records)))
	span.Count("records", len(records)).End("")
	m.emit(path, pipeline.StageMerge, pipeline.StatusDone, nil, time.Since(start))
	return nil
}

// reduce combines worker tables in completion order on the calling goroutine.
// The first table is taken over as-is: absorbing it into an empty table
// would insert every record unchanged.
func (m *merger) reduce(tables []decl.Table) (decl.Table, error) {
	span := trace.Begin(m.tracer, trace.ScopePhase, "reduce", m.parent).
		Count("tables", len(tables))
	start := time.Now()
	m.emit("", pipeline.StageReduce, pipeline.StatusWorking, nil, 0)

	if len(tables) == 0 {
		span.End("")
		return decl.NewTable(0), nil
	}
	global := tables[0]
	for i, t := range tables[1:] {
		if err := global.Absorb(t); err != nil {
			span.End("failed")
			m.emit("", pipeline.StageReduce, pipeline.StatusError, err, time.Since(start))
			return nil, fmt.Errorf("reduce worker table %d: %w", i+1, err)
		}
	}

	elapsed := time.Since(start)
	m.timings.Set(pipeline.StageReduce, elapsed)
	span.Count("symbols", global.Len()).End("")
	m.emit("", pipeline.StageReduce, pipeline.StatusDone, nil, elapsed)
	return global, nil
}

func (m *merger) emit(path string, stage pipeline.Stage, status pipeline.Status, err error, elapsed time.Duration) {
	pipeline.Emit(m.progress, pipeline.Event{
		File:      path,
		Stage:     stage,
		Status:    status,
		Err:       err,
		Elapsed:   elapsed,
		Remaining: m.queue.Remaining(),
		Total:     m.queue.Len(),
	})
}

// Package trace records the phases of a merge run as nested spans.
//
// A tracer is attached to the command context and picked up by the driver:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx = trace.WithRunSpan(ctx, run.ID())
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "reduce", trace.RunSpan(ctx))
//	defer span.Count("symbols", n).End("")
//
// Levels select how much is emitted:
//
//   - LevelOff: nothing
//   - LevelPhase: the run and its phases (discover, merge, reduce, report)
//   - LevelWorker: plus one span per worker
//   - LevelShard: plus one span per shard
//
// Events are written as text lines or, for paths ending in .ndjson, as
// newline-delimited JSON.
package trace

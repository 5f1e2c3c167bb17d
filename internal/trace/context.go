package trace

import "context"

type runKey struct{}

// run is what a merge command hands down to the driver: where events go
// and which span the phases hang under.
type run struct {
	tracer Tracer
	span   uint64
}

func runFrom(ctx context.Context) run {
	if ctx != nil {
		if r, ok := ctx.Value(runKey{}).(run); ok {
			return r
		}
	}
	return run{tracer: Nop}
}

// WithTracer returns ctx carrying t. A nil t disables tracing.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	r := runFrom(ctx)
	r.tracer = t
	return context.WithValue(ctx, runKey{}, r)
}

// FromContext returns the tracer carried by ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return runFrom(ctx).tracer
}

// WithRunSpan returns ctx with id as the parent of the merge phases.
func WithRunSpan(ctx context.Context, id uint64) context.Context {
	r := runFrom(ctx)
	r.span = id
	return context.WithValue(ctx, runKey{}, r)
}

// RunSpan returns the span set by WithRunSpan, or 0 for a root.
func RunSpan(ctx context.Context) uint64 {
	return runFrom(ctx).span
}

package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries the trace/request identifiers threaded through a single
// HTTP request so log lines and outbound calls can be correlated.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

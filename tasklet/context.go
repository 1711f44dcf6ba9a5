package tasklet

import "context"

type ctxKeyTasklet struct{}

// WithTasklet returns a context carrying t. Step passes such a context to
// every builtin it calls.
func WithTasklet(ctx context.Context, t *Tasklet) context.Context {
	return context.WithValue(ctx, ctxKeyTasklet{}, t)
}

// FromContext returns the tasklet executing the current builtin call, or nil.
func FromContext(ctx context.Context) *Tasklet {
	if v := ctx.Value(ctxKeyTasklet{}); v != nil {
		return v.(*Tasklet)
	}
	return nil
}

// NameFromContext returns the executing tasklet's name, or "".
func NameFromContext(ctx context.Context) string {
	if t := FromContext(ctx); t != nil {
		return t.name
	}
	return ""
}

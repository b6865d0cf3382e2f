package workflow

import "context"

// ServiceDispatcher resolves (service, action) pairs to concrete handlers
// and invokes them. The engine never references concrete services; the
// dispatcher owns that mapping. The context passed to Invoke carries the
// effective step deadline, so handlers must honor ctx cancellation.
//
// Retryable downstream conditions (throttling, connection resets, 5xx the
// service marks transient) must be reported as retryable, distinct from
// permanent failures such as unknown actions or input validation. The
// errors package's DispatchError covers both.
type ServiceDispatcher interface {
	Invoke(ctx context.Context, service, action string, input map[string]any) (map[string]any, error)
}

// DispatcherFunc adapts a function to the ServiceDispatcher interface.
type DispatcherFunc func(ctx context.Context, service, action string, input map[string]any) (map[string]any, error)

// Invoke implements ServiceDispatcher.
func (f DispatcherFunc) Invoke(ctx context.Context, service, action string, input map[string]any) (map[string]any, error) {
	return f(ctx, service, action, input)
}

type priorityKey struct{}

// WithPriority tags ctx with an execution priority hint. The engine treats
// it as opaque and forwards it to every dispatch of the execution.
func WithPriority(ctx context.Context, priority string) context.Context {
	if priority == "" {
		return ctx
	}
	return context.WithValue(ctx, priorityKey{}, priority)
}

// Priority returns the priority hint set on ctx, if any. Handlers can use
// it to shed or reorder work.
func Priority(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(priorityKey{}).(string)
	return p, ok && p != ""
}

package workflow

// FlagEvaluator gates workflow executions on feature flags. It is consulted
// at most once per execution, before the first step, and only when the
// workflow declares a featureFlag trigger. The evaluation context comes
// verbatim from the caller's execute options.
type FlagEvaluator interface {
	Enabled(key string, evalContext map[string]any) bool
}

// FlagFunc adapts a function to the FlagEvaluator interface.
type FlagFunc func(key string, evalContext map[string]any) bool

// Enabled implements FlagEvaluator.
func (f FlagFunc) Enabled(key string, evalContext map[string]any) bool {
	return f(key, evalContext)
}

// Package dypy treats behavior as data: dotted symbol paths resolve to
// live values across registered contexts and lazily loaded packages, code
// descriptors evaluate to callables, and the augment subpackage retrofits
// declaratively described classes with dynamic fields and swappable
// methods.
//
// The top-level functions are conveniences wired to the shared default
// registry; the resolve and eval subpackages expose the same operations
// with injectable state.
package dypy

import (
	"github.com/vahidzee/dypy/eval"
	"github.com/vahidzee/dypy/resolve"
)

// NoValue is the non-strict miss sentinel returned by value resolution.
var NoValue = resolve.NoValue

// IsNoValue reports whether v is the non-strict miss sentinel.
func IsNoValue(v any) bool { return resolve.IsNoValue(v) }

// RegisterContext publishes a named root in the shared default registry.
func RegisterContext(name string, value any) error {
	return resolve.RegisterContext(name, value)
}

// GetValue resolves a dotted symbol path against the shared default
// registry and the ambient package namespace.
func GetValue(name string, opts ...resolve.Option) (any, error) {
	merged := append([]resolve.Option{resolve.WithRegistry(resolve.DefaultRegistry)}, opts...)
	return resolve.Resolve(name, merged...)
}

// SetValue assigns to a dotted symbol path.
func SetValue(name string, value any, opts ...resolve.Option) error {
	merged := append([]resolve.Option{resolve.WithRegistry(resolve.DefaultRegistry)}, opts...)
	return resolve.Assign(name, value, merged...)
}

// EvalFunction processes a code descriptor into a callable, with the
// shared default registry contributing evaluation context.
func EvalFunction(descriptor any, opts ...eval.Option) (any, error) {
	merged := append([]eval.Option{eval.WithRegistry(resolve.DefaultRegistry)}, opts...)
	return eval.EvalFunction(descriptor, merged...)
}

// Eval reconciles value lookup with function evaluation: a string that
// names a reachable value yields that value, otherwise it is treated as a
// code descriptor.
func Eval(expression any, opts ...eval.Option) (any, error) {
	merged := append([]eval.Option{eval.WithRegistry(resolve.DefaultRegistry)}, opts...)
	return eval.Eval(expression, merged...)
}

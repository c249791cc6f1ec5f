package eval

import (
	"errors"
	"fmt"

	"github.com/vahidzee/dypy/resolve"
)

// errNotSymbolPath marks expressions that cannot be value lookups at all
// (anything that is not a string).
var errNotSymbolPath = errors.New("eval: expression is not a symbol path")

// Eval reconciles the two readings of an expression: a dotted value lookup
// and a function evaluation. Both are attempted independently; a successful
// value lookup wins, then a successful function evaluation. When both fail
// the outcome depends on strictness: a CompositeError carrying both causes,
// or nil.
//
// A bare name like "math.Sin" is ambiguous between "variable lookup" and
// "function text"; this entry point settles the ambiguity in favor of the
// value.
func Eval(expression any, opts ...Option) (any, error) {
	o := newOptions(opts)

	var value any
	valueErr := errNotSymbolPath
	if path, ok := expression.(string); ok {
		ropts := append([]resolve.Option{}, o.resolveOpts...)
		ropts = append(ropts, resolve.Strict(true))
		if o.registry != nil {
			ropts = append(ropts, resolve.WithRegistry(o.registry))
		}
		if o.context != nil {
			ropts = append(ropts, resolve.WithContext(o.context))
		}
		value, valueErr = resolve.Resolve(path, ropts...)
	}

	fnValue, fnErr := EvalFunction(expression, opts...)

	if valueErr == nil {
		if IsCallable(value) {
			return wrapCallable(value, nil, o)
		}
		return value, nil
	}
	if fnErr == nil {
		return fnValue, nil
	}
	if o.strict {
		return nil, &CompositeError{
			Expression:  fmt.Sprintf("%v", expression),
			ValueErr:    valueErr,
			FunctionErr: fnErr,
		}
	}
	return nil, nil
}

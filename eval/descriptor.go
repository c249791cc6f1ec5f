package eval

import (
	"fmt"
	"go/ast"
	"go/parser"
	"strings"

	"go.uber.org/zap"

	"github.com/vahidzee/dypy/internal/dylog"
	"github.com/vahidzee/dypy/resolve"
)

// DefaultSelector is the conventional name for the function of interest
// inside a code block, used by callers that adopt the convention rather
// than naming a selector explicitly.
const DefaultSelector = "function"

// Descriptor is the record form of a code descriptor: a code fragment plus
// an optional evaluation context and an optional selector naming the
// function of interest when the code is a block.
type Descriptor struct {
	Code     string
	Context  map[string]any
	Selector string
}

type options struct {
	selector    string
	context     map[string]any
	dynamicArgs bool
	strict      bool
	registry    *resolve.Registry
	resolveOpts []resolve.Option
	engine      *Engine
	logger      *zap.Logger
}

// Option configures an evaluation call.
type Option func(*options)

// WithSelector names the function of interest, overriding any selector the
// descriptor record itself carries.
func WithSelector(name string) Option {
	return func(o *options) { o.selector = name }
}

// WithContext supplies the outermost evaluation context layer.
func WithContext(context map[string]any) Option {
	return func(o *options) { o.context = context }
}

// WithDynamicArgs wraps resulting callables so surplus call arguments are
// dropped instead of failing.
func WithDynamicArgs() Option {
	return func(o *options) { o.dynamicArgs = true }
}

// Strict controls whether Eval surfaces a CompositeError when both the
// value lookup and the function evaluation fail. Default true.
func Strict(on bool) Option {
	return func(o *options) { o.strict = on }
}

// WithRegistry merges the registry's contexts into the evaluation context
// and lets the value-lookup side serve registered roots.
func WithRegistry(r *resolve.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithResolveOptions forwards options to the value-lookup side.
func WithResolveOptions(opts ...resolve.Option) Option {
	return func(o *options) { o.resolveOpts = append(o.resolveOpts, opts...) }
}

// WithEngine injects the text-execution engine.
func WithEngine(e *Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithLogger attaches a logger to the call.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{strict: true, logger: dylog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = dylog.Nop()
	}
	if o.engine == nil {
		o.engine = defaultEngine
	}
	return o
}

// EvalFunction processes a code descriptor into a callable value. Callables
// and non-descriptor values pass through unchanged (callables are wrapped as
// *Function for a uniform call surface). Text is evaluated as a single
// expression; text that is not an expression is executed as a code block
// from which the selected function is extracted.
func EvalFunction(descriptor any, opts ...Option) (any, error) {
	o := newOptions(opts)

	var rec *Descriptor
	switch d := descriptor.(type) {
	case nil:
		return nil, nil
	case string:
		rec = &Descriptor{Code: d}
	case Descriptor:
		rec = &d
	case *Descriptor:
		if d == nil {
			return nil, nil
		}
		rec = d
	case map[string]any:
		r, err := descriptorFromMap(d)
		if err != nil {
			return nil, err
		}
		rec = r
	default:
		if IsCallable(descriptor) {
			f, err := NewFunction(descriptor)
			if err != nil {
				return nil, err
			}
			if o.dynamicArgs {
				f = f.withDynamicArgs()
			}
			return f, nil
		}
		return descriptor, nil
	}

	merged := mergeContexts(o.registry, rec.Context, o.context)

	value, err := evalExpressionDescriptor(rec.Code, merged, o)
	if err == nil {
		return value, nil
	}
	if !isSyntaxError(err) {
		return nil, err
	}

	// Not a single expression: treat as a code block.
	selector := o.selector
	if selector == "" {
		selector = rec.Selector
	}
	if selector == "" {
		return nil, &SelectorError{}
	}
	defs, params, err := o.engine.execBlock(rec.Code, merged)
	if err != nil {
		return nil, err
	}
	fnVal, ok := defs[selector]
	if !ok {
		return nil, &SelectorError{Selector: selector, Defined: definedNames(defs)}
	}
	f, err := NewFunction(fnVal)
	if err != nil {
		return nil, &SelectorError{Selector: selector, Defined: definedNames(defs)}
	}
	f.name = selector
	f.params = params[selector]
	if f.params == nil {
		f.params = []string{}
	}
	if o.dynamicArgs {
		f = f.withDynamicArgs()
	}
	o.logger.Debug("evaluated code block descriptor", zap.String("selector", selector))
	return f, nil
}

// descriptorFromMap decodes the loosely typed record form.
func descriptorFromMap(m map[string]any) (*Descriptor, error) {
	rawCode, ok := m["code"]
	if !ok {
		return nil, fmt.Errorf("eval: descriptor record missing \"code\"")
	}
	code, ok := rawCode.(string)
	if !ok {
		return nil, fmt.Errorf("eval: descriptor \"code\" must be a string, got %T", rawCode)
	}
	rec := &Descriptor{Code: code}
	if sel, ok := m["selector"].(string); ok {
		rec.Selector = sel
	}
	if ctx, ok := m["context"].(map[string]any); ok {
		rec.Context = ctx
	}
	return rec, nil
}

// mergeContexts builds the evaluation context: an empty base, the registry,
// the record's own context, then the call context. Later layers override
// earlier keys.
func mergeContexts(registry *resolve.Registry, layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	if registry != nil {
		for k, v := range registry.Snapshot() {
			merged[k] = v
		}
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// evalExpressionDescriptor evaluates code as a single expression. Dotted
// name references rooted in the merged context are served by the resolver;
// everything else runs through the engine.
func evalExpressionDescriptor(code string, merged map[string]any, o options) (any, error) {
	code = strings.TrimSpace(code)
	expr, perr := parser.ParseExpr(code)
	if perr != nil {
		return nil, &syntaxError{err: perr}
	}
	if root, ok := dottedRoot(expr); ok {
		if _, present := merged[root]; present {
			ropts := append([]resolve.Option{}, o.resolveOpts...)
			ropts = append(ropts, resolve.WithContext(merged), resolve.Strict(true))
			if v, err := resolve.Resolve(code, ropts...); err == nil {
				return wrapCallable(v, nil, o)
			}
		}
	}
	v, err := o.engine.EvalExpression(code, merged)
	if err != nil {
		return nil, err
	}
	var params []string
	if lit, ok := expr.(*ast.FuncLit); ok {
		params = paramNames(lit.Type)
	}
	return wrapCallable(v, params, o)
}

// wrapCallable wraps callable results as *Function, carrying parameter
// names when known; non-callables pass through.
func wrapCallable(v any, params []string, o options) (any, error) {
	if !IsCallable(v) {
		return v, nil
	}
	f, err := NewFunction(v)
	if err != nil {
		return nil, err
	}
	if params != nil && f.params == nil {
		clone := *f
		clone.params = params
		f = &clone
	}
	if o.dynamicArgs {
		f = f.withDynamicArgs()
	}
	return f, nil
}

// dottedRoot reports the first identifier of a pure dotted reference
// (ident, or a selector chain of idents).
func dottedRoot(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name, true
	case *ast.SelectorExpr:
		return dottedRoot(e.X)
	}
	return "", false
}

func definedNames(defs map[string]any) []string {
	out := make([]string, 0, len(defs))
	for name := range defs {
		out = append(out, name)
	}
	return out
}

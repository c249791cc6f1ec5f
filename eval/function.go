package eval

import (
	"fmt"
	"reflect"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Function wraps a callable value. When the callable was produced from
// source text its parameter names are known, enabling keyword-style calls;
// opaque Go funcs can only be called positionally.
type Function struct {
	name    string
	fn      reflect.Value
	params  []string // nil when unknown
	dynamic bool
}

// NewFunction wraps v, which must be callable. A *Function passes through
// unchanged.
func NewFunction(v any) (*Function, error) {
	if f, ok := v.(*Function); ok {
		return f, nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("eval: not callable: %T", v)
	}
	return &Function{fn: rv}, nil
}

// IsCallable reports whether v can be wrapped by NewFunction.
func IsCallable(v any) bool {
	if _, ok := v.(*Function); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Func && !rv.IsNil()
}

// DynamicArgs wraps v so that call-time arguments the callable does not
// declare are silently dropped: unknown keyword arguments when parameter
// names are known, surplus positional arguments otherwise.
func DynamicArgs(v any) (*Function, error) {
	f, err := NewFunction(v)
	if err != nil {
		return nil, err
	}
	return f.withDynamicArgs(), nil
}

func (f *Function) withDynamicArgs() *Function {
	if f.dynamic {
		return f
	}
	clone := *f
	clone.dynamic = true
	return &clone
}

// Name returns the function's name when known.
func (f *Function) Name() string { return f.name }

// Params returns the declared parameter names, or nil when unknown.
func (f *Function) Params() []string {
	if f.params == nil {
		return nil
	}
	return append([]string(nil), f.params...)
}

// Interface returns the underlying callable.
func (f *Function) Interface() any { return f.fn.Interface() }

// Call invokes the function with positional arguments. A trailing error
// return is unwrapped; a single remaining result is returned bare.
func (f *Function) Call(args ...any) (any, error) {
	t := f.fn.Type()
	n := t.NumIn()
	if t.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("eval: %s expects at least %d arguments, got %d", f.describe(), n-1, len(args))
		}
	} else {
		if len(args) > n {
			if !f.dynamic {
				return nil, fmt.Errorf("eval: %s expects %d arguments, got %d", f.describe(), n, len(args))
			}
			args = args[:n]
		}
		if len(args) < n {
			return nil, fmt.Errorf("eval: %s expects %d arguments, got %d", f.describe(), n, len(args))
		}
	}
	in := make([]reflect.Value, len(args))
	for idx, arg := range args {
		var pt reflect.Type
		if t.IsVariadic() && idx >= n-1 {
			pt = t.In(n - 1).Elem()
		} else {
			pt = t.In(idx)
		}
		cv, err := coerceArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("eval: %s argument %d: %w", f.describe(), idx, err)
		}
		in[idx] = cv
	}
	return collapse(f.fn.Call(in))
}

// CallKwargs invokes the function with keyword arguments mapped onto its
// declared parameters. Unknown keys fail unless the function is
// dynamic-args wrapped, in which case they are dropped.
func (f *Function) CallKwargs(kwargs map[string]any) (any, error) {
	if f.params == nil {
		return nil, fmt.Errorf("eval: %s: parameter names unknown; call positionally", f.describe())
	}
	if !f.dynamic {
		for key := range kwargs {
			if !containsName(f.params, key) {
				return nil, fmt.Errorf("eval: %s: unexpected argument %q", f.describe(), key)
			}
		}
	}
	args := make([]any, 0, len(f.params))
	for _, p := range f.params {
		v, ok := kwargs[p]
		if !ok {
			return nil, fmt.Errorf("eval: %s: missing argument %q", f.describe(), p)
		}
		args = append(args, v)
	}
	return f.Call(args...)
}

func (f *Function) describe() string {
	if f.name != "" {
		return "function " + f.name
	}
	return "function"
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// coerceArg adapts a call argument to the parameter type.
func coerceArg(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, t)
}

// collapse maps reflect call results onto (value, error).
func collapse(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type().Implements(errType) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	vals := make([]any, len(out))
	for i, v := range out {
		vals[i] = v.Interface()
	}
	return vals, nil
}

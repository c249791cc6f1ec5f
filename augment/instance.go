package augment

import (
	"fmt"
	"sort"

	"github.com/vahidzee/dypy/eval"
)

// Instance is one constructed value of an augmented class. Field values and
// method overrides live on the instance; everything else is delegated to
// the class schema.
type Instance struct {
	class     *Class
	fields    map[string]any
	overrides map[string]*eval.Function
}

// Class returns the instance's class.
func (in *Instance) Class() *Class { return in.class }

// Get returns a dynamic field's value.
func (in *Instance) Get(name string) (any, error) {
	v, ok := in.fields[name]
	if !ok {
		return nil, &ConfigError{Class: in.class.name, Member: name, Reason: "not a dynamic field"}
	}
	return v, nil
}

// GetOr returns a dynamic field's value, or fallback when the field does
// not exist.
func (in *Instance) GetOr(name string, fallback any) any {
	if v, ok := in.fields[name]; ok {
		return v
	}
	return fallback
}

// Set assigns a dynamic field. Composite fields honor their declaration
// semantics: a string rebuilds or re-merges from the named source, nil
// clears a nullable field, anything else binds directly.
func (in *Instance) Set(name string, value any) error {
	fields, _, owner := in.class.effectiveFields()
	if rf, ok := fields[name]; ok && owner != nil && rf.spec.Composite != nil {
		return owner.applyOverrides(in, fields, map[string]any{name: value})
	}
	if _, ok := in.fields[name]; !ok {
		if _, declared := fields[name]; !declared {
			return &ConfigError{Class: in.class.name, Member: name, Reason: "not a dynamic field"}
		}
	}
	in.fields[name] = value
	return nil
}

// Fields returns a copy of the instance's field values.
func (in *Instance) Fields() map[string]any {
	out := make(map[string]any, len(in.fields))
	for k, v := range in.fields {
		out[k] = v
	}
	return out
}

// Implement swaps a replaceable method's body on this instance. The
// descriptor is anything EvalFunction accepts: source text, a descriptor
// record, or a callable.
func (in *Instance) Implement(name string, descriptor any, opts ...eval.Option) error {
	methods, _, owner := in.class.effectiveMethods()
	if _, ok := methods[name]; !ok {
		return &ConfigError{Class: in.class.name, Member: name, Reason: "not a replaceable method"}
	}
	var evalOpts []eval.Option
	if owner != nil {
		evalOpts = append(evalOpts, owner.methodOpts.evalOpts...)
	}
	evalOpts = append(evalOpts, opts...)
	v, err := eval.EvalFunction(descriptor, evalOpts...)
	if err != nil {
		return &ConfigError{Class: in.class.name, Member: name, Reason: "method descriptor", Err: err}
	}
	if v == nil {
		delete(in.overrides, name)
		return nil
	}
	f, err := eval.NewFunction(v)
	if err != nil {
		return &ConfigError{Class: in.class.name, Member: name, Reason: "method descriptor", Err: err}
	}
	in.overrides[name] = f
	return nil
}

// ImplementMethods swaps several method bodies, deterministic order.
func (in *Instance) ImplementMethods(descriptors map[string]any, opts ...eval.Option) error {
	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := in.Implement(name, descriptors[name], opts...); err != nil {
			return err
		}
	}
	return nil
}

// Overridden reports whether the named method carries an instance override.
func (in *Instance) Overridden(name string) bool {
	_, ok := in.overrides[name]
	return ok
}

// Call invokes a method: the instance's override when present, otherwise
// the most-derived declared body. The instance is passed as the first
// argument.
func (in *Instance) Call(name string, args ...any) (any, error) {
	full := append([]any{in}, args...)
	if f, ok := in.overrides[name]; ok {
		return f.Call(full...)
	}
	m, ok := in.class.lookupMethod(name)
	if !ok {
		return nil, &ConfigError{Class: in.class.name, Member: name, Reason: "no such method"}
	}
	if m.Impl == nil {
		return nil, fmt.Errorf("augment: %s.%s has no body; supply one through the constructor or Implement", in.class.name, name)
	}
	f, err := eval.NewFunction(m.Impl)
	if err != nil {
		return nil, &ConfigError{Class: in.class.name, Member: name, Reason: "default body", Err: err}
	}
	return f.Call(full...)
}

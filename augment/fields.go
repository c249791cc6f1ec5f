package augment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/vahidzee/dypy/eval"
	"github.com/vahidzee/dypy/internal/dylog"
	"github.com/vahidzee/dypy/resolve"
)

const (
	// DefaultMarker prefixes declarations harvested as dynamic fields, and
	// the constructor keywords of non-blended replaceable methods.
	DefaultMarker = "dy_"
	// TypeSuffix names the auxiliary field carrying a composite's resolved
	// source name.
	TypeSuffix = "_type"
	// ArgsSuffix names the auxiliary field carrying a composite's
	// constructor arguments.
	ArgsSuffix = "_args"
)

// FieldSpec describes one dynamic field: its default-producing spec plus
// resolution behavior. Construct with Field or CompositeOf so defaults
// (Strict in particular) are set.
type FieldSpec struct {
	Default       any
	Eval          bool
	PreferModules bool
	Strict        bool
	Nullable      bool
	Annotation    reflect.Type
	Composite     *Composite
	Context       any
}

// Composite describes a field whose default is a lazily built sub-object: a
// symbol path naming a constructible source plus constructor arguments.
type Composite struct {
	Source string
	Args   map[string]any
}

// FieldOption adjusts a field spec.
type FieldOption func(*FieldSpec)

// Evaluated resolves the field's default as a symbol path instead of using
// it literally.
func Evaluated() FieldOption {
	return func(f *FieldSpec) { f.Eval = true }
}

// FieldPreferModules forwards the prefer-modules tie-break to resolution.
func FieldPreferModules() FieldOption {
	return func(f *FieldSpec) { f.PreferModules = true }
}

// Lenient resolves the field's default non-strictly.
func Lenient() FieldOption {
	return func(f *FieldSpec) { f.Strict = false }
}

// Nullable allows the field to be explicitly set to an absent value.
func Nullable() FieldOption {
	return func(f *FieldSpec) { f.Nullable = true }
}

// Annotated records the field's nominal type instead of inferring it.
func Annotated(t reflect.Type) FieldOption {
	return func(f *FieldSpec) { f.Annotation = t }
}

// FieldContext roots the field's default resolution at a specific context.
func FieldContext(ctx any) FieldOption {
	return func(f *FieldSpec) { f.Context = ctx }
}

// Field builds a dynamic field spec with the given default.
func Field(defaultValue any, opts ...FieldOption) FieldSpec {
	f := FieldSpec{Default: defaultValue, Strict: true}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// CompositeOf builds a composite field spec: source names a constructible
// value (a *Class, or a function taking the argument map) resolved lazily,
// args are its constructor arguments.
func CompositeOf(source string, args map[string]any, opts ...FieldOption) FieldSpec {
	f := FieldSpec{Strict: true, Eval: true, Composite: &Composite{Source: source, Args: cloneArgs(args)}}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// resolvedField is one merged capability-table entry: the field's inferred
// annotation, its resolved default, and the spec it came from.
type resolvedField struct {
	name       string
	annotation reflect.Type
	value      any
	spec       FieldSpec
	aux        bool
	eo         engineOptions
}

// engineOptions configure the Fields and Methods decorators.
type engineOptions struct {
	marker      string
	strict      bool
	blend       bool
	context     any
	resolveOpts []resolve.Option
	evalOpts    []eval.Option
	logger      *zap.Logger
}

// EngineOption configures an augmentation engine invocation.
type EngineOption func(*engineOptions)

// Marker overrides the declaration marker prefix.
func Marker(prefix string) EngineOption {
	return func(o *engineOptions) {
		if prefix != "" {
			o.marker = prefix
		}
	}
}

// Strict controls inheritance strictness: strict augmentation demands that
// every subclass be re-augmented before its first instantiation. Default
// true.
func Strict(on bool) EngineOption {
	return func(o *engineOptions) { o.strict = on }
}

// Blend sets the method engine's default for bare-name constructor
// exposure. Default true.
func Blend(on bool) EngineOption {
	return func(o *engineOptions) { o.blend = on }
}

// WithContext sets the defining-scope context field defaults resolve
// against when their specs carry none.
func WithContext(ctx any) EngineOption {
	return func(o *engineOptions) { o.context = ctx }
}

// WithResolveOptions forwards options to default resolution.
func WithResolveOptions(opts ...resolve.Option) EngineOption {
	return func(o *engineOptions) { o.resolveOpts = append(o.resolveOpts, opts...) }
}

// WithEvalOptions forwards options to method-descriptor evaluation.
func WithEvalOptions(opts ...eval.Option) EngineOption {
	return func(o *engineOptions) { o.evalOpts = append(o.evalOpts, opts...) }
}

// WithEngineLogger attaches a logger to the engine invocation.
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

func newEngineOptions(opts []EngineOption) engineOptions {
	o := engineOptions{
		marker: DefaultMarker,
		strict: true,
		blend:  true,
		logger: dylog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = dylog.Nop()
	}
	return o
}

// Fields augments a class with dynamic fields: marker-prefixed declarations
// are harvested into the class's capability table (merged with every
// augmented ancestor's, more derived declarations winning), their defaults
// resolved once, the raw declarations removed, and the constructor extended
// with one keyword-only parameter per logical field.
func Fields(c *Class, opts ...EngineOption) (*Class, error) {
	eo := newEngineOptions(opts)

	merged := make(map[string]resolvedField)
	var order []string
	for _, ancestor := range c.chain() {
		if ancestor == c || ancestor.fieldTable == nil {
			continue
		}
		for _, name := range ancestor.fieldOrder {
			if _, ok := merged[name]; !ok {
				order = append(order, name)
			}
			merged[name] = ancestor.fieldTable[name]
		}
	}

	var harvested []string
	for _, declName := range c.declOrder {
		if !strings.HasPrefix(declName, eo.marker) {
			continue
		}
		raw, ok := c.decls[declName]
		if !ok {
			continue
		}
		logical := strings.TrimPrefix(declName, eo.marker)
		if raw == nil {
			return nil, &ConfigError{Class: c.name, Member: declName, Reason: "marked field must carry a default"}
		}
		spec := asFieldSpec(raw)
		if spec.Context == nil {
			spec.Context = eo.context
		}
		if spec.Annotation == nil {
			spec.Annotation = c.annotations[declName]
		}
		entries, err := resolveFieldDecl(c, logical, spec, eo)
		if err != nil {
			return nil, err
		}
		for _, rf := range entries {
			if _, ok := merged[rf.name]; !ok {
				order = append(order, rf.name)
			}
			merged[rf.name] = rf
		}
		harvested = append(harvested, declName)
	}
	for _, declName := range harvested {
		delete(c.decls, declName)
		delete(c.annotations, declName)
		c.declOrder = removeString(c.declOrder, declName)
	}

	c.fieldTable = merged
	c.fieldOrder = order
	c.fieldOpts = eo
	c.marker = eo.marker

	for _, name := range order {
		rf := merged[name]
		if paramIndex(c.params, name) >= 0 {
			continue
		}
		c.params = append(c.params, Parameter{
			Name:       name,
			Kind:       KeywordOnly,
			Type:       typeName(rf.annotation),
			Default:    rf.value,
			HasDefault: true,
		})
	}

	if eo.strict {
		c.required = append(c.required, requirement{origin: c, capability: capFields})
	}
	eo.logger.Debug("augmented fields",
		zap.String("class", c.name),
		zap.Int("own", len(harvested)),
		zap.Int("merged", len(order)))
	return c, nil
}

// asFieldSpec accepts either an explicit FieldSpec declaration or a bare
// literal default.
func asFieldSpec(raw any) FieldSpec {
	switch s := raw.(type) {
	case FieldSpec:
		return s
	case *FieldSpec:
		return *s
	}
	return FieldSpec{Default: raw, Strict: true}
}

// resolveFieldDecl resolves one harvested declaration into its capability
// table entries: a single entry for plain fields, three for composites (the
// built sub-object plus the _type and _args auxiliaries).
func resolveFieldDecl(c *Class, logical string, spec FieldSpec, eo engineOptions) ([]resolvedField, error) {
	if spec.Composite != nil {
		if spec.Annotation != nil {
			return nil, &ConfigError{Class: c.name, Member: logical, Reason: "composite fields infer their type; drop the annotation"}
		}
		source := spec.Composite.Source
		args := cloneArgs(spec.Composite.Args)
		var value any
		if source == "" {
			if !spec.Nullable {
				return nil, &ConfigError{Class: c.name, Member: logical, Reason: "composite field requires a source name"}
			}
		} else {
			built, err := buildComposite(source, args, spec, eo)
			if err != nil {
				return nil, &ConfigError{Class: c.name, Member: logical, Reason: "composite default", Err: err}
			}
			value = built
		}
		return []resolvedField{
			{name: logical, annotation: reflect.TypeOf(value), value: value, spec: spec, eo: eo},
			{name: logical + TypeSuffix, annotation: reflect.TypeOf(""), value: source, spec: spec, aux: true, eo: eo},
			{name: logical + ArgsSuffix, annotation: reflect.TypeOf(map[string]any{}), value: args, spec: spec, aux: true, eo: eo},
		}, nil
	}

	if !spec.Eval {
		annotation := spec.Annotation
		if annotation == nil {
			annotation = reflect.TypeOf(spec.Default)
		}
		return []resolvedField{{name: logical, annotation: annotation, value: spec.Default, spec: spec, eo: eo}}, nil
	}

	path, ok := spec.Default.(string)
	if !ok {
		return nil, &ConfigError{Class: c.name, Member: logical, Reason: fmt.Sprintf("evaluated field default must be a symbol path string, got %T", spec.Default)}
	}
	value, err := resolveSpecValue(path, spec, eo)
	if err != nil {
		var le *resolve.LoadError
		if errors.As(err, &le) && !spec.Strict {
			// Nothing loadable behind a lenient field's path: keep the
			// literal text. Strict fields fail the decoration instead so a
			// typo never ships as a string default.
			annotation := spec.Annotation
			if annotation == nil {
				annotation = reflect.TypeOf(spec.Default)
			}
			return []resolvedField{{name: logical, annotation: annotation, value: spec.Default, spec: spec, eo: eo}}, nil
		}
		return nil, &ConfigError{Class: c.name, Member: logical, Reason: "default resolution", Err: err}
	}
	annotation := spec.Annotation
	if annotation == nil {
		annotation = reflect.TypeOf(value)
	}
	return []resolvedField{{name: logical, annotation: annotation, value: value, spec: spec, eo: eo}}, nil
}

// resolveSpecValue resolves a symbol path with the spec's behavior flags.
func resolveSpecValue(path string, spec FieldSpec, eo engineOptions) (any, error) {
	opts := append([]resolve.Option{}, eo.resolveOpts...)
	opts = append(opts, resolve.Strict(spec.Strict))
	if spec.PreferModules {
		opts = append(opts, resolve.PreferModules(true))
	}
	if spec.Context != nil {
		opts = append(opts, resolve.WithContext(spec.Context))
	}
	return resolve.Resolve(path, opts...)
}

// buildComposite resolves a composite source and constructs the sub-object
// from the argument map.
func buildComposite(source string, args map[string]any, spec FieldSpec, eo engineOptions) (any, error) {
	target, err := resolveSpecValue(source, spec, eo)
	if err != nil {
		return nil, err
	}
	return construct(source, target, args)
}

// construct instantiates a resolved composite source: an augmented class
// via its constructor, or any function taking the argument map.
func construct(source string, target any, args map[string]any) (any, error) {
	switch t := target.(type) {
	case *Class:
		return t.New(args)
	case *eval.Function:
		if t.Params() != nil {
			return t.CallKwargs(args)
		}
		return t.Call(args)
	}
	if eval.IsCallable(target) {
		f, err := eval.NewFunction(target)
		if err != nil {
			return nil, err
		}
		return f.Call(args)
	}
	return nil, fmt.Errorf("composite source %q resolved to %T, which is not constructible", source, target)
}

// applyOverrides re-applies explicitly supplied field values onto the
// instance. Composite fields rebuild or merge: an override matching the
// declared source merges its arguments into the declared ones, a different
// source rebuilds from scratch, an absent source is only legal on nullable
// fields.
func (c *Class) applyOverrides(inst *Instance, fields map[string]resolvedField, overrides map[string]any) error {
	composites := make(map[string]bool)
	for name, value := range overrides {
		rf, ok := fields[name]
		switch {
		case ok && rf.spec.Composite != nil && !rf.aux:
			composites[name] = true
		case strings.HasSuffix(name, ArgsSuffix) && isCompositeBase(fields, strings.TrimSuffix(name, ArgsSuffix)):
			composites[strings.TrimSuffix(name, ArgsSuffix)] = true
		case strings.HasSuffix(name, TypeSuffix) && isCompositeBase(fields, strings.TrimSuffix(name, TypeSuffix)):
			composites[strings.TrimSuffix(name, TypeSuffix)] = true
		default:
			inst.fields[name] = value
		}
	}

	for name := range composites {
		rf := fields[name]
		declared := rf.spec.Composite
		source := declared.Source
		if v, ok := overrides[name+TypeSuffix]; ok {
			switch s := v.(type) {
			case nil:
				source = ""
			case string:
				source = s
			default:
				return &ConfigError{Class: c.name, Member: name + TypeSuffix, Reason: fmt.Sprintf("composite source must be a string, got %T", v)}
			}
		}
		// The bare name wins over the type auxiliary when both are given.
		if v, ok := overrides[name]; ok {
			switch s := v.(type) {
			case nil:
				source = ""
			case string:
				source = s
			default:
				// A pre-built value: bind it directly.
				inst.fields[name] = v
				continue
			}
		}
		suppliedArgs := declared.Args
		if v, ok := overrides[name+ArgsSuffix]; ok {
			m, ok := v.(map[string]any)
			if !ok {
				return &ConfigError{Class: c.name, Member: name + ArgsSuffix, Reason: fmt.Sprintf("composite arguments must be a map, got %T", v)}
			}
			suppliedArgs = m
		}
		if source == "" {
			if !rf.spec.Nullable {
				return &ConfigError{Class: c.name, Member: name, Reason: "composite field is not nullable; a source name is required"}
			}
			inst.fields[name] = nil
			inst.fields[name+TypeSuffix] = ""
			inst.fields[name+ArgsSuffix] = map[string]any{}
			continue
		}
		effective := make(map[string]any)
		if source == declared.Source {
			for k, v := range declared.Args {
				effective[k] = v
			}
			for k, v := range suppliedArgs {
				effective[k] = v
			}
		} else {
			effective = cloneArgs(suppliedArgs)
		}
		built, err := buildComposite(source, effective, rf.spec, rf.eo)
		if err != nil {
			return &ConfigError{Class: c.name, Member: name, Reason: "composite rebuild", Err: err}
		}
		inst.fields[name] = built
		inst.fields[name+TypeSuffix] = source
		inst.fields[name+ArgsSuffix] = effective
	}
	return nil
}

func isCompositeBase(fields map[string]resolvedField, name string) bool {
	rf, ok := fields[name]
	return ok && rf.spec.Composite != nil && !rf.aux
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Package augment retrofits declaratively described classes with
// lazily resolved fields and swappable methods. Instead of rewriting a live
// type, augmentation operates on an explicit schema object: a Class owns
// declarations, capability tables, and an introspectable constructor
// signature, and instances delegate to it. Ancestry is an explicit
// most-base-first chain; merged tables are computed once, when the engine
// decorators run.
package augment

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/vahidzee/dypy/eval"
	"github.com/vahidzee/dypy/internal/dylog"
)

// InitFunc is a class's original constructor body. It runs between the
// default-assignment pass and the override re-application pass, receiving
// the keyword arguments left over after fields and methods consumed theirs.
type InitFunc func(self *Instance, kwargs map[string]any) error

// ParamKind classifies constructor parameters.
type ParamKind int

const (
	// PositionalOrKeyword parameters come from the class's own init.
	PositionalOrKeyword ParamKind = iota
	// KeywordOnly parameters are added by the augmentation engines.
	KeywordOnly
)

// Parameter is one entry of a class's introspectable constructor signature.
type Parameter struct {
	Name       string
	Kind       ParamKind
	Type       string
	Default    any
	HasDefault bool
}

// Class is a schema-owning type: declarations, an optional init hook, an
// ancestry link, and the capability tables the engines compute.
type Class struct {
	name        string
	parent      *Class
	init        InitFunc
	decls       map[string]any
	declOrder   []string
	annotations map[string]reflect.Type
	methodDecls []MethodSpec
	params      []Parameter

	marker     string
	fieldTable map[string]resolvedField
	fieldOrder []string
	fieldOpts  engineOptions

	methodTable map[string]MethodSpec
	blendedSet  map[string]bool
	methodOpts  engineOptions

	required []requirement
	logger   *zap.Logger
}

// ClassOption configures a class under construction.
type ClassOption func(*Class)

// WithInit sets the class's original constructor body.
func WithInit(fn InitFunc) ClassOption {
	return func(c *Class) { c.init = fn }
}

// Declare attaches a named member to the class. Marker-prefixed names are
// harvested as dynamic field declarations by the field engine.
func Declare(name string, value any) ClassOption {
	return func(c *Class) {
		if _, ok := c.decls[name]; !ok {
			c.declOrder = append(c.declOrder, name)
		}
		c.decls[name] = value
	}
}

// Annotate records a nominal type for a declared member.
func Annotate(name string, t reflect.Type) ClassOption {
	return func(c *Class) { c.annotations[name] = t }
}

// DeclareMethod attaches a method declaration to the class.
func DeclareMethod(spec MethodSpec) ClassOption {
	return func(c *Class) { c.methodDecls = append(c.methodDecls, spec) }
}

// WithParam declares a constructor parameter consumed by the init hook,
// making it visible to signature introspection and collision checks.
func WithParam(p Parameter) ClassOption {
	return func(c *Class) { c.params = append(c.params, p) }
}

// WithClassLogger attaches a logger to the class.
func WithClassLogger(l *zap.Logger) ClassOption {
	return func(c *Class) { c.logger = l }
}

// NewClass builds a root class.
func NewClass(name string, opts ...ClassOption) *Class {
	c := &Class{
		name:        name,
		decls:       make(map[string]any),
		annotations: make(map[string]reflect.Type),
		logger:      dylog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = dylog.Nop()
	}
	return c
}

// Extend derives a subclass. The child inherits behavior through the
// ancestry chain; it carries no capability tables of its own until the
// engines are applied to it.
func (c *Class) Extend(name string, opts ...ClassOption) *Class {
	child := NewClass(name, append([]ClassOption{WithClassLogger(c.logger)}, opts...)...)
	child.parent = c
	// Init parameters follow the init hook down the chain; engine-added
	// keyword-only parameters are recomputed when the child is augmented.
	for _, p := range c.params {
		if p.Kind == PositionalOrKeyword && paramIndex(child.params, p.Name) < 0 {
			child.params = append(child.params, p)
		}
	}
	return child
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Parent returns the direct ancestor, or nil for a root class.
func (c *Class) Parent() *Class { return c.parent }

// Signature returns the introspectable constructor signature: the class's
// own parameters followed by the keyword-only parameters the engines added.
func (c *Class) Signature() []Parameter {
	return append([]Parameter(nil), c.params...)
}

// FieldNames returns the merged logical field names, declaration order.
func (c *Class) FieldNames() []string {
	_, order, _ := c.effectiveFields()
	return append([]string(nil), order...)
}

// chain returns the ancestry, most-base first, ending at c.
func (c *Class) chain() []*Class {
	var out []*Class
	for x := c; x != nil; x = x.parent {
		out = append([]*Class{x}, out...)
	}
	return out
}

// effectiveFields returns the nearest computed field table along the
// ancestry (tables are stored fully merged) and the class owning it.
func (c *Class) effectiveFields() (map[string]resolvedField, []string, *Class) {
	for x := c; x != nil; x = x.parent {
		if x.fieldTable != nil {
			return x.fieldTable, x.fieldOrder, x
		}
	}
	return nil, nil, nil
}

// effectiveMethods returns the nearest computed method tables along the
// ancestry and the class owning them.
func (c *Class) effectiveMethods() (map[string]MethodSpec, map[string]bool, *Class) {
	for x := c; x != nil; x = x.parent {
		if x.methodTable != nil {
			return x.methodTable, x.blendedSet, x
		}
	}
	return nil, nil, nil
}

// lookupMethod finds a declared method by name, most-derived declaration
// first, independent of replaceability.
func (c *Class) lookupMethod(name string) (MethodSpec, bool) {
	for x := c; x != nil; x = x.parent {
		for i := len(x.methodDecls) - 1; i >= 0; i-- {
			if x.methodDecls[i].Name == name {
				return x.methodDecls[i], true
			}
		}
	}
	return MethodSpec{}, false
}

// New constructs an instance. Order of operations: strictness checks,
// method overrides consumed from kwargs, field defaults assigned, the init
// hook, then explicit field overrides re-applied so they win over anything
// the init body did.
func (c *Class) New(kwargs map[string]any) (*Instance, error) {
	for _, req := range c.requirements() {
		if !c.hasOwn(req.capability) {
			return nil, &StrictnessError{
				Class:      c.name,
				Origin:     req.origin.name,
				Capability: string(req.capability),
			}
		}
	}

	kw := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		kw[k] = v
	}
	inst := &Instance{
		class:     c,
		fields:    make(map[string]any),
		overrides: make(map[string]*eval.Function),
	}

	if err := c.consumeMethodKwargs(inst, kw); err != nil {
		return nil, err
	}

	fields, order, owner := c.effectiveFields()
	overrides := make(map[string]any)
	for name := range fields {
		if v, ok := kw[name]; ok {
			overrides[name] = v
			delete(kw, name)
		}
	}
	applyAll := func() error {
		if owner == nil {
			return nil
		}
		return owner.applyOverrides(inst, fields, overrides)
	}
	for _, n := range order {
		inst.fields[n] = fields[n].value
	}
	if err := applyAll(); err != nil {
		return nil, err
	}
	if init := c.initHook(); init != nil {
		if err := init(inst, kw); err != nil {
			return nil, fmt.Errorf("augment: %s: init: %w", c.name, err)
		}
	} else if len(kw) > 0 {
		return nil, &ConfigError{Class: c.name, Member: firstKey(kw), Reason: "unexpected constructor argument"}
	}
	// Explicit overrides win over anything the init body wrote.
	if err := applyAll(); err != nil {
		return nil, err
	}
	c.logger.Debug("constructed instance",
		zap.String("class", c.name),
		zap.Int("fields", len(order)))
	return inst, nil
}

// consumeMethodKwargs binds replaceable-method overrides supplied to the
// constructor and removes them from the forwarded arguments. Blended
// methods answer to their bare name, every replaceable method to its
// marker-prefixed name.
func (c *Class) consumeMethodKwargs(inst *Instance, kw map[string]any) error {
	methods, blended, owner := c.effectiveMethods()
	if len(methods) == 0 {
		return nil
	}
	marker := DefaultMarker
	if owner != nil && owner.methodOpts.marker != "" {
		marker = owner.methodOpts.marker
	}
	names := make([]string, 0, len(kw))
	for name := range kw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := ""
		if strings.HasPrefix(name, marker) {
			trimmed := strings.TrimPrefix(name, marker)
			if _, ok := methods[trimmed]; ok {
				key = trimmed
			}
		} else if blended[name] {
			key = name
		}
		if key == "" {
			continue
		}
		if err := inst.Implement(key, kw[name]); err != nil {
			return err
		}
		delete(kw, name)
	}
	return nil
}

// initHook returns the class's own init, or the nearest ancestor's when it
// declares none.
func (c *Class) initHook() InitFunc {
	for x := c; x != nil; x = x.parent {
		if x.init != nil {
			return x.init
		}
	}
	return nil
}

func (c *Class) hasOwn(cp capability) bool {
	switch cp {
	case capFields:
		return c.fieldTable != nil
	case capMethods:
		return c.methodTable != nil
	}
	return false
}

func paramIndex(params []Parameter, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func firstKey(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "any"
	}
	return t.String()
}

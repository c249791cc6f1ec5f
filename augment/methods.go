package augment

import (
	"sort"

	"go.uber.org/zap"
)

// MethodSpec declares one method on a class. Impl is the default body,
// called with the instance as its first argument; it may be nil for an
// abstract method that overrides must supply. Replaceable methods accept a
// new body through the constructor and Implement.
type MethodSpec struct {
	Name        string
	Impl        any
	Replaceable bool
	// Blend overrides the engine's bare-name default for this method.
	Blend *bool
}

// MethodOption adjusts a method declaration.
type MethodOption func(*MethodSpec)

// Blended controls whether the method's constructor keyword is its bare
// name in addition to the marker-prefixed one.
func Blended(on bool) MethodOption {
	return func(m *MethodSpec) { m.Blend = &on }
}

// Method declares a fixed method with the given default body.
func Method(name string, impl any) MethodSpec {
	return MethodSpec{Name: name, Impl: impl}
}

// Replaceable declares a method whose body can be swapped per instance.
func Replaceable(name string, impl any, opts ...MethodOption) MethodSpec {
	m := MethodSpec{Name: name, Impl: impl, Replaceable: true}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Methods augments a class with replaceable methods: declared replaceable
// methods along the ancestry are merged into the class's capability table
// (more derived declarations winning), and the constructor is extended with
// one keyword-only parameter per method, marker-prefixed, plus the bare
// name for blended methods. An augmented ancestor contributes its computed
// tables as-is; blended sets union, so re-augmenting never strips exposure
// an ancestor already granted.
func Methods(c *Class, opts ...EngineOption) (*Class, error) {
	eo := newEngineOptions(opts)

	table := make(map[string]MethodSpec)
	blended := make(map[string]bool)

	var owner *Class
	for x := c.parent; x != nil; x = x.parent {
		if x.methodTable != nil {
			owner = x
			break
		}
	}
	if owner != nil {
		for name, m := range owner.methodTable {
			table[name] = m
		}
		for name, on := range owner.blendedSet {
			blended[name] = blended[name] || on
		}
	}

	// Declarations the nearest augmented ancestor has not seen, base-first
	// so more derived declarations win. The engine's blend default applies
	// only to these; computed ancestor sets are already settled.
	var fresh []*Class
	for x := c; x != owner; x = x.parent {
		fresh = append([]*Class{x}, fresh...)
	}
	for _, x := range fresh {
		for _, m := range x.methodDecls {
			if !m.Replaceable {
				continue
			}
			if m.Name == "" {
				return nil, &ConfigError{Class: x.name, Reason: "replaceable method requires a name"}
			}
			table[m.Name] = m
			on := eo.blend
			if m.Blend != nil {
				on = *m.Blend
			}
			blended[m.Name] = blended[m.Name] || on
		}
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if blended[name] && paramIndex(c.params, name) >= 0 {
			return nil, &ConfigError{
				Class:  c.name,
				Member: name,
				Reason: "blended method collides with a constructor parameter",
			}
		}
	}
	for _, name := range names {
		marked := eo.marker + name
		if paramIndex(c.params, marked) < 0 {
			c.params = append(c.params, Parameter{Name: marked, Kind: KeywordOnly, Type: "func"})
		}
		if blended[name] && paramIndex(c.params, name) < 0 {
			c.params = append(c.params, Parameter{Name: name, Kind: KeywordOnly, Type: "func"})
		}
	}

	c.methodTable = table
	c.blendedSet = blended
	c.methodOpts = eo
	c.marker = eo.marker

	if eo.strict {
		c.required = append(c.required, requirement{origin: c, capability: capMethods})
	}
	eo.logger.Debug("augmented methods",
		zap.String("class", c.name),
		zap.Int("replaceable", len(table)))
	return c, nil
}

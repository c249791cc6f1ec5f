// Package resolve turns dotted symbol paths into live values. Resolution
// starts from an explicit context, a registered context, or, failing both,
// from the ambient namespace reachable through a Loader, trying ever longer
// or ever shorter leading prefixes of the path as a loadable unit and then
// walking the remaining segments as key or member lookups.
package resolve

import (
	"reflect"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vahidzee/dypy/internal/dylog"
)

// Direction controls prefix search order when locating a root for a path.
type Direction int

const (
	// DirectionDown tries the full path first and shrinks it.
	DirectionDown Direction = iota
	// DirectionUp tries the shortest prefix first and grows it.
	DirectionUp
)

// absent is the type of the NoValue sentinel.
type absent struct{}

func (absent) String() string { return "<no value>" }

// NoValue is yielded instead of an error when a non-strict lookup misses.
var NoValue = absent{}

// IsNoValue reports whether v is the absent-value sentinel.
func IsNoValue(v any) bool {
	_, ok := v.(absent)
	return ok
}

// DefaultRetries is the resolution retry budget, absorbing transient
// load-order effects in the ambient namespace.
const DefaultRetries = 3

type options struct {
	context    any
	hasContext bool
	strict     bool
	preferMods bool
	direction  Direction
	retries    int
	registry   *Registry
	loader     *Loader
	logger     *zap.Logger
}

// Option configures a single resolution or assignment call.
type Option func(*options)

// WithContext roots resolution at the given context instead of the ambient
// namespace. The context may behave as a mapping (maps), an object (structs,
// pointers), or a loaded Namespace.
func WithContext(context any) Option {
	return func(o *options) { o.context = context; o.hasContext = true }
}

// Strict controls miss behavior: a strict miss fails with NotFoundError, a
// non-strict miss yields the NoValue sentinel. Default true.
func Strict(on bool) Option {
	return func(o *options) { o.strict = on }
}

// PreferModules makes the two-direction reconciliation prefer whichever
// result behaves like a loadable namespace.
func PreferModules(on bool) Option {
	return func(o *options) { o.preferMods = on }
}

// WithDirection sets the prefix search direction for single-direction
// primitives. The top-level resolver tries both directions regardless.
func WithDirection(d Direction) Option {
	return func(o *options) { o.direction = d }
}

// WithRetries sets the retry budget (minimum 1).
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.retries = n
		}
	}
}

// WithRegistry lets the resolver serve paths whose first segment names a
// registered context. Without this option no registry is consulted.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLoader injects the loader used for the ambient namespace.
func WithLoader(l *Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithLogger attaches a logger to the call.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		strict:    true,
		direction: DirectionDown,
		retries:   DefaultRetries,
		logger:    dylog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = dylog.Nop()
	}
	return o
}

func (o options) ambient() *Loader {
	if o.loader != nil {
		return o.loader
	}
	return ambientLoader()
}

// Resolve looks up the value named by a dotted path. Failures within the
// retry budget are retried; the last failure is returned when the budget is
// exhausted.
func Resolve(path string, opts ...Option) (any, error) {
	o := newOptions(opts)
	trace := uuid.NewString()[:8]
	var lastErr error
	for attempt := 1; attempt <= o.retries; attempt++ {
		v, err := resolveOnce(path, o)
		if err == nil {
			o.logger.Debug("resolved",
				zap.String("trace", trace),
				zap.String("path", path),
				zap.Int("attempt", attempt))
			return v, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		o.logger.Debug("resolution attempt failed",
			zap.String("trace", trace),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, lastErr
}

// resolveOnce performs one full resolution: a single directed walk when an
// explicit context is given, otherwise both prefix directions reconciled.
//
// Reconciliation policy (documented, not inferred): a lone success wins; in
// non-strict mode a NoValue result loses to a concrete one; with
// PreferModules a namespace-like result wins; in every remaining tie the
// downwards (full-path-first) result is taken.
func resolveOnce(path string, o options) (any, error) {
	if o.hasContext {
		return resolveDirected(path, o.direction == DirectionUp, o)
	}
	upVal, upErr := resolveDirected(path, true, o)
	downVal, downErr := resolveDirected(path, false, o)
	switch {
	case upErr != nil && downErr != nil:
		return nil, downErr
	case upErr != nil:
		return downVal, nil
	case downErr != nil:
		return upVal, nil
	}
	if !o.strict {
		if IsNoValue(upVal) && !IsNoValue(downVal) {
			return downVal, nil
		}
		if !IsNoValue(upVal) && IsNoValue(downVal) {
			return upVal, nil
		}
	}
	if o.preferMods {
		if _, ok := downVal.(*Namespace); ok {
			return downVal, nil
		}
		if _, ok := upVal.(*Namespace); ok {
			return upVal, nil
		}
	}
	return downVal, nil
}

// resolveDirected locates a root for the path and walks the remaining
// segments.
func resolveDirected(path string, up bool, o options) (any, error) {
	root, rest, err := locateRoot(path, up, o)
	if err != nil {
		return nil, err
	}
	return walk(path, root, rest, o)
}

func locateRoot(path string, up bool, o options) (any, string, error) {
	if o.hasContext {
		return o.context, path, nil
	}
	segs := strings.Split(path, ".")
	if o.registry != nil {
		if ctx, ok := o.registry.Lookup(segs[0]); ok {
			return ctx, strings.Join(segs[1:], "."), nil
		}
	}
	return greedyLoad(o.ambient(), path, up, 0)
}

// greedyLoad tries prefixes of name as loadable units, shortest first when
// up, full path first otherwise. level reserves that many trailing segments
// from ever being part of the prefix.
func greedyLoad(l *Loader, name string, up bool, level int) (*Namespace, string, error) {
	segs := strings.Split(name, ".")
	n := len(segs)
	var lastErr error
	try := func(i int) (*Namespace, string, bool) {
		ns, err := l.Load(strings.Join(segs[:i], "."))
		if err != nil {
			lastErr = err
			return nil, "", false
		}
		return ns, strings.Join(segs[i:], "."), true
	}
	if up {
		for i := 1; i <= n-level; i++ {
			if ns, rest, ok := try(i); ok {
				return ns, rest, nil
			}
		}
	} else {
		for i := n - level; i >= 1; i-- {
			if ns, rest, ok := try(i); ok {
				return ns, rest, nil
			}
		}
	}
	return nil, "", &LoadError{Name: name, Err: lastErr}
}

// walk resolves the remaining dotted suffix against root, segment by
// segment. An empty suffix returns the root unchanged.
func walk(full string, root any, rest string, o options) (any, error) {
	cur := root
	if rest == "" {
		return cur, nil
	}
	segs := strings.Split(rest, ".")
	for i, seg := range segs {
		next, ok := lookupSegment(cur, seg)
		if !ok {
			if o.strict {
				return nil, &NotFoundError{Path: full, Missing: strings.Join(segs[i:], ".")}
			}
			return NoValue, nil
		}
		cur = next
	}
	return cur, nil
}

// lookupSegment attempts a key lookup when cur behaves as a mapping, a
// namespace member lookup for loaded units, and a member lookup otherwise.
func lookupSegment(cur any, seg string) (any, bool) {
	if ns, ok := cur.(*Namespace); ok {
		v, err := ns.Member(seg)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	if cur == nil {
		return nil, false
	}
	v := reflect.ValueOf(cur)
	if v.Kind() == reflect.Map {
		key := reflect.ValueOf(seg)
		kt := v.Type().Key()
		if !key.Type().AssignableTo(kt) {
			if !key.Type().ConvertibleTo(kt) {
				return nil, false
			}
			key = key.Convert(kt)
		}
		mv := v.MapIndex(key)
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	}
	return member(v, seg)
}

// member performs an object-style lookup: methods on the value as given,
// then struct fields and methods behind pointers and interfaces.
func member(v reflect.Value, seg string) (any, bool) {
	if m := v.MethodByName(seg); m.IsValid() {
		return m.Interface(), true
	}
	e := v
	unwrapped := false
	for e.Kind() == reflect.Pointer || e.Kind() == reflect.Interface {
		if e.IsNil() {
			return nil, false
		}
		e = e.Elem()
		unwrapped = true
	}
	if e.Kind() == reflect.Struct {
		if f := e.FieldByName(seg); f.IsValid() && f.CanInterface() {
			return f.Interface(), true
		}
	}
	if unwrapped {
		if m := e.MethodByName(seg); m.IsValid() {
			return m.Interface(), true
		}
	}
	return nil, false
}

package resolve

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Assign writes value under the final segment of path. The parent container
// is resolved with the same prefix and context logic as Resolve, restricted
// to the upwards direction and keeping the final segment out of the prefix.
// Missing intermediate containers are never created.
func Assign(path string, value any, opts ...Option) error {
	o := newOptions(opts)

	var root any
	rest := path
	if o.hasContext {
		root = o.context
	} else {
		segs := strings.Split(path, ".")
		if o.registry != nil && len(segs) > 1 {
			if ctx, ok := o.registry.Lookup(segs[0]); ok {
				root, rest = ctx, strings.Join(segs[1:], ".")
			}
		}
		if root == nil {
			ns, nsRest, err := greedyLoad(o.ambient(), path, true, 1)
			if err != nil {
				return err
			}
			root, rest = ns, nsRest
		}
	}

	segs := strings.Split(rest, ".")
	if rest == "" || len(segs) == 0 {
		return &NotFoundError{Path: path, Missing: ""}
	}
	parent := root
	for i, seg := range segs[:len(segs)-1] {
		next, ok := lookupSegment(parent, seg)
		if !ok {
			return &NotFoundError{Path: path, Missing: strings.Join(segs[i:], ".")}
		}
		parent = next
	}
	if err := setMember(parent, segs[len(segs)-1], value); err != nil {
		return fmt.Errorf("resolve: assign %q: %w", path, err)
	}
	o.logger.Debug("assigned", zap.String("path", path))
	return nil
}

// coerce adapts value to the target type, converting when necessary.
func coerce(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", value, t)
}

// setMember performs a key assignment on mappings, an index assignment on
// sequences, and a member assignment otherwise.
func setMember(container any, name string, value any) error {
	if _, ok := container.(*Namespace); ok {
		return ErrReadOnlyNamespace
	}
	if container == nil {
		return &NotFoundError{Path: name, Missing: name}
	}
	v := reflect.ValueOf(container)
	switch v.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(name)
		kt := v.Type().Key()
		if !key.Type().AssignableTo(kt) {
			if !key.Type().ConvertibleTo(kt) {
				return fmt.Errorf("map key %q not usable as %s", name, kt)
			}
			key = key.Convert(kt)
		}
		elem, err := coerce(value, v.Type().Elem())
		if err != nil {
			return err
		}
		v.SetMapIndex(key, elem)
		return nil
	case reflect.Slice:
		idx, err := strconv.Atoi(name)
		if err != nil {
			return fmt.Errorf("sequence index %q: %w", name, err)
		}
		if idx < 0 || idx >= v.Len() {
			return fmt.Errorf("sequence index %d out of range [0,%d)", idx, v.Len())
		}
		elem, err := coerce(value, v.Type().Elem())
		if err != nil {
			return err
		}
		v.Index(idx).Set(elem)
		return nil
	case reflect.Pointer:
		e := v.Elem()
		if e.Kind() != reflect.Struct {
			return fmt.Errorf("cannot assign member %q on %s", name, v.Type())
		}
		f := e.FieldByName(name)
		if !f.IsValid() {
			return &NotFoundError{Path: name, Missing: name}
		}
		if !f.CanSet() {
			return fmt.Errorf("field %q of %s is not settable", name, e.Type())
		}
		elem, err := coerce(value, f.Type())
		if err != nil {
			return err
		}
		f.Set(elem)
		return nil
	case reflect.Struct:
		return fmt.Errorf("struct %s is not addressable; pass a pointer", v.Type())
	}
	return fmt.Errorf("cannot assign member %q on %s", name, v.Type())
}

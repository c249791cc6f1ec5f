package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyName is returned when an empty context name is registered.
	ErrEmptyName = errors.New("resolve: empty context name")
	// ErrAlreadyRegistered indicates an attempt to re-register a context name.
	// The registry is write-once per name.
	ErrAlreadyRegistered = errors.New("resolve: context already registered")
	// ErrReadOnlyNamespace is returned by Assign when the target container is
	// a loaded namespace, whose bindings cannot be rewritten from outside.
	ErrReadOnlyNamespace = errors.New("resolve: loaded namespaces are read-only")
)

// NotFoundError reports that a segment of a symbol path was absent. Missing
// carries the unresolved suffix, starting at the segment that failed.
type NotFoundError struct {
	Path    string
	Missing string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resolve: %q has no member path %q", e.Path, e.Missing)
}

// LoadError reports that no prefix of a path could be loaded as a namespace.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve: no loadable prefix of %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("resolve: no loadable prefix of %q", e.Name)
}

func (e *LoadError) Unwrap() error { return e.Err }

// retryable reports whether err is a transient-looking resolution failure
// worth another attempt within the retry budget.
func retryable(err error) bool {
	var nf *NotFoundError
	var le *LoadError
	return errors.As(err, &nf) || errors.As(err, &le)
}

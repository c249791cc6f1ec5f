package eval

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// syntaxError marks text that failed to parse as a single expression. It is
// an internal signal only: it drives the expression / code-block branch
// choice and never escapes the package.
type syntaxError struct {
	err error
}

func (e *syntaxError) Error() string { return fmt.Sprintf("not a single expression: %v", e.err) }
func (e *syntaxError) Unwrap() error { return e.err }

func isSyntaxError(err error) bool {
	var se *syntaxError
	return errors.As(err, &se)
}

// SelectorError reports a code block supplied without a usable selector:
// either none was given at all, or the named function was not defined by the
// block.
type SelectorError struct {
	Selector string
	Defined  []string
}

func (e *SelectorError) Error() string {
	if e.Selector == "" {
		return "eval: code block descriptor requires a selector naming the function of interest"
	}
	msg := fmt.Sprintf("eval: code block does not define %q", e.Selector)
	if len(e.Defined) > 0 {
		names := append([]string(nil), e.Defined...)
		sort.Strings(names)
		msg += " (defined: " + strings.Join(names, ", ") + ")"
	}
	return msg
}

// CompositeError reports that an expression failed both as a value lookup
// and as a function evaluation. Both underlying causes are kept for
// diagnostics.
type CompositeError struct {
	Expression  string
	ValueErr    error
	FunctionErr error
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("eval: could not evaluate %q: value lookup: %v; function evaluation: %v",
		e.Expression, e.ValueErr, e.FunctionErr)
}

func (e *CompositeError) Unwrap() []error {
	return []error{e.ValueErr, e.FunctionErr}
}

package augment

import "fmt"

// ConfigError reports decoration-time or construction-time misuse of the
// augmentation surface: a marked field without a default, a blended method
// colliding with a constructor parameter, a non-nullable composite given no
// source, and the like. It is always fatal to the decoration or
// construction that raised it.
type ConfigError struct {
	Class  string
	Member string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("augment: %s.%s: %s", e.Class, e.Member, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StrictnessError reports a subclass of a strictly augmented class that was
// not itself re-augmented. Raised at the subclass's first instantiation.
type StrictnessError struct {
	Class      string
	Origin     string
	Capability string
}

func (e *StrictnessError) Error() string {
	return fmt.Sprintf(
		"augment: %s inherits from strict class %s but does not carry its own %s table; re-apply augment.Fields or augment.Methods to %s",
		e.Class, e.Origin, e.Capability, e.Class)
}

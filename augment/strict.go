package augment

// capability identifies one augmentation contract a class can carry.
type capability string

const (
	capFields  capability = "dynamic-fields"
	capMethods capability = "dynamic-methods"
)

// requirement records that a strictly augmented ancestor demands the
// capability marker directly on whatever class is being instantiated, not
// merely somewhere up the chain.
type requirement struct {
	origin     *Class
	capability capability
}

// requirements collects the strictness demands along the full ancestry,
// most-base first.
func (c *Class) requirements() []requirement {
	var out []requirement
	for _, x := range c.chain() {
		out = append(out, x.required...)
	}
	return out
}

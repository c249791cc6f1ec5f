// Package manifest loads override documents: YAML files carrying field
// values and method descriptors for augmented classes, so instance behavior
// can be swapped from configuration without a rebuild.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vahidzee/dypy/augment"
	"github.com/vahidzee/dypy/eval"
)

// Descriptor is the on-disk form of a method body: source text plus the
// optional symbol selector and namespace context.
type Descriptor struct {
	Code     string         `yaml:"code"`
	Selector string         `yaml:"selector,omitempty"`
	Context  map[string]any `yaml:"context,omitempty"`
}

// Overrides is one override document.
type Overrides struct {
	Fields  map[string]any        `yaml:"fields,omitempty"`
	Methods map[string]Descriptor `yaml:"methods,omitempty"`
}

// Parse decodes an override document.
func Parse(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	return &o, nil
}

// Load reads and decodes an override document from disk.
func Load(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Kwargs flattens the document into constructor keyword arguments: field
// values under their own names, method descriptors under marker-prefixed
// names.
func (o *Overrides) Kwargs() map[string]any {
	kw := make(map[string]any, len(o.Fields)+len(o.Methods))
	for name, v := range o.Fields {
		kw[name] = v
	}
	for name, d := range o.Methods {
		kw[augment.DefaultMarker+name] = d.descriptor()
	}
	return kw
}

// Apply pushes the document onto a live instance: fields are set, method
// bodies swapped.
func (o *Overrides) Apply(inst *augment.Instance) error {
	for name, v := range o.Fields {
		if err := inst.Set(name, v); err != nil {
			return err
		}
	}
	descriptors := make(map[string]any, len(o.Methods))
	for name, d := range o.Methods {
		descriptors[name] = d.descriptor()
	}
	return inst.ImplementMethods(descriptors)
}

func (d Descriptor) descriptor() eval.Descriptor {
	ed := eval.Descriptor{Code: d.Code, Selector: d.Selector}
	if len(d.Context) > 0 {
		ed.Context = d.Context
	}
	return ed
}

package augment_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vahidzee/dypy/augment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newModel builds a class with two dynamic fields and one replaceable
// method, both engines applied.
func newModel(t *testing.T, opts ...augment.EngineOption) *augment.Class {
	t.Helper()
	c := augment.NewClass("Model",
		augment.Declare("dy_rate", augment.Field(0.5)),
		augment.Declare("dy_name", augment.Field("model")),
		augment.DeclareMethod(augment.Replaceable("score", func(self *augment.Instance, x float64) float64 {
			return x
		})),
	)
	c, err := augment.Fields(c, opts...)
	require.NoError(t, err)
	c, err = augment.Methods(c, opts...)
	require.NoError(t, err)
	return c
}

func TestFieldsDefaultsAndOverrides(t *testing.T) {
	model := newModel(t)

	t.Run("defaults", func(t *testing.T) {
		inst, err := model.New(nil)
		require.NoError(t, err)
		v, err := inst.Get("rate")
		require.NoError(t, err)
		assert.Equal(t, 0.5, v)
		assert.Equal(t, "model", inst.GetOr("name", ""))
	})

	t.Run("constructor override", func(t *testing.T) {
		inst, err := model.New(map[string]any{"rate": 0.9})
		require.NoError(t, err)
		assert.Equal(t, 0.9, inst.GetOr("rate", nil))
		assert.Equal(t, "model", inst.GetOr("name", ""))
	})

	t.Run("unexpected argument", func(t *testing.T) {
		_, err := model.New(map[string]any{"bogus": 1})
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "bogus", ce.Member)
	})

	t.Run("set and get", func(t *testing.T) {
		inst, err := model.New(nil)
		require.NoError(t, err)
		require.NoError(t, inst.Set("rate", 0.7))
		assert.Equal(t, 0.7, inst.GetOr("rate", nil))

		err = inst.Set("unknown", 1)
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("signature lists keyword-only parameters", func(t *testing.T) {
		var names []string
		for _, p := range model.Signature() {
			names = append(names, p.Name)
		}
		assert.Contains(t, names, "rate")
		assert.Contains(t, names, "name")
		assert.Contains(t, names, "dy_score")
		assert.Contains(t, names, "score")
	})
}

func TestFieldsEvaluatedDefaults(t *testing.T) {
	t.Run("symbol path default", func(t *testing.T) {
		c := augment.NewClass("Circle",
			augment.Declare("dy_pi", augment.Field("math.Pi", augment.Evaluated())),
		)
		c, err := augment.Fields(c)
		require.NoError(t, err)

		inst, err := c.New(nil)
		require.NoError(t, err)
		assert.InDelta(t, math.Pi, inst.GetOr("pi", 0.0).(float64), 1e-12)
	})

	t.Run("callable default behaves like the resolved symbol", func(t *testing.T) {
		c := augment.NewClass("Wave",
			augment.Declare("dy_fn", augment.Field("math.Sin", augment.Evaluated())),
		)
		c, err := augment.Fields(c)
		require.NoError(t, err)

		inst, err := c.New(nil)
		require.NoError(t, err)
		fn, ok := inst.GetOr("fn", nil).(func(float64) float64)
		require.True(t, ok)
		assert.InDelta(t, 0.0, fn(0.0), 1e-12)
		assert.InDelta(t, 1.0, fn(math.Pi/2), 1e-12)
	})

	t.Run("unloadable path keeps the literal when lenient", func(t *testing.T) {
		c := augment.NewClass("Doc",
			augment.Declare("dy_title", augment.Field("just a sentence", augment.Evaluated(), augment.Lenient())),
		)
		c, err := augment.Fields(c)
		require.NoError(t, err)

		inst, err := c.New(nil)
		require.NoError(t, err)
		assert.Equal(t, "just a sentence", inst.GetOr("title", nil))
	})

	t.Run("unloadable path fails a strict field", func(t *testing.T) {
		c := augment.NewClass("Typo",
			augment.Declare("dy_fn", augment.Field("nath.Sin", augment.Evaluated())),
		)
		_, err := augment.Fields(c)
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "fn", ce.Member)
	})

	t.Run("marked field without a default", func(t *testing.T) {
		c := augment.NewClass("Broken", augment.Declare("dy_bad", nil))
		_, err := augment.Fields(c)
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)
	})
}

func TestFieldsAncestry(t *testing.T) {
	base := newModel(t)
	child := base.Extend("Child",
		augment.Declare("dy_rate", augment.Field(0.1)),
		augment.Declare("dy_depth", augment.Field(3)),
	)
	child, err := augment.Fields(child)
	require.NoError(t, err)
	child, err = augment.Methods(child)
	require.NoError(t, err)

	inst, err := child.New(nil)
	require.NoError(t, err)

	// Redeclared field takes the derived default, the rest are inherited.
	assert.Equal(t, 0.1, inst.GetOr("rate", nil))
	assert.Equal(t, "model", inst.GetOr("name", nil))
	assert.Equal(t, 3, inst.GetOr("depth", nil))
	assert.ElementsMatch(t, []string{"rate", "name", "depth"}, child.FieldNames())
}

func TestStrictness(t *testing.T) {
	t.Run("lazy subclass fails at first instantiation", func(t *testing.T) {
		base := newModel(t)
		lazy := base.Extend("Lazy")
		_, err := lazy.New(nil)
		var se *augment.StrictnessError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "Lazy", se.Class)
		assert.Equal(t, "Model", se.Origin)
	})

	t.Run("lenient ancestors do not propagate the demand", func(t *testing.T) {
		base := newModel(t, augment.Strict(false))
		lazy := base.Extend("Lazy")
		inst, err := lazy.New(nil)
		require.NoError(t, err)
		assert.Equal(t, 0.5, inst.GetOr("rate", nil))
	})

	t.Run("re-augmented subclass passes", func(t *testing.T) {
		base := newModel(t)
		child := base.Extend("Child")
		child, err := augment.Fields(child)
		require.NoError(t, err)
		child, err = augment.Methods(child)
		require.NoError(t, err)
		_, err = child.New(nil)
		require.NoError(t, err)
	})
}

func TestMethods(t *testing.T) {
	model := newModel(t)

	t.Run("default body", func(t *testing.T) {
		inst, err := model.New(nil)
		require.NoError(t, err)
		out, err := inst.Call("score", 2.5)
		require.NoError(t, err)
		assert.Equal(t, 2.5, out)
		assert.False(t, inst.Overridden("score"))
	})

	t.Run("override through the marked constructor keyword", func(t *testing.T) {
		inst, err := model.New(map[string]any{
			"dy_score": "func(self any, x float64) float64 { return x * 2 }",
		})
		require.NoError(t, err)
		require.True(t, inst.Overridden("score"))
		out, err := inst.Call("score", 2.0)
		require.NoError(t, err)
		assert.Equal(t, 4.0, out)
	})

	t.Run("blended methods answer to the bare name", func(t *testing.T) {
		inst, err := model.New(map[string]any{
			"score": "func(self any, x float64) float64 { return -x }",
		})
		require.NoError(t, err)
		out, err := inst.Call("score", 2.0)
		require.NoError(t, err)
		assert.Equal(t, -2.0, out)
	})

	t.Run("implement after construction", func(t *testing.T) {
		inst, err := model.New(nil)
		require.NoError(t, err)
		require.NoError(t, inst.Implement("score", func(self *augment.Instance, x float64) float64 {
			return x + 1
		}))
		out, err := inst.Call("score", 1.0)
		require.NoError(t, err)
		assert.Equal(t, 2.0, out)
	})

	t.Run("only replaceable methods accept overrides", func(t *testing.T) {
		inst, err := model.New(nil)
		require.NoError(t, err)
		err = inst.Implement("other", func() {})
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("bulk implement", func(t *testing.T) {
		inst, err := model.New(nil)
		require.NoError(t, err)
		require.NoError(t, inst.ImplementMethods(map[string]any{
			"score": "func(self any, x float64) float64 { return 0 }",
		}))
		out, err := inst.Call("score", 5.0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, out)
	})
}

func TestMethodsCustomMarker(t *testing.T) {
	c := augment.NewClass("Gauge",
		augment.Declare("dyn_bias", augment.Field(0.0)),
		augment.DeclareMethod(augment.Replaceable("score", func(self *augment.Instance, x float64) float64 {
			return x
		})),
	)
	c, err := augment.Fields(c, augment.Marker("dyn_"))
	require.NoError(t, err)
	c, err = augment.Methods(c, augment.Marker("dyn_"))
	require.NoError(t, err)

	var names []string
	for _, p := range c.Signature() {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "bias")
	assert.Contains(t, names, "dyn_score")

	inst, err := c.New(map[string]any{
		"dyn_score": "func(self any, x float64) float64 { return x * 3 }",
	})
	require.NoError(t, err)
	require.True(t, inst.Overridden("score"))
	out, err := inst.Call("score", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestMethodsBlendInheritance(t *testing.T) {
	base := newModel(t)
	child := base.Extend("Child")
	child, err := augment.Fields(child)
	require.NoError(t, err)
	child, err = augment.Methods(child, augment.Blend(false))
	require.NoError(t, err)

	// The ancestor exposed score under its bare name; re-augmenting with a
	// different default never narrows that exposure.
	inst, err := child.New(map[string]any{
		"score": "func(self any, x float64) float64 { return x + 1 }",
	})
	require.NoError(t, err)
	out, err := inst.Call("score", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

func TestInitHook(t *testing.T) {
	c := augment.NewClass("Tagged",
		augment.Declare("dy_name", augment.Field("anon")),
		augment.WithParam(augment.Parameter{Name: "label", Kind: augment.PositionalOrKeyword}),
		augment.WithInit(func(self *augment.Instance, kwargs map[string]any) error {
			if label, ok := kwargs["label"]; ok {
				return self.Set("name", label)
			}
			return nil
		}),
	)
	c, err := augment.Fields(c)
	require.NoError(t, err)

	t.Run("init writes survive", func(t *testing.T) {
		inst, err := c.New(map[string]any{"label": "alpha"})
		require.NoError(t, err)
		assert.Equal(t, "alpha", inst.GetOr("name", nil))
	})

	t.Run("explicit overrides win over init", func(t *testing.T) {
		inst, err := c.New(map[string]any{"label": "alpha", "name": "explicit"})
		require.NoError(t, err)
		assert.Equal(t, "explicit", inst.GetOr("name", nil))
	})

	t.Run("subclasses inherit the hook and its parameters", func(t *testing.T) {
		child := c.Extend("Child")
		child, err := augment.Fields(child)
		require.NoError(t, err)

		var names []string
		for _, p := range child.Signature() {
			names = append(names, p.Name)
		}
		assert.Contains(t, names, "label")

		inst, err := child.New(map[string]any{"label": "beta"})
		require.NoError(t, err)
		assert.Equal(t, "beta", inst.GetOr("name", nil))
	})
}

func TestComposites(t *testing.T) {
	optimizer := augment.NewClass("Optimizer",
		augment.Declare("dy_lr", augment.Field(0.01)),
	)
	optimizer, err := augment.Fields(optimizer, augment.Strict(false))
	require.NoError(t, err)

	adam := augment.NewClass("Adam",
		augment.Declare("dy_lr", augment.Field(0.001)),
		augment.Declare("dy_beta", augment.Field(0.9)),
	)
	adam, err = augment.Fields(adam, augment.Strict(false))
	require.NoError(t, err)

	ctx := map[string]any{"optim": map[string]any{"SGD": optimizer, "Adam": adam}}

	newNet := func(t *testing.T, opts ...augment.FieldOption) *augment.Class {
		t.Helper()
		net := augment.NewClass("Net",
			augment.Declare("dy_opt", augment.CompositeOf("optim.SGD", map[string]any{"lr": 0.1}, opts...)),
		)
		net, err := augment.Fields(net, augment.WithContext(ctx), augment.Strict(false))
		require.NoError(t, err)
		return net
	}

	lr := func(t *testing.T, v any) any {
		t.Helper()
		sub, ok := v.(*augment.Instance)
		require.True(t, ok)
		return sub.GetOr("lr", nil)
	}

	t.Run("default build plus auxiliary fields", func(t *testing.T) {
		inst, err := newNet(t).New(nil)
		require.NoError(t, err)
		assert.Equal(t, 0.1, lr(t, inst.GetOr("opt", nil)))
		assert.Equal(t, "optim.SGD", inst.GetOr("opt_type", nil))
		assert.Equal(t, map[string]any{"lr": 0.1}, inst.GetOr("opt_args", nil))
	})

	t.Run("argument override merges into declared arguments", func(t *testing.T) {
		inst, err := newNet(t).New(map[string]any{"opt_args": map[string]any{"lr": 0.5}})
		require.NoError(t, err)
		assert.Equal(t, 0.5, lr(t, inst.GetOr("opt", nil)))
	})

	t.Run("auxiliary fields round-trip", func(t *testing.T) {
		first, err := newNet(t).New(map[string]any{"opt_args": map[string]any{"lr": 0.3}})
		require.NoError(t, err)
		second, err := newNet(t).New(map[string]any{
			"opt_type": first.GetOr("opt_type", nil),
			"opt_args": first.GetOr("opt_args", nil),
		})
		require.NoError(t, err)
		assert.Equal(t, 0.3, lr(t, second.GetOr("opt", nil)))
		assert.Equal(t, first.GetOr("opt_type", nil), second.GetOr("opt_type", nil))
	})

	t.Run("different source rebuilds from scratch", func(t *testing.T) {
		inst, err := newNet(t).New(map[string]any{
			"opt":      "optim.Adam",
			"opt_args": map[string]any{"beta": 0.5},
		})
		require.NoError(t, err)
		sub, ok := inst.GetOr("opt", nil).(*augment.Instance)
		require.True(t, ok)
		// The declared arguments belong to the declared source and do not
		// leak into a rebuild from a different one.
		assert.Equal(t, 0.5, sub.GetOr("beta", nil))
		assert.Equal(t, 0.001, sub.GetOr("lr", nil))
		assert.Equal(t, "optim.Adam", inst.GetOr("opt_type", nil))
		assert.Equal(t, map[string]any{"beta": 0.5}, inst.GetOr("opt_args", nil))
	})

	t.Run("non-string source override is rejected", func(t *testing.T) {
		_, err := newNet(t).New(map[string]any{"opt_type": 7})
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "opt_type", ce.Member)
	})

	t.Run("pre-built value binds directly", func(t *testing.T) {
		ready, err := optimizer.New(map[string]any{"lr": 1.0})
		require.NoError(t, err)
		inst, err := newNet(t).New(map[string]any{"opt": ready})
		require.NoError(t, err)
		assert.Same(t, ready, inst.GetOr("opt", nil))
	})

	t.Run("nil requires a nullable declaration", func(t *testing.T) {
		_, err := newNet(t).New(map[string]any{"opt": nil})
		var ce *augment.ConfigError
		require.ErrorAs(t, err, &ce)

		inst, err := newNet(t, augment.Nullable()).New(map[string]any{"opt": nil})
		require.NoError(t, err)
		assert.Nil(t, inst.GetOr("opt", "not nil"))
		assert.Equal(t, "", inst.GetOr("opt_type", nil))
	})
}

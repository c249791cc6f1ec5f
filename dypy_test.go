package dypy_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vahidzee/dypy"
	"github.com/vahidzee/dypy/resolve"
)

func TestFacade(t *testing.T) {
	require.NoError(t, dypy.RegisterContext("site", map[string]any{"title": "home"}))

	t.Run("registered context", func(t *testing.T) {
		v, err := dypy.GetValue("site.title")
		require.NoError(t, err)
		assert.Equal(t, "home", v)
	})

	t.Run("assignment", func(t *testing.T) {
		require.NoError(t, dypy.SetValue("site.title", "about"))
		v, err := dypy.GetValue("site.title")
		require.NoError(t, err)
		assert.Equal(t, "about", v)
	})

	t.Run("ambient namespace", func(t *testing.T) {
		v, err := dypy.GetValue("math.Pi")
		require.NoError(t, err)
		assert.InDelta(t, math.Pi, v.(float64), 1e-12)
	})

	t.Run("descriptor evaluation", func(t *testing.T) {
		v, err := dypy.EvalFunction("func(x int) int { return x * x }")
		require.NoError(t, err)
		f, ok := v.(interface {
			Call(args ...any) (any, error)
		})
		require.True(t, ok)
		out, err := f.Call(6)
		require.NoError(t, err)
		assert.Equal(t, 36, out)
	})

	t.Run("unified evaluation favors the value", func(t *testing.T) {
		v, err := dypy.Eval("site.title")
		require.NoError(t, err)
		assert.Equal(t, "about", v)
	})

	t.Run("lenient miss", func(t *testing.T) {
		v, err := dypy.GetValue("site.owner", resolve.Strict(false))
		require.NoError(t, err)
		assert.True(t, dypy.IsNoValue(v))
	})
}

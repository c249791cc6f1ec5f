package resolve_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vahidzee/dypy/resolve"
)

type endpoint struct {
	Host string
	Port int
}

func (e *endpoint) Addr() string { return e.Host }

func TestRegistry(t *testing.T) {
	r := resolve.NewRegistry()

	require.NoError(t, r.Register("app", map[string]any{"version": "1.2.0"}))

	t.Run("lookup", func(t *testing.T) {
		v, ok := r.Lookup("app")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"version": "1.2.0"}, v)
	})

	t.Run("write once", func(t *testing.T) {
		err := r.Register("app", map[string]any{})
		require.ErrorIs(t, err, resolve.ErrAlreadyRegistered)
	})

	t.Run("empty name", func(t *testing.T) {
		require.ErrorIs(t, r.Register("", 1), resolve.ErrEmptyName)
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		snap := r.Snapshot()
		snap["app"] = nil
		v, ok := r.Lookup("app")
		require.True(t, ok)
		assert.NotNil(t, v)
	})
}

func TestResolveWithContext(t *testing.T) {
	ctx := map[string]any{
		"cfg": map[string]any{
			"name":   "svc",
			"limits": map[string]int{"rps": 100},
		},
		"ep": &endpoint{Host: "localhost", Port: 8080},
	}

	t.Run("nested maps", func(t *testing.T) {
		v, err := resolve.Resolve("cfg.limits.rps", resolve.WithContext(ctx))
		require.NoError(t, err)
		assert.Equal(t, 100, v)
	})

	t.Run("struct field behind pointer", func(t *testing.T) {
		v, err := resolve.Resolve("ep.Port", resolve.WithContext(ctx))
		require.NoError(t, err)
		assert.Equal(t, 8080, v)
	})

	t.Run("bound method", func(t *testing.T) {
		v, err := resolve.Resolve("ep.Addr", resolve.WithContext(ctx))
		require.NoError(t, err)
		fn, ok := v.(func() string)
		require.True(t, ok)
		assert.Equal(t, "localhost", fn())
	})

	t.Run("strict miss carries the unresolved suffix", func(t *testing.T) {
		_, err := resolve.Resolve("cfg.missing.deeper", resolve.WithContext(ctx))
		var nf *resolve.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "missing.deeper", nf.Missing)
	})

	t.Run("non-strict miss yields the sentinel", func(t *testing.T) {
		v, err := resolve.Resolve("cfg.missing", resolve.WithContext(ctx), resolve.Strict(false))
		require.NoError(t, err)
		assert.True(t, resolve.IsNoValue(v))
	})
}

func TestResolveRegistry(t *testing.T) {
	r := resolve.NewRegistry()
	require.NoError(t, r.Register("settings", map[string]any{"debug": true}))

	v, err := resolve.Resolve("settings.debug", resolve.WithRegistry(r))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	// Without the option the registry is never consulted.
	_, err = resolve.Resolve("settings.debug")
	require.Error(t, err)
}

func TestResolveAmbient(t *testing.T) {
	t.Run("package constant", func(t *testing.T) {
		v, err := resolve.Resolve("math.Pi")
		require.NoError(t, err)
		f, ok := v.(float64)
		require.True(t, ok)
		assert.InDelta(t, math.Pi, f, 1e-12)
	})

	t.Run("package function", func(t *testing.T) {
		v, err := resolve.Resolve("strings.ToUpper")
		require.NoError(t, err)
		fn, ok := v.(func(string) string)
		require.True(t, ok)
		assert.Equal(t, "GO", fn("go"))
	})

	t.Run("repeat loads through one loader", func(t *testing.T) {
		loader := resolve.NewLoader()

		v, err := resolve.Resolve("math.Pi", resolve.WithLoader(loader))
		require.NoError(t, err)
		assert.InDelta(t, math.Pi, v.(float64), 1e-12)

		// The package is already imported into the shared interpreter;
		// both the bare name and another member must still resolve.
		v, err = resolve.Resolve("math", resolve.WithLoader(loader))
		require.NoError(t, err)
		ns, ok := v.(*resolve.Namespace)
		require.True(t, ok)
		assert.Equal(t, "math", ns.Name())

		v, err = resolve.Resolve("math.Sqrt", resolve.WithLoader(loader))
		require.NoError(t, err)
		_, ok = v.(func(float64) float64)
		assert.True(t, ok)
	})

	t.Run("bare package yields a namespace", func(t *testing.T) {
		v, err := resolve.Resolve("math")
		require.NoError(t, err)
		ns, ok := v.(*resolve.Namespace)
		require.True(t, ok)
		assert.Equal(t, "math", ns.Name())
	})
}

func TestResolveSourceUnit(t *testing.T) {
	dir := t.TempDir()
	src := `package main

var Answer = 42

func Double(x int) int { return x * 2 }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "steps.go"), []byte(src), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	loader := resolve.NewLoader()

	v, err := resolve.Resolve("steps.Answer", resolve.WithLoader(loader))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAssign(t *testing.T) {
	t.Run("map key", func(t *testing.T) {
		ctx := map[string]any{"cfg": map[string]any{"name": "old"}}
		require.NoError(t, resolve.Assign("cfg.name", "new", resolve.WithContext(ctx)))
		assert.Equal(t, "new", ctx["cfg"].(map[string]any)["name"])
	})

	t.Run("slice index", func(t *testing.T) {
		ctx := map[string]any{"xs": []int{1, 2, 3}}
		require.NoError(t, resolve.Assign("xs.1", 9, resolve.WithContext(ctx)))
		assert.Equal(t, []int{1, 9, 3}, ctx["xs"])
	})

	t.Run("struct field behind pointer", func(t *testing.T) {
		ep := &endpoint{Host: "localhost"}
		ctx := map[string]any{"ep": ep}
		require.NoError(t, resolve.Assign("ep.Port", 9090, resolve.WithContext(ctx)))
		assert.Equal(t, 9090, ep.Port)
	})

	t.Run("missing parent", func(t *testing.T) {
		ctx := map[string]any{}
		err := resolve.Assign("nothing.here", 1, resolve.WithContext(ctx))
		var nf *resolve.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("loaded namespaces are read-only", func(t *testing.T) {
		err := resolve.Assign("math.Pi", 3)
		require.ErrorIs(t, err, resolve.ErrReadOnlyNamespace)
	})
}

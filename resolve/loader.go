package resolve

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/vahidzee/dypy/internal/dylog"
)

// Loader turns dotted namespace names into live Namespace values. The
// standard mechanism imports the name into an embedded interpreter preloaded
// with the standard library; the ad-hoc fallback locates a source unit
// relative to the current working directory by translating dots to path
// separators and evaluating the Go sources it finds there.
type Loader struct {
	mu       sync.Mutex
	interp   *interp.Interpreter
	imported map[string]bool
	logger   *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger attaches a logger to the loader.
func WithLoaderLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader builds a loader with the full standard library available to the
// standard import mechanism.
func NewLoader(opts ...LoaderOption) *Loader {
	i := interp.New(interp.Options{})
	_ = i.Use(stdlib.Symbols)
	ld := &Loader{interp: i, imported: make(map[string]bool), logger: dylog.Nop()}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.logger == nil {
		ld.logger = dylog.Nop()
	}
	return ld
}

var (
	ambientOnce   sync.Once
	ambientShared *Loader
)

// ambientLoader is the lazily built loader used when none is injected.
func ambientLoader() *Loader {
	ambientOnce.Do(func() { ambientShared = NewLoader() })
	return ambientShared
}

// Load resolves a dotted name to a Namespace or fails with a LoadError.
func (l *Loader) Load(name string) (*Namespace, error) {
	if name == "" {
		return nil, &LoadError{Name: name}
	}
	importPath := strings.ReplaceAll(name, ".", "/")
	l.mu.Lock()
	var err error
	if !l.imported[importPath] {
		// Importing a path twice into the shared interpreter fails with a
		// redeclaration error, so successful imports are recorded and
		// repeat loads short-circuit.
		_, err = l.interp.Eval(fmt.Sprintf("import %q", importPath))
		if err == nil {
			l.imported[importPath] = true
		}
	}
	l.mu.Unlock()
	if err == nil {
		return &Namespace{
			name:   name,
			path:   importPath,
			qual:   path.Base(importPath),
			interp: l.interp,
			mu:     &l.mu,
		}, nil
	}
	switch {
	case isLoadableUnit(name):
		return l.loadSource(name, true)
	case isLoadableContainer(name):
		return l.loadSource(name, false)
	}
	return nil, &LoadError{Name: name, Err: err}
}

// loadSource evaluates a working-directory source unit (a single file, or
// every Go file of a directory) in a fresh interpreter so that separately
// loaded units do not share declarations.
func (l *Loader) loadSource(name string, unit bool) (*Namespace, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}
	base := filepath.Join(nameSteps(name)...)
	files := []string{base + ".go"}
	if !unit {
		entries, err := os.ReadDir(base)
		if err != nil {
			return nil, &LoadError{Name: name, Err: err}
		}
		files = files[:0]
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" || strings.HasSuffix(entry.Name(), "_test.go") {
				continue
			}
			files = append(files, filepath.Join(base, entry.Name()))
		}
		if len(files) == 0 {
			return nil, &LoadError{Name: name, Err: fmt.Errorf("no sources in %s", base)}
		}
	}
	for _, file := range files {
		if _, err := i.EvalPath(file); err != nil {
			return nil, &LoadError{Name: name, Err: fmt.Errorf("interpret %s: %w", file, err)}
		}
	}
	l.logger.Debug("loaded source namespace",
		zap.String("name", name),
		zap.Int("files", len(files)))
	ns := &Namespace{name: name, interp: i}
	ns.mu = &ns.ownMu
	return ns, nil
}

// nameSteps splits a dotted name into path steps, tolerating one leading dot.
func nameSteps(name string) []string {
	steps := strings.Split(name, ".")
	if len(steps) > 0 && steps[0] == "" {
		steps = steps[1:]
	}
	return steps
}

// isLoadableUnit reports whether name denotes a single source file under the
// current working directory.
func isLoadableUnit(name string) bool {
	steps := nameSteps(name)
	if len(steps) == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(steps...) + ".go")
	return err == nil && !info.IsDir()
}

// isLoadableContainer reports whether name denotes a directory of source
// units under the current working directory.
func isLoadableContainer(name string) bool {
	steps := nameSteps(name)
	if len(steps) == 0 {
		return false
	}
	dir := filepath.Join(steps...)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
	return err == nil && len(matches) > 0
}

// Namespace is a value rooted in a loaded unit. Member resolution evaluates
// symbols inside the owning interpreter.
type Namespace struct {
	name   string
	path   string // import path when loaded through the standard mechanism
	qual   string // identifier qualifier for member lookups, "" when unqualified
	interp *interp.Interpreter
	mu     *sync.Mutex
	ownMu  sync.Mutex
}

// Name returns the dotted name the namespace was loaded as.
func (ns *Namespace) Name() string { return ns.name }

// ImportPath returns the import path for namespaces loaded through the
// standard mechanism, or "" for working-directory source units.
func (ns *Namespace) ImportPath() string { return ns.path }

func (ns *Namespace) String() string { return fmt.Sprintf("namespace(%s)", ns.name) }

// Member resolves a symbol inside the namespace.
func (ns *Namespace) Member(name string) (any, error) {
	expr := name
	if ns.qual != "" {
		expr = ns.qual + "." + name
	}
	ns.mu.Lock()
	v, err := ns.interp.Eval(expr)
	ns.mu.Unlock()
	if err != nil || !v.IsValid() {
		return nil, &NotFoundError{Path: ns.name, Missing: name}
	}
	return v.Interface(), nil
}

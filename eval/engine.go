// Package eval turns code descriptors into callable values: text
// expressions, code blocks, or records carrying both code and context.
// Text is executed by an embedded interpreter, and classification
// between "single expression" and "code block defining named functions"
// is empirical: text is treated as an expression unless it fails to
// parse as one.
package eval

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/vahidzee/dypy/internal/dylog"
	"github.com/vahidzee/dypy/resolve"
)

// Engine is the text-execution facility: it evaluates a single expression in
// a variable scope, or executes a multi-declaration block in an isolated
// scope and reports the names it defined. Every call runs in a fresh
// interpreter so blocks never see each other's declarations.
type Engine struct {
	logger *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger attaches a logger to the engine.
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds a text-execution engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: dylog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = dylog.Nop()
	}
	return e
}

var defaultEngine = NewEngine()

// EvalExpression evaluates code as a single expression. Context entries that
// are loaded namespaces are imported into the interpreter scope; package
// roots referenced by the expression are imported opportunistically.
// A parse failure is reported as a syntax-class error distinguishable from a
// runtime failure of the expression.
func (e *Engine) EvalExpression(code string, context map[string]any) (any, error) {
	expr, err := parser.ParseExpr(code)
	if err != nil {
		return nil, &syntaxError{err: err}
	}
	i := e.newInterp(context)
	importReferenced(i, expr)
	// yaegi evaluates a bare top-level func literal to a *interface{}
	// wrapping nil; the parenthesized form yields the function value.
	if _, ok := expr.(*ast.FuncLit); ok {
		code = "(" + code + ")"
	}
	v, err := i.Eval(code)
	if err != nil {
		return nil, fmt.Errorf("eval: expression: %w", err)
	}
	if !v.IsValid() {
		return nil, nil
	}
	e.logger.Debug("evaluated expression", zap.String("code", code))
	return v.Interface(), nil
}

// ExecBlock executes a code block in an isolated scope seeded only with the
// given context and returns the top-level names it defined.
func (e *Engine) ExecBlock(code string, context map[string]any) (map[string]any, error) {
	defs, _, err := e.execBlock(code, context)
	return defs, err
}

// execBlock additionally reports, per defined function, its parameter names
// in declaration order.
func (e *Engine) execBlock(code string, context map[string]any) (map[string]any, map[string][]string, error) {
	names, params, err := blockDecls(code)
	if err != nil {
		return nil, nil, err
	}
	i := e.newInterp(context)
	if _, err := i.Eval(code); err != nil {
		return nil, nil, fmt.Errorf("eval: code block: %w", err)
	}
	defs := make(map[string]any, len(names))
	for _, name := range names {
		v, err := i.Eval(name)
		if err != nil || !v.IsValid() {
			continue
		}
		defs[name] = v.Interface()
	}
	e.logger.Debug("executed code block", zap.Int("definitions", len(defs)))
	return defs, params, nil
}

// newInterp builds a fresh interpreter with the standard library available
// and every namespace carried by the context imported into scope.
func (e *Engine) newInterp(context map[string]any) *interp.Interpreter {
	i := interp.New(interp.Options{})
	_ = i.Use(stdlib.Symbols)
	for _, v := range context {
		if ns, ok := v.(*resolve.Namespace); ok {
			if p := ns.ImportPath(); p != "" {
				_, _ = i.Eval(fmt.Sprintf("import %q", p))
			}
		}
	}
	return i
}

// importReferenced imports, best effort, every package root the expression
// selects into (e.g. math in math.Sin). Failures are ignored; unresolved
// identifiers surface from the evaluation itself.
func importReferenced(i *interp.Interpreter, expr ast.Expr) {
	ast.Inspect(expr, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				_, _ = i.Eval(fmt.Sprintf("import %q", id.Name))
			}
		}
		return true
	})
}

// blockDecls parses a code block and returns the names of its top-level
// declarations plus the parameter names of each declared function. A parse
// failure is a syntax-class error.
func blockDecls(code string) ([]string, map[string][]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "block.go", "package block\n"+code, parser.SkipObjectResolution)
	if err != nil {
		return nil, nil, &syntaxError{err: err}
	}
	var names []string
	params := make(map[string][]string)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil {
				continue
			}
			names = append(names, d.Name.Name)
			params[d.Name.Name] = paramNames(d.Type)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for _, id := range vs.Names {
					if id.Name != "_" {
						names = append(names, id.Name)
					}
				}
			}
		}
	}
	return names, params, nil
}

func paramNames(ft *ast.FuncType) []string {
	out := []string{}
	if ft.Params == nil {
		return out
	}
	for _, field := range ft.Params.List {
		for _, id := range field.Names {
			out = append(out, id.Name)
		}
	}
	return out
}

package registry

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"

	"github.com/traefik/yaegi/interp"

	"wayfinder/internal/contract"
	"wayfinder/internal/grid"
)

// compile evaluates candidate source in a fresh restricted interpreter
// and returns a constructor for the first declared function that
// builds a value satisfying the algorithm contract.
func compile(source string) (contract.Constructor, error) {
	pkg, names, err := constructorCandidates(source)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no func(width, height int) declaration found")
	}

	i := interp.New(interp.Options{})
	if err := i.Use(gridSymbols); err != nil {
		return nil, fmt.Errorf("prepare interpreter: %w", err)
	}
	if err := i.Use(contractSymbols); err != nil {
		return nil, fmt.Errorf("prepare interpreter: %w", err)
	}
	if _, err := safeEval(i, source); err != nil {
		return nil, fmt.Errorf("evaluate candidate: %w", err)
	}
	// the adapter below needs the contract package in scope; candidates
	// themselves only see the grid types
	if _, err := safeEval(i, `import "wayfinder/internal/contract"`); err != nil {
		return nil, fmt.Errorf("evaluate candidate: %w", err)
	}

	// first declaration whose result converts to the contract interface
	// wins; the conversion is type-checked by the interpreter itself.
	// The adapter runs in the interpreter's main scope, so candidate
	// declarations must be reached through their package qualifier.
	for idx, name := range names {
		ref := name
		if pkg != "main" {
			ref = pkg + "." + name
		}
		adapter := fmt.Sprintf(
			"func __adapt%d(width, height int) contract.Algorithm { return %s(width, height) }",
			idx, ref)
		if _, err := safeEval(i, adapter); err != nil {
			continue
		}
		v, err := safeEval(i, fmt.Sprintf("__adapt%d", idx))
		if err != nil || !v.IsValid() || v.Kind() != reflect.Func {
			continue
		}
		return adaptedConstructor(v), nil
	}
	return nil, fmt.Errorf("no declaration satisfies the algorithm contract")
}

// constructorCandidates scans the source for top-level functions of
// shape func(int, int) with a single result, and reports the package
// the candidate declares them in.
func constructorCandidates(source string) (string, []string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", source, 0)
	if err != nil {
		return "", nil, fmt.Errorf("parse candidate: %w", err)
	}
	var names []string
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Type.Results == nil || len(fn.Type.Results.List) != 1 {
			continue
		}
		params := 0
		allInt := true
		for _, field := range fn.Type.Params.List {
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			params += n
			if id, ok := field.Type.(*ast.Ident); !ok || id.Name != "int" {
				allInt = false
			}
		}
		if params == 2 && allInt {
			names = append(names, fn.Name.Name)
		}
	}
	return file.Name.Name, names, nil
}

// safeEval shields the caller from interpreter panics on pathological
// input.
func safeEval(i *interp.Interpreter, src string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	return i.Eval(src)
}

// adaptedConstructor wraps the interpreted adapter func. Construction
// faults surface as a nil algorithm, never as a panic.
func adaptedConstructor(v reflect.Value) contract.Constructor {
	return func(width, height int) (algo contract.Algorithm) {
		defer func() {
			if r := recover(); r != nil {
				algo = nil
			}
		}()
		res := v.Call([]reflect.Value{reflect.ValueOf(width), reflect.ValueOf(height)})
		if len(res) != 1 {
			return nil
		}
		algo, _ = res[0].Interface().(contract.Algorithm)
		return algo
	}
}

// guarded decorates a loaded algorithm so that a fault inside
// interpreted code degrades to empty results.
type guarded struct {
	inner contract.Algorithm
}

func (s guarded) FindPath(g grid.Grid, start, end grid.Point) (path []grid.Point) {
	defer func() {
		if r := recover(); r != nil {
			path = nil
		}
	}()
	return s.inner.FindPath(g, start, end)
}

func (s guarded) VisitedOrder() (visited []grid.Point) {
	defer func() {
		if r := recover(); r != nil {
			visited = nil
		}
	}()
	return s.inner.VisitedOrder()
}

// Package validate statically checks candidate algorithm sources against
// the pathfinding contract without compiling or running them.
package validate

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"wayfinder/internal/contract"
)

// Source is a parsed candidate handed to each rule.
type Source struct {
	Raw      string
	TypeName string
	Fset     *token.FileSet
	File     *ast.File

	// Populated when the candidate type was found.
	TypeDecl    *ast.TypeSpec
	StructType  *ast.StructType
	Constructor *ast.FuncDecl
	Methods     map[string]*ast.FuncDecl
}

// Rule pairs a name with a check producing zero or more diagnostics.
// Rules are independent: each inspects the parsed source on its own and
// the report's content does not depend on rule order.
type Rule struct {
	Name  string
	Check func(*Source) []Diagnostic
}

// Validator runs a configurable rule list over candidate sources.
type Validator struct {
	Rules []Rule
}

// New returns a Validator with the full default rule set.
func New() *Validator {
	return &Validator{Rules: DefaultRules()}
}

// Validate checks source against the contract for the named type.
// A parse failure short-circuits to a single critical diagnostic.
func (v *Validator) Validate(source, typeName string) Report {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, typeName+".go", source, parser.ParseComments)
	if err != nil {
		d := diag(SeverityCritical, CategorySyntax, fmt.Sprintf("source does not parse: %v", firstParseError(err))).
			withSuggestion("fix the syntax error before any structural check can run")
		return Report{Valid: false, Score: 0, Errors: []Diagnostic{d}}
	}

	src := &Source{Raw: source, TypeName: typeName, Fset: fset, File: file, Methods: map[string]*ast.FuncDecl{}}
	diags := v.inspectStructure(src)
	for _, rule := range v.Rules {
		diags = append(diags, rule.Check(src)...)
	}
	return buildReport(diags)
}

// firstParseError unwraps a scanner.ErrorList to its first entry so the
// diagnostic stays a single line.
func firstParseError(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

// inspectStructure locates the candidate type and verifies the contract
// members. Member checks are skipped when the type itself is missing.
func (v *Validator) inspectStructure(src *Source) []Diagnostic {
	var diags []Diagnostic
	ctorName := contract.ConstructorName(src.TypeName)

	for _, decl := range src.File.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Name.Name != src.TypeName {
					continue
				}
				src.TypeDecl = ts
				if ts.Doc == nil && d.Doc != nil {
					ts.Doc = d.Doc
				}
				if st, ok := ts.Type.(*ast.StructType); ok {
					src.StructType = st
				}
			}
		case *ast.FuncDecl:
			if d.Recv == nil {
				if d.Name.Name == ctorName {
					src.Constructor = d
				}
				continue
			}
			if receiverTypeName(d) == src.TypeName {
				src.Methods[d.Name.Name] = d
			}
		}
	}

	if src.TypeDecl == nil {
		return append(diags, diag(SeverityError, CategoryStructure,
			fmt.Sprintf("type %s is not declared", src.TypeName)).
			withSuggestion(fmt.Sprintf("declare a struct type %s holding the algorithm state", src.TypeName)))
	}
	if src.StructType == nil {
		diags = append(diags, diag(SeverityError, CategoryStructure,
			fmt.Sprintf("type %s must be a struct", src.TypeName)).
			withLine(src.line(src.TypeDecl.Pos())))
	}

	if src.Constructor == nil {
		diags = append(diags, diag(SeverityError, CategoryStructure,
			fmt.Sprintf("constructor %s is missing", ctorName)).
			withSuggestion(fmt.Sprintf("add func %s(width, height int) *%s", ctorName, src.TypeName)))
	} else {
		diags = append(diags, checkParams(src, src.Constructor, contract.ConstructorParams)...)
	}

	for _, name := range []string{contract.MethodFindPath, contract.MethodVisitedOrder} {
		m, ok := src.Methods[name]
		if !ok {
			diags = append(diags, diag(SeverityError, CategoryStructure,
				fmt.Sprintf("method %s is missing on %s", name, src.TypeName)).
				withSuggestion(fmt.Sprintf("implement func (a *%s) %s(...)", src.TypeName, name)))
			continue
		}
		if name == contract.MethodFindPath {
			diags = append(diags, checkParams(src, m, contract.FindPathParams)...)
		}
	}

	if src.StructType != nil {
		fields := map[string]bool{}
		for _, f := range src.StructType.Fields.List {
			for _, n := range f.Names {
				fields[n.Name] = true
			}
		}
		for _, want := range []string{contract.FieldWidth, contract.FieldHeight, contract.FieldVisited} {
			if !fields[want] {
				diags = append(diags, diag(SeverityError, CategoryStructure,
					fmt.Sprintf("field %s is missing on %s", want, src.TypeName)).
					withLine(src.line(src.StructType.Pos())))
			}
		}
	}
	return diags
}

// checkParams compares declared parameter names against the contract's
// expected list, reporting order and naming mismatches together.
func checkParams(src *Source, fn *ast.FuncDecl, want []string) []Diagnostic {
	var got []string
	for _, field := range fn.Type.Params.List {
		for _, n := range field.Names {
			got = append(got, n.Name)
		}
		if len(field.Names) == 0 {
			got = append(got, "_")
		}
	}
	if len(got) == len(want) {
		match := true
		for i := range got {
			if got[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}
	return []Diagnostic{diag(SeverityError, CategorySignature,
		fmt.Sprintf("%s parameters are (%s), expected (%s)", fn.Name.Name, strings.Join(got, ", "), strings.Join(want, ", "))).
		withLine(src.line(fn.Pos())).
		withSuggestion("rename the parameters to match the contract so callers can rely on the signature")}
}

func receiverTypeName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	t := fn.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	if id, ok := t.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func (s *Source) line(pos token.Pos) int {
	return s.Fset.Position(pos).Line
}

// findPath returns the FindPath method body, nil when absent.
func (s *Source) findPath() *ast.FuncDecl {
	return s.Methods[contract.MethodFindPath]
}

package validate

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"wayfinder/internal/contract"
)

// DefaultRules returns the built-in rule list: logic risks, style,
// best-practice suggestions and performance smells. Structural and
// signature checks run before the rules and are not part of this list.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "unbounded-loop", Check: checkUnboundedLoop},
		{Name: "visited-bookkeeping", Check: checkVisitedBookkeeping},
		{Name: "no-path-fallback", Check: checkNoPathFallback},
		{Name: "bounds-guard", Check: checkBoundsGuard},
		{Name: "frontier-structure", Check: checkFrontierStructure},
		{Name: "grid-unused", Check: checkGridUnused},
		{Name: "panic-in-search", Check: checkPanicInSearch},
		{Name: "crowded-brace", Check: checkCrowdedBrace},
		{Name: "entry-guard", Check: checkEntryGuard},
		{Name: "println-builtin", Check: checkPrintlnBuiltin},
		{Name: "dot-import", Check: checkDotImport},
		{Name: "naming", Check: checkNaming},
		{Name: "doc-comment", Check: checkDocComment},
		{Name: "magic-cells", Check: checkMagicCells},
		{Name: "index-loop", Check: checkIndexLoop},
		{Name: "nested-loops", Check: checkNestedLoops},
	}
}

// checkUnboundedLoop flags any `for {}` whose body has no reachable exit.
func checkUnboundedLoop(src *Source) []Diagnostic {
	var diags []Diagnostic
	ast.Inspect(src.File, func(n ast.Node) bool {
		loop, ok := n.(*ast.ForStmt)
		if !ok || loop.Cond != nil {
			return true
		}
		if hasLoopExit(loop.Body) {
			return true
		}
		diags = append(diags, diag(SeverityError, CategoryLogic,
			"unconditional for loop has no break or return").
			withLine(src.line(loop.Pos())).
			withSuggestion("bound the loop on the frontier size or add an explicit exit condition"))
		return true
	})
	return diags
}

func hasLoopExit(body *ast.BlockStmt) bool {
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.ForStmt, *ast.RangeStmt, *ast.FuncLit:
			// break/return inside a nested loop or closure does not
			// exit the outer loop.
			return false
		case *ast.BranchStmt:
			if s.Tok == token.BREAK {
				found = true
			}
		case *ast.ReturnStmt:
			found = true
		}
		return !found
	})
	return found
}

// checkVisitedBookkeeping warns when FindPath never touches the
// VisitedOrder field, meaning the visit trace cannot be reconstructed.
func checkVisitedBookkeeping(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil {
		return nil
	}
	touched := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if ok && sel.Sel.Name == contract.FieldVisited {
			touched = true
		}
		return !touched
	})
	if touched {
		return nil
	}
	return []Diagnostic{diag(SeverityWarning, CategoryLogic,
		"FindPath never records the visit order").
		withLine(src.line(fn.Pos())).
		withSuggestion(fmt.Sprintf("append each examined coordinate to the %s field as the search expands", contract.FieldVisited))}
}

// checkNoPathFallback warns when FindPath has no return that yields an
// empty result, since the contract requires an empty path when the end
// is unreachable.
func checkNoPathFallback(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil {
		return nil
	}
	hasEmpty := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		ret, ok := n.(*ast.ReturnStmt)
		if !ok {
			return true
		}
		for _, res := range ret.Results {
			switch e := res.(type) {
			case *ast.Ident:
				if e.Name == "nil" {
					hasEmpty = true
				}
			case *ast.CompositeLit:
				if len(e.Elts) == 0 {
					hasEmpty = true
				}
			}
		}
		return !hasEmpty
	})
	if hasEmpty {
		return nil
	}
	return []Diagnostic{diag(SeverityWarning, CategoryLogic,
		"FindPath has no empty-path return for unreachable targets").
		withLine(src.line(fn.Pos())).
		withSuggestion("return nil or an empty slice when the frontier drains without reaching the end")}
}

// checkBoundsGuard warns when FindPath indexes the grid without any
// visible bounds condition.
func checkBoundsGuard(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil {
		return nil
	}
	indexes, guarded := false, false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch e := n.(type) {
		case *ast.IndexExpr:
			indexes = true
		case *ast.CallExpr:
			if sel, ok := e.Fun.(*ast.SelectorExpr); ok {
				if sel.Sel.Name == "In" || sel.Sel.Name == "Walkable" {
					guarded = true
				}
			}
		case *ast.BinaryExpr:
			if e.Op == token.LSS || e.Op == token.GEQ || e.Op == token.GTR || e.Op == token.LEQ {
				guarded = true
			}
		}
		return true
	})
	if !indexes || guarded {
		return nil
	}
	return []Diagnostic{diag(SeverityWarning, CategoryLogic,
		"grid cells are indexed without a bounds check").
		withLine(src.line(fn.Pos())).
		withSuggestion("guard neighbor access with g.In or g.Walkable before reading a cell")}
}

// frontier identifier fragments accepted as evidence of a real
// traversal structure.
var frontierHints = []string{"queue", "stack", "frontier", "open", "heap", "next"}

func checkFrontierStructure(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil {
		return nil
	}
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		lower := strings.ToLower(id.Name)
		for _, hint := range frontierHints {
			if strings.Contains(lower, hint) {
				found = true
			}
		}
		return !found
	})
	if found {
		return nil
	}
	return []Diagnostic{diag(SeverityWarning, CategoryLogic,
		"FindPath shows no frontier structure (queue, stack or heap)").
		withLine(src.line(fn.Pos())).
		withSuggestion("drive the search from an explicit frontier collection instead of ad-hoc iteration")}
}

// checkGridUnused errors when the grid parameter of FindPath is never
// read, which means the search cannot be consulting the map at all.
func checkGridUnused(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil || len(fn.Type.Params.List) == 0 {
		return nil
	}
	names := fn.Type.Params.List[0].Names
	if len(names) == 0 || names[0].Name == "_" {
		return []Diagnostic{diag(SeverityError, CategoryLogic,
			"FindPath ignores its grid parameter").withLine(src.line(fn.Pos()))}
	}
	gridName := names[0].Name
	used := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == gridName {
			used = true
		}
		return !used
	})
	if used {
		return nil
	}
	return []Diagnostic{diag(SeverityError, CategoryLogic,
		fmt.Sprintf("FindPath never reads its grid parameter %s", gridName)).
		withLine(src.line(fn.Pos())).
		withSuggestion("consult the grid for walls and bounds while expanding the search")}
}

func checkPanicInSearch(src *Source) []Diagnostic {
	var diags []Diagnostic
	for _, name := range []string{contract.MethodFindPath, contract.MethodVisitedOrder} {
		fn := src.Methods[name]
		if fn == nil || fn.Body == nil {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			if id, ok := call.Fun.(*ast.Ident); ok && id.Name == "panic" {
				diags = append(diags, diag(SeverityWarning, CategoryStyle,
					fmt.Sprintf("%s panics instead of returning an empty result", name)).
					withLine(src.line(call.Pos())).
					withSuggestion("return an empty slice; callers treat the search as total"))
			}
			return true
		})
	}
	return diags
}

// checkCrowdedBrace warns when a statement sits on the same line as the
// block's opening brace.
func checkCrowdedBrace(src *Source) []Diagnostic {
	var diags []Diagnostic
	ast.Inspect(src.File, func(n ast.Node) bool {
		block, ok := n.(*ast.BlockStmt)
		if !ok || len(block.List) == 0 {
			return true
		}
		if src.line(block.Lbrace) == src.line(block.List[0].Pos()) {
			diags = append(diags, diag(SeverityWarning, CategoryStyle,
				"statement on the same line as the opening brace").
				withLine(src.line(block.Lbrace)).
				withSuggestion("start the block body on its own line"))
		}
		return true
	})
	return diags
}

// checkEntryGuard suggests input validation when FindPath runs its
// whole search without a single conditional check.
func checkEntryGuard(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil {
		return nil
	}
	guarded := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if _, ok := n.(*ast.IfStmt); ok {
			guarded = true
		}
		return !guarded
	})
	if guarded {
		return nil
	}
	return []Diagnostic{diag(SeverityInfo, CategoryPractice,
		"FindPath has no guard conditions around its search").
		withLine(src.line(fn.Pos())).
		withSuggestion("check that start and end are walkable before searching and bail out early when they are not")}
}

func checkPrintlnBuiltin(src *Source) []Diagnostic {
	var diags []Diagnostic
	ast.Inspect(src.File, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if id, ok := call.Fun.(*ast.Ident); ok && (id.Name == "println" || id.Name == "print") {
			diags = append(diags, diag(SeverityWarning, CategoryStyle,
				fmt.Sprintf("builtin %s used for output", id.Name)).
				withLine(src.line(call.Pos())).
				withSuggestion("drop the debug output or use the fmt package"))
		}
		return true
	})
	return diags
}

func checkDotImport(src *Source) []Diagnostic {
	var diags []Diagnostic
	for _, imp := range src.File.Imports {
		if imp.Name != nil && imp.Name.Name == "." {
			diags = append(diags, diag(SeverityWarning, CategoryStyle,
				fmt.Sprintf("dot import of %s pollutes the package namespace", imp.Path.Value)).
				withLine(src.line(imp.Pos())).
				withSuggestion("import the package under its own name"))
		}
	}
	return diags
}

func checkNaming(src *Source) []Diagnostic {
	var diags []Diagnostic
	if src.TypeDecl != nil {
		name := src.TypeDecl.Name.Name
		if name != "" && (name[0] < 'A' || name[0] > 'Z') {
			diags = append(diags, diag(SeverityWarning, CategoryStyle,
				fmt.Sprintf("type %s is unexported", name)).withLine(src.line(src.TypeDecl.Pos())))
		}
	}
	for name, fn := range src.Methods {
		if name == "" || (name[0] >= 'A' && name[0] <= 'Z') {
			continue
		}
		diags = append(diags, diag(SeverityWarning, CategoryStyle,
			fmt.Sprintf("method %s is unexported and invisible to the loader", name)).
			withLine(src.line(fn.Pos())).
			withSuggestion("export the method with an uppercase name"))
	}
	return diags
}

func checkDocComment(src *Source) []Diagnostic {
	if src.TypeDecl == nil || src.TypeDecl.Doc != nil {
		return nil
	}
	return []Diagnostic{diag(SeverityInfo, CategoryPractice,
		fmt.Sprintf("type %s has no doc comment", src.TypeName)).
		withLine(src.line(src.TypeDecl.Pos())).
		withSuggestion("describe the algorithm and its traversal strategy above the type")}
}

// checkMagicCells suggests named constants when cell values are compared
// as bare integer literals.
func checkMagicCells(src *Source) []Diagnostic {
	var diags []Diagnostic
	ast.Inspect(src.File, func(n ast.Node) bool {
		bin, ok := n.(*ast.BinaryExpr)
		if !ok || (bin.Op != token.EQL && bin.Op != token.NEQ) {
			return true
		}
		lit, index := literalAndIndex(bin.X, bin.Y)
		if lit == nil || index == nil {
			return true
		}
		if lit.Kind == token.INT && lit.Value != "0" {
			diags = append(diags, diag(SeverityInfo, CategoryPractice,
				fmt.Sprintf("cell compared against magic number %s", lit.Value)).
				withLine(src.line(bin.Pos())).
				withSuggestion("compare against the named cell constants instead of raw integers"))
		}
		return true
	})
	return diags
}

func literalAndIndex(a, b ast.Expr) (*ast.BasicLit, *ast.IndexExpr) {
	if lit, ok := a.(*ast.BasicLit); ok {
		if idx, ok := b.(*ast.IndexExpr); ok {
			return lit, idx
		}
	}
	if lit, ok := b.(*ast.BasicLit); ok {
		if idx, ok := a.(*ast.IndexExpr); ok {
			return lit, idx
		}
	}
	return nil, nil
}

// checkIndexLoop suggests range where a counted loop only walks a
// collection by length.
func checkIndexLoop(src *Source) []Diagnostic {
	var diags []Diagnostic
	ast.Inspect(src.File, func(n ast.Node) bool {
		loop, ok := n.(*ast.ForStmt)
		if !ok || loop.Cond == nil {
			return true
		}
		bin, ok := loop.Cond.(*ast.BinaryExpr)
		if !ok || bin.Op != token.LSS {
			return true
		}
		call, ok := bin.Y.(*ast.CallExpr)
		if !ok {
			return true
		}
		if id, ok := call.Fun.(*ast.Ident); ok && id.Name == "len" {
			diags = append(diags, diag(SeverityInfo, CategoryPractice,
				"counted loop over len() where range would do").
				withLine(src.line(loop.Pos())).
				withSuggestion("iterate with range unless the index is mutated inside the loop"))
		}
		return true
	})
	return diags
}

// checkNestedLoops flags loop nesting of depth three or more inside
// FindPath, a common source of quadratic frontier scans.
func checkNestedLoops(src *Source) []Diagnostic {
	fn := src.findPath()
	if fn == nil || fn.Body == nil {
		return nil
	}
	depth := maxLoopDepth(fn.Body, 0)
	if depth < 3 {
		return nil
	}
	return []Diagnostic{diag(SeverityWarning, CategoryPerformance,
		fmt.Sprintf("FindPath nests loops %d deep", depth)).
		withLine(src.line(fn.Pos())).
		withSuggestion("track visited cells in a map to avoid rescanning the frontier")}
}

func maxLoopDepth(n ast.Node, depth int) int {
	max := depth
	ast.Inspect(n, func(child ast.Node) bool {
		if child == n {
			return true
		}
		switch child.(type) {
		case *ast.ForStmt, *ast.RangeStmt:
			if d := maxLoopDepth(child, depth+1); d > max {
				max = d
			}
			return false
		}
		return true
	})
	return max
}

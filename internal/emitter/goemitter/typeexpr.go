package goemitter

import (
	"go/ast"
	"go/parser"
)

// typeRefs parses the Go type expression typ and returns the package
// qualifiers it uses and its other identifiers.
func typeRefs(typ string) (qualifiers, idents []string, err error) {
	expr, err := parser.ParseExpr(typ)
	if err != nil {
		return nil, nil, err
	}
	ast.Inspect(expr, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			if x, ok := n.X.(*ast.Ident); ok {
				qualifiers = append(qualifiers, x.Name)
				return false
			}
		case *ast.Ident:
			idents = append(idents, n.Name)
		}
		return true
	})
	return qualifiers, idents, nil
}

// selectorBases returns every identifier of file that is the left operand
// of a selector, which includes each package name the file refers to.
func selectorBases(file *ast.File) map[string]bool {
	used := map[string]bool{}
	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if x, ok := sel.X.(*ast.Ident); ok {
				used[x.Name] = true
			}
		}
		return true
	})
	return used
}

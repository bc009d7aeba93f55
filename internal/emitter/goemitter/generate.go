package goemitter

import (
	"errors"
	"fmt"
	"go/token"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/dop251/goja"

	"github.com/mark3labs/restbuilder/internal/logx"
	"github.com/mark3labs/restbuilder/internal/naming"
	"github.com/mark3labs/restbuilder/internal/spec"
)

// DefaultRuntimeImport is the import path of the reply-wrapper runtime the
// generated code dispatches through.
const DefaultRuntimeImport = "github.com/mark3labs/restreply"

const scriptingImport = "github.com/dop251/goja"

// GenerateOptions controls code generation.
type GenerateOptions struct {
	// Package is the generated package name; defaults to the lower-cased
	// Api name.
	Package string
	// RuntimeImport overrides DefaultRuntimeImport.
	RuntimeImport string
	Logger        logx.Logger
}

// Artifacts holds the generated Go sources of one Api. Bindings is nil when
// no class is scriptable.
type Artifacts struct {
	Declarations []byte
	Definitions  []byte
	Factory      []byte
	Bindings     []byte
}

// Generate renders api in four phases: declarations, definitions, factory
// and scripting bindings. It has no side effects; the same Api and options
// always produce byte-identical artifacts.
func Generate(api *spec.Api, opts GenerateOptions) (*Artifacts, error) {
	if api == nil {
		return nil, fmt.Errorf("goemitter: nil Api")
	}
	logger := logx.OrNop(opts.Logger)
	pkg := strings.TrimSpace(opts.Package)
	if pkg == "" {
		pkg = PackageName(api.Name)
	}
	if !isPackageName(pkg) {
		return nil, &EmissionError{Node: api.Name, Message: fmt.Sprintf("%q is not a valid Go package name", pkg)}
	}
	runtimeImport := strings.TrimSpace(opts.RuntimeImport)
	if runtimeImport == "" {
		runtimeImport = DefaultRuntimeImport
	}

	view, err := newViewBuilder(api).build()
	if err != nil {
		return nil, err
	}

	// Candidate imports of a phase; the ones a file does not use are dropped
	// after rendering. An include naming the same package replaces the
	// emitter's own import of it.
	std := func(paths ...string) []importView {
		out := make([]importView, 0, len(paths)+len(view.Includes)+1)
		for _, p := range paths {
			iv := importView{Path: p}
			if !slices.Contains(view.Includes, iv) {
				out = append(out, iv)
			}
		}
		out = append(out, importView{Alias: "restreply", Path: runtimeImport})
		return append(out, view.Includes...)
	}

	out := &Artifacts{}
	phases := []phase{
		{"declarations.go.tmpl", std("context", "encoding/json", "sync"), &out.Declarations},
		{"definitions.go.tmpl", std("context", "encoding/json", "fmt", "net/http", "net/url"), &out.Definitions},
		{"factory.go.tmpl", std(), &out.Factory},
	}
	if view.Scripting != nil {
		phases = append(phases, phase{"bindings.go.tmpl", []importView{{Path: "fmt"}, {Path: scriptingImport}}, &out.Bindings})
	}

	for _, ph := range phases {
		src, err := executeTemplate(ph.template, fileData{Package: pkg, Imports: ph.imports, Api: view}, logger)
		var ee *EmissionError
		switch {
		case errors.As(err, &ee):
			return nil, err
		case err != nil:
			return nil, fmt.Errorf("goemitter: render %s: %w", ph.template, err)
		}
		*ph.dst = src
	}
	logger.Debug("generated api", "api", api.Name, "classes", len(view.Classes), "bindings", out.Bindings != nil)
	return out, nil
}

type phase struct {
	template string
	imports  []importView
	dst      *[]byte
}

// scripting builds the binding phase data and syntax checks its JS prelude.
func (vb *viewBuilder) scripting(v *apiView) (*scriptingView, error) {
	sv := &scriptingView{
		Func:         "Register" + v.Type + "Scripting",
		PreludeConst: lowerFirst(v.Type) + "ScriptingPrelude",
		Global:       strconv.Quote("__restbuilderModules_" + v.Type),
	}
	if !vb.api.Exported {
		sv.Func = "register" + naming.Accessor(v.Type) + "Scripting"
	}
	for _, id := range []string{sv.Func, sv.PreludeConst} {
		if err := vb.claim(id, vb.api.Name+" scripting bindings"); err != nil {
			return nil, err
		}
	}

	seen := map[string]bool{}
	vb.api.Walk(func(chain []*spec.Class) {
		c := chain[len(chain)-1]
		if c.ScriptingURI == "" {
			return
		}
		calls := make([]string, 0, len(chain))
		for _, cc := range chain {
			calls = append(calls, naming.Accessor(cc.Name)+"()")
		}
		id := vb.resolver.ModuleID(c)
		seen[id] = true
		sv.Modules = append(sv.Modules, moduleView{ID: strconv.Quote(id), Expr: "api." + strings.Join(calls, ".")})
	})
	if len(seen) != len(sv.Modules) {
		return nil, &EmissionError{Node: vb.api.Name, Message: "two classes declare the same scripting module identifier"}
	}

	js, err := renderText("prelude.js.tmpl", sv)
	if err != nil {
		return nil, fmt.Errorf("goemitter: render scripting prelude: %w", err)
	}
	if _, err := goja.Compile(v.Name+"_prelude.js", js, false); err != nil {
		return nil, &EmissionError{Node: vb.api.Name, Message: "scripting prelude does not compile", Cause: err}
	}
	sv.Prelude = goLiteral(js)
	return sv, nil
}

// goLiteral renders s as a raw string literal when possible.
func goLiteral(s string) string {
	if strings.ContainsRune(s, '`') || strings.ContainsRune(s, '\r') {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}

// PackageName derives a Go package name from an Api name.
func PackageName(apiName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(apiName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	name := strings.TrimLeftFunc(b.String(), unicode.IsDigit)
	if name == "" {
		return "api"
	}
	return name
}

func isPackageName(s string) bool {
	return s != "_" && token.IsIdentifier(s)
}

// FileStem is the file name prefix of the artifacts of an Api, in snake case.
func FileStem(apiName string) string {
	var b strings.Builder
	runes := []rune(apiName)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		return "api"
	}
	return stem
}

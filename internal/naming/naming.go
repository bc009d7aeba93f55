// Package naming maps schema classes to fully qualified names, Go
// identifiers and scripting module identifiers.
package naming

import (
	"fmt"
	"go/token"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mark3labs/restbuilder/internal/spec"
)

// FQN is the fully qualified name of a class. Namespace is dotted and may be
// empty; Names runs from the outermost scope that contributes to the name
// down to the class itself.
type FQN struct {
	Namespace string
	Names     []string
}

// String renders the dotted form, e.g. "example.Blog.Posts".
func (f FQN) String() string {
	parts := make([]string, 0, len(f.Names)+1)
	if f.Namespace != "" {
		parts = append(parts, f.Namespace)
	}
	parts = append(parts, f.Names...)
	return strings.Join(parts, ".")
}

// Resolver computes names for one Api. It is not safe for concurrent use.
type Resolver struct {
	api   *spec.Api
	fqns  map[*spec.Class]FQN
	title cases.Caser
	// importNames are the package names of every include in the Api.
	importNames []string
}

// NewResolver resolves every class of api up front.
func NewResolver(api *spec.Api) *Resolver {
	r := &Resolver{
		api:   api,
		fqns:  make(map[*spec.Class]FQN),
		title: cases.Title(language.English, cases.NoLower),
	}
	for _, inc := range api.Includes {
		r.importNames = append(r.importNames, ImportName(inc))
	}
	api.Walk(func(chain []*spec.Class) {
		c := chain[len(chain)-1]
		r.fqns[c] = r.Resolve(chain)
		for _, inc := range c.Includes {
			r.importNames = append(r.importNames, ImportName(inc))
		}
	})
	return r
}

// Resolve returns the FQN of the last class of chain (root first). A class
// inherits the namespace and name of its parent unless it sets its own
// namespace, which restarts the name at the class.
func (r *Resolver) Resolve(chain []*spec.Class) FQN {
	f := FQN{Namespace: r.api.Namespace, Names: []string{r.api.Name}}
	for _, c := range chain {
		if c.OverridesNamespace {
			f = FQN{Namespace: c.Namespace}
		}
		f.Names = append(f.Names[:len(f.Names):len(f.Names)], c.Name)
	}
	return f
}

// FQN returns the precomputed FQN of c.
func (r *Resolver) FQN(c *spec.Class) FQN {
	f, ok := r.fqns[c]
	if !ok {
		panic(fmt.Sprintf("naming: class %q does not belong to api %q", c.Name, r.api.Name))
	}
	return f
}

// GoName joins the names of f into one CamelCase identifier. The namespace
// does not take part; it maps to the generated package.
func (r *Resolver) GoName(f FQN, exported bool) string {
	var b strings.Builder
	for _, n := range f.Names {
		for _, part := range strings.FieldsFunc(n, isSeparator) {
			b.WriteString(r.title.String(part))
		}
	}
	name := b.String()
	if !exported {
		name = lowerFirst(name)
		if token.IsKeyword(name) {
			name += "_"
		}
	}
	return name
}

// TypeName is the Go type name of c.
func (r *Resolver) TypeName(c *spec.Class) string {
	return r.GoName(r.FQN(c), c.Exported)
}

// ApiTypeName is the Go type name of the Api struct.
func (r *Resolver) ApiTypeName() string {
	return r.GoName(FQN{Names: []string{r.api.Name}}, r.api.Exported)
}

// ModuleID is the scripting module identifier of c: its URI, suffixed with
// @major.minor when the Api declares a version. Empty when c has no URI.
func (r *Resolver) ModuleID(c *spec.Class) string {
	if c.ScriptingURI == "" {
		return ""
	}
	if !r.api.Version.IsSet() {
		return c.ScriptingURI
	}
	return fmt.Sprintf("%s@%d.%d", c.ScriptingURI, r.api.Version.Major, r.api.Version.Minor)
}

// reserved holds names the generated method bodies declare or use as
// package qualifiers.
var reserved = map[string]bool{
	"ctx":       true,
	"req":       true,
	"r":         true,
	"body":      true,
	"context":   true,
	"fmt":       true,
	"url":       true,
	"http":      true,
	"json":      true,
	"sync":      true,
	"goja":      true,
	"restreply": true,
}

// Identifiers hands out the Go parameter names of one method. A schema name
// that is a keyword, a reserved name or an already taken name gets trailing
// underscores until it is free. Asking twice for the same name returns the
// same identifier.
type Identifiers struct {
	taken map[string]bool
	names map[string]string
}

// NewIdentifiers starts an allocator that also avoids taken.
func NewIdentifiers(taken ...string) *Identifiers {
	ids := &Identifiers{taken: make(map[string]bool, len(taken)), names: make(map[string]string)}
	for _, t := range taken {
		ids.taken[t] = true
	}
	return ids
}

// Name returns the identifier of the schema name s.
func (ids *Identifiers) Name(s string) string {
	if n, ok := ids.names[s]; ok {
		return n
	}
	n := s
	for token.IsKeyword(n) || reserved[n] || ids.taken[n] {
		n += "_"
	}
	ids.taken[n] = true
	ids.names[s] = n
	return n
}

// Identifiers returns an allocator for the parameters of one method. It
// avoids the package names of every include of the Api and extra.
func (r *Resolver) Identifiers(extra ...string) *Identifiers {
	ids := NewIdentifiers(extra...)
	for _, name := range r.importNames {
		ids.taken[name] = true
	}
	return ids
}

// ImportName is the name an include is referred to by in generated code:
// its alias, or the package name Go conventionally derives from the path.
func ImportName(inc spec.Include) string {
	if inc.Alias != "" {
		return inc.Alias
	}
	return PathName(inc.Path)
}

// PathName guesses the package name of an import path from its last
// element. A trailing major version element such as v2 is skipped, a go-
// prefix is dropped and the name ends at the first character that cannot
// appear in an identifier, so gopkg.in/yaml.v3 is yaml.
func PathName(importPath string) string {
	base := path.Base(importPath)
	if strings.HasPrefix(base, "v") {
		if _, err := strconv.Atoi(base[1:]); err == nil {
			if dir := path.Dir(importPath); dir != "." {
				base = path.Base(dir)
			}
		}
	}
	base = strings.TrimPrefix(base, "go-")
	if i := strings.IndexFunc(base, func(r rune) bool {
		return !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
	}); i >= 0 {
		base = base[:i]
	}
	return base
}

// Accessor is the exported Go method name of a schema method or
// sub-resource accessor.
func Accessor(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func isSeparator(r rune) bool { return r == '_' }

package goemitter

import (
	"fmt"
	"go/token"
	"net/textproto"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/mark3labs/restbuilder/internal/naming"
	"github.com/mark3labs/restbuilder/internal/spec"
)

type fileData struct {
	Package string
	Imports []importView
	Api     *apiView
}

type importView struct {
	Alias string
	Path  string
}

func (iv importView) name() string {
	return naming.ImportName(spec.Include{Path: iv.Path, Alias: iv.Alias})
}

type apiView struct {
	Name         string
	Type         string
	Ctor         string
	Version      string
	VersionConst string
	Roots        []accessorView
	Classes      []*classView
	Global       *globalView
	Scripting    *scriptingView
	Includes     []importView
}

type globalView struct {
	Name       string
	Once       string
	Instance   string
	AutoCreate bool
}

type scriptingView struct {
	Func         string
	PreludeConst string
	Prelude      string
	Global       string
	Modules      []moduleView
}

type moduleView struct {
	ID   string
	Expr string
}

type accessorView struct {
	Name      string
	Type      string
	Interface string
}

type classView struct {
	FQN       string
	Type      string
	Interface string
	Base      string
	Subs      []accessorView
	Methods   []*methodView
}

type methodView struct {
	Name        string
	Verb        string
	Doc         string
	Params      string
	Result      string
	Return      string
	Exception   string
	MethodConst string
	BaseURL     string
	Path        string
	RawURL      string
	Form        bool
	Body        bool
	Values      []setView
	Headers     []setView
	Defaults    *defaultsView
}

type setView struct {
	Dest  string
	Key   string
	Value string
}

type defaultsView struct {
	Name    string
	Params  string
	Result  string
	Args    string
	Omitted string
}

// viewBuilder turns an Api into template data and checks that the Go names
// it produces do not collide.
type viewBuilder struct {
	api      *spec.Api
	resolver *naming.Resolver
	// topLevel maps package-level Go identifiers to the node that owns them.
	topLevel map[string]string
	// packages are the qualifiers schema types may use.
	packages map[string]bool
}

func newViewBuilder(api *spec.Api) *viewBuilder {
	return &viewBuilder{
		api:      api,
		resolver: naming.NewResolver(api),
		topLevel: make(map[string]string),
		packages: map[string]bool{"json": true},
	}
}

func (vb *viewBuilder) claim(ident, node string) error {
	if prev, ok := vb.topLevel[ident]; ok {
		return &EmissionError{Node: node, Message: fmt.Sprintf("Go identifier %s is already used by %s", ident, prev)}
	}
	vb.topLevel[ident] = node
	return nil
}

func (vb *viewBuilder) build() (*apiView, error) {
	r := vb.resolver
	api := vb.api
	includes, err := vb.includes()
	if err != nil {
		return nil, err
	}
	v := &apiView{
		Name:     api.Name,
		Includes: includes,
		Type:     r.ApiTypeName(),
		Ctor:     r.GoName(naming.FQN{Names: []string{"new", api.Name}}, api.Exported),
	}
	if err := vb.claim(v.Type, api.Name); err != nil {
		return nil, err
	}
	if err := vb.claim(v.Ctor, api.Name+" constructor"); err != nil {
		return nil, err
	}
	if api.Version.IsSet() {
		v.Version = api.Version.String()
		v.VersionConst = v.Type + "Version"
		if err := vb.claim(v.VersionConst, api.Name+" version"); err != nil {
			return nil, err
		}
	}
	if api.GlobalName != "" {
		base := lowerFirst(api.GlobalName)
		v.Global = &globalView{
			Name:       api.GlobalName,
			Once:       base + "Once",
			Instance:   base + "Instance",
			AutoCreate: api.AutoCreate,
		}
		for _, id := range []string{v.Global.Name, v.Global.Once, v.Global.Instance} {
			if err := vb.claim(id, api.Name+" global instance"); err != nil {
				return nil, err
			}
		}
	}

	var firstErr error
	api.Walk(func(chain []*spec.Class) {
		if firstErr != nil {
			return
		}
		cv, err := vb.class(chain)
		if err != nil {
			firstErr = err
			return
		}
		v.Classes = append(v.Classes, cv)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	for _, c := range api.Classes {
		v.Roots = append(v.Roots, vb.accessor(c))
	}

	if api.HasScripting() {
		sv, err := vb.scripting(v)
		if err != nil {
			return nil, err
		}
		v.Scripting = sv
	}
	for _, inc := range includes {
		name := inc.name()
		if owner, ok := vb.topLevel[name]; ok {
			return nil, &EmissionError{Node: api.Name, Message: fmt.Sprintf("include %s is imported as %s, which is also the Go name of %s", inc.Path, name, owner)}
		}
	}
	return v, nil
}

func (vb *viewBuilder) accessor(c *spec.Class) accessorView {
	t := vb.resolver.TypeName(c)
	return accessorView{Name: naming.Accessor(c.Name), Type: t, Interface: t + "API"}
}

func (vb *viewBuilder) class(chain []*spec.Class) (*classView, error) {
	c := chain[len(chain)-1]
	fqn := vb.resolver.FQN(c).String()
	cv := &classView{
		FQN:       fqn,
		Type:      vb.resolver.TypeName(c),
		Base:      c.Base,
		Interface: vb.resolver.TypeName(c) + "API",
	}
	if err := vb.claim(cv.Type, fqn); err != nil {
		return nil, err
	}
	if err := vb.claim(cv.Interface, fqn); err != nil {
		return nil, err
	}

	// Method set of the generated type, including the embedded base field.
	members := map[string]string{"api": "field"}
	if c.Base != "" {
		if _, err := vb.typeIdents(fqn, "base type", c.Base); err != nil {
			return nil, err
		}
		members[embeddedFieldName(c.Base)] = "embedded base " + c.Base
	}
	member := func(name, what string) error {
		if prev, ok := members[name]; ok {
			return &EmissionError{Node: fqn, Message: fmt.Sprintf("%s %s collides with %s", what, name, prev)}
		}
		members[name] = what
		return nil
	}

	for _, sub := range c.Classes {
		av := vb.accessor(sub)
		if err := member(av.Name, "accessor"); err != nil {
			return nil, err
		}
		cv.Subs = append(cv.Subs, av)
	}
	for _, m := range c.Methods {
		mv, err := vb.method(chain, m, fqn+"."+m.Name)
		if err != nil {
			return nil, err
		}
		if err := member(mv.Name, "method"); err != nil {
			return nil, err
		}
		if mv.Defaults != nil {
			if err := member(mv.Defaults.Name, "method"); err != nil {
				return nil, err
			}
		}
		cv.Methods = append(cv.Methods, mv)
	}
	return cv, nil
}

func (vb *viewBuilder) method(chain []*spec.Class, m *spec.Method, node string) (*methodView, error) {
	mv := &methodView{
		Name:        naming.Accessor(m.Name),
		Verb:        string(m.Verb),
		Return:      m.ReturnType,
		Exception:   m.ExceptionType,
		MethodConst: methodConst(m.Verb),
		Body:        m.BodyType != "",
		Form:        m.BodyType == "" && m.SendParamsAsBody,
	}
	mv.Result = fmt.Sprintf("*restreply.Reply[%s, %s]", mv.Return, mv.Exception)

	// The result types are spelled again inside the method body, so no
	// parameter may shadow an identifier they use.
	var inBody []string
	for _, t := range []struct{ what, typ string }{{"return type", m.ReturnType}, {"exception type", m.ExceptionType}} {
		idents, err := vb.typeIdents(node, t.what, t.typ)
		if err != nil {
			return nil, err
		}
		inBody = append(inBody, idents...)
	}
	ids := vb.resolver.Identifiers(inBody...)

	params := []string{"ctx context.Context"}
	for _, p := range m.Params {
		if _, err := vb.typeIdents(node+"."+p.Name, "parameter type", p.Type); err != nil {
			return nil, err
		}
		params = append(params, ids.Name(p.Name)+" "+p.Type)
	}
	if mv.Body {
		if _, err := vb.typeIdents(node, "body type", m.BodyType); err != nil {
			return nil, err
		}
		params = append(params, "body "+m.BodyType)
	}
	mv.Params = strings.Join(params, ", ")

	if segs, ok := spec.ComposePath(chain, m); ok {
		mv.BaseURL = vb.baseURL()
		mv.Path, mv.Doc = pathExpr(segs, ids)
	} else {
		raw := m.Path.(*spec.RawURL)
		mv.RawURL = strconv.Quote(raw.URL)
		mv.Doc = raw.URL
	}
	mv.Doc = singleLine(mv.Doc)

	dest := "Query"
	if mv.Form {
		dest = "Form"
	}
	for _, fp := range vb.api.MergedParams(chain) {
		mv.Values = append(mv.Values, setView{Dest: dest, Key: strconv.Quote(fp.Key), Value: fixedValue(fp.Value)})
	}
	for _, p := range m.QueryParams {
		mv.Values = append(mv.Values, setView{Dest: dest, Key: strconv.Quote(p.Name), Value: "fmt.Sprint(" + ids.Name(p.Name) + ")"})
	}
	for _, fp := range vb.api.MergedHeaders(chain, m) {
		mv.Headers = append(mv.Headers, setView{Key: strconv.Quote(textproto.CanonicalMIMEHeaderKey(fp.Key)), Value: fixedValue(fp.Value)})
	}

	if m.HasDefaults() {
		dv, err := defaults(m, mv, ids, node)
		if err != nil {
			return nil, err
		}
		mv.Defaults = dv
	}
	return mv, nil
}

// typeIdents checks that typ is a Go type expression whose package
// qualifiers are all imported, and returns the unqualified identifiers it
// uses.
func (vb *viewBuilder) typeIdents(node, what, typ string) ([]string, error) {
	quals, idents, err := typeRefs(typ)
	if err != nil {
		return nil, &EmissionError{Node: node, Message: fmt.Sprintf("%s %q is not a Go type expression", what, typ), Cause: err}
	}
	for _, q := range quals {
		if !vb.packages[q] {
			return nil, &EmissionError{Node: node, Message: fmt.Sprintf("%s %q refers to package %s, which no Include declares", what, typ, q)}
		}
	}
	return idents, nil
}

// singleLine collapses runs of white space so s fits in a line comment.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (vb *viewBuilder) baseURL() string {
	if vb.api.BaseURL.Computed {
		return "fmt.Sprint(" + vb.api.BaseURL.Text + ")"
	}
	return strconv.Quote(vb.api.BaseURL.Text)
}

// pathExpr renders segs as a Go string expression and as a human readable
// template for doc comments.
func pathExpr(segs []spec.PathSegment, ids *naming.Identifiers) (expr, doc string) {
	if len(segs) == 0 {
		return `""`, "/"
	}
	parts := make([]string, 0, len(segs))
	var d strings.Builder
	for _, s := range segs {
		switch s := s.(type) {
		case *spec.LiteralSegment:
			if s.Value.Computed {
				parts = append(parts, "("+s.Value.Text+")")
				d.WriteString("{expr}")
			} else {
				parts = append(parts, strconv.Quote(s.Value.Text))
				d.WriteString(s.Value.Text)
			}
		case *spec.ParamSegment:
			parts = append(parts, "url.PathEscape(fmt.Sprint("+ids.Name(s.Param.Name)+"))")
			d.WriteString("{" + s.Param.Name + "}")
		default:
			panic(fmt.Sprintf("goemitter: unknown path segment %T", s))
		}
	}
	return strings.Join(parts, " + "), d.String()
}

func fixedValue(e spec.Expression) string {
	if e.Computed {
		return "fmt.Sprint(" + e.Text + ")"
	}
	return strconv.Quote(e.Text)
}

func defaults(m *spec.Method, mv *methodView, ids *naming.Identifiers, node string) (*defaultsView, error) {
	dv := &defaultsView{Name: mv.Name + "WithDefaults", Result: mv.Result}
	params := []string{"ctx context.Context"}
	args := []string{"ctx"}
	var omitted []string
	for _, p := range m.Params {
		id := ids.Name(p.Name)
		if p.Default == nil {
			params = append(params, id+" "+p.Type)
			args = append(args, id)
			continue
		}
		lit, err := defaultLiteral(p)
		if err != nil {
			return nil, &EmissionError{Node: node + "." + p.Name, Message: err.Error()}
		}
		args = append(args, lit)
		omitted = append(omitted, p.Name)
	}
	if mv.Body {
		params = append(params, "body "+m.BodyType)
		args = append(args, "body")
	}
	dv.Params = strings.Join(params, ", ")
	dv.Args = strings.Join(args, ", ")
	dv.Omitted = strings.Join(omitted, ", ")
	return dv, nil
}

// defaultLiteral renders a parameter default. Literal defaults of string
// parameters are quoted; other literal defaults are used as written.
func defaultLiteral(p spec.Parameter) (string, error) {
	d := p.Default
	if d.Computed {
		return "(" + d.Text + ")", nil
	}
	if p.Type == "string" {
		return strconv.Quote(d.Text), nil
	}
	if strings.TrimSpace(d.Text) == "" {
		return "", fmt.Errorf("empty default for parameter %s of type %s", p.Name, p.Type)
	}
	return d.Text, nil
}

func methodConst(v spec.Verb) string {
	s := string(v)
	return "http.Method" + s[:1] + strings.ToLower(s[1:])
}

// owned maps the package names generated method bodies refer to onto
// their import paths. An empty path means no include may use the name.
var owned = map[string]string{
	"context":   "context",
	"fmt":       "fmt",
	"url":       "net/url",
	"http":      "net/http",
	"json":      "encoding/json",
	"sync":      "sync",
	"goja":      scriptingImport,
	"restreply": "",
	"ctx":       "",
	"req":       "",
	"r":         "",
	"body":      "",
}

// includes collects the imports declared anywhere in the Api, first
// declaration wins, sorted by path. Each include gets a package name no
// other import or generated local uses.
func (vb *viewBuilder) includes() ([]importView, error) {
	byPath := map[string]importView{}
	byName := map[string]string{}
	var order []string
	add := func(node string, incs []spec.Include) error {
		for _, inc := range incs {
			if prev, ok := byPath[inc.Path]; ok {
				if prev.Alias != inc.Alias {
					return &EmissionError{Node: node, Message: fmt.Sprintf("include %s is imported as both %q and %q", inc.Path, prev.Alias, inc.Alias)}
				}
				continue
			}
			name := naming.ImportName(inc)
			if !token.IsIdentifier(name) || name == "_" {
				return &EmissionError{Node: node, Message: fmt.Sprintf("include %s has no usable package name; give it an alias", inc.Path)}
			}
			if p, ok := owned[name]; ok && p != inc.Path {
				return &EmissionError{Node: node, Message: fmt.Sprintf("include %s is imported as %s, a name the generated code uses itself", inc.Path, name)}
			}
			if p, ok := byName[name]; ok {
				return &EmissionError{Node: node, Message: fmt.Sprintf("includes %s and %s are both imported as %s", p, inc.Path, name)}
			}
			byName[name] = inc.Path
			iv := importView{Alias: inc.Alias, Path: inc.Path}
			if iv.Alias == "" && name != path.Base(inc.Path) {
				iv.Alias = name
			}
			byPath[inc.Path] = iv
			order = append(order, inc.Path)
			vb.packages[name] = true
		}
		return nil
	}
	if err := add(vb.api.Name, vb.api.Includes); err != nil {
		return nil, err
	}
	var firstErr error
	vb.api.Walk(func(chain []*spec.Class) {
		c := chain[len(chain)-1]
		if firstErr == nil {
			firstErr = add(vb.resolver.FQN(c).String(), c.Includes)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	slices.Sort(order)
	out := make([]importView, 0, len(order))
	for _, p := range order {
		out = append(out, byPath[p])
	}
	return out, nil
}

// embeddedFieldName is the field name Go gives an embedded type expression
// such as *pkg.Base.
func embeddedFieldName(typ string) string {
	t := strings.TrimPrefix(strings.TrimSpace(typ), "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		t = t[i+1:]
	}
	return t
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

package spec

// Abstract model of an API surface, built once per compilation run by Build
// and read-only afterwards.

// DefaultExceptionType is used when neither a method nor any ancestor names
// an exception type.
const DefaultExceptionType = "json.RawMessage"

// DefaultReturnType is used when a method does not name a return type.
const DefaultReturnType = "json.RawMessage"

type Verb string

const (
	GET     Verb = "GET"
	POST    Verb = "POST"
	PUT     Verb = "PUT"
	DELETE  Verb = "DELETE"
	PATCH   Verb = "PATCH"
	HEAD    Verb = "HEAD"
	OPTIONS Verb = "OPTIONS"
	TRACE   Verb = "TRACE"
	CONNECT Verb = "CONNECT"
)

// Verbs lists the recognised verbs.
var Verbs = []Verb{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS, TRACE, CONNECT}

// ParseVerb matches s case-sensitively against the recognised verbs.
func ParseVerb(s string) (Verb, bool) {
	for _, v := range Verbs {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

type Api struct {
	Name                 string
	Namespace            string
	Exported             bool
	DefaultExceptionType string
	Includes             []Include
	GlobalName           string
	AutoCreate           bool
	BaseURL              Expression
	Version              Version
	Params               []FixedParam
	Headers              []FixedParam
	Classes              []*Class
}

type Class struct {
	Name     string
	Exported bool
	// Namespace replaces the inherited namespace when OverridesNamespace is set.
	Namespace            string
	OverridesNamespace   bool
	ScriptingURI         string
	Base                 string
	DefaultExceptionType string
	Includes             []Include
	Path                 Expression
	Params               []FixedParam
	Headers              []FixedParam
	Classes              []*Class
	Methods              []*Method
}

// SubResources returns the nested resource accessors of c, keyed by class
// name, in declaration order.
func (c *Class) SubResources() []SubResource {
	out := make([]SubResource, 0, len(c.Classes))
	for _, child := range c.Classes {
		out = append(out, SubResource{Key: child.Name, Class: child})
	}
	return out
}

type SubResource struct {
	Key   string
	Class *Class
}

type Method struct {
	Name             string
	Verb             Verb
	BodyType         string
	ReturnType       string
	ExceptionType    string
	SendParamsAsBody bool
	Path             PathSpec
	// Params holds every formal parameter in declaration order. PathParams and
	// QueryParams partition it by whether the path template binds the name.
	Params      []Parameter
	PathParams  []Parameter
	QueryParams []Parameter
	Headers     []FixedParam
}

// HasDefaults reports whether any formal parameter carries a default value.
func (m *Method) HasDefaults() bool {
	for _, p := range m.Params {
		if p.Default != nil {
			return true
		}
	}
	return false
}

// Parameter is a named, typed formal parameter of a method. Type is an opaque
// Go type expression.
type Parameter struct {
	Name    string
	Type    string
	Default *Expression
}

func (p Parameter) HasDefault() bool { return p.Default != nil }

// FixedParam is a statically attached query parameter or header.
type FixedParam struct {
	Key   string
	Value Expression
}

// Include is an import required by the generated code.
type Include struct {
	Path  string
	Alias string
}

// Walk calls fn for every class in depth-first declaration order with the
// chain of classes from the root down to and including the visited class.
func (a *Api) Walk(fn func(chain []*Class)) {
	var visit func(chain []*Class, classes []*Class)
	visit = func(chain []*Class, classes []*Class) {
		for _, c := range classes {
			next := append(chain[:len(chain):len(chain)], c)
			fn(next)
			visit(next, c.Classes)
		}
	}
	visit(nil, a.Classes)
}

// HasScripting reports whether any class declares a scripting module URI.
func (a *Api) HasScripting() bool {
	found := false
	a.Walk(func(chain []*Class) {
		if chain[len(chain)-1].ScriptingURI != "" {
			found = true
		}
	})
	return found
}

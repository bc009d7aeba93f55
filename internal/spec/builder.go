package spec

import (
	"errors"
	"fmt"
	"go/token"
	"io"
	"net/textproto"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mark3labs/restbuilder/internal/logx"
	"github.com/mark3labs/restbuilder/internal/schema"
)

// EventSource yields structural events; *schema.Reader implements it.
type EventSource interface {
	Next() (schema.Event, error)
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	maxDepth int
	logger   logx.Logger
}

// WithMaxDepth bounds class nesting. Values <= 0 keep the default of 32.
func WithMaxDepth(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithLogger sets the logger used for debug tracing of built nodes.
func WithLogger(l logx.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = logx.OrNop(l) }
}

type scopeKind uint8

const (
	kindApi scopeKind = iota + 1
	kindClass
	kindMethod
	kindBaseURL
	kindInclude
	kindFixedParam
	kindHeader
	kindPath
	kindFormalParam
)

// children maps a scope kind to the elements it may contain.
var children = map[scopeKind]map[string]scopeKind{
	kindApi: {
		"BaseUrl": kindBaseURL,
		"Include": kindInclude,
		"Param":   kindFixedParam,
		"Header":  kindHeader,
		"Class":   kindClass,
	},
	kindClass: {
		"Path":    kindPath,
		"Include": kindInclude,
		"Param":   kindFixedParam,
		"Header":  kindHeader,
		"Class":   kindClass,
		"Method":  kindMethod,
	},
	kindMethod: {
		"Path":   kindPath,
		"Param":  kindFormalParam,
		"Header": kindHeader,
	},
}

var allowedAttrs = map[scopeKind][]string{
	kindApi:         {"name", "baseUrl", "version", "globalName", "autoCreate", "namespace", "export", "exceptionType"},
	kindClass:       {"name", "path", "namespace", "scriptingUri", "base", "exceptionType", "export"},
	kindMethod:      {"name", "verb", "body", "returns", "exceptionType", "postParams", "path"},
	kindBaseURL:     {"expr"},
	kindInclude:     {"alias"},
	kindFixedParam:  {"key", "expr", "value"},
	kindHeader:      {"key", "expr", "value"},
	kindPath:        {"expr"},
	kindFormalParam: {"name", "type", "default", "defaultExpr"},
}

var requiredAttrs = map[scopeKind][]string{
	kindApi:         {"name"},
	kindClass:       {"name"},
	kindMethod:      {"name"},
	kindFixedParam:  {"key"},
	kindHeader:      {"key"},
	kindFormalParam: {"name", "type"},
}

func acceptsText(k scopeKind) bool {
	switch k {
	case kindBaseURL, kindInclude, kindFixedParam, kindHeader, kindPath:
		return true
	default:
		return false
	}
}

type attr struct {
	name  string
	value string
}

// scope is one open element on the builder stack.
type scope struct {
	kind    scopeKind
	element string
	pos     schema.Pos
	attrs   []attr
	sealed  bool
	text    strings.Builder

	api    *Api
	class  *Class
	method *methodDraft

	// accessors holds the accessor keys of nested classes and methods.
	accessors  map[string]string
	paramKeys  map[string]bool
	headerKeys map[string]bool
	includes   map[string]bool
	pathSet    bool
	baseURLSet bool
}

type methodDraft struct {
	m             *Method
	pieces        []pathPiece
	params        map[string]Parameter
	exceptionType string
}

func (s *scope) attr(name string) (string, bool) {
	for _, a := range s.attrs {
		if a.name == name {
			return a.value, true
		}
	}
	return "", false
}

type builder struct {
	cfg   buildConfig
	stack []*scope
	api   *Api
	done  bool
}

// Build consumes src and returns the validated API tree. Any error aborts the
// run; no partially built tree is returned.
func Build(src EventSource, opts ...BuildOption) (*Api, error) {
	cfg := buildConfig{maxDepth: 32, logger: logx.Nop{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &builder{cfg: cfg}
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := b.handle(ev); err != nil {
			return nil, err
		}
	}
	if len(b.stack) != 0 {
		top := b.top()
		return nil, &schema.SyntaxError{Line: top.pos.Line, Column: top.pos.Column, Message: fmt.Sprintf("element <%s> is not closed", top.element)}
	}
	if !b.done {
		return nil, &schema.SyntaxError{Message: "document has no <Api> root element"}
	}
	return b.api, nil
}

func (b *builder) top() *scope {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

func (b *builder) handle(ev schema.Event) error {
	top := b.top()
	switch ev.Kind {
	case schema.EventAttr:
		if top == nil || top.sealed {
			return &schema.SyntaxError{Line: ev.Pos.Line, Column: ev.Pos.Column, Message: fmt.Sprintf("attribute %q is not attached to an opening element", ev.Name)}
		}
		top.attrs = append(top.attrs, attr{name: ev.Name, value: ev.Value})
		return nil
	case schema.EventEnter:
		if top != nil {
			if err := b.seal(top); err != nil {
				return err
			}
		}
		return b.enter(ev)
	case schema.EventText:
		if top == nil {
			return &schema.SyntaxError{Line: ev.Pos.Line, Column: ev.Pos.Column, Message: "text outside of root element"}
		}
		if err := b.seal(top); err != nil {
			return err
		}
		if !acceptsText(top.kind) {
			return b.errorf(UnknownElement, ev.Pos, "#text", "", "text content is not allowed inside <%s>", top.element)
		}
		top.text.WriteString(ev.Value)
		return nil
	case schema.EventExit:
		if top == nil || top.element != ev.Name {
			return &schema.SyntaxError{Line: ev.Pos.Line, Column: ev.Pos.Column, Message: fmt.Sprintf("unexpected closing element </%s>", ev.Name)}
		}
		if err := b.seal(top); err != nil {
			return err
		}
		if err := b.exit(top); err != nil {
			return err
		}
		b.stack = b.stack[:len(b.stack)-1]
		return nil
	default:
		return fmt.Errorf("spec: unknown event kind %v", ev.Kind)
	}
}

func (b *builder) enter(ev schema.Event) error {
	parent := b.top()
	var kind scopeKind
	if parent == nil {
		if b.done {
			return &schema.SyntaxError{Line: ev.Pos.Line, Column: ev.Pos.Column, Message: "multiple root elements"}
		}
		if ev.Name != "Api" {
			return b.errorf(UnknownElement, ev.Pos, ev.Name, "", "root element must be <Api>, got <%s>", ev.Name)
		}
		kind = kindApi
	} else {
		k, ok := children[parent.kind][ev.Name]
		if !ok {
			return b.errorf(UnknownElement, ev.Pos, ev.Name, "", "element <%s> is not allowed inside <%s>", ev.Name, parent.element)
		}
		kind = k
	}
	if kind == kindClass && b.classDepth() >= b.cfg.maxDepth {
		return b.errorf(InvalidValue, ev.Pos, ev.Name, "", "class nesting exceeds the maximum depth of %d", b.cfg.maxDepth)
	}
	b.stack = append(b.stack, &scope{kind: kind, element: ev.Name, pos: ev.Pos})
	return nil
}

func (b *builder) classDepth() int {
	n := 0
	for _, s := range b.stack {
		if s.kind == kindClass {
			n++
		}
	}
	return n
}

// seal validates the attributes of s once its content starts and creates the
// node for structural scopes.
func (b *builder) seal(s *scope) error {
	if s.sealed {
		return nil
	}
	s.sealed = true

	allowed := allowedAttrs[s.kind]
	for _, a := range s.attrs {
		if !slices.Contains(allowed, a.name) {
			return b.errorf(UnknownElement, s.pos, s.element, a.name, "attribute %q is not allowed on <%s>", a.name, s.element)
		}
	}
	for _, name := range requiredAttrs[s.kind] {
		if v, ok := s.attr(name); !ok || strings.TrimSpace(v) == "" {
			return b.errorf(MissingAttribute, s.pos, s.element, name, "<%s> requires attribute %q", s.element, name)
		}
	}

	switch s.kind {
	case kindApi:
		return b.sealApi(s)
	case kindClass:
		return b.sealClass(s)
	case kindMethod:
		return b.sealMethod(s)
	}
	return nil
}

func (b *builder) sealApi(s *scope) error {
	name, _ := s.attr("name")
	if err := b.checkIdent(s, "name", name); err != nil {
		return err
	}
	api := &Api{Name: name, Exported: true}
	b.api = api
	s.api = api
	s.accessors = map[string]string{}
	s.paramKeys = map[string]bool{}
	s.headerKeys = map[string]bool{}
	s.includes = map[string]bool{}

	if v, ok := s.attr("baseUrl"); ok {
		api.BaseURL = Literal(strings.TrimSpace(v))
		s.baseURLSet = true
	}
	if v, ok := s.attr("version"); ok {
		ver, err := ParseVersion(v)
		if err != nil {
			return b.wrap(InvalidVersion, s.pos, s.element, "version", err)
		}
		api.Version = ver
	}
	if v, ok := s.attr("globalName"); ok && strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		if err := b.checkIdent(s, "globalName", v); err != nil {
			return err
		}
		api.GlobalName = v
	}
	var err error
	if api.AutoCreate, err = b.boolAttr(s, "autoCreate", false); err != nil {
		return err
	}
	if api.Exported, err = b.boolAttr(s, "export", true); err != nil {
		return err
	}
	if api.AutoCreate && api.GlobalName == "" {
		return b.errorf(MissingAttribute, s.pos, s.element, "globalName", "autoCreate requires a globalName for the shared instance")
	}
	api.Namespace, _ = s.attr("namespace")
	api.Namespace = strings.TrimSpace(api.Namespace)
	api.DefaultExceptionType, _ = s.attr("exceptionType")
	api.DefaultExceptionType = strings.TrimSpace(api.DefaultExceptionType)
	return nil
}

func (b *builder) sealClass(s *scope) error {
	name, _ := s.attr("name")
	if err := b.checkIdent(s, "name", name); err != nil {
		return err
	}
	c := &Class{Name: name}
	s.class = c
	s.accessors = map[string]string{}
	s.paramKeys = map[string]bool{}
	s.headerKeys = map[string]bool{}
	s.includes = map[string]bool{}

	var err error
	if c.Exported, err = b.boolAttr(s, "export", true); err != nil {
		return err
	}
	if v, ok := s.attr("path"); ok {
		c.Path = Literal(v)
		s.pathSet = true
	}
	if v, ok := s.attr("namespace"); ok {
		c.Namespace = strings.TrimSpace(v)
		c.OverridesNamespace = true
	}
	c.ScriptingURI = attrTrim(s, "scriptingUri")
	c.Base = attrTrim(s, "base")
	c.DefaultExceptionType = attrTrim(s, "exceptionType")
	return nil
}

func (b *builder) sealMethod(s *scope) error {
	name, _ := s.attr("name")
	if err := b.checkIdent(s, "name", name); err != nil {
		return err
	}
	m := &Method{Name: name, Verb: GET}
	if v, ok := s.attr("verb"); ok {
		verb, ok := ParseVerb(strings.TrimSpace(v))
		if !ok {
			return b.errorf(InvalidVerb, s.pos, s.element, "verb", "verb %q is not one of %s", v, verbList())
		}
		m.Verb = verb
	}
	m.BodyType = attrTrim(s, "body")
	m.ReturnType = attrTrim(s, "returns")
	if m.ReturnType == "" {
		m.ReturnType = DefaultReturnType
	}
	var err error
	if m.SendParamsAsBody, err = b.boolAttr(s, "postParams", false); err != nil {
		return err
	}
	d := &methodDraft{m: m, params: map[string]Parameter{}, exceptionType: attrTrim(s, "exceptionType")}
	if v, ok := s.attr("path"); ok {
		d.pieces = append(d.pieces, pathPiece{expr: Literal(v)})
	}
	s.method = d
	s.headerKeys = map[string]bool{}
	return nil
}

func (b *builder) exit(s *scope) error {
	switch s.kind {
	case kindApi:
		if !s.baseURLSet {
			return b.errorf(MissingAttribute, s.pos, s.element, "baseUrl", "<Api> requires a base URL (baseUrl attribute or <BaseUrl> element)")
		}
		b.done = true
		b.cfg.logger.Debug("api built", "api", s.api.Name, "classes", len(s.api.Classes))
		return nil
	case kindClass:
		return b.exitClass(s)
	case kindMethod:
		return b.exitMethod(s)
	case kindBaseURL:
		parent := b.parent()
		if parent.baseURLSet {
			return b.errorf(DuplicateName, s.pos, s.element, "baseUrl", "base URL declared more than once")
		}
		expr, err := b.leafExpr(s)
		if err != nil {
			return err
		}
		parent.api.BaseURL = expr
		parent.baseURLSet = true
		return nil
	case kindInclude:
		return b.exitInclude(s)
	case kindFixedParam, kindHeader:
		return b.exitFixed(s)
	case kindPath:
		return b.exitPath(s)
	case kindFormalParam:
		return b.exitFormalParam(s)
	}
	return nil
}

func (b *builder) exitClass(s *scope) error {
	parent := b.parent()
	c := s.class
	key := accessorKey(c.Name)
	if prev, dup := parent.accessors[key]; dup {
		return b.errorf(DuplicateName, s.pos, s.element, "name", "%s %q already declared in %s", prev, c.Name, parent.describe())
	}
	parent.accessors[key] = "class"
	switch parent.kind {
	case kindApi:
		parent.api.Classes = append(parent.api.Classes, c)
	case kindClass:
		parent.class.Classes = append(parent.class.Classes, c)
	}
	b.cfg.logger.Debug("class built", "class", c.Name, "methods", len(c.Methods), "classes", len(c.Classes))
	return nil
}

func (b *builder) exitMethod(s *scope) error {
	d := s.method
	m := d.m

	ps, bound, err := buildMethodPath(d.pieces, d.params)
	if err != nil {
		return b.wrap(InvalidPath, s.pos, s.element, "path", err)
	}
	if _, raw := ps.(*RawURL); raw && m.HasDefaults() {
		return b.errorf(InvalidPath, s.pos, s.element, "path", "a raw URL path cannot be combined with parameter defaults")
	}
	m.Path = ps
	for _, p := range m.Params {
		if bound[p.Name] {
			m.PathParams = append(m.PathParams, p)
		} else {
			m.QueryParams = append(m.QueryParams, p)
		}
	}
	m.ExceptionType = b.resolveException(d.exceptionType)

	parent := b.parent()
	key := accessorKey(m.Name)
	if prev, dup := parent.accessors[key]; dup {
		return b.errorf(DuplicateName, s.pos, s.element, "name", "%s %q already declared in %s", prev, m.Name, parent.describe())
	}
	parent.accessors[key] = "method"
	parent.class.Methods = append(parent.class.Methods, m)
	b.cfg.logger.Debug("method built", "method", m.Name, "verb", string(m.Verb))
	return nil
}

// resolveException picks the method's own type, else the nearest enclosing
// class default, else the API default, else DefaultExceptionType.
func (b *builder) resolveException(own string) string {
	if own != "" {
		return own
	}
	for i := len(b.stack) - 1; i >= 0; i-- {
		s := b.stack[i]
		switch s.kind {
		case kindClass:
			if s.class.DefaultExceptionType != "" {
				return s.class.DefaultExceptionType
			}
		case kindApi:
			if s.api.DefaultExceptionType != "" {
				return s.api.DefaultExceptionType
			}
		}
	}
	return DefaultExceptionType
}

func (b *builder) exitInclude(s *scope) error {
	parent := b.parent()
	path := strings.TrimSpace(s.text.String())
	if path == "" {
		return b.errorf(InvalidValue, s.pos, s.element, "", "<Include> requires an import path as text")
	}
	if parent.includes[path] {
		return b.errorf(DuplicateName, s.pos, s.element, "", "include %q declared twice in %s", path, parent.describe())
	}
	parent.includes[path] = true
	inc := Include{Path: path, Alias: attrTrim(s, "alias")}
	switch parent.kind {
	case kindApi:
		parent.api.Includes = append(parent.api.Includes, inc)
	case kindClass:
		parent.class.Includes = append(parent.class.Includes, inc)
	}
	return nil
}

func (b *builder) exitFixed(s *scope) error {
	parent := b.parent()
	key := attrTrim(s, "key")
	value, err := b.leafExpr(s)
	if err != nil {
		return err
	}
	fp := FixedParam{Key: key, Value: value}

	if s.kind == kindHeader {
		canon := textproto.CanonicalMIMEHeaderKey(key)
		if parent.headerKeys[canon] {
			return b.errorf(DuplicateName, s.pos, s.element, "key", "header %q declared twice in %s", key, parent.describe())
		}
		parent.headerKeys[canon] = true
		switch parent.kind {
		case kindApi:
			parent.api.Headers = append(parent.api.Headers, fp)
		case kindClass:
			parent.class.Headers = append(parent.class.Headers, fp)
		case kindMethod:
			parent.method.m.Headers = append(parent.method.m.Headers, fp)
		}
		return nil
	}

	if parent.paramKeys[key] {
		return b.errorf(DuplicateName, s.pos, s.element, "key", "parameter %q declared twice in %s", key, parent.describe())
	}
	parent.paramKeys[key] = true
	switch parent.kind {
	case kindApi:
		parent.api.Params = append(parent.api.Params, fp)
	case kindClass:
		parent.class.Params = append(parent.class.Params, fp)
	}
	return nil
}

func (b *builder) exitPath(s *scope) error {
	parent := b.parent()
	expr, err := b.leafExpr(s)
	if err != nil {
		return err
	}
	switch parent.kind {
	case kindClass:
		if parent.pathSet {
			return b.errorf(DuplicateName, s.pos, s.element, "path", "class %q declares its path more than once", parent.class.Name)
		}
		parent.class.Path = expr
		parent.pathSet = true
	case kindMethod:
		parent.method.pieces = append(parent.method.pieces, pathPiece{expr: expr})
	}
	return nil
}

func (b *builder) exitFormalParam(s *scope) error {
	d := b.parent().method
	name := attrTrim(s, "name")
	if err := b.checkIdent(s, "name", name); err != nil {
		return err
	}
	if _, dup := d.params[name]; dup {
		return b.errorf(DuplicateName, s.pos, s.element, "name", "parameter %q declared twice in method %q", name, d.m.Name)
	}
	p := Parameter{Name: name, Type: attrTrim(s, "type")}
	lit, hasLit := s.attr("default")
	code, hasCode := s.attr("defaultExpr")
	switch {
	case hasLit && hasCode:
		return b.errorf(InvalidValue, s.pos, s.element, "defaultExpr", "parameter %q sets both default and defaultExpr", name)
	case hasLit:
		e := Literal(lit)
		p.Default = &e
	case hasCode:
		if strings.TrimSpace(code) == "" {
			return b.errorf(InvalidValue, s.pos, s.element, "defaultExpr", "parameter %q has an empty defaultExpr", name)
		}
		e := Computed(strings.TrimSpace(code))
		p.Default = &e
	}
	d.params[name] = p
	d.m.Params = append(d.m.Params, p)
	return nil
}

// leafExpr reads the value of a leaf element from its text or value
// attribute, honouring expr="true".
func (b *builder) leafExpr(s *scope) (Expression, error) {
	computed, err := b.boolAttr(s, "expr", false)
	if err != nil {
		return Expression{}, err
	}
	text := s.text.String()
	if v, ok := s.attr("value"); ok {
		if strings.TrimSpace(text) != "" {
			return Expression{}, b.errorf(InvalidValue, s.pos, s.element, "value", "value given both as attribute and as text")
		}
		text = v
	}
	text = strings.TrimSpace(text)
	if computed {
		if text == "" {
			return Expression{}, b.errorf(InvalidValue, s.pos, s.element, "expr", "computed expression is empty")
		}
		return Computed(text), nil
	}
	return Literal(text), nil
}

func (b *builder) parent() *scope {
	return b.stack[len(b.stack)-2]
}

func (s *scope) describe() string {
	switch s.kind {
	case kindApi:
		return "api " + strconv.Quote(s.api.Name)
	case kindClass:
		return "class " + strconv.Quote(s.class.Name)
	case kindMethod:
		return "method " + strconv.Quote(s.method.m.Name)
	default:
		return "<" + s.element + ">"
	}
}

func (b *builder) boolAttr(s *scope, name string, def bool) (bool, error) {
	v, ok := s.attr(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	out, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, b.errorf(InvalidValue, s.pos, s.element, name, "attribute %q must be a boolean, got %q", name, v)
	}
	return out, nil
}

func (b *builder) checkIdent(s *scope, attrName, v string) error {
	if !token.IsIdentifier(v) {
		return b.errorf(InvalidName, s.pos, s.element, attrName, "%q is not a valid identifier", v)
	}
	return nil
}

// location describes the open scopes, innermost last.
func (b *builder) location(element, attribute string) Location {
	loc := Location{Element: element, Attribute: attribute}
	for _, s := range b.stack {
		switch {
		case s.api != nil:
			loc.Api = s.api.Name
		case s.class != nil:
			loc.Classes = append(loc.Classes, s.class.Name)
		case s.method != nil:
			loc.Method = s.method.m.Name
		}
	}
	return loc
}

func (b *builder) errorf(kind ErrorKind, pos schema.Pos, element, attribute, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Location: b.location(element, attribute), Pos: pos}
}

func (b *builder) wrap(kind ErrorKind, pos schema.Pos, element, attribute string, cause error) error {
	return &Error{Kind: kind, Message: cause.Error(), Location: b.location(element, attribute), Pos: pos, Cause: cause}
}

func attrTrim(s *scope, name string) string {
	v, _ := s.attr(name)
	return strings.TrimSpace(v)
}

func verbList() string {
	names := make([]string, len(Verbs))
	for i, v := range Verbs {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

// accessorKey folds the first rune to upper case, matching how accessor names
// are exported in generated code.
func accessorKey(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

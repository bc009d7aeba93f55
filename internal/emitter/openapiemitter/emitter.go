// Package openapiemitter exports an Api as an OpenAPI 3 document.
package openapiemitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/restbuilder/internal/emitter/goemitter"
	"github.com/mark3labs/restbuilder/internal/emitter/output"
	"github.com/mark3labs/restbuilder/internal/logx"
	"github.com/mark3labs/restbuilder/internal/naming"
	"github.com/mark3labs/restbuilder/internal/spec"
)

// Format selects the serialization of the document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" and "json", case-insensitively. Empty
// means YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("openapiemitter: unknown format %q (want yaml or json)", s)
	}
}

// Options controls how the OpenAPI document is written.
type Options struct {
	OutDir string // required; target directory
	Format Format
	// Swagger2 writes a Swagger 2.0 document converted from the OpenAPI 3
	// one instead.
	Swagger2 bool
	Force    bool
	DryRun   bool
	Check    bool
	Logger   logx.Logger
}

// Result returns the planned files. In check mode Diffs lists stale files.
type Result struct {
	Planned []output.PlannedFile
	Diffs   []output.Diff
}

// Emit builds, validates and writes the OpenAPI document of api.
func Emit(ctx context.Context, api *spec.Api, opts Options) (*Result, error) {
	if api == nil {
		return nil, fmt.Errorf("openapiemitter: nil Api")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("openapiemitter: OutDir is required")
	}
	logger := logx.OrNop(opts.Logger)

	files, err := Render(ctx, api, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Planned: output.Plan(files)}
	switch {
	case opts.Check:
		diffs, err := output.Check(opts.OutDir, files)
		res.Diffs = diffs
		if err != nil {
			return res, fmt.Errorf("openapiemitter: %w", err)
		}
	case opts.DryRun:
	default:
		if err := output.Write(opts.OutDir, files, opts.Force); err != nil {
			return nil, fmt.Errorf("openapiemitter: %w", err)
		}
		logger.Info("generated openapi document", "api", api.Name, "dir", opts.OutDir)
	}
	return res, nil
}

// Render builds the document of api and serializes it under its file name,
// <stem>.openapi.<format> or <stem>.swagger.<format>. Only Format and
// Swagger2 of opts are used. Nothing is written.
func Render(ctx context.Context, api *spec.Api, opts Options) (output.Files, error) {
	if api == nil {
		return nil, fmt.Errorf("openapiemitter: nil Api")
	}
	format := opts.Format
	if format == "" {
		format = FormatYAML
	}

	doc, err := Build(ctx, api)
	if err != nil {
		return nil, err
	}
	name := goemitter.FileStem(api.Name) + ".openapi." + string(format)
	var data []byte
	if opts.Swagger2 {
		name = goemitter.FileStem(api.Name) + ".swagger." + string(format)
		data, err = MarshalSwagger2(doc, format)
	} else {
		data, err = Marshal(doc, format)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return output.Files{name: data}, nil
}

// Build converts api into a validated OpenAPI 3 document.
func Build(ctx context.Context, api *spec.Api) (*openapi3.T, error) {
	b := &docBuilder{
		api:      api,
		resolver: naming.NewResolver(api),
		doc: &openapi3.T{
			OpenAPI: "3.0.3",
			Info:    &openapi3.Info{Title: api.Name, Version: "0.0.0"},
			Paths:   openapi3.Paths{},
		},
		templates: map[string]string{},
	}
	if api.Version.IsSet() {
		b.doc.Info.Version = api.Version.String()
	}
	if !api.BaseURL.Computed && api.BaseURL.Text != "" {
		b.doc.Servers = openapi3.Servers{{URL: api.BaseURL.Text}}
	}

	var firstErr error
	api.Walk(func(chain []*spec.Class) {
		if firstErr != nil {
			return
		}
		for _, m := range chain[len(chain)-1].Methods {
			if err := b.addOperation(chain, m); err != nil {
				firstErr = err
				return
			}
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	if err := b.doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapiemitter: generated document is invalid: %w", err)
	}
	return b.doc, nil
}

type docBuilder struct {
	api      *spec.Api
	resolver *naming.Resolver
	doc      *openapi3.T
	// templates maps a normalized path (placeholders emptied) to the first
	// template registered for it.
	templates map[string]string
}

func (b *docBuilder) addOperation(chain []*spec.Class, m *spec.Method) error {
	fqn := b.resolver.FQN(chain[len(chain)-1]).String()
	op := &openapi3.Operation{
		OperationID: fqn + "." + m.Name,
		Tags:        []string{fqn},
		Responses:   responses(m),
	}

	var (
		path     string
		pathArgs []*openapi3.Parameter
	)
	if segs, ok := spec.ComposePath(chain, m); ok {
		path, pathArgs = template(segs)
	} else {
		raw := m.Path.(*spec.RawURL)
		server, p, err := splitRawURL(raw.URL)
		if err != nil {
			return fmt.Errorf("openapiemitter: %s.%s: %w", fqn, m.Name, err)
		}
		op.Servers = &openapi3.Servers{{URL: server}}
		path = p
	}
	path, pathArgs = b.canonical(path, pathArgs)
	op.Summary = string(m.Verb) + " " + path

	params := openapi3.Parameters{}
	for _, p := range pathArgs {
		params = append(params, &openapi3.ParameterRef{Value: p})
	}

	formal := map[string]bool{}
	var form *openapi3.Schema
	if m.BodyType == "" && m.SendParamsAsBody {
		form = openapi3.NewObjectSchema()
		form.Properties = openapi3.Schemas{}
	}
	for _, p := range m.QueryParams {
		formal[p.Name] = true
		s := schemaFor(p.Type)
		if p.Default != nil && !p.Default.Computed {
			s.Default = typedDefault(s, p.Default.Text)
		}
		if form != nil {
			form.Properties[p.Name] = &openapi3.SchemaRef{Value: s}
			if p.Default == nil {
				form.Required = append(form.Required, p.Name)
			}
			continue
		}
		params = append(params, &openapi3.ParameterRef{Value: &openapi3.Parameter{
			Name:     p.Name,
			In:       openapi3.ParameterInQuery,
			Required: p.Default == nil,
			Schema:   &openapi3.SchemaRef{Value: s},
		}})
	}
	for _, fp := range b.api.MergedParams(chain) {
		if formal[fp.Key] {
			continue
		}
		s := openapi3.NewStringSchema()
		if !fp.Value.Computed {
			s.Default = fp.Value.Text
		}
		if form != nil {
			form.Properties[fp.Key] = &openapi3.SchemaRef{Value: s}
			continue
		}
		params = append(params, &openapi3.ParameterRef{Value: &openapi3.Parameter{
			Name:   fp.Key,
			In:     openapi3.ParameterInQuery,
			Schema: &openapi3.SchemaRef{Value: s},
		}})
	}
	for _, fp := range b.api.MergedHeaders(chain, m) {
		s := openapi3.NewStringSchema()
		if !fp.Value.Computed {
			s.Default = fp.Value.Text
		}
		params = append(params, &openapi3.ParameterRef{Value: &openapi3.Parameter{
			Name:   textproto.CanonicalMIMEHeaderKey(fp.Key),
			In:     openapi3.ParameterInHeader,
			Schema: &openapi3.SchemaRef{Value: s},
		}})
	}
	if len(params) > 0 {
		op.Parameters = params
	}

	switch {
	case m.BodyType != "":
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithJSONSchema(schemaFor(m.BodyType)),
		}}
	case form != nil && len(form.Properties) > 0:
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithFormDataSchema(form),
		}}
	}

	item := b.doc.Paths[path]
	if item == nil {
		item = &openapi3.PathItem{}
		b.doc.Paths[path] = item
	}
	if item.GetOperation(string(m.Verb)) != nil {
		return fmt.Errorf("openapiemitter: %s.%s: %s %s is already mapped to another method", fqn, m.Name, m.Verb, path)
	}
	item.SetOperation(string(m.Verb), op)
	return nil
}

// template renders segs as an OpenAPI path template. Computed fragments
// become required string parameters named expr1, expr2 and so on.
func template(segs []spec.PathSegment) (string, []*openapi3.Parameter) {
	var (
		sb     strings.Builder
		params []*openapi3.Parameter
		seen   = map[string]bool{}
		n      int
	)
	for _, s := range segs {
		switch s := s.(type) {
		case *spec.LiteralSegment:
			if !s.Value.Computed {
				sb.WriteString(s.Value.Text)
				continue
			}
			n++
			name := "expr" + strconv.Itoa(n)
			sb.WriteString("{" + name + "}")
			p := pathParam(name, openapi3.NewStringSchema())
			p.Description = "Computed by " + s.Value.Text
			params = append(params, p)
		case *spec.ParamSegment:
			sb.WriteString("{" + s.Param.Name + "}")
			if !seen[s.Param.Name] {
				seen[s.Param.Name] = true
				params = append(params, pathParam(s.Param.Name, schemaFor(s.Param.Type)))
			}
		default:
			panic(fmt.Sprintf("openapiemitter: unknown path segment %T", s))
		}
	}
	path := sb.String()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, params
}

func pathParam(name string, s *openapi3.Schema) *openapi3.Parameter {
	return &openapi3.Parameter{
		Name:     name,
		In:       openapi3.ParameterInPath,
		Required: true,
		Schema:   &openapi3.SchemaRef{Value: s},
	}
}

// canonical maps path onto a previously registered template that differs
// only in placeholder names, renaming params to match. OpenAPI rejects two
// such templates in one document.
func (b *docBuilder) canonical(path string, params []*openapi3.Parameter) (string, []*openapi3.Parameter) {
	norm, names := normalize(path)
	existing, ok := b.templates[norm]
	if !ok {
		b.templates[norm] = path
		return path, params
	}
	if existing == path {
		return path, params
	}
	_, want := normalize(existing)
	rename := make(map[string]string, len(names))
	for i, n := range names {
		rename[n] = want[i]
	}
	for _, p := range params {
		if to, ok := rename[p.Name]; ok && to != p.Name {
			p.Description = strings.TrimSpace(p.Description + " Declared as " + p.Name + ".")
			p.Name = to
		}
	}
	return existing, params
}

func normalize(path string) (string, []string) {
	var (
		sb    strings.Builder
		names []string
	)
	for {
		i := strings.IndexByte(path, '{')
		if i < 0 {
			sb.WriteString(path)
			return sb.String(), names
		}
		j := strings.IndexByte(path[i:], '}')
		if j < 0 {
			sb.WriteString(path)
			return sb.String(), names
		}
		sb.WriteString(path[:i] + "{}")
		names = append(names, path[i+1:i+j])
		path = path[i+j+1:]
	}
}

func splitRawURL(raw string) (server, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("raw URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("raw URL %q is not absolute", raw)
	}
	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return u.Scheme + "://" + u.Host, path, nil
}

func responses(m *spec.Method) openapi3.Responses {
	ok := "Success, decoded as " + m.ReturnType
	fail := "Failure, decoded as " + m.ExceptionType
	return openapi3.Responses{
		"200": &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &ok,
			Content:     openapi3.NewContentWithJSONSchema(schemaFor(m.ReturnType)),
		}},
		"default": &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &fail,
			Content:     openapi3.NewContentWithJSONSchema(schemaFor(m.ExceptionType)),
		}},
	}
}

// schemaFor maps a Go type expression to a schema. Types it does not know
// are described as opaque objects.
func schemaFor(goType string) *openapi3.Schema {
	t := strings.TrimPrefix(strings.TrimSpace(goType), "*")
	switch t {
	case "string":
		return openapi3.NewStringSchema()
	case "bool":
		return openapi3.NewBoolSchema()
	case "int", "int8", "int16", "uint", "uint8", "uint16", "uint32":
		return openapi3.NewIntegerSchema()
	case "int32":
		return openapi3.NewInt32Schema()
	case "int64", "uint64":
		return openapi3.NewInt64Schema()
	case "float32", "float64":
		return openapi3.NewFloat64Schema()
	case "time.Time":
		return openapi3.NewDateTimeSchema()
	case "[]byte":
		return openapi3.NewBytesSchema()
	case "json.RawMessage", "any", "interface{}":
		return &openapi3.Schema{}
	}
	if elem, ok := strings.CutPrefix(t, "[]"); ok {
		return openapi3.NewArraySchema().WithItems(schemaFor(elem))
	}
	if strings.HasPrefix(t, "map[string]") {
		return openapi3.NewObjectSchema().WithAdditionalProperties(schemaFor(strings.TrimPrefix(t, "map[string]")))
	}
	s := openapi3.NewObjectSchema()
	s.Title = t
	return s
}

// typedDefault converts a literal default to the JSON type of s, numbers
// as float64 like decoded JSON. Values that do not parse are dropped.
func typedDefault(s *openapi3.Schema, text string) any {
	switch s.Type {
	case "string":
		return text
	case "boolean":
		if v, err := strconv.ParseBool(text); err == nil {
			return v
		}
	case "integer":
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return float64(v)
		}
	case "number":
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v
		}
	}
	return nil
}

// Marshal serializes doc. YAML output keeps the key order of the JSON form
// and uses block style throughout.
func Marshal(doc *openapi3.T, format Format) ([]byte, error) {
	return encode(doc, format)
}

// MarshalSwagger2 converts doc to Swagger 2.0 and serializes it. Operation
// level servers have no Swagger 2.0 equivalent and are dropped.
func MarshalSwagger2(doc *openapi3.T, format Format) ([]byte, error) {
	v2, err := openapi2conv.FromV3(doc)
	if err != nil {
		return nil, fmt.Errorf("openapiemitter: convert to swagger 2.0: %w", err)
	}
	return encode(v2, format)
}

func encode(doc any, format Format) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("openapiemitter: marshal document: %w", err)
	}
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return nil, fmt.Errorf("openapiemitter: indent document: %w", err)
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	case FormatYAML, "":
		var node yaml.Node
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return nil, fmt.Errorf("openapiemitter: convert document to yaml: %w", err)
		}
		clearStyle(&node)
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return nil, fmt.Errorf("openapiemitter: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("openapiemitter: encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("openapiemitter: unknown format %q", format)
	}
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}

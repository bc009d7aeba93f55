package goemitter

import (
	"bytes"
	"embed"
	"fmt"
	"go/parser"
	"go/token"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/mark3labs/restbuilder/internal/logx"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))

// formatOnly keeps goimports from resolving packages through the build
// environment; the import list is exactly what the template data carries.
var formatOnly = &imports.Options{FormatOnly: true, Comments: true, TabIndent: true, TabWidth: 8}

// executeTemplate renders the named Go template, drops the candidate
// imports the rendered file never refers to and formats the result.
func executeTemplate(name string, data fileData, logger logx.Logger) ([]byte, error) {
	src, err := renderBytes(name, data)
	if err != nil {
		return nil, err
	}
	file, err := parser.ParseFile(token.NewFileSet(), name, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, &EmissionError{Node: data.Api.Name, Message: fmt.Sprintf("%s does not render valid Go", name), Cause: err}
	}
	used := selectorBases(file)
	kept := make([]importView, 0, len(data.Imports))
	for _, imp := range data.Imports {
		if used[imp.name()] {
			kept = append(kept, imp)
		}
	}
	if len(kept) != len(data.Imports) {
		logger.Debug("dropped unused imports", "template", name, "count", len(data.Imports)-len(kept))
		data.Imports = kept
		if src, err = renderBytes(name, data); err != nil {
			return nil, err
		}
	}
	formatted, err := imports.Process(name, src, formatOnly)
	if err != nil {
		return nil, &EmissionError{Node: data.Api.Name, Message: fmt.Sprintf("%s cannot be formatted", name), Cause: err}
	}
	return formatted, nil
}

func renderBytes(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderText(name string, data any) (string, error) {
	b, err := renderBytes(name, data)
	return string(b), err
}

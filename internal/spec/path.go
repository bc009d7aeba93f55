package spec

import (
	"fmt"
	"strings"
)

// pathPiece is one raw path fragment of a method, in schema order: the path
// attribute first, then every <Path> child.
type pathPiece struct {
	expr Expression
}

// isRawTemplate reports whether tmpl uses the raw URL delimiters.
func isRawTemplate(tmpl string) (string, bool) {
	t := strings.TrimSpace(tmpl)
	if len(t) >= 2 && t[0] == '[' && t[len(t)-1] == ']' {
		return strings.TrimSpace(t[1 : len(t)-1]), true
	}
	return "", false
}

// tokenizeTemplate splits tmpl into literal and parameter segments. A
// placeholder is {name} or {name:type}; name must be a declared parameter and
// type, when given, must equal the declared type.
func tokenizeTemplate(tmpl string, params map[string]Parameter) ([]PathSegment, error) {
	var segs []PathSegment
	var lit strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '}':
			return nil, fmt.Errorf("unmatched '}' at offset %d in %q", i, tmpl)
		case '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at offset %d in %q", i, tmpl)
			}
			body := tmpl[i+1 : i+1+end]
			if strings.ContainsRune(body, '{') {
				return nil, fmt.Errorf("nested '{' in placeholder at offset %d in %q", i, tmpl)
			}
			name, typ, _ := strings.Cut(body, ":")
			name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
			if name == "" {
				return nil, fmt.Errorf("empty placeholder at offset %d in %q", i, tmpl)
			}
			p, ok := params[name]
			if !ok {
				return nil, fmt.Errorf("placeholder {%s} does not name a declared parameter", name)
			}
			if typ != "" && typ != p.Type {
				return nil, fmt.Errorf("placeholder {%s} has type %s but the parameter is declared as %s", name, typ, p.Type)
			}
			if lit.Len() > 0 {
				segs = appendSegment(segs, &LiteralSegment{Value: Literal(lit.String())})
				lit.Reset()
			}
			segs = append(segs, &ParamSegment{Param: p})
			i += end + 1
		default:
			lit.WriteByte(ch)
		}
	}
	if lit.Len() > 0 {
		segs = appendSegment(segs, &LiteralSegment{Value: Literal(lit.String())})
	}
	return segs, nil
}

// buildMethodPath turns the raw pieces of a method into its PathSpec and the
// set of parameter names bound by the path.
func buildMethodPath(pieces []pathPiece, params map[string]Parameter) (PathSpec, map[string]bool, error) {
	for _, pc := range pieces {
		if pc.expr.Computed {
			continue
		}
		url, raw := isRawTemplate(pc.expr.Text)
		if !raw {
			continue
		}
		if len(pieces) != 1 {
			return nil, nil, fmt.Errorf("raw URL %q cannot be combined with other path segments", pc.expr.Text)
		}
		if url == "" {
			return nil, nil, fmt.Errorf("raw URL override is empty")
		}
		return &RawURL{URL: url}, map[string]bool{}, nil
	}

	bound := make(map[string]bool)
	var segs []PathSegment
	for _, pc := range pieces {
		if pc.expr.Computed {
			segs = appendSegment(segs, &LiteralSegment{Value: pc.expr})
			continue
		}
		toks, err := tokenizeTemplate(pc.expr.Text, params)
		if err != nil {
			return nil, nil, err
		}
		for _, tok := range toks {
			if ps, ok := tok.(*ParamSegment); ok {
				bound[ps.Param.Name] = true
			}
			segs = appendSegment(segs, tok)
		}
	}
	return &SegmentedPath{Segments: segs}, bound, nil
}

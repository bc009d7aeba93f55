package spec

// Expression is a value that is either a literal constant or an opaque code
// fragment. Computed text is passed through to the generated code untouched:
// it is never parsed, evaluated or type-checked here, and whoever writes the
// schema owns its correctness.
type Expression struct {
	Computed bool
	Text     string
}

// Literal returns a literal expression.
func Literal(text string) Expression { return Expression{Text: text} }

// Computed returns an opaque code fragment expression.
func Computed(text string) Expression { return Expression{Computed: true, Text: text} }

// IsZero reports whether e is the empty literal.
func (e Expression) IsZero() bool { return !e.Computed && e.Text == "" }

// PathSegment is one component of a segmented path: *LiteralSegment or
// *ParamSegment.
type PathSegment interface {
	isPathSegment()
}

// LiteralSegment is fixed path text, or a computed fragment producing text.
type LiteralSegment struct {
	Value Expression
}

// ParamSegment is substituted with the argument bound to Param at call time.
type ParamSegment struct {
	Param Parameter
}

func (*LiteralSegment) isPathSegment() {}
func (*ParamSegment) isPathSegment()   {}

// PathSpec is how a method locates its endpoint: *SegmentedPath or *RawURL.
type PathSpec interface {
	isPathSpec()
}

// SegmentedPath is appended to the path expressions of every enclosing class.
type SegmentedPath struct {
	Segments []PathSegment
}

// RawURL is an absolute URL that bypasses class path composition and the
// API base URL.
type RawURL struct {
	URL string
}

func (*SegmentedPath) isPathSpec() {}
func (*RawURL) isPathSpec()        {}

// appendSegment adds seg to segs, merging adjacent non-computed literals.
func appendSegment(segs []PathSegment, seg PathSegment) []PathSegment {
	lit, ok := seg.(*LiteralSegment)
	if !ok {
		return append(segs, seg)
	}
	if lit.Value.IsZero() {
		return segs
	}
	if n := len(segs); n > 0 && !lit.Value.Computed {
		if prev, ok := segs[n-1].(*LiteralSegment); ok && !prev.Value.Computed {
			segs[n-1] = &LiteralSegment{Value: Literal(prev.Value.Text + lit.Value.Text)}
			return segs
		}
	}
	return append(segs, seg)
}

// ComposePath returns the full segment list of m below the given class chain
// (root first): every class path expression followed by the method's own
// segments, with adjacent literal text coalesced. ok is false for raw URL
// methods, which never consult their ancestors.
func ComposePath(chain []*Class, m *Method) (segs []PathSegment, ok bool) {
	switch p := m.Path.(type) {
	case *RawURL:
		return nil, false
	case *SegmentedPath:
		for _, c := range chain {
			segs = appendSegment(segs, &LiteralSegment{Value: c.Path})
		}
		for _, s := range p.Segments {
			segs = appendSegment(segs, s)
		}
		return segs, true
	default:
		panic("spec: unknown path spec variant")
	}
}

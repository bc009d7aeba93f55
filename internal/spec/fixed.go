package spec

import (
	"cmp"
	"net/textproto"
	"slices"
)

// MergedParams returns the fixed query parameters a method under chain
// sends: the innermost class wins, the Api level applies last. The result is
// sorted by key.
func (a *Api) MergedParams(chain []*Class) []FixedParam {
	return mergeFixed(a.Params, chain, func(c *Class) []FixedParam { return c.Params }, nil, func(k string) string { return k })
}

// MergedHeaders returns the fixed headers of m under chain. Method headers
// override class headers, which override Api headers. Keys compare in
// canonical MIME form and the result is sorted by canonical key.
func (a *Api) MergedHeaders(chain []*Class, m *Method) []FixedParam {
	var own []FixedParam
	if m != nil {
		own = m.Headers
	}
	return mergeFixed(a.Headers, chain, func(c *Class) []FixedParam { return c.Headers }, own, textproto.CanonicalMIMEHeaderKey)
}

func mergeFixed(apiLevel []FixedParam, chain []*Class, of func(*Class) []FixedParam, own []FixedParam, key func(string) string) []FixedParam {
	seen := map[string]bool{}
	var out []FixedParam
	add := func(fps []FixedParam) {
		for _, fp := range fps {
			k := key(fp.Key)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, fp)
		}
	}
	add(own)
	for i := len(chain) - 1; i >= 0; i-- {
		add(of(chain[i]))
	}
	add(apiLevel)
	slices.SortFunc(out, func(a, b FixedParam) int { return cmp.Compare(key(a.Key), key(b.Key)) })
	return out
}

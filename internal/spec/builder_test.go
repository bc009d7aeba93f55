package spec

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/restbuilder/internal/schema"
)

func parse(t *testing.T, doc string) (*Api, error) {
	t.Helper()
	return Parse(strings.NewReader(doc))
}

func mustParse(t *testing.T, doc string) *Api {
	t.Helper()
	api, err := parse(t, doc)
	require.NoError(t, err)
	return api
}

func requireKind(t *testing.T, err error, sentinel error) *Error {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, sentinel), "want %v, got %v", sentinel, err)
	var be *Error
	require.True(t, errors.As(err, &be), "want *spec.Error, got %T", err)
	return be
}

const blogDoc = `
<Api name="Blog" baseUrl="https://api.example.com" version="1.2" globalName="Api" autoCreate="true">
  <Header key="X-Auth">a</Header>
  <Param key="format">json</Param>
  <Class name="Posts" path="/posts" exceptionType="PostError">
    <Header key="X-Class">c</Header>
    <Method name="get" verb="GET" path="/{id}" returns="Post">
      <Param name="id" type="int"/>
      <Header key="X-Auth">b</Header>
    </Method>
    <Method name="list" returns="[]Post">
      <Param name="limit" type="int" default="10"/>
      <Param name="cursor" type="string"/>
    </Method>
    <Method name="special" verb="POST" path="[https://other.example.com/special]" body="Post" exceptionType="SpecialError"/>
    <Class name="Comments" path="/comments">
      <Method name="list" path="/{postId:int}/all">
        <Param name="postId" type="int"/>
      </Method>
    </Class>
  </Class>
</Api>`

func TestBuild_BlogTree(t *testing.T) {
	t.Parallel()
	api := mustParse(t, blogDoc)

	assert.Equal(t, "Blog", api.Name)
	assert.Equal(t, Literal("https://api.example.com"), api.BaseURL)
	assert.Equal(t, "1.2.0", api.Version.String())
	assert.True(t, api.AutoCreate)
	assert.Equal(t, "Api", api.GlobalName)
	assert.Equal(t, []FixedParam{{Key: "X-Auth", Value: Literal("a")}}, api.Headers)
	assert.Equal(t, []FixedParam{{Key: "format", Value: Literal("json")}}, api.Params)

	require.Len(t, api.Classes, 1)
	posts := api.Classes[0]
	assert.Equal(t, Literal("/posts"), posts.Path)
	require.Len(t, posts.Methods, 3)
	require.Len(t, posts.Classes, 1)
	assert.Equal(t, []SubResource{{Key: "Comments", Class: posts.Classes[0]}}, posts.SubResources())

	get := posts.Methods[0]
	assert.Equal(t, GET, get.Verb)
	assert.Equal(t, "Post", get.ReturnType)
	assert.Equal(t, "PostError", get.ExceptionType)
	assert.Equal(t, []Parameter{{Name: "id", Type: "int"}}, get.PathParams)
	assert.Empty(t, get.QueryParams)
	assert.Equal(t, &SegmentedPath{Segments: []PathSegment{
		&LiteralSegment{Value: Literal("/")},
		&ParamSegment{Param: Parameter{Name: "id", Type: "int"}},
	}}, get.Path)

	list := posts.Methods[1]
	assert.Equal(t, GET, list.Verb, "verb defaults to GET")
	assert.Empty(t, list.PathParams)
	require.Len(t, list.QueryParams, 2)
	assert.Equal(t, "limit", list.QueryParams[0].Name)
	require.NotNil(t, list.QueryParams[0].Default)
	assert.Equal(t, Literal("10"), *list.QueryParams[0].Default)
	assert.True(t, list.HasDefaults())

	special := posts.Methods[2]
	assert.Equal(t, &RawURL{URL: "https://other.example.com/special"}, special.Path)
	assert.Equal(t, "SpecialError", special.ExceptionType)
	assert.Equal(t, "Post", special.BodyType)

	nested := posts.Classes[0].Methods[0]
	assert.Equal(t, "PostError", nested.ExceptionType, "inherits the nearest ancestor default")
	assert.Equal(t, DefaultReturnType, nested.ReturnType)
}

func TestComposePath_Segmented(t *testing.T) {
	t.Parallel()
	api := mustParse(t, blogDoc)
	posts := api.Classes[0]

	segs, ok := ComposePath([]*Class{posts}, posts.Methods[0])
	require.True(t, ok)
	assert.Equal(t, []PathSegment{
		&LiteralSegment{Value: Literal("/posts/")},
		&ParamSegment{Param: Parameter{Name: "id", Type: "int"}},
	}, segs)

	comments := posts.Classes[0]
	segs, ok = ComposePath([]*Class{posts, comments}, comments.Methods[0])
	require.True(t, ok)
	assert.Equal(t, []PathSegment{
		&LiteralSegment{Value: Literal("/posts/comments/")},
		&ParamSegment{Param: Parameter{Name: "postId", Type: "int"}},
		&LiteralSegment{Value: Literal("/all")},
	}, segs)
}

func TestComposePath_RawIgnoresAncestors(t *testing.T) {
	t.Parallel()
	api := mustParse(t, blogDoc)
	posts := api.Classes[0]
	segs, ok := ComposePath([]*Class{posts}, posts.Methods[2])
	assert.False(t, ok)
	assert.Nil(t, segs)
}

func TestBuild_ComputedSegments(t *testing.T) {
	t.Parallel()
	api := mustParse(t, heredoc.Doc(`
		<Api name="A" baseUrl="http://x">
		  <Class name="C">
		    <Path expr="true">prefix()</Path>
		    <Method name="m" path="/a">
		      <Path>/b</Path>
		      <Path expr="true"><![CDATA[tenant + "/"]]></Path>
		      <Path>{id}</Path>
		      <Param name="id" type="string"/>
		    </Method>
		  </Class>
		</Api>
	`))
	c := api.Classes[0]
	assert.Equal(t, Computed("prefix()"), c.Path)
	segs, ok := ComposePath([]*Class{c}, c.Methods[0])
	require.True(t, ok)
	assert.Equal(t, []PathSegment{
		&LiteralSegment{Value: Computed("prefix()")},
		&LiteralSegment{Value: Literal("/a/b")},
		&LiteralSegment{Value: Computed(`tenant + "/"`)},
		&ParamSegment{Param: Parameter{Name: "id", Type: "string"}},
	}, segs)
}

func TestBuild_DuplicateMethod(t *testing.T) {
	t.Parallel()
	_, err := parse(t, heredoc.Doc(`
		<Api name="A" baseUrl="http://x">
		  <Class name="Posts">
		    <Method name="list"/>
		    <Method name="list" verb="POST"/>
		  </Class>
		</Api>
	`))
	be := requireKind(t, err, ErrDuplicateName)
	assert.Equal(t, []string{"Posts"}, be.Location.Classes)
	assert.Equal(t, "list", be.Location.Method)
	assert.Contains(t, be.Error(), `"list"`)
	assert.Contains(t, be.Error(), "Class Posts")
}

func TestBuild_DuplicateNames(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"parameter": `<Api name="A" baseUrl="http://x"><Class name="C"><Method name="m" path="/{id}">
			<Param name="id" type="int"/><Param name="id" type="string"/></Method></Class></Api>`,
		"sibling classes": `<Api name="A" baseUrl="http://x"><Class name="C"/><Class name="C"/></Api>`,
		"class vs method accessor": `<Api name="A" baseUrl="http://x"><Class name="C">
			<Method name="items"/><Class name="Items"/></Class></Api>`,
		"header case-insensitive": `<Api name="A" baseUrl="http://x"><Header key="x-auth">a</Header><Header key="X-Auth">b</Header></Api>`,
		"fixed param":             `<Api name="A" baseUrl="http://x"><Param key="k">a</Param><Param key="k">b</Param></Api>`,
		"base url twice":          `<Api name="A" baseUrl="http://x"><BaseUrl>http://y</BaseUrl></Api>`,
		"class path twice":        `<Api name="A" baseUrl="http://x"><Class name="C" path="/a"><Path>/b</Path></Class></Api>`,
		"include twice":           `<Api name="A" baseUrl="http://x"><Include>fmt</Include><Include>fmt</Include></Api>`,
	}
	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := parse(t, doc)
			requireKind(t, err, ErrDuplicateName)
		})
	}
}

func TestBuild_DistinctParamsAccepted(t *testing.T) {
	t.Parallel()
	api := mustParse(t, `<Api name="A" baseUrl="http://x"><Class name="C"><Method name="m" path="/{id}">
		<Param name="id" type="int"/><Param name="q" type="string"/></Method></Class></Api>`)
	m := api.Classes[0].Methods[0]
	assert.Len(t, m.PathParams, 1)
	assert.Len(t, m.QueryParams, 1)
}

func TestBuild_Verbs(t *testing.T) {
	t.Parallel()
	for _, v := range Verbs {
		doc := `<Api name="A" baseUrl="http://x"><Class name="C"><Method name="m" verb="` + string(v) + `"/></Class></Api>`
		api, err := parse(t, doc)
		require.NoError(t, err, "verb %s", v)
		assert.Equal(t, v, api.Classes[0].Methods[0].Verb)
	}
	for _, bad := range []string{"get", "Post", "FETCH", ""} {
		doc := `<Api name="A" baseUrl="http://x"><Class name="C"><Method name="m" verb="` + bad + `"/></Class></Api>`
		_, err := parse(t, doc)
		be := requireKind(t, err, ErrInvalidVerb)
		assert.Equal(t, "verb", be.Location.Attribute)
	}
}

func TestBuild_InvalidPaths(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unterminated":   `<Method name="m" path="/{id"><Param name="id" type="int"/></Method>`,
		"unmatched":      `<Method name="m" path="/id}"/>`,
		"empty":          `<Method name="m" path="/{}"/>`,
		"undeclared":     `<Method name="m" path="/{id}"/>`,
		"type mismatch":  `<Method name="m" path="/{id:string}"><Param name="id" type="int"/></Method>`,
		"raw + segments": `<Method name="m" path="[http://a/b]"><Path>/c</Path></Method>`,
		"raw + default":  `<Method name="m" path="[http://a/b]"><Param name="q" type="int" default="1"/></Method>`,
		"empty raw":      `<Method name="m" path="[ ]"/>`,
	}
	for name, method := range cases {
		method := method
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := parse(t, `<Api name="A" baseUrl="http://x"><Class name="C">`+method+`</Class></Api>`)
			be := requireKind(t, err, ErrInvalidPath)
			assert.Equal(t, "m", be.Location.Method)
		})
	}
}

func TestBuild_RawWithQueryParams(t *testing.T) {
	t.Parallel()
	api := mustParse(t, `<Api name="A" baseUrl="http://x"><Class name="C">
		<Method name="m" path="[http://a/b]"><Param name="q" type="int"/></Method></Class></Api>`)
	m := api.Classes[0].Methods[0]
	assert.Equal(t, &RawURL{URL: "http://a/b"}, m.Path)
	assert.Equal(t, []Parameter{{Name: "q", Type: "int"}}, m.QueryParams)
}

func TestBuild_Versions(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"1.0", "2.3.4", "0.0"} {
		_, err := parse(t, `<Api name="A" baseUrl="http://x" version="`+ok+`"/>`)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"1", "1.2.3.4", "v1.0", "1.x", "1.-2", "1.-0", "+1.2", "1.2.-0", "1. 2", "1.2.99999999999", ""} {
		_, err := parse(t, `<Api name="A" baseUrl="http://x" version="`+bad+`"/>`)
		requireKind(t, err, ErrInvalidVersion)
	}
}

func TestBuild_MissingAndUnknown(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		doc      string
		sentinel error
		attr     string
	}{
		{"api name", `<Api baseUrl="http://x"/>`, ErrMissingAttribute, "name"},
		{"base url", `<Api name="A"/>`, ErrMissingAttribute, "baseUrl"},
		{"class name", `<Api name="A" baseUrl="http://x"><Class/></Api>`, ErrMissingAttribute, "name"},
		{"param type", `<Api name="A" baseUrl="http://x"><Class name="C"><Method name="m"><Param name="p"/></Method></Class></Api>`, ErrMissingAttribute, "type"},
		{"header key", `<Api name="A" baseUrl="http://x"><Header>v</Header></Api>`, ErrMissingAttribute, "key"},
		{"autoCreate without globalName", `<Api name="A" baseUrl="http://x" autoCreate="true"/>`, ErrMissingAttribute, "globalName"},
		{"unknown root", `<Service name="A"/>`, ErrUnknownElement, ""},
		{"unknown child", `<Api name="A" baseUrl="http://x"><Route/></Api>`, ErrUnknownElement, ""},
		{"method in api", `<Api name="A" baseUrl="http://x"><Method name="m"/></Api>`, ErrUnknownElement, ""},
		{"unknown attribute", `<Api name="A" baseUrl="http://x" colour="red"/>`, ErrUnknownElement, "colour"},
		{"text in class", `<Api name="A" baseUrl="http://x"><Class name="C">oops</Class></Api>`, ErrUnknownElement, ""},
		{"bad bool", `<Api name="A" baseUrl="http://x" autoCreate="maybe"/>`, ErrInvalidValue, "autoCreate"},
		{"bad identifier", `<Api name="A" baseUrl="http://x"><Class name="my-class"/></Api>`, ErrInvalidName, "name"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parse(t, tc.doc)
			be := requireKind(t, err, tc.sentinel)
			assert.Equal(t, tc.attr, be.Location.Attribute)
		})
	}
}

func TestBuild_MaxDepth(t *testing.T) {
	t.Parallel()
	doc := `<Api name="A" baseUrl="http://x"><Class name="A1"><Class name="A2"><Class name="A3"/></Class></Class></Api>`
	_, err := Parse(strings.NewReader(doc), WithMaxDepth(2))
	requireKind(t, err, ErrInvalidValue)

	_, err = Parse(strings.NewReader(doc), WithMaxDepth(3))
	require.NoError(t, err)
}

func TestBuild_SyntaxErrorPropagates(t *testing.T) {
	t.Parallel()
	_, err := parse(t, `<Api name="A" baseUrl="http://x"><Class name="C"></Api>`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrSyntax))
}

// eventSlice feeds synthetic events, keeping the scope stack testable without
// a document.
type eventSlice struct {
	events []schema.Event
}

func (s *eventSlice) Next() (schema.Event, error) {
	if len(s.events) == 0 {
		return schema.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func enter(name string, attrs ...string) []schema.Event {
	out := []schema.Event{{Kind: schema.EventEnter, Name: name}}
	for i := 0; i+1 < len(attrs); i += 2 {
		out = append(out, schema.Event{Kind: schema.EventAttr, Name: attrs[i], Value: attrs[i+1]})
	}
	return out
}

func exit(name string) schema.Event { return schema.Event{Kind: schema.EventExit, Name: name} }

func TestBuild_SyntheticEvents(t *testing.T) {
	t.Parallel()
	var evs []schema.Event
	evs = append(evs, enter("Api", "name", "A")...)
	evs = append(evs, enter("BaseUrl", "expr", "true")...)
	evs = append(evs, schema.Event{Kind: schema.EventText, Value: " os.Getenv(\"URL\") "}, exit("BaseUrl"))
	evs = append(evs, enter("Class", "name", "C")...)
	evs = append(evs, enter("Method", "name", "m")...)
	evs = append(evs, exit("Method"), exit("Class"), exit("Api"))

	api, err := Build(&eventSlice{events: evs})
	require.NoError(t, err)
	assert.Equal(t, Computed(`os.Getenv("URL")`), api.BaseURL)
	assert.Len(t, api.Classes[0].Methods, 1)
}

func TestBuild_SyntheticStructuralErrors(t *testing.T) {
	t.Parallel()

	t.Run("truncated stream", func(t *testing.T) {
		t.Parallel()
		_, err := Build(&eventSlice{events: enter("Api", "name", "A", "baseUrl", "http://x")})
		assert.ErrorIs(t, err, schema.ErrSyntax)
	})
	t.Run("attribute after content", func(t *testing.T) {
		t.Parallel()
		evs := enter("Api", "name", "A", "baseUrl", "http://x")
		evs = append(evs, enter("Class", "name", "C")...)
		evs = append(evs, exit("Class"), schema.Event{Kind: schema.EventAttr, Name: "late", Value: "x"})
		_, err := Build(&eventSlice{events: evs})
		assert.ErrorIs(t, err, schema.ErrSyntax)
	})
	t.Run("mismatched exit", func(t *testing.T) {
		t.Parallel()
		evs := enter("Api", "name", "A", "baseUrl", "http://x")
		evs = append(evs, exit("Class"))
		_, err := Build(&eventSlice{events: evs})
		assert.ErrorIs(t, err, schema.ErrSyntax)
	})
	t.Run("empty stream", func(t *testing.T) {
		t.Parallel()
		_, err := Build(&eventSlice{})
		assert.ErrorIs(t, err, schema.ErrSyntax)
	})
}

func TestBuild_FixedValueForms(t *testing.T) {
	t.Parallel()
	api := mustParse(t, heredoc.Doc(`
		<Api name="A" baseUrl="http://x" exceptionType="ApiError">
		  <Include alias="m">example.com/models</Include>
		  <Param key="a" value="attr"/>
		  <Param key="b" expr="true">token()</Param>
		  <Class name="C" namespace="" export="false" scriptingUri="a.c" base="core.Base">
		    <Method name="m"><Param name="when" type="time.Time" defaultExpr="time.Now()"/></Method>
		  </Class>
		</Api>
	`))
	assert.Equal(t, []Include{{Path: "example.com/models", Alias: "m"}}, api.Includes)
	assert.Equal(t, []FixedParam{
		{Key: "a", Value: Literal("attr")},
		{Key: "b", Value: Computed("token()")},
	}, api.Params)
	c := api.Classes[0]
	assert.True(t, c.OverridesNamespace)
	assert.Equal(t, "", c.Namespace)
	assert.False(t, c.Exported)
	assert.Equal(t, "a.c", c.ScriptingURI)
	assert.Equal(t, "core.Base", c.Base)
	m := c.Methods[0]
	assert.Equal(t, "ApiError", m.ExceptionType)
	require.NotNil(t, m.Params[0].Default)
	assert.Equal(t, Computed("time.Now()"), *m.Params[0].Default)
	assert.True(t, api.HasScripting())
}

func TestVersion_Compare(t *testing.T) {
	t.Parallel()
	a, err := ParseVersion("1.2")
	require.NoError(t, err)
	b, err := ParseVersion("1.2.1")
	require.NoError(t, err)
	c, err := ParseVersion("1.10.0")
	require.NoError(t, err)
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, a.IsSet())
	assert.False(t, Version{}.IsSet())
}

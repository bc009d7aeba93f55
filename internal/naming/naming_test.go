package naming

import (
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/restbuilder/internal/spec"
)

func build(t *testing.T, doc string) *spec.Api {
	t.Helper()
	api, err := spec.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return api
}

func TestResolver_Inheritance(t *testing.T) {
	t.Parallel()
	api := build(t, heredoc.Doc(`
		<Api name="blog" baseUrl="http://x" namespace="example" version="2.5.1">
		  <Class name="posts" scriptingUri="blog.posts">
		    <Class name="comment_threads">
		      <Class name="Replies"/>
		    </Class>
		    <Class name="Drafts" namespace="staging" export="false">
		      <Class name="Items"/>
		    </Class>
		  </Class>
		</Api>
	`))
	r := NewResolver(api)
	posts := api.Classes[0]
	threads := posts.Classes[0]
	replies := threads.Classes[0]
	drafts := posts.Classes[1]
	items := drafts.Classes[0]

	assert.Equal(t, "example.blog.posts", r.FQN(posts).String())
	assert.Equal(t, "example.blog.posts.comment_threads.Replies", r.FQN(replies).String())
	assert.Equal(t, "staging.Drafts", r.FQN(drafts).String())
	assert.Equal(t, "staging.Drafts.Items", r.FQN(items).String())

	assert.Equal(t, "BlogPosts", r.TypeName(posts))
	assert.Equal(t, "BlogPostsCommentThreads", r.TypeName(threads))
	assert.Equal(t, "BlogPostsCommentThreadsReplies", r.TypeName(replies))
	assert.Equal(t, "drafts", r.TypeName(drafts))
	assert.Equal(t, "DraftsItems", r.TypeName(items))
	assert.Equal(t, "Blog", r.ApiTypeName())

	assert.Equal(t, "blog.posts@2.5", r.ModuleID(posts))
	assert.Equal(t, "", r.ModuleID(drafts))
}

func TestResolver_ResolveDoesNotAliasChains(t *testing.T) {
	t.Parallel()
	api := build(t, `<Api name="A" baseUrl="http://x"><Class name="B"><Class name="C"/><Class name="D"/></Class></Api>`)
	r := NewResolver(api)
	b := api.Classes[0]
	assert.Equal(t, []string{"A", "B", "C"}, r.FQN(b.Classes[0]).Names)
	assert.Equal(t, []string{"A", "B", "D"}, r.FQN(b.Classes[1]).Names)
	assert.Equal(t, []string{"A", "B"}, r.FQN(b).Names)
}

func TestResolver_ModuleIDWithoutVersion(t *testing.T) {
	t.Parallel()
	api := build(t, `<Api name="A" baseUrl="http://x"><Class name="B" scriptingUri="a.b"/></Api>`)
	assert.Equal(t, "a.b", NewResolver(api).ModuleID(api.Classes[0]))
}

func TestResolver_UnknownClassPanics(t *testing.T) {
	t.Parallel()
	api := build(t, `<Api name="A" baseUrl="http://x"/>`)
	r := NewResolver(api)
	assert.Panics(t, func() { r.FQN(&spec.Class{Name: "Stray"}) })
}

func TestGoName_Unexported(t *testing.T) {
	t.Parallel()
	r := NewResolver(build(t, `<Api name="A" baseUrl="http://x"/>`))
	assert.Equal(t, "fooBar", r.GoName(FQN{Names: []string{"Foo", "bar"}}, false))
	assert.Equal(t, "type_", r.GoName(FQN{Names: []string{"Type"}}, false))
	assert.Equal(t, "HTTPClient", r.GoName(FQN{Names: []string{"HTTPClient"}}, true))
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"id":     "id",
		"type":   "type_",
		"func":   "func_",
		"ctx":    "ctx_",
		"url":    "url_",
		"json":   "json_",
		"limit":  "limit",
		"return": "return_",
	}
	for in, want := range cases {
		assert.Equal(t, want, NewIdentifiers().Name(in), in)
	}

	ids := NewIdentifiers("Post")
	assert.Equal(t, "Post_", ids.Name("Post"))
	assert.Equal(t, "ctx_", ids.Name("ctx"))
	assert.Equal(t, "ctx__", ids.Name("ctx_"))
	assert.Equal(t, "ctx_", ids.Name("ctx"), "same name maps to the same identifier")
}

func TestResolver_IdentifiersAvoidIncludes(t *testing.T) {
	t.Parallel()
	r := NewResolver(build(t, heredoc.Doc(`
		<Api name="A" baseUrl="http://x">
		  <Include alias="m">example.com/models</Include>
		  <Class name="C">
		    <Include>gopkg.in/yaml.v3</Include>
		  </Class>
		</Api>
	`)))
	ids := r.Identifiers()
	assert.Equal(t, "m_", ids.Name("m"))
	assert.Equal(t, "yaml_", ids.Name("yaml"))
	assert.Equal(t, "models", ids.Name("models"))
}

func TestPathName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"encoding/json":               "json",
		"gopkg.in/yaml.v3":            "yaml",
		"github.com/go-chi/chi/v5":    "chi",
		"github.com/mattn/go-sqlite3": "sqlite3",
		"example.com/blog-models":     "blog",
		"time":                        "time",
	}
	for in, want := range cases {
		assert.Equal(t, want, PathName(in), in)
	}
	assert.Equal(t, "m", ImportName(spec.Include{Path: "example.com/models", Alias: "m"}))
}

func TestAccessor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "List", Accessor("list"))
	assert.Equal(t, "GetByID", Accessor("getByID"))
	assert.Equal(t, "Posts", Accessor("Posts"))
	assert.Equal(t, "", Accessor(""))
}

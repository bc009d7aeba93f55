package spec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/restbuilder/internal/schema"
)

const minimalDoc = `<Api name="Blog" baseUrl="https://api.example.com">
  <Class name="Posts" path="/posts">
    <Method name="list"/>
  </Class>
</Api>
`

func writeSchema(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_BlocksFileURL(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "file:///etc/hosts")
	if err == nil {
		t.Fatalf("expected error for file:// URL")
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %T", err)
	}
	if le.Code != InputError {
		t.Fatalf("expected InputError, got %v", le.Code)
	}
}

func TestLoad_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "ftp://example.com/api.xml")
	var le *LoadError
	if !errors.As(err, &le) || le.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
}

func TestLoad_EmptyInput(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "  ")
	var le *LoadError
	if !errors.As(err, &le) || le.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
}

func TestLoad_NetworkError(t *testing.T) {
	t.Parallel()
	// Unused port to provoke a quick network failure.
	url := "http://127.0.0.1:1/api.xml"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Load(ctx, url, WithHTTPTimeout(200*time.Millisecond), WithMaxRetries(2), WithBackoffBase(10*time.Millisecond))
	var le *LoadError
	if !errors.As(err, &le) || le.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v (%T)", err, err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := writeSchema(t, "api.xml", minimalDoc)
	api, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if api.Name != "Blog" || len(api.Classes) != 1 || len(api.Classes[0].Methods) != 1 {
		t.Fatalf("unexpected tree: %+v", api)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.xml"))
	var le *LoadError
	if !errors.As(err, &le) || le.Code != InputError {
		t.Fatalf("expected InputError, got %v (%T)", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cause to match os.ErrNotExist, got %v", err)
	}
}

func TestLoad_SyntaxErrorIsParseError(t *testing.T) {
	t.Parallel()
	path := writeSchema(t, "broken.xml", `<Api name="A" baseUrl="http://x"><Class name="C"></Api>`)
	_, err := Load(context.Background(), path)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %T", err)
	}
	if le.Code != ParseError {
		t.Fatalf("expected ParseError, got %v", le.Code)
	}
	if !errors.Is(err, schema.ErrSyntax) {
		t.Fatalf("expected cause to match schema.ErrSyntax")
	}
	if le.Location == "" {
		t.Fatalf("expected location to be set")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	t.Parallel()
	path := writeSchema(t, "dup.xml", `<Api name="A" baseUrl="http://x"><Class name="C"><Method name="m"/><Method name="m"/></Class></Api>`)
	_, err := Load(context.Background(), path)
	var le *LoadError
	if !errors.As(err, &le) || le.Code != ValidationError {
		t.Fatalf("expected ValidationError, got %v (%T)", err, err)
	}
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected cause to match ErrDuplicateName, got %v", err)
	}
	if !strings.Contains(err.Error(), "dup.xml") {
		t.Fatalf("expected message to name the input, got %q", err.Error())
	}
}

func TestLoad_BuildOptionsForwarded(t *testing.T) {
	t.Parallel()
	path := writeSchema(t, "deep.xml", `<Api name="A" baseUrl="http://x"><Class name="B"><Class name="C"/></Class></Api>`)
	if _, err := Load(context.Background(), path, WithBuildOptions(WithMaxDepth(1))); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue with depth 1, got %v", err)
	}
	if _, err := Load(context.Background(), path); err != nil {
		t.Fatalf("default depth: %v", err)
	}
}

func TestLoad_HTTPRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(minimalDoc))
	}))
	defer srv.Close()

	api, err := Load(context.Background(), srv.URL+"/api.xml", WithMaxRetries(3), WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if api.Name != "Blog" {
		t.Fatalf("unexpected api name %q", api.Name)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestLoad_HTTPClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL, WithMaxRetries(3), WithBackoffBase(time.Millisecond))
	var le *LoadError
	if !errors.As(err, &le) || le.Code != NetworkError {
		t.Fatalf("expected NetworkError, got %v (%T)", err, err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

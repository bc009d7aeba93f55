package spec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/restbuilder/internal/logx"
	"github.com/mark3labs/restbuilder/internal/schema"
)

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// Build options forwarded to Build.
	Build  []BuildOption
	Logger logx.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Logger:      logx.Nop{},
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option   { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option              { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option   { return func(s *Settings) { s.BackoffBase = d } }
func WithBuildOptions(o ...BuildOption) Option { return func(s *Settings) { s.Build = append(s.Build, o...) } }
func WithLoaderLogger(l logx.Logger) Option    { return func(s *Settings) { s.Logger = logx.OrNop(l) } }

// Load reads a schema document and builds its API tree.
//
// input may be a filesystem path or an http/https URL. file:// URLs are
// rejected; pass the path instead.
func Load(ctx context.Context, input string, opts ...Option) (*Api, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &LoadError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	var (
		raw      []byte
		location string
	)
	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""
	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, &LoadError{Code: InputError, Message: "spec: file:// URLs are not supported, pass a path", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		location = input
		body, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, &LoadError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		raw = body
	} else {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
		}
		location = abs
		raw, err = os.ReadFile(abs)
		if err != nil {
			return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	settings.Logger.Debug("schema read", "location", location, "bytes", len(raw))

	build := append([]BuildOption{WithLogger(settings.Logger)}, settings.Build...)
	api, err := Parse(bytes.NewReader(raw), build...)
	if err != nil {
		return nil, mapBuildErr(err, location)
	}
	return api, nil
}

// Parse builds an API tree from an in-memory document.
func Parse(r io.Reader, opts ...BuildOption) (*Api, error) {
	return Build(schema.NewReader(r), opts...)
}

func mapBuildErr(err error, location string) error {
	var se *schema.SyntaxError
	if errors.As(err, &se) {
		return &LoadError{Code: ParseError, Message: fmt.Sprintf("%s: %v", location, err), Location: location, Cause: err}
	}
	var be *Error
	if errors.As(err, &be) {
		return &LoadError{Code: ValidationError, Message: fmt.Sprintf("%s: %v", location, err), Location: location, Cause: err}
	}
	return &LoadError{Code: InputError, Message: fmt.Sprintf("%s: %v", location, err), Location: location, Cause: err}
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		settings.Logger.Debug("fetch failed, retrying", "url", rawURL, "attempt", i+1, "err", err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// fetchOnce performs one GET. retry is true for network errors, 5xx and 429.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, false, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

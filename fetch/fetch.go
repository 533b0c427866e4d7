package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-website-fetcher/mcp"
)

// DefaultUserAgent identifies the server to the sites it fetches.
const DefaultUserAgent = "MCP Test Server"

// UnsupportedContentType is the text returned for responses whose content
// type is neither HTML, an image nor JSON.
const UnsupportedContentType = "Unsupported content type."

// Doer is the HTTP capability used for outbound requests. *http.Client
// satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher performs a single HTTP GET and maps the response to content.
type Fetcher struct {
	client    Doer
	userAgent string
	log       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client. The default client follows redirects
// and applies no timeout of its own.
func WithClient(c Doer) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch retrieves url and returns exactly one content element. It never
// fails: transport errors, non-2xx final statuses and undecodable JSON
// bodies are reported as text content.
func (f *Fetcher) Fetch(ctx context.Context, url string) []mcp.Content {
	start := time.Now()
	log := f.log.With(slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.InfoContext(ctx, "fetch.request.invalid", slog.String("err", err.Error()))
		return []mcp.Content{mcp.Text("Request Error: " + err.Error())}
	}
	req.Header.Set("User-Agent", f.userAgent)

	res, err := f.client.Do(req)
	if err != nil {
		log.InfoContext(ctx, "fetch.request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return []mcp.Content{mcp.Text("Request Error: " + err.Error())}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		log.InfoContext(ctx, "fetch.response.status", slog.Int("status", res.StatusCode), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return []mcp.Content{mcp.Textf("HTTP Error: %d", res.StatusCode)}
	}

	finalURL := url
	if res.Request != nil && res.Request.URL != nil {
		finalURL = res.Request.URL.String()
	}

	header := res.Header.Get("Content-Type")
	kind := classify(header)
	if kind == kindUnsupported || kind == kindImage {
		_, _ = io.CopyN(io.Discard, res.Body, 4096)
	}

	var out mcp.Content
	switch kind {
	case kindHTML:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			log.InfoContext(ctx, "fetch.body.fail", slog.String("err", err.Error()))
			return []mcp.Content{mcp.Text("Request Error: " + err.Error())}
		}
		out = mcp.Text(string(body))
	case kindImage:
		out = mcp.ImageContent{URL: url, MimeType: mimeOf(header)}
	case kindJSON:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			log.InfoContext(ctx, "fetch.body.fail", slog.String("err", err.Error()))
			return []mcp.Content{mcp.Text("Request Error: " + err.Error())}
		}
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			log.InfoContext(ctx, "fetch.body.invalid_json", slog.String("err", err.Error()))
			return []mcp.Content{mcp.Text(fmt.Sprintf("Parse Error: %v", err))}
		}
		out = mcp.EmbeddedResource{URI: finalURL, MimeType: mimeOf(header), Data: data}
	case kindUnsupported:
		out = mcp.Text(UnsupportedContentType)
	}

	log.InfoContext(ctx, "fetch.ok",
		slog.Int("status", res.StatusCode),
		slog.String("content_type", header),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)

	return []mcp.Content{out}
}

type contentKind int

const (
	kindUnsupported contentKind = iota
	kindHTML
	kindImage
	kindJSON
)

// classify checks for substrings of the raw header in a fixed order, so
// "text/html; charset=utf-8" is HTML and "image/svg+xml" is an image.
func classify(header string) contentKind {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "text/html"):
		return kindHTML
	case strings.Contains(h, "image"):
		return kindImage
	case strings.Contains(h, "application/json"):
		return kindJSON
	default:
		return kindUnsupported
	}
}

// mimeOf strips parameters from a Content-Type header.
func mimeOf(header string) string {
	mt := contenttype.NewMediaType(header)
	if mt.Type == "" || mt.Subtype == "" {
		return strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	}
	return mt.Type + "/" + mt.Subtype
}

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ggoodman/mcp-website-fetcher/mcp"
)

func newTarget(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func fetchOne(t *testing.T, f *Fetcher, url string) mcp.Content {
	t.Helper()
	out := f.Fetch(context.Background(), url)
	if len(out) != 1 {
		t.Fatalf("expected exactly one content element, got %d", len(out))
	}
	return out[0]
}

func TestFetchHTMLReturnsBodyVerbatim(t *testing.T) {
	body := "<html><body>hi</body></html>\n"
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})

	got := fetchOne(t, New(), srv.URL)
	if diff := cmp.Diff(mcp.Text(body), got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	var seen string
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
	})

	fetchOne(t, New(), srv.URL)
	if seen != DefaultUserAgent {
		t.Fatalf("expected user agent %q, got %q", DefaultUserAgent, seen)
	}

	fetchOne(t, New(WithUserAgent("custom/1.0")), srv.URL)
	if seen != "custom/1.0" {
		t.Fatalf("expected overridden user agent, got %q", seen)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got := fetchOne(t, New(), srv.URL+"/old")
	if diff := cmp.Diff(mcp.Text("moved"), got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	got := fetchOne(t, New(), srv.URL)
	text, ok := got.(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", got)
	}
	if text.Text != "HTTP Error: 404" {
		t.Fatalf("unexpected text %q", text.Text)
	}
}

func TestFetchNonSuccessStatusesAreErrors(t *testing.T) {
	for _, code := range []int{http.StatusMultipleChoices, http.StatusNotModified, http.StatusInternalServerError} {
		srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(code)
		})

		got := fetchOne(t, New(), srv.URL)
		want := mcp.Textf("HTTP Error: %d", code)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("status %d (-want +got):\n%s", code, diff)
		}
	}
}

func TestFetchJSONEmbedsDecodedDocument(t *testing.T) {
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"a":1}`))
	})

	got := fetchOne(t, New(), srv.URL)
	want := mcp.EmbeddedResource{
		URI:      srv.URL,
		MimeType: "application/json",
		Data:     map[string]any{"a": 1.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchInvalidJSONIsReportedAsText(t *testing.T) {
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":`))
	})

	got := fetchOne(t, New(), srv.URL)
	text, ok := got.(mcp.TextContent)
	if !ok || !strings.HasPrefix(text.Text, "Parse Error: ") {
		t.Fatalf("expected parse error text, got %#v", got)
	}
}

func TestFetchImageReferencesURL(t *testing.T) {
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	url := srv.URL + "/cat.png"
	got := fetchOne(t, New(), url)
	want := mcp.ImageContent{URL: url, MimeType: "image/png"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchUnsupportedContentType(t *testing.T) {
	srv := newTarget(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain"))
	})

	got := fetchOne(t, New(), srv.URL)
	if diff := cmp.Diff(mcp.Text(UnsupportedContentType), got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

type failingDoer struct{ err error }

func (d failingDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func TestFetchTransportErrorIsReportedAsText(t *testing.T) {
	f := New(WithClient(failingDoer{err: errors.New("connection refused")}))

	got := fetchOne(t, f, "http://127.0.0.1:1/")
	text, ok := got.(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", got)
	}
	if text.Text != "Request Error: connection refused" {
		t.Fatalf("unexpected text %q", text.Text)
	}
}

func TestFetchMalformedURL(t *testing.T) {
	got := fetchOne(t, New(), "://nope")
	text, ok := got.(mcp.TextContent)
	if !ok || !strings.HasPrefix(text.Text, "Request Error: ") {
		t.Fatalf("expected request error text, got %#v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]contentKind{
		"text/html":                kindHTML,
		"TEXT/HTML; charset=UTF-8": kindHTML,
		"image/svg+xml":            kindImage,
		"application/json":         kindJSON,
		"application/problem+json": kindUnsupported,
		"":                         kindUnsupported,
	}
	for in, want := range tests {
		if got := classify(in); got != want {
			t.Errorf("classify(%q) = %v, want %v", in, got, want)
		}
	}
}

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a  b\t\nc", "a b c"},
		{"long ellipsis", "wait.....", "wait..."},
		{"repeated bangs", "stop!!!", "stop!"},
		{"repeated questions", "why???", "why?"},
		{"plain text untouched", "nothing to do.", "nothing to do."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

const fixturePage = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Release Notes</title>
<meta name="description" content="What changed in version two.">
<meta name="keywords" content="release, changelog">
<meta name="author" content="Docs Team">
</head>
<body>
<nav>Home | About</nav>
<article>
<h1>Release Notes</h1>
<p>Version two ships a faster indexer. The new indexer processes documents
in parallel and skips files that have not changed since the last run,
which makes repeated runs considerably cheaper on large repositories.</p>
<p>Upgrading requires no migration. Existing indexes are read as-is and
rewritten in the new format the first time they are touched.</p>
</article>
<footer>Copyright</footer>
<script>trackPageView();</script>
</body>
</html>`

func TestExtractor_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "webgest") {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(fixturePage))
	}))
	defer srv.Close()

	ex := NewExtractor(5*time.Second, "", 1<<20, nil)
	doc, err := ex.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if doc.Ref != srv.URL {
		t.Errorf("Ref = %q, want %q", doc.Ref, srv.URL)
	}
	if !strings.Contains(doc.Text, "faster indexer") {
		t.Errorf("article text missing from %q", doc.Text)
	}
	if strings.Contains(doc.Text, "trackPageView") {
		t.Error("script content leaked into text")
	}

	if doc.Metadata["url"] != srv.URL {
		t.Errorf("metadata url = %q", doc.Metadata["url"])
	}
	if doc.Metadata["title"] != "Release Notes" {
		t.Errorf("metadata title = %q", doc.Metadata["title"])
	}
	if doc.Metadata["description"] != "What changed in version two." {
		t.Errorf("metadata description = %q", doc.Metadata["description"])
	}
	if doc.Metadata["keywords"] != "release, changelog" {
		t.Errorf("metadata keywords = %q", doc.Metadata["keywords"])
	}
	if doc.Metadata["author"] != "Docs Team" {
		t.Errorf("metadata author = %q", doc.Metadata["author"])
	}
	if doc.Metadata["language"] != "en" {
		t.Errorf("metadata language = %q", doc.Metadata["language"])
	}
	if _, err := time.Parse(time.RFC3339, doc.Metadata["processed_date"]); err != nil {
		t.Errorf("processed_date %q is not RFC3339: %v", doc.Metadata["processed_date"], err)
	}
}

func TestExtractor_Fetch_OGDescriptionFallback(t *testing.T) {
	page := `<html><head><title>T</title>
<meta property="og:description" content="social summary">
</head><body><p>body text body text body text</p></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	ex := NewExtractor(5*time.Second, "", 1<<20, nil)
	doc, err := ex.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.Metadata["description"] != "social summary" {
		t.Errorf("description = %q, want og:description fallback", doc.Metadata["description"])
	}
}

func TestExtractor_Fetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	ex := NewExtractor(5*time.Second, "", 1<<20, nil)
	_, err := ex.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.URL != srv.URL {
		t.Errorf("FetchError.URL = %q, want %q", fe.URL, srv.URL)
	}
}

func TestExtractor_Fetch_RejectsBadURLs(t *testing.T) {
	ex := NewExtractor(time.Second, "", 1<<20, nil)
	for _, raw := range []string{"ftp://example.com/file", "not a url at all://", "/relative/path"} {
		if _, err := ex.Fetch(context.Background(), raw); err == nil {
			t.Errorf("Fetch(%q): expected error", raw)
		}
	}
}

func TestStripHTML_SkipsBoilerplate(t *testing.T) {
	page := `<html><body><nav>menu</nav><p>keep this</p><footer>legal</footer></body></html>`
	got := stripHTML(page)
	if !strings.Contains(got, "keep this") {
		t.Errorf("content missing from %q", got)
	}
	if strings.Contains(got, "menu") || strings.Contains(got, "legal") {
		t.Errorf("boilerplate leaked into %q", got)
	}
}

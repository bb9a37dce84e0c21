package tools

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebFetchPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><script>ignored()</script><h1>Hello</h1><p>World, this is a short static page whose text is served directly in the HTML body, with no client-side rendering step.</p></body></html>`))
	}))
	defer srv.Close()

	ctx, _ := newTestContext(t)
	res := (&WebFetchTool{httpClient: srv.Client()}).Execute(ctx, map[string]any{"url": srv.URL})
	if res.Status != "ok" {
		t.Fatalf("expected ok, got %+v", res.Error)
	}
	text, _ := res.Body["text"].(string)
	if !strings.Contains(text, "Hello") || !strings.Contains(text, "World") {
		t.Fatalf("expected extracted text to contain page content, got %q", text)
	}
	if strings.Contains(text, "ignored()") {
		t.Fatalf("expected script content stripped, got %q", text)
	}
}

func TestWebFetchFallsBackToJSRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>short</body></html>`))
	}))
	defer srv.Close()

	ctx, _ := newTestContext(t)
	tool := &WebFetchTool{httpClient: srv.Client(), Renderer: stubRenderer{text: "rendered page content"}}
	res := tool.Execute(ctx, map[string]any{"url": srv.URL})
	if res.Status != "ok" {
		t.Fatalf("expected ok, got %+v", res.Error)
	}
	if res.Body["text"] != "rendered page content" {
		t.Fatalf("expected renderer output, got %v", res.Body["text"])
	}
}

type stubRenderer struct{ text string }

func (s stubRenderer) Render(string) (string, error) { return s.text, nil }

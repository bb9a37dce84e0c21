package tools

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/AgentSmithyAI/agentsmithy-agent/internal/domain"
)

const webFetchTimeout = 12 * time.Second
const maxFetchBytes = 1 << 20 // 1MB, matches get_staged_files' diffable-size cap

// WebSearchTool implements web_search. No Go search-API client library
// appears anywhere in the example corpus (the original implementation
// uses Python's ddgs package), so this hits DuckDuckGo's HTML search
// endpoint directly over net/http and extracts results with a small
// regexp scan — justified stdlib use, documented in DESIGN.md.
type WebSearchTool struct {
	httpClient *http.Client
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{httpClient: &http.Client{Timeout: webFetchTimeout}}
}

func (*WebSearchTool) Name() string                        { return "web_search" }
func (*WebSearchTool) Mutating() bool                       { return false }
func (*WebSearchTool) Paths(map[string]any) []string        { return nil }
type webSearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query"`
	NumResults int    `json:"num_results,omitempty" jsonschema:"description=Maximum number of results to return"`
}

func (*WebSearchTool) Schema() map[string]any { return argsSchema(&webSearchArgs{}) }

var searchResultRe = regexp.MustCompile(`(?s)<a rel="nofollow" class="result__a" href="([^"]+)"[^>]*>(.*?)</a>.*?<a class="result__snippet"[^>]*>(.*?)</a>`)

func (s *WebSearchTool) Execute(ctx Context, args map[string]any) Result {
	query, errRes := StringArg(args, "query")
	if errRes != nil {
		return *errRes
	}
	numResults := 5
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		numResults = int(n)
	}

	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, "https://html.duckduckgo.com/html/?q="+strings.ReplaceAll(query, " ", "+"), nil)
	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; agentsmithy-bot/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}

	matches := searchResultRe.FindAllStringSubmatch(string(body), numResults)
	results := make([]map[string]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]string{
			"url":     m[1],
			"title":   stripTags(m[2]),
			"snippet": stripTags(m[3]),
		})
	}

	return Result{
		Status:  "ok",
		Body:    map[string]any{"query": query, "results": results, "count": len(results)},
		Summary: fmt.Sprintf("Found %d web results for %q", len(results), query),
	}
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

// JSRenderer is a pluggable headless-browser fallback for JS-rendered
// pages (spec.md §4.3: "optionally via a headless-browser fallback").
// No such library appears in the example corpus, so it is specified
// only at its interface, the same way rag.Index is: WebFetchTool works
// fully with JSRenderer nil, simply skipping the fallback.
type JSRenderer interface {
	Render(url string) (text string, err error)
}

// WebFetchTool implements web_fetch: a fast plain HTTP fetch, falling
// back to JSRenderer (if configured) when the fetched page looks like
// a JS-only shell.
type WebFetchTool struct {
	httpClient *http.Client
	Renderer   JSRenderer
}

func NewWebFetchTool(renderer JSRenderer) *WebFetchTool {
	return &WebFetchTool{httpClient: &http.Client{Timeout: webFetchTimeout}, Renderer: renderer}
}

func (*WebFetchTool) Name() string                        { return "web_fetch" }
func (*WebFetchTool) Mutating() bool                       { return false }
func (*WebFetchTool) Paths(map[string]any) []string        { return nil }
type webFetchArgs struct {
	URL string `json:"url" jsonschema:"required,description=URL to fetch"`
}

func (*WebFetchTool) Schema() map[string]any { return argsSchema(&webFetchArgs{}) }

func (w *WebFetchTool) Execute(ctx Context, args map[string]any) Result {
	url, errRes := StringArg(args, "url")
	if errRes != nil {
		return *errRes
	}

	text, status, contentType, err := w.fetchHTTP(ctx, url)
	if err == nil && status == 200 && text != "" && !requiresJS(text, contentType) {
		return Result{
			Status:  "ok",
			Body:    map[string]any{"url": url, "text": text, "status": status},
			Summary: fmt.Sprintf("Fetched %s (%d chars)", url, len(text)),
		}
	}

	if w.Renderer != nil {
		if rendered, rerr := w.Renderer.Render(url); rerr == nil && rendered != "" {
			return Result{
				Status:  "ok",
				Body:    map[string]any{"url": url, "text": rendered, "status": 200, "rendered": true},
				Summary: fmt.Sprintf("Fetched %s via JS render (%d chars)", url, len(rendered)),
			}
		}
	}

	if err != nil {
		return errorResult(domain.ToolErrExecFailed, err.Error(), "")
	}
	if text == "" {
		return errorResult(domain.ToolErrExecFailed, fmt.Sprintf("empty response from %s (status %d)", url, status), "")
	}
	return Result{
		Status:  "ok",
		Body:    map[string]any{"url": url, "text": text, "status": status},
		Summary: fmt.Sprintf("Fetched %s (%d chars)", url, len(text)),
	}
}

func (w *WebFetchTool) fetchHTTP(ctx Context, url string) (text string, status int, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; agentsmithy-bot/1.0)")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", resp.StatusCode, resp.Header.Get("Content-Type"), err
	}
	contentType = resp.Header.Get("Content-Type")

	out := string(body)
	if strings.Contains(contentType, "html") {
		out = extractText(out)
	}
	return out, resp.StatusCode, contentType, nil
}

var scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)

func extractText(html string) string {
	noScripts := scriptStyleRe.ReplaceAllString(html, "")
	return strings.TrimSpace(tagRe.ReplaceAllString(noScripts, " "))
}

func requiresJS(text, contentType string) bool {
	if !strings.Contains(contentType, "html") {
		return false
	}
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "please enable javascript") || strings.Contains(lowered, "requires javascript") {
		return true
	}
	return len(text) < 512
}

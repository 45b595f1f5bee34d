package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the HTML results page. It needs no credentials.
type DuckDuckGo struct {
	endpoint   string
	httpClient *http.Client
}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		endpoint:   duckDuckGoEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, n int) ([]Hit, error) {
	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build duckduckgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo HTTP %d", resp.StatusCode)
	}

	hits, err := parseResults(io.LimitReader(resp.Body, 2<<20), n)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Hit{{Title: "No results", Snippet: "N/A"}}, nil
	}
	return hits, nil
}

// parseResults reads result blocks positionally: each div with class
// "result" gives a hit whose title and link come from its first anchor and
// whose snippet is the result__snippet element, or the anchor text.
func parseResults(r io.Reader, n int) ([]Hit, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var hits []Hit
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if len(hits) >= n {
			return
		}
		if node.Type == html.ElementNode && node.Data == "div" && hasClass(node, "result") {
			hits = append(hits, extractHit(node))
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits, nil
}

func extractHit(block *html.Node) Hit {
	var h Hit
	a := find(block, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "a" })
	if a != nil {
		h.Title = strings.TrimSpace(textContent(a))
		h.Link = cleanLink(attr(a, "href"))
	}
	if sn := find(block, func(n *html.Node) bool { return n.Type == html.ElementNode && hasClass(n, "result__snippet") }); sn != nil {
		h.Snippet = strings.TrimSpace(textContent(sn))
	} else if a != nil {
		h.Snippet = h.Title
	}
	return h
}

// cleanLink unwraps DuckDuckGo redirect links (//duckduckgo.com/l/?uddg=...).
func cleanLink(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if got := find(c, match); got != nil {
			return got
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

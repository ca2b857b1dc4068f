// Package search queries a hidden-service search engine and summarizes the
// links it returns. Search never fails: every error becomes a fallback text
// the model can still reason about.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/proxy"

	"github.com/coopco/molebot/internal/metrics"
)

const (
	DefaultEndpoint = "http://duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion/"
	DefaultProxy    = "socks5://127.0.0.1:9050"
	DefaultTimeout  = 45 * time.Second
	DefaultMaxLinks = 5

	maxBodyBytes = 2 << 20
)

// Fallback texts for failed searches.
const (
	RefusedText = "❌ Hidden-service access failed (connection refused). The search source is unreachable right now. " +
		"Continue the analysis from public information (search tool) and the system instruction."
	TimeoutText = "❌ Hidden-service access failed (timeout). The search source is too slow. " +
		"Continue the analysis from public information (search tool) and the system instruction."
	GenericText = "❌ Hidden-service access failed (general error). " +
		"Continue the analysis from public information (search tool) and the system instruction."
)

// Config configures a Searcher.
type Config struct {
	Endpoint string
	Proxy    string // socks5:// or socks5h:// URL; empty dials directly
	Timeout  time.Duration
	MaxLinks int
}

// Link is one extracted result.
type Link struct {
	Title string
	URL   string
}

// Searcher runs queries against the configured endpoint.
type Searcher struct {
	cfg    Config
	client *http.Client
}

// New creates a Searcher. The proxy dialer resolves host names remotely.
func New(cfg Config) (*Searcher, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = DefaultMaxLinks
	}

	transport := &http.Transport{Proxy: nil}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		if u.Scheme != "socks5" && u.Scheme != "socks5h" {
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		var auth *proxy.Auth
		if u.User != nil {
			pw, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pw}
		}
		d, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	}

	return &Searcher{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}, nil
}

// Search returns a summary of the hidden-service links found for query.
func (s *Searcher) Search(ctx context.Context, query string) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	slog.Info("search: querying", "query", query)
	links, status, err := s.fetch(ctx, query)
	switch {
	case err != nil:
		outcome, text := classify(err)
		slog.Warn("search: failed", "outcome", outcome, "err", err)
		metrics.Searches.WithLabelValues(outcome).Inc()
		return text
	case status != http.StatusOK:
		metrics.Searches.WithLabelValues("http_error").Inc()
		return fmt.Sprintf("[Hidden-service HTTP failure: %d]. The network was reachable, but the target site "+
			"(%d - unresponsive or dead link) could not be indexed.", status, status)
	}
	metrics.Searches.WithLabelValues("ok").Inc()
	return s.summarize(links)
}

func (s *Searcher) fetch(ctx context.Context, query string) ([]Link, int, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "molebot/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	links, err := ParseLinks(io.LimitReader(resp.Body, maxBodyBytes), s.cfg.MaxLinks)
	if err != nil {
		return nil, 0, fmt.Errorf("parse results: %w", err)
	}
	return links, resp.StatusCode, nil
}

func (s *Searcher) summarize(links []Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ HIDDEN-SERVICE SEARCH SUCCEEDED. Found %d onion links (max: %d).", len(links), s.cfg.MaxLinks)
	if len(links) == 0 {
		b.WriteString("\nNo relevant .onion links could be extracted. The query may need adjusting.")
		return b.String()
	}
	b.WriteString("\n\n*Indexed links (for Agent Mole analysis):*")
	for i, l := range links {
		title := l.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "\n%d. *[%s]*\n   URL: `%s`", i+1, title, l.URL)
	}
	b.WriteString("\n\n*Follow-up instruction:* Use the indexed links above for context or references in your answer.")
	return b.String()
}

// ParseLinks extracts up to limit unique .onion links from an HTML page.
// Redirect wrappers carrying the target in a uddg parameter are unwrapped.
func ParseLinks(r io.Reader, limit int) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var (
		links []Link
		seen  = make(map[string]bool)
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(links) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); strings.HasPrefix(href, "http") {
				target := unwrap(href)
				if strings.Contains(target, ".onion") && !seen[target] {
					seen[target] = true
					links = append(links, Link{Title: nodeText(n), URL: target})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func unwrap(href string) string {
	i := strings.Index(href, "uddg=")
	if i < 0 {
		return href
	}
	raw, _, _ := strings.Cut(href[i+len("uddg="):], "&")
	if target, err := url.QueryUnescape(raw); err == nil {
		return target
	}
	return raw
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func classify(err error) (string, string) {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(err.Error(), "connection refused"):
		return "refused", RefusedText
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		return "timeout", TimeoutText
	default:
		return "error", GenericText
	}
}

package search

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const resultsPage = `<html><body>
<a href="https://duckduckgo.com/l/?uddg=http%3A%2F%2Fmarketabc.onion%2Fitem%3Fid%3D1&rut=xyz"> Market   ABC </a>
<a href="http://forumxyz.onion/thread">Forum <b>XYZ</b></a>
<a href="http://forumxyz.onion/thread">duplicate</a>
<a href="https://example.com/clearnet">clearnet</a>
<a href="/relative.onion">relative</a>
<a href="http://a1.onion/">one</a>
<a href="http://a2.onion/">two</a>
<a href="http://a3.onion/">three</a>
<a href="http://a4.onion/">four</a>
</body></html>`

func TestParseLinks(t *testing.T) {
	links, err := ParseLinks(strings.NewReader(resultsPage), 5)
	if err != nil {
		t.Fatalf("ParseLinks() error: %v", err)
	}
	want := []Link{
		{Title: "Market ABC", URL: "http://marketabc.onion/item?id=1"},
		{Title: "Forum XYZ", URL: "http://forumxyz.onion/thread"},
		{Title: "one", URL: "http://a1.onion/"},
		{Title: "two", URL: "http://a2.onion/"},
		{Title: "three", URL: "http://a3.onion/"},
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links: %+v", len(links), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %+v, want %+v", i, links[i], want[i])
		}
	}
}

func newTestSearcher(t *testing.T, endpoint string, timeout time.Duration) *Searcher {
	t.Helper()
	s, err := New(Config{Endpoint: endpoint, Timeout: timeout})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestSearchSuccess(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	out := newTestSearcher(t, srv.URL, time.Second).Search(t.Context(), "stolen cards")
	if gotQuery != "stolen cards" {
		t.Errorf("query = %q", gotQuery)
	}
	if !strings.Contains(out, "Found 5 onion links (max: 5)") {
		t.Errorf("summary = %q", out)
	}
	if !strings.Contains(out, "1. *[Market ABC]*\n   URL: `http://marketabc.onion/item?id=1`") {
		t.Errorf("summary = %q", out)
	}
}

func TestSearchNoLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="https://example.com">x</a></html>`)
	}))
	defer srv.Close()

	out := newTestSearcher(t, srv.URL, time.Second).Search(t.Context(), "q")
	if !strings.Contains(out, "Found 0 onion links") || !strings.Contains(out, "No relevant .onion links") {
		t.Errorf("summary = %q", out)
	}
}

func TestSearchHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out := newTestSearcher(t, srv.URL, time.Second).Search(t.Context(), "q")
	if !strings.Contains(out, "HTTP failure: 502") {
		t.Errorf("summary = %q", out)
	}
}

func TestSearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	out := newTestSearcher(t, srv.URL, 50*time.Millisecond).Search(t.Context(), "q")
	if out != TimeoutText {
		t.Errorf("summary = %q", out)
	}
}

func TestSearchRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out := newTestSearcher(t, "http://"+addr+"/", time.Second).Search(t.Context(), "q")
	if out != RefusedText {
		t.Errorf("summary = %q", out)
	}
}

func TestNewRejectsBadProxy(t *testing.T) {
	if _, err := New(Config{Proxy: "http://127.0.0.1:8080"}); err == nil {
		t.Fatal("expected error for non-socks proxy")
	}
	if _, err := New(Config{Proxy: "socks5h://127.0.0.1:9050"}); err != nil {
		t.Fatalf("socks5h proxy rejected: %v", err)
	}
}

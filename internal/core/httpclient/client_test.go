package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"type":"Point","coordinates":[1,2]}`))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/away":
			http.Redirect(w, r, "http://169.254.169.254/latest/meta-data", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOutbound(time.Second)
	allow := NewAllowlist([]string{"127.0.0.1"})

	body, err := Fetch(t.Context(), c, allow, srv.URL+"/ok", 1024)
	if err != nil || !strings.Contains(string(body), "Point") {
		t.Fatalf("body=%q err=%v", body, err)
	}

	if _, err := Fetch(t.Context(), c, allow, srv.URL+"/big", 16); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err=%v want ErrTooLarge", err)
	}
	if _, err := Fetch(t.Context(), c, allow, srv.URL+"/missing", 1024); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err=%v want upstream 404", err)
	}
	if _, err := Fetch(t.Context(), c, allow, srv.URL+"/away", 1024); !errors.Is(err, ErrHostNotAllowed) {
		t.Fatalf("redirect err=%v want ErrHostNotAllowed", err)
	}
	for _, bad := range []string{"file:///etc/passwd", "not a url", "http://"} {
		if _, err := Fetch(t.Context(), c, allow, bad, 1024); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("err=%v want ErrInvalidURL for %q", err, bad)
		}
	}
}

func TestFetch_RejectsHostsOutsideAllowlist(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	c := NewOutbound(time.Second)
	for _, allow := range []Allowlist{nil, NewAllowlist([]string{"example.com"})} {
		if _, err := Fetch(t.Context(), c, allow, "http://"+u.Host+"/doc", 1024); !errors.Is(err, ErrHostNotAllowed) {
			t.Fatalf("err=%v want ErrHostNotAllowed", err)
		}
	}
	if hits != 0 {
		t.Fatalf("server was dialed %d times", hits)
	}
}

func TestAllowlist_Match(t *testing.T) {
	a := NewAllowlist([]string{" Data.Example.com ", ".tiles.org", ""})
	cases := []struct {
		host string
		want string
		ok   bool
	}{
		{"data.example.com", "data.example.com", true},
		{"DATA.example.com.", "data.example.com", true},
		{"example.com", "", false},
		{"a.tiles.org", ".tiles.org", true},
		{"x.y.tiles.org", ".tiles.org", true},
		{"tiles.org", "", false},
		{"evil-tiles.org", "", false},
		{"169.254.169.254", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := a.match(tc.host)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("match(%q)=%q,%v want %q,%v", tc.host, got, ok, tc.want, tc.ok)
		}
	}
}

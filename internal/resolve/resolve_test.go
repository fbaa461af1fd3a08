package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cooperbraun13/sws/internal/request"
	"github.com/cooperbraun13/sws/internal/status"
)

// tree builds
//
//	base/
//	  docs/index.html
//	  docs/a.txt
//	  docs/sub/            (no index)
//	  docs/withidx/index.html
//	  docs/idxdir/index.html/   (index.html is a directory)
//	  docs/escape -> ../secret.txt
//	  docs/loop -> loop
//	  secret.txt
//	  cgi/echo (0755)
//	  cgi/plain (0644)
//	  home/alice/sws/page.html
func tree(t *testing.T) string {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	write := func(rel, body string, mode os.FileMode) {
		p := filepath.Join(base, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), mode); err != nil {
			t.Fatal(err)
		}
	}
	write("docs/index.html", "0123456789", 0o644)
	write("docs/a.txt", "a", 0o644)
	write("docs/withidx/index.html", "idx", 0o644)
	write("secret.txt", "secret", 0o644)
	write("cgi/echo", "#!/bin/sh\necho ok\n", 0o755)
	write("cgi/plain", "not executable", 0o644)
	write("home/alice/sws/page.html", "alice", 0o644)
	for _, d := range []string{"docs/sub", "docs/idxdir/index.html"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("../secret.txt", filepath.Join(base, "docs/escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("loop", filepath.Join(base, "docs/loop")); err != nil {
		t.Fatal(err)
	}
	return base
}

func newResolver(base string, cgi bool) *Resolver {
	cfg := Config{
		DocRoot: filepath.Join(base, "docs"),
		LookupHome: func(name string) (string, error) {
			if name == "alice" {
				return filepath.Join(base, "home/alice"), nil
			}
			return "", errors.New("no such user")
		},
	}
	if cgi {
		cfg.CGIDir = filepath.Join(base, "cgi")
	}
	return New(cfg)
}

func TestResolve(t *testing.T) {
	base := tree(t)
	r := newResolver(base, true)
	cases := []struct {
		path   string
		method request.Method
		code   status.Code
		want   Target
	}{
		{"/index.html", request.MethodGet, status.OK, Target{Path: base + "/docs/index.html"}},
		{"/", request.MethodGet, status.OK, Target{Path: base + "/docs/index.html"}},
		{"/withidx", request.MethodHead, status.OK, Target{Path: base + "/docs/withidx/index.html"}},
		{"/sub", request.MethodGet, status.OK, Target{Path: base + "/docs/sub", Dir: true}},
		{"/idxdir/", request.MethodGet, status.OK, Target{Path: base + "/docs/idxdir", Dir: true}},
		{"/sub/../a.txt", request.MethodGet, status.OK, Target{Path: base + "/docs/a.txt"}},
		{"/nope", request.MethodGet, status.NotFound, Target{}},
		{"/a.txt/x", request.MethodGet, status.NotFound, Target{}},
		{"/../secret.txt", request.MethodGet, status.Forbidden, Target{}},
		{"/../../../../../../../../etc/passwd", request.MethodGet, status.Forbidden, Target{}},
		{"/escape", request.MethodGet, status.Forbidden, Target{}},
		{"/loop", request.MethodGet, status.BadRequest, Target{}},
		{"/cgi-bin/echo", request.MethodGet, status.OK, Target{Path: base + "/cgi/echo", CGI: true}},
		{"/cgi-bin/echo?a=1&b=2", request.MethodPost, status.OK,
			Target{Path: base + "/cgi/echo", CGI: true, Query: "a=1&b=2"}},
		{"/cgi-bin/plain", request.MethodGet, status.Forbidden, Target{}},
		{"/cgi-bin/missing", request.MethodGet, status.NotFound, Target{}},
		{"/cgi-bin/../secret.txt", request.MethodGet, status.Forbidden, Target{}},
		{"/cgi-bin/", request.MethodGet, status.Forbidden, Target{}},
		{"/a.txt?x=y", request.MethodGet, status.Forbidden, Target{}},
		{"/~alice/page.html", request.MethodGet, status.OK, Target{Path: base + "/home/alice/sws/page.html"}},
		{"/~alice/../../../docs/a.txt", request.MethodGet, status.Forbidden, Target{}},
		{"/~bob/page.html", request.MethodGet, status.NotFound, Target{}},
		{"/~/page.html", request.MethodGet, status.NotFound, Target{}},
		{"/~" + strings.Repeat("u", MaxLoginName+1) + "/x", request.MethodGet, status.BadRequest, Target{}},
		{"/" + strings.Repeat("p", 5000), request.MethodGet, status.BadRequest, Target{}},
		{"/index.html\x00x", request.MethodGet, status.BadRequest, Target{}},
		{"/cgi-bin/echo\x00", request.MethodGet, status.BadRequest, Target{}},
		{"/~alice\x00/page.html", request.MethodGet, status.BadRequest, Target{}},
		// POST needs execute permission on plain files too
		{"/a.txt", request.MethodPost, status.Forbidden, Target{}},
	}
	for _, c := range cases {
		got, code := r.Resolve(c.path, c.method)
		if code != c.code {
			t.Errorf("Resolve(%q) code = %d, want %d", c.path, code, c.code)
			continue
		}
		if got != c.want {
			t.Errorf("Resolve(%q) = %+v, want %+v", c.path, got, c.want)
		}
	}
}

func TestResolveCGIDisabled(t *testing.T) {
	base := tree(t)
	r := newResolver(base, false)
	if _, code := r.Resolve("/cgi-bin/echo", request.MethodGet); code != status.NotFound {
		t.Errorf("code = %d, want 404", code)
	}
	if _, code := r.Resolve("/a.txt?x=y", request.MethodGet); code != status.NotFound {
		t.Errorf("code = %d, want 404", code)
	}
}

func TestResolveLegacyQuery(t *testing.T) {
	base := tree(t)
	if err := os.WriteFile(filepath.Join(base, "docs/run"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	r := newResolver(base, true)
	got, code := r.Resolve("/run?q=1", request.MethodGet)
	if code != status.OK {
		t.Fatalf("code = %d", code)
	}
	want := Target{Path: base + "/docs/run", CGI: true, Query: "q=1"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResolveUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	base := tree(t)
	p := filepath.Join(base, "docs/a.txt")
	if err := os.Chmod(p, 0); err != nil {
		t.Fatal(err)
	}
	r := newResolver(base, false)
	if _, code := r.Resolve("/a.txt", request.MethodGet); code != status.Forbidden {
		t.Errorf("code = %d, want 403", code)
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		root, p string
		want    bool
	}{
		{"/srv/www", "/srv/www", true},
		{"/srv/www", "/srv/www/a", true},
		{"/srv/www", "/srv/wwwx/a", false},
		{"/srv/www", "/srv", false},
		{"/", "/etc", true},
	}
	for _, c := range cases {
		if got := within(c.root, c.p); got != c.want {
			t.Errorf("within(%q, %q) = %v", c.root, c.p, got)
		}
	}
}

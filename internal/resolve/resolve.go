// Package resolve maps request paths onto the filesystem and keeps every
// result inside the root it was resolved against.
package resolve

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cooperbraun13/sws/internal/request"
	"github.com/cooperbraun13/sws/internal/status"
)

const (
	CGIPrefix = "/cgi-bin/"
	// UserDir is the subdirectory of a user's home served for /~user paths.
	UserDir   = "sws"
	IndexFile = "index.html"
	// MaxLoginName matches LOGIN_NAME_MAX on Linux.
	MaxLoginName = 256
)

// Config is read-only once handed to New.
type Config struct {
	DocRoot string
	// CGIDir enables /cgi-bin/ when non-empty.
	CGIDir string
	// LookupHome returns a user's home directory. Defaults to the system
	// password database.
	LookupHome func(name string) (string, error)
}

// Target is a resolved request path.
type Target struct {
	// Path is absolute and free of symlinks, ".", and "..".
	Path  string
	CGI   bool
	Query string
	// Dir is set when Path is a directory without a usable index file.
	Dir bool
}

type Resolver struct {
	cfg Config
}

func New(cfg Config) *Resolver {
	if cfg.LookupHome == nil {
		cfg.LookupHome = lookupHome
	}
	cfg.DocRoot = absPath(cfg.DocRoot)
	if cfg.CGIDir != "" {
		cfg.CGIDir = absPath(cfg.CGIDir)
	}
	return &Resolver{cfg: cfg}
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

func lookupHome(name string) (string, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return "", err
	}
	return u.HomeDir, nil
}

// Resolve maps rawPath to a Target. The returned code is status.OK exactly
// when the Target is usable.
func (r *Resolver) Resolve(rawPath string, m request.Method) (Target, status.Code) {
	var (
		t    Target
		root string
		rest string
		// status when the root itself cannot be resolved
		noRoot = status.InternalServerError
	)
	// the kernel rejects NUL with EINVAL; that is the client's fault
	if strings.IndexByte(rawPath, 0) >= 0 {
		return t, status.BadRequest
	}
	switch {
	case strings.HasPrefix(rawPath, "/~"):
		userdir := rawPath[2:]
		i := strings.IndexByte(userdir, '/')
		if i < 0 {
			i = len(userdir)
		}
		if i > MaxLoginName {
			return t, status.BadRequest
		}
		if i == 0 {
			return t, status.NotFound
		}
		home, err := r.cfg.LookupHome(userdir[:i])
		if err != nil {
			return t, status.NotFound
		}
		root, rest = filepath.Join(home, UserDir), userdir[i:]
		noRoot = status.NotFound
	case r.cfg.CGIDir != "" && strings.HasPrefix(rawPath, CGIPrefix):
		t.CGI = true
		root = r.cfg.CGIDir
		rest, t.Query, _ = strings.Cut(rawPath[len(CGIPrefix)-1:], "?")
		noRoot = status.NotFound
	case r.cfg.CGIDir != "" && strings.Contains(rawPath, "?"):
		t.CGI = true
		root = r.cfg.DocRoot
		rest, t.Query, _ = strings.Cut(rawPath, "?")
	default:
		root, rest = r.cfg.DocRoot, rawPath
	}
	if len(t.Query) > unix.PathMax {
		return Target{}, status.BadRequest
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return Target{}, noRoot
	}
	if len(realRoot)+len(rest) > unix.PathMax {
		return Target{}, status.BadRequest
	}
	candidate := realRoot + rest

	// The kernel reports the errno we map; EvalSymlinks then gives the
	// normalized path for the containment check.
	info, err := os.Stat(candidate)
	if err != nil {
		return Target{}, errnoStatus(err)
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return Target{}, errnoStatus(err)
	}
	if !within(realRoot, resolved) {
		return Target{}, status.Forbidden
	}

	mode := uint32(unix.R_OK)
	if t.CGI || m == request.MethodPost {
		mode |= unix.X_OK
	}
	if err := unix.Access(resolved, mode); err != nil {
		return Target{}, errnoStatus(err)
	}

	t.Path = resolved
	if info.IsDir() {
		if t.CGI {
			return Target{}, status.Forbidden
		}
		if idx, ok := indexFile(realRoot, resolved); ok {
			t.Path = idx
		} else {
			t.Dir = true
		}
	}
	return t, status.OK
}

// indexFile returns dir's index.html when it is a readable regular file that
// stays inside root.
func indexFile(root, dir string) (string, bool) {
	idx, err := filepath.EvalSymlinks(filepath.Join(dir, IndexFile))
	if err != nil || !within(root, idx) {
		return "", false
	}
	fi, err := os.Stat(idx)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	if unix.Access(idx, unix.R_OK) != nil {
		return "", false
	}
	return idx, true
}

// within reports whether p is root or lies below it. Both must be clean.
func within(root, p string) bool {
	if p == root || root == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}

func errnoStatus(err error) status.Code {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENOTDIR):
		return status.NotFound
	case errors.Is(err, unix.ELOOP), errors.Is(err, unix.ENAMETOOLONG):
		return status.BadRequest
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EROFS):
		return status.Forbidden
	default:
		return status.InternalServerError
	}
}

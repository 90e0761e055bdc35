package pathlib

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/indigo-web/preview/http/status"
)

// Resolver maps request paths onto files under a root directory. It is purely
// lexical and never touches the file system, so it is safe to call from an
// event loop.
type Resolver struct {
	root      string
	cleanRoot string
	index     string
}

func NewResolver(root, index string) *Resolver {
	return &Resolver{
		root:      withTrailingSep(root),
		cleanRoot: filepath.Clean(root),
		index:     index,
	}
}

// Root returns the root directory with a trailing separator.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve turns the decoded request path into a file path. Any occurrence of ".."
// is rejected, even inside a file name like "a..b". Paths ending with a separator,
// as well as paths without any dot, are treated as directories, so the index file
// is appended to them.
func (r *Resolver) Resolve(uri string) (string, error) {
	if Rejected(uri) {
		return "", status.ErrPathRejected
	}

	uri = strings.TrimPrefix(uri, "/")
	path := r.root + uri

	switch {
	case isSep(path[len(path)-1]):
		path += r.index
	case strings.IndexByte(uri, '.') == -1:
		path += "/" + r.index
	}

	if !r.Contains(path) {
		return "", status.ErrPathRejected
	}

	return path, nil
}

// Rejected reports whether the request target must be refused before resolving.
// The whole target counts, the query and the fragment included.
func Rejected(target string) bool {
	return strings.Contains(target, "..") || strings.IndexByte(target, 0) != -1
}

// Contains reports whether the path lexically stays under the root.
func (r *Resolver) Contains(path string) bool {
	cleaned := filepath.Clean(path)
	if cleaned == r.cleanRoot {
		return true
	}

	prefix := r.cleanRoot
	if !isSep(prefix[len(prefix)-1]) {
		prefix += string(os.PathSeparator)
	}

	return strings.HasPrefix(cleaned, prefix)
}

func isSep(c byte) bool {
	return c == '/' || c == os.PathSeparator
}

func withTrailingSep(path string) string {
	if len(path) == 0 {
		return "./"
	}

	if isSep(path[len(path)-1]) {
		return path
	}

	return path + "/"
}

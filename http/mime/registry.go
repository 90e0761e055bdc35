package mime

import "strings"

// Registry maps file extensions to media types. The zero value knows nothing;
// use Default to get the built-in table.
type Registry struct {
	types map[string]MIME
}

// Default returns the registry backed by the built-in extensions table.
func Default() Registry {
	return Registry{types: builtin}
}

// Lookup returns the media type for a lowercase extension without the leading
// dot. It never falls back to a default: unknown extensions report false.
func (r Registry) Lookup(ext string) (MIME, bool) {
	mime, found := r.types[ext]
	return mime, found
}

// ForPath looks the extension of the path up, returning fallback for unknown
// ones.
func (r Registry) ForPath(path string, fallback MIME) MIME {
	if mime, found := r.Lookup(Extension(path)); found {
		return mime
	}

	return fallback
}

// With returns a new registry with overrides applied on top. The receiver stays
// unmodified.
func (r Registry) With(overrides map[string]MIME) Registry {
	if len(overrides) == 0 {
		return r
	}

	merged := make(map[string]MIME, len(r.types)+len(overrides))
	for ext, mime := range r.types {
		merged[ext] = mime
	}

	for ext, mime := range overrides {
		merged[normalizeExt(ext)] = mime
	}

	return Registry{types: merged}
}

// Len returns the number of known extensions.
func (r Registry) Len() int {
	return len(r.types)
}

// Extension returns the lowercase extension of the last path element, without
// the dot. Files without an extension and dotfiles like .htaccess yield an
// empty string.
func Extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '/', '\\':
			return ""
		case '.':
			if i == 0 || path[i-1] == '/' || path[i-1] == '\\' {
				return ""
			}

			return strings.ToLower(path[i+1:])
		}
	}

	return ""
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

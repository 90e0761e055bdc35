package mime

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadOverrides reads a JSON object of extension to media type pairs, e.g.
// {"md": "text/plain", ".webmanifest": "application/json"}. Keys are
// normalized to lowercase without the leading dot.
func LoadOverrides(path string) (map[string]MIME, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mime overrides: %w", err)
	}

	return ParseOverrides(data)
}

// ParseOverrides does the same thing as LoadOverrides, but on the already read
// file contents.
func ParseOverrides(data []byte) (map[string]MIME, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("mime overrides: %w", err)
	}

	overrides := make(map[string]MIME, len(raw))
	for ext, mime := range raw {
		key := normalizeExt(ext)
		if len(key) == 0 {
			return nil, fmt.Errorf("mime overrides: empty extension")
		}

		if len(mime) == 0 {
			return nil, fmt.Errorf("mime overrides: empty media type for %q", ext)
		}

		overrides[key] = mime
	}

	return overrides, nil
}

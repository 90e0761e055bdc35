package http

import "github.com/indigo-web/utils/strcomp"

type Header struct {
	Key, Value string
}

// Headers keeps header fields in the order they were added. Keys are compared
// case-insensitively.
type Headers []Header

// Add appends a new field, even if one with the same key exists.
func (h *Headers) Add(key, value string) {
	*h = append(*h, Header{Key: key, Value: value})
}

// Get returns the value of the first field matching the key.
func (h Headers) Get(key string) (value string, found bool) {
	for _, header := range h {
		if strcomp.EqualFold(header.Key, key) {
			return header.Value, true
		}
	}

	return "", false
}

// Has reports whether at least one field with the key is present.
func (h Headers) Has(key string) bool {
	_, found := h.Get(key)
	return found
}

// Values returns values of all the fields matching the key.
func (h Headers) Values(key string) (values []string) {
	for _, header := range h {
		if strcomp.EqualFold(header.Key, key) {
			values = append(values, header.Value)
		}
	}

	return values
}

// Len returns the number of fields.
func (h Headers) Len() int {
	return len(h)
}

// Clear removes all fields keeping the capacity.
func (h *Headers) Clear() {
	*h = (*h)[:0]
}

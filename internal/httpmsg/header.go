// Package httpmsg holds the wire-level HTTP value types shared by the
// request and reply parsers: headers, the request/reply messages
// themselves, the MIME extension map, and the small body-escaping and
// form-decoding helpers the serializers depend on.
package httpmsg

import "strings"

// Header is a single (name, value, options) entry as it appears on the
// wire. Equality and lookup are by lowercased name; Name preserves the
// original case the client or server sent.
type Header struct {
	Name    string
	Value   string
	Options []string
}

// HeaderStore is an ordered sequence of Header with case-insensitive
// lookup by name. Order is preserved because it determines the order
// headers are re-serialized in.
type HeaderStore struct {
	items []Header
}

// NewHeaderStore returns an empty store.
func NewHeaderStore() *HeaderStore {
	return &HeaderStore{}
}

// Count returns the number of headers.
func (hs *HeaderStore) Count() int {
	return len(hs.items)
}

// At returns the header at the given position.
func (hs *HeaderStore) At(index int) *Header {
	return &hs.items[index]
}

// All returns the underlying slice of headers. Callers must not retain
// it across a mutating call (Insert/Delete/Set).
func (hs *HeaderStore) All() []Header {
	return hs.items
}

// IndexOfName returns the position of the first header whose name
// matches (case-insensitively), or -1.
func (hs *HeaderStore) IndexOfName(name string) int {
	for i := range hs.items {
		if strings.EqualFold(hs.items[i].Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value of the first header matching name, or "" if
// none is present (the HeaderStore sentinel empty string).
func (hs *HeaderStore) Get(name string) string {
	if i := hs.IndexOfName(name); i >= 0 {
		return hs.items[i].Value
	}
	return ""
}

// Has reports whether a header with the given name is present.
func (hs *HeaderStore) Has(name string) bool {
	return hs.IndexOfName(name) >= 0
}

// Add appends a new header and returns a pointer to it so callers can
// append options. Does not deduplicate by name: multiple headers with
// the same name are legal on the wire and preserved in order.
func (hs *HeaderStore) Add(name, value string) *Header {
	hs.items = append(hs.items, Header{Name: name, Value: value})
	return &hs.items[len(hs.items)-1]
}

// Set replaces the value of the first header matching name, or adds a
// new one if none is present.
func (hs *HeaderStore) Set(name, value string) {
	if i := hs.IndexOfName(name); i >= 0 {
		hs.items[i].Value = value
		return
	}
	hs.Add(name, value)
}

// InsertAt inserts a header at the given position, shifting later
// entries down.
func (hs *HeaderStore) InsertAt(index int, h Header) {
	hs.items = append(hs.items, Header{})
	copy(hs.items[index+1:], hs.items[index:])
	hs.items[index] = h
}

// DeleteAt removes the header at the given position.
func (hs *HeaderStore) DeleteAt(index int) {
	hs.items = append(hs.items[:index], hs.items[index+1:]...)
}

// Delete removes the first header matching name, if any.
func (hs *HeaderStore) Delete(name string) {
	if i := hs.IndexOfName(name); i >= 0 {
		hs.DeleteAt(i)
	}
}

// Clear removes all headers, keeping the backing array for reuse.
func (hs *HeaderStore) Clear() {
	hs.items = hs.items[:0]
}

// AddOption appends a raw option string to the last header added.
// Used by the parser while accumulating `;`-separated header options.
func (hs *HeaderStore) AddOption(opt string) {
	if len(hs.items) == 0 {
		return
	}
	last := &hs.items[len(hs.items)-1]
	last.Options = append(last.Options, opt)
}

// OptionValue scans a header's options for one of the form "key=value"
// and returns value, or "" if absent. Options are stored verbatim;
// only callers that know an option is a key=value pair (e.g. the
// multipart boundary/name/filename parameters) interpret them this way.
func (h *Header) OptionValue(key string) string {
	for _, opt := range h.Options {
		k, v, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if strings.EqualFold(k, key) {
			return strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return ""
}

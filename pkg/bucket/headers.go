package bucket

import (
	"strings"
)

// headerField preserves the original-cased name alongside its values so
// serialization round-trips the wire casing the parser observed.
type headerField struct {
	name   string // as first seen on the wire
	values []string
}

// HeadersBucket is an ordered, case-insensitive multimap of HTTP header
// fields (spec.md §4.6). Insertion order across distinct field names is
// preserved; a repeated Set on the same name joins with a bare comma
// rather than appending a second field line.
//
// HeadersBucket also implements Bucket: reading it serializes the stored
// fields as "Name: v1,v2\r\n" lines followed by a blank line, the same
// wire shape the response parser consumed them from.
type HeadersBucket struct {
	order     []string // lower-cased keys, insertion order
	fields    map[string]*headerField
	serial    []byte // lazily rendered wire form, built on first Read/Peek
	pos       int
	destroyed bool
}

// NewHeadersBucket returns an empty headers multimap.
func NewHeadersBucket() *HeadersBucket {
	return &HeadersBucket{fields: make(map[string]*headerField)}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Set adds value to name, comma-joining with any existing value(s) for the
// same name (case-insensitively) rather than creating a duplicate field.
func (h *HeadersBucket) Set(name, value string) {
	h.serial = nil
	k := key(name)
	f, ok := h.fields[k]
	if !ok {
		f = &headerField{name: name}
		h.fields[k] = f
		h.order = append(h.order, k)
	}
	f.values = append(f.values, value)
}

// Get returns the comma-joined value for name and whether it was present.
func (h *HeadersBucket) Get(name string) (string, bool) {
	f, ok := h.fields[key(name)]
	if !ok {
		return "", false
	}
	return strings.Join(f.values, ","), true
}

// Values returns the individual values set for name, in Set order, without
// joining — useful for headers like Set-Cookie where comma-joining would
// change semantics (callers that know they're dealing with such a header
// should prefer Values over Get).
func (h *HeadersBucket) Values(name string) []string {
	f, ok := h.fields[key(name)]
	if !ok {
		return nil
	}
	return append([]string(nil), f.values...)
}

// Has reports whether name was set at all.
func (h *HeadersBucket) Has(name string) bool {
	_, ok := h.fields[key(name)]
	return ok
}

// Del removes all values for name.
func (h *HeadersBucket) Del(name string) {
	k := key(name)
	if _, ok := h.fields[k]; !ok {
		return
	}
	delete(h.fields, k)
	for i, kk := range h.order {
		if kk == k {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.serial = nil
}

// Names returns the header names in the order they were first set.
func (h *HeadersBucket) Names() []string {
	out := make([]string, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, h.fields[k].name)
	}
	return out
}

func (h *HeadersBucket) render() []byte {
	var b strings.Builder
	for _, k := range h.order {
		f := h.fields[k]
		b.WriteString(f.name)
		b.WriteString(": ")
		b.WriteString(strings.Join(f.values, ","))
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (h *HeadersBucket) ensureSerial() {
	if h.serial == nil {
		h.serial = h.render()
	}
}

// Read implements Bucket by serializing the stored fields on demand.
func (h *HeadersBucket) Read(max int) ([]byte, Status, error) {
	if h.destroyed {
		return nil, StatusEOF, nil
	}
	h.ensureSerial()
	rem := h.serial[h.pos:]
	if len(rem) == 0 {
		return nil, StatusEOF, nil
	}
	n := len(rem)
	if max != AllAvail && max < n {
		n = max
	}
	out := rem[:n]
	h.pos += n
	return out, StatusOK, nil
}

// Readline implements Bucket over the serialized wire form.
func (h *HeadersBucket) Readline(mask LineMask) ([]byte, Found, Status, error) {
	if h.destroyed {
		return nil, FoundNone, StatusEOF, nil
	}
	h.ensureSerial()
	rem := h.serial[h.pos:]
	if len(rem) == 0 {
		return nil, FoundNone, StatusEOF, nil
	}
	_, consumed, found := scanTerminator(rem, mask, true)
	if found == FoundNone {
		h.pos += len(rem)
		return rem, FoundNone, StatusEOF, nil
	}
	line := rem[:consumed]
	h.pos += consumed
	return line, found, StatusOK, nil
}

// Peek implements Bucket.
func (h *HeadersBucket) Peek() ([]byte, Status, error) {
	if h.destroyed {
		return nil, StatusEOF, nil
	}
	h.ensureSerial()
	return h.serial[h.pos:], StatusOK, nil
}

// ReadIovec implements Bucket.
func (h *HeadersBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, Status, error) {
	return DefaultReadIovec(h, maxBytes, maxVecs)
}

// Destroy implements Bucket.
func (h *HeadersBucket) Destroy() {
	h.fields = nil
	h.order = nil
	h.serial = nil
	h.destroyed = true
}

// SetConfig implements Bucket; HeadersBucket has no configuration surface.
func (h *HeadersBucket) SetConfig(Config) {}

var _ Bucket = (*HeadersBucket)(nil)

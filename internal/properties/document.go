package properties

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

const bom = "\ufeff"

// line is one logical line of a document. raw holds the exact original text,
// including continuation lines and the line terminator, so untouched lines are
// written back byte for byte.
type line struct {
	raw   string
	key   string
	value string
	prop  bool
}

// Document is an ordered key/value document in the properties format that
// remembers the layout it was read with.
type Document struct {
	lines []line
	eol   string
	bom   bool
}

// New returns an empty document that terminates new lines with "\n".
func New() *Document {
	return &Document{eol: "\n"}
}

// Load reads and parses the document stored at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return doc, nil
}

// Parse parses data as a properties document. Data is expected to be UTF-8.
func Parse(data []byte) (*Document, error) {
	doc := New()

	text := string(data)
	if strings.HasPrefix(text, bom) {
		doc.bom = true
		text = strings.TrimPrefix(text, bom)
	}

	physical := splitLines(text)
	for _, p := range physical {
		if p.eol != "" {
			doc.eol = p.eol
			break
		}
	}

	for i := 0; i < len(physical); i++ {
		content := strings.TrimLeft(physical[i].text, whitespace)
		if content == "" || content[0] == '#' || content[0] == '!' {
			doc.lines = append(doc.lines, line{raw: physical[i].raw()})
			continue
		}

		raw := physical[i].raw()
		for continues(content) {
			content = content[:len(content)-1]
			if i+1 >= len(physical) {
				break
			}
			i++
			content += strings.TrimLeft(physical[i].text, whitespace)
			raw += physical[i].raw()
		}

		key, value, err := splitKeyValue(content)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		doc.lines = append(doc.lines, line{raw: raw, key: key, value: value, prop: true})
	}

	return doc, nil
}

// Keys returns the keys of the document in order of first appearance.
func (d *Document) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, l := range d.lines {
		if !l.prop || seen[l.key] {
			continue
		}
		seen[l.key] = true
		keys = append(keys, l.key)
	}
	return keys
}

// Len returns the number of distinct keys.
func (d *Document) Len() int {
	return len(d.Keys())
}

// Get returns the value of key. When a key is repeated the last value wins.
func (d *Document) Get(key string) (string, bool) {
	for i := len(d.lines) - 1; i >= 0; i-- {
		if d.lines[i].prop && d.lines[i].key == key {
			return d.lines[i].value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set replaces the value of an existing key, or appends the key when it is
// missing. The first line holding the key is rewritten as "key = value" and
// any later duplicates are dropped; all other lines are kept as they are.
func (d *Document) Set(key, value string) {
	first := -1
	for i, l := range d.lines {
		if l.prop && l.key == key {
			first = i
			break
		}
	}
	if first < 0 {
		d.Add(key, value)
		return
	}

	kept := d.lines[:first+1]
	for _, l := range d.lines[first+1:] {
		if l.prop && l.key == key {
			continue
		}
		kept = append(kept, l)
	}
	d.lines = kept

	current := &d.lines[first]
	if current.value == value {
		return
	}
	current.raw = format(key, value) + terminator(current.raw)
	current.value = value
}

// Add appends key with value at the end of the document. If the key already
// exists its value is replaced instead, keeping keys unique.
func (d *Document) Add(key, value string) {
	if d.Has(key) {
		d.Set(key, value)
		return
	}

	if n := len(d.lines); n > 0 && terminator(d.lines[n-1].raw) == "" {
		d.lines[n-1].raw += d.eol
	}
	d.lines = append(d.lines, line{
		raw:   format(key, value) + d.eol,
		key:   key,
		value: value,
		prop:  true,
	})
}

// Bytes returns the serialized document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	if d.bom {
		buf.WriteString(bom)
	}
	for _, l := range d.lines {
		buf.WriteString(l.raw)
	}
	return buf.Bytes()
}

// WriteTo writes the serialized document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.Bytes())
	return int64(n), err
}

// Save writes the document to path, truncating an existing file in place so
// its ownership and permissions are kept. New files are created with mode 0644.
func (d *Document) Save(path string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = d.WriteTo(f)
	return err
}

// format renders a key/value pair the standard way.
func format(key, value string) string {
	return escapeKey(key) + " = " + escapeValue(value)
}

// terminator returns the line terminator that ends raw, if any.
func terminator(raw string) string {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return "\n"
	case strings.HasSuffix(raw, "\r"):
		return "\r"
	}
	return ""
}

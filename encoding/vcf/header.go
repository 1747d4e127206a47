// Package vcf reads and writes VCF text: headers, records, and per-sample
// genotype data. Values are kept as strings; typed interpretation is left to
// the callers that need it.
package vcf

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Meta is one "##key=value" header line. Structured lines (INFO, FORMAT,
// FILTER, contig, ...) carry their <...> attributes in Attrs.
type Meta struct {
	Key   string
	Value string
	Attrs map[string]string
}

// ID returns the ID attribute of a structured line.
func (m *Meta) ID() string { return m.Attrs["ID"] }

// String returns the header line without the newline.
func (m *Meta) String() string { return "##" + m.Key + "=" + m.Value }

// FieldDef describes an INFO or FORMAT field.
type FieldDef struct {
	ID          string
	Number      string
	Type        string
	Description string
}

// Numeric reports whether the field holds numbers.
func (d *FieldDef) Numeric() bool { return d.Type == "Integer" || d.Type == "Float" }

// Header is a parsed VCF header.
type Header struct {
	Meta    []*Meta
	Samples []string
}

// ParseMeta parses a header line. The leading "##" is optional.
func ParseMeta(line string) (*Meta, error) {
	line = strings.TrimPrefix(line, "##")
	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return nil, errors.Errorf("malformed header line %q", "##"+line)
	}
	m := &Meta{Key: line[:eq], Value: line[eq+1:]}
	if strings.HasPrefix(m.Value, "<") && strings.HasSuffix(m.Value, ">") {
		attrs, err := parseAttrs(m.Value[1 : len(m.Value)-1])
		if err != nil {
			return nil, errors.Wrapf(err, "header line %q", "##"+line)
		}
		m.Attrs = attrs
	}
	return m, nil
}

// parseAttrs splits k1=v1,k2="v,2" into a map, unquoting values.
func parseAttrs(s string) (map[string]string, error) {
	attrs := map[string]string{}
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, errors.Errorf("missing '=' in %q", s)
		}
		key := s[:eq]
		s = s[eq+1:]
		var val string
		if strings.HasPrefix(s, `"`) {
			var b strings.Builder
			i := 1
			for ; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
			}
			if i == len(s) {
				return nil, errors.Errorf("unterminated quote in %q", s)
			}
			val = b.String()
			s = s[i+1:]
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				end = len(s)
			}
			val = s[:end]
			s = s[end:]
		}
		attrs[key] = val
		s = strings.TrimPrefix(s, ",")
	}
	return attrs, nil
}

// NewFieldMeta builds an INFO or FORMAT declaration.
func NewFieldMeta(key string, def FieldDef) *Meta {
	return &Meta{
		Key:   key,
		Value: `<ID=` + def.ID + `,Number=` + def.Number + `,Type=` + def.Type + `,Description="` + def.Description + `">`,
		Attrs: map[string]string{"ID": def.ID, "Number": def.Number, "Type": def.Type, "Description": def.Description},
	}
}

// NewFilterMeta builds a FILTER declaration.
func NewFilterMeta(id, description string) *Meta {
	return &Meta{
		Key:   "FILTER",
		Value: `<ID=` + id + `,Description="` + description + `">`,
		Attrs: map[string]string{"ID": id, "Description": description},
	}
}

// Find returns the structured line with the given key and ID, or nil.
func (h *Header) Find(key, id string) *Meta {
	for _, m := range h.Meta {
		if m.Key == key && m.Attrs != nil && m.ID() == id {
			return m
		}
	}
	return nil
}

// Add appends m unless an equivalent line exists: same key and ID for
// structured lines, same text otherwise. fileformat appears at most once.
// It returns whether m was added.
func (h *Header) Add(m *Meta) bool {
	for _, o := range h.Meta {
		if o.Key != m.Key {
			continue
		}
		if m.Key == "fileformat" || o.Value == m.Value {
			return false
		}
		if m.Attrs != nil && o.Attrs != nil && m.ID() != "" && o.ID() == m.ID() {
			return false
		}
	}
	h.Meta = append(h.Meta, m)
	return true
}

func (h *Header) fieldDef(key, id string) *FieldDef {
	m := h.Find(key, id)
	if m == nil {
		return nil
	}
	return &FieldDef{ID: id, Number: m.Attrs["Number"], Type: m.Attrs["Type"], Description: m.Attrs["Description"]}
}

// Info returns the declaration of an INFO field, or nil.
func (h *Header) Info(id string) *FieldDef { return h.fieldDef("INFO", id) }

// Format returns the declaration of a FORMAT field, or nil.
func (h *Header) Format(id string) *FieldDef { return h.fieldDef("FORMAT", id) }

// Contigs returns the contig IDs in header order.
func (h *Header) Contigs() []string {
	var ids []string
	for _, m := range h.Meta {
		if m.Key == "contig" && m.ID() != "" {
			ids = append(ids, m.ID())
		}
	}
	return ids
}

// SampleIndex returns the column index of a sample, or -1.
func (h *Header) SampleIndex(name string) int {
	for i, s := range h.Samples {
		if s == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	c := &Header{
		Meta:    make([]*Meta, len(h.Meta)),
		Samples: append([]string(nil), h.Samples...),
	}
	for i, m := range h.Meta {
		cm := *m
		if m.Attrs != nil {
			cm.Attrs = make(map[string]string, len(m.Attrs))
			for k, v := range m.Attrs {
				cm.Attrs[k] = v
			}
		}
		c.Meta[i] = &cm
	}
	return c
}

var fixedColumns = []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// Write writes the header, ending with the #CHROM line.
func (h *Header) Write(w io.Writer) error {
	var buf bytes.Buffer
	hasFormat := false
	for _, m := range h.Meta {
		if m.Key == "fileformat" {
			hasFormat = true
		}
	}
	if !hasFormat {
		buf.WriteString("##fileformat=VCFv4.1\n")
	}
	for _, m := range h.Meta {
		if m.Key == "fileformat" {
			buf.WriteString(m.String())
			buf.WriteByte('\n')
		}
	}
	for _, m := range h.Meta {
		if m.Key != "fileformat" {
			buf.WriteString(m.String())
			buf.WriteByte('\n')
		}
	}
	buf.WriteString(strings.Join(fixedColumns, "\t"))
	if len(h.Samples) > 0 {
		buf.WriteString("\tFORMAT")
		for _, s := range h.Samples {
			buf.WriteByte('\t')
			buf.WriteString(s)
		}
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

package dml

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/kingsisle/netcore/neterr"
)

// wstringCodec is shared by every WSTR field; built once since the
// decoder/encoder pair is stateless per use.
var wstringCodec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Field is implemented by every concrete *fieldT[T]; it is the
// heterogeneous element a Record stores, since Go generics give no way
// to hold a slice of "fieldT[T] for varying T" directly.
type Field interface {
	Name() string
	Transferable() bool
	Kind() FieldKind
	WriteBinary(w io.Writer) error
	ReadBinary(r io.Reader) error
	// Text renders the field's value for XML encoding, and Parse sets it
	// from XML character data.
	Text() string
	Parse(text string) error
	clone() Field
}

// fieldT is a single named, typed DML element. T is one of the eleven
// types in types.go; the element's wire Kind follows directly from T.
type fieldT[T FieldType] struct {
	name         string
	transferable bool
	value        T
}

// NewField constructs a field named name holding the zero value of T.
// Fields default to transferable; NOXFER explicitly turns this off.
func NewField[T FieldType](name string) *fieldT[T] {
	return &fieldT[T]{name: name, transferable: true}
}

func (f *fieldT[T]) Name() string         { return f.name }
func (f *fieldT[T]) Transferable() bool   { return f.transferable }
func (f *fieldT[T]) Kind() FieldKind      { var zero T; return zero.dmlKind() }
func (f *fieldT[T]) Value() T             { return f.value }
func (f *fieldT[T]) SetValue(v T)         { f.value = v }
func (f *fieldT[T]) SetTransferable(t bool) *fieldT[T] { f.transferable = t; return f }

func (f *fieldT[T]) clone() Field {
	return &fieldT[T]{name: f.name, transferable: f.transferable, value: f.value}
}

// WriteBinary encodes the field's value alone, little-endian at its
// natural width. The Record decides whether a field reaches the wire at
// all; a NOXFER field is never handed here during record encoding.
func (f *fieldT[T]) WriteBinary(w io.Writer) error {
	switch v := any(f.value).(type) {
	case BYT:
		return binary.Write(w, binary.LittleEndian, int8(v))
	case UBYT:
		return binary.Write(w, binary.LittleEndian, uint8(v))
	case SHRT:
		return binary.Write(w, binary.LittleEndian, int16(v))
	case USHRT:
		return binary.Write(w, binary.LittleEndian, uint16(v))
	case INT:
		return binary.Write(w, binary.LittleEndian, int32(v))
	case UINT:
		return binary.Write(w, binary.LittleEndian, uint32(v))
	case FLT:
		return binary.Write(w, binary.LittleEndian, float32(v))
	case DBL:
		return binary.Write(w, binary.LittleEndian, float64(v))
	case GID:
		return binary.Write(w, binary.LittleEndian, uint64(v))
	case STR:
		return writeLengthPrefixed(w, []byte(v))
	case WSTR:
		encoded, err := wstringCodec.NewEncoder().Bytes([]byte(string(v)))
		if err != nil {
			return neterr.NewRuntimeError("encoding WSTR field %q: %v", f.name, err)
		}
		return writeLengthPrefixed(w, encoded)
	default:
		return neterr.NewRuntimeError("field %q: unsupported type %T", f.name, v)
	}
}

func writeLengthPrefixed(w io.Writer, data []byte) error {
	if len(data) > 0xFFFF {
		return neterr.NewValueError(neterr.ValueExceedsLimit, "string field exceeds u16 length prefix (%d bytes)", len(data))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func (f *fieldT[T]) ReadBinary(r io.Reader) error {
	switch any(f.value).(type) {
	case BYT:
		var v int8
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(BYT(v)).(T)
	case UBYT:
		var v uint8
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(UBYT(v)).(T)
	case SHRT:
		var v int16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(SHRT(v)).(T)
	case USHRT:
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(USHRT(v)).(T)
	case INT:
		var v int32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(INT(v)).(T)
	case UINT:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(UINT(v)).(T)
	case FLT:
		var v float32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(FLT(v)).(T)
	case DBL:
		var v float64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(DBL(v)).(T)
	case GID:
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		f.value = any(GID(v)).(T)
	case STR:
		data, err := readLengthPrefixed(r)
		if err != nil {
			return err
		}
		f.value = any(STR(data)).(T)
	case WSTR:
		raw, err := readLengthPrefixed(r)
		if err != nil {
			return err
		}
		decoded, err := wstringCodec.NewDecoder().Bytes([]byte(raw))
		if err != nil {
			return neterr.NewParseError(neterr.ParseInvalidMessageData, "decoding WSTR field %q: %v", f.name, err)
		}
		f.value = any(WSTR(decoded)).(T)
	}
	return nil
}

func readLengthPrefixed(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", neterr.NewParseError(neterr.ParseInsufficientMessageData, "reading string length prefix: %v", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", neterr.NewParseError(neterr.ParseInsufficientMessageData, "reading %d string bytes: %v", n, err)
	}
	return string(buf), nil
}

func (f *fieldT[T]) Text() string {
	switch v := any(f.value).(type) {
	case STR:
		return string(v)
	case WSTR:
		return string(v)
	default:
		return fmt.Sprintf("%v", f.value)
	}
}

func (f *fieldT[T]) Parse(text string) error {
	switch any(f.value).(type) {
	case STR:
		f.value = any(STR(text)).(T)
	case WSTR:
		f.value = any(WSTR(text)).(T)
	default:
		text = strings.TrimSpace(text)
		if text == "" {
			// A bare declaration (<Count TYPE="INT"></Count>) leaves the
			// field at its zero value.
			var zero T
			f.value = zero
			return nil
		}
		var parsed T
		if _, err := fmt.Sscanf(text, "%v", &parsed); err != nil {
			return neterr.NewParseError(neterr.ParseInvalidXml, "parsing field %q value %q: %v", f.name, text, err)
		}
		f.value = parsed
	}
	return nil
}

// Record is an ordered, named collection of Fields: the unit DML
// serializes, and the body every control message and application
// message is built from.
type Record struct {
	fields []Field
	byName map[string]int
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{byName: make(map[string]int)}
}

// AddField appends a new field of type T named name, or returns the
// existing field of that name unchanged -- generated message
// constructors call it once per field but may be invoked from multiple
// code paths, so it is idempotent by name.
func AddField[T FieldType](r *Record, name string) *fieldT[T] {
	if i, ok := r.byName[name]; ok {
		if existing, ok := r.fields[i].(*fieldT[T]); ok {
			return existing
		}
		panic(fmt.Sprintf("dml: field %q re-declared with a different type", name))
	}
	f := NewField[T](name)
	r.byName[name] = len(r.fields)
	r.fields = append(r.fields, f)
	return f
}

// Field looks up a field by name.
func (r *Record) Field(name string) (Field, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.fields[i], true
}

// Fields returns every field in declaration order.
func (r *Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := NewRecord()
	for name, i := range r.byName {
		out.byName[name] = i
	}
	out.fields = make([]Field, len(r.fields))
	for i, f := range r.fields {
		out.fields[i] = f.clone()
	}
	return out
}

// WriteBinary encodes every transferable field in declaration order,
// back to back, with no record-level header (the containing message
// supplies framing). NOXFER fields are skipped; they exist only for the
// XML round-trip.
func (r *Record) WriteBinary(w io.Writer) error {
	for _, f := range r.fields {
		if !f.Transferable() {
			continue
		}
		if err := f.WriteBinary(w); err != nil {
			return fmt.Errorf("dml: writing field %q: %w", f.Name(), err)
		}
	}
	return nil
}

// ReadBinary decodes every declared transferable field, in order, from
// br. The Record's shape (which fields exist, in what order, which are
// NOXFER) must already be established by the caller -- DML binary
// bodies are positional, not self-describing.
func (r *Record) ReadBinary(br io.Reader) error {
	for _, f := range r.fields {
		if !f.Transferable() {
			continue
		}
		if err := f.ReadBinary(br); err != nil {
			return fmt.Errorf("dml: reading field %q: %w", f.Name(), err)
		}
	}
	return nil
}

// MarshalBinary is a convenience wrapper around WriteBinary.
func (r *Record) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteBinary(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newFieldOfKind constructs an empty field of the given wire kind, as
// named by a field element's TYPE attribute.
func newFieldOfKind(kind FieldKind, name string) Field {
	switch kind {
	case KindBYT:
		return NewField[BYT](name)
	case KindUBYT:
		return NewField[UBYT](name)
	case KindSHRT:
		return NewField[SHRT](name)
	case KindUSHRT:
		return NewField[USHRT](name)
	case KindINT:
		return NewField[INT](name)
	case KindUINT:
		return NewField[UINT](name)
	case KindFLT:
		return NewField[FLT](name)
	case KindDBL:
		return NewField[DBL](name)
	case KindSTR:
		return NewField[STR](name)
	case KindWSTR:
		return NewField[WSTR](name)
	case KindGID:
		return NewField[GID](name)
	default:
		return nil
	}
}

func (f *fieldT[T]) setTransferable(t bool) { f.transferable = t }

// xmlField/xmlRecord model the per-field element shape: a TYPE
// attribute declaring the field's wire kind, and a NOXFER attribute
// marking a field that opted out of transferability.
type xmlField struct {
	XMLName xml.Name
	Type    string `xml:"TYPE,attr,omitempty"`
	NOXFER  string `xml:"NOXFER,attr,omitempty"`
	Value   string `xml:",chardata"`
}

type xmlRecord struct {
	XMLName xml.Name `xml:"RECORD"`
	Fields  []xmlField `xml:",any"`
}

// WriteXML renders r as a RECORD element, one child element per field
// named after the field, with its kind in a TYPE attribute.
func (r *Record) WriteXML() ([]byte, error) {
	rec := xmlRecord{}
	for _, f := range r.fields {
		xf := xmlField{
			XMLName: xml.Name{Local: f.Name()},
			Type:    f.Kind().String(),
			Value:   f.Text(),
		}
		if !f.Transferable() {
			xf.NOXFER = "true"
		}
		rec.Fields = append(rec.Fields, xf)
	}
	return xml.MarshalIndent(rec, "", "  ")
}

// ReadXML populates r from a RECORD document produced by WriteXML (or a
// message-module catalog). A field element matching an already-declared
// field parses into it; an undeclared element carrying a TYPE attribute
// declares a new field of that kind. Undeclared elements without a TYPE
// attribute are an error. Fields declared on r but absent from data are
// left at their zero value.
func (r *Record) ReadXML(data []byte) error {
	var rec xmlRecord
	if err := xml.Unmarshal(data, &rec); err != nil {
		return neterr.NewParseError(neterr.ParseInvalidXml, "unmarshaling RECORD: %v", err)
	}
	for _, xf := range rec.Fields {
		f, ok := r.Field(xf.XMLName.Local)
		if !ok {
			if xf.Type == "" {
				return neterr.NewParseError(neterr.ParseInvalidXml,
					"field element %q is missing the required TYPE attribute", xf.XMLName.Local)
			}
			kind, known := KindFromName(xf.Type)
			if !known {
				return neterr.NewParseError(neterr.ParseInvalidXml,
					"unknown DML type %q in field element %q", xf.Type, xf.XMLName.Local)
			}
			f = newFieldOfKind(kind, xf.XMLName.Local)
			r.byName[xf.XMLName.Local] = len(r.fields)
			r.fields = append(r.fields, f)
		}
		if xf.NOXFER == "true" || xf.NOXFER == "TRUE" {
			if tf, ok := f.(interface{ setTransferable(bool) }); ok {
				tf.setTransferable(false)
			}
		}
		if err := f.Parse(xf.Value); err != nil {
			return err
		}
	}
	return nil
}

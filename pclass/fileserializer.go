package pclass

import (
	"encoding/json"
	"encoding/xml"
	"strconv"

	"github.com/kingsisle/netcore/neterr"
)

// TextCodec is the interface the textual mirrors of PClass (JSON, XML)
// implement: they share the reflection surface with BinarySerializer but
// each has its own concrete container shape below.
type TextCodec interface {
	Encode(object *PropertyClass) ([]byte, error)
	Decode(data []byte, t *Type) (*PropertyClass, error)
}

const (
	binMagic  = "BINd"
	jsonMagic = "JSON"
)

// FileSerializer dispatches on a container's leading magic bytes:
// "BINd" is delegated to BinarySerializer in file mode with
// WriteSerializerFlags forced on so the self-describing header is always
// present; "JSON" and anything else (XML, which carries no magic of its
// own) are handled by the JSON/XML encoders below.
type FileSerializer struct {
	ts *TypeSystem
}

// NewFileSerializer builds a self-describing container reader/writer
// bound to ts.
func NewFileSerializer(ts *TypeSystem) *FileSerializer {
	return &FileSerializer{ts: ts}
}

// SaveBinary writes object as a "BINd"-prefixed self-describing binary
// container.
func (f *FileSerializer) SaveBinary(object *PropertyClass) ([]byte, error) {
	s := NewBinarySerializer(f.ts, true, WriteSerializerFlags)
	body, err := s.Save(object)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(binMagic)+len(body))
	out = append(out, binMagic...)
	out = append(out, body...)
	return out, nil
}

// JSONCodec and XMLCodec adapt FileSerializer's textual containers to
// the TextCodec interface.
type JSONCodec struct{ fs *FileSerializer }

func NewJSONCodec(ts *TypeSystem) *JSONCodec { return &JSONCodec{fs: NewFileSerializer(ts)} }

func (c *JSONCodec) Encode(object *PropertyClass) ([]byte, error) { return c.fs.SaveJSON(object) }
func (c *JSONCodec) Decode(data []byte, t *Type) (*PropertyClass, error) {
	return c.fs.LoadJSON(data, t)
}

type XMLCodec struct{ fs *FileSerializer }

func NewXMLCodec(ts *TypeSystem) *XMLCodec { return &XMLCodec{fs: NewFileSerializer(ts)} }

func (c *XMLCodec) Encode(object *PropertyClass) ([]byte, error) { return c.fs.SaveXML(object) }
func (c *XMLCodec) Decode(data []byte, t *Type) (*PropertyClass, error) {
	return c.fs.LoadXML(data, t)
}

var (
	_ TextCodec = (*JSONCodec)(nil)
	_ TextCodec = (*XMLCodec)(nil)
)

// pclassMeta is the JSON container's meta key: {"type_hash": <u32|null>},
// null marking a null object pointer the same way type hash 0 does on
// the binary wire.
type pclassMeta struct {
	TypeHash *uint32 `json:"type_hash"`
}

type jsonObject map[string]interface{}

// SaveJSON writes object as a "JSON"-prefixed UTF-8 JSON body: a meta key
// plus one JSON member per property, arrays as JSON arrays, nested class
// properties recursing.
func (f *FileSerializer) SaveJSON(object *PropertyClass) ([]byte, error) {
	body, err := f.encodeJSONObject(object)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, neterr.NewRuntimeError("marshaling JSON container: %v", err)
	}
	out := make([]byte, 0, len(jsonMagic)+len(b))
	out = append(out, jsonMagic...)
	out = append(out, b...)
	return out, nil
}

func (f *FileSerializer) encodeJSONObject(object *PropertyClass) (jsonObject, error) {
	out := jsonObject{}
	if object == nil {
		out["_pclass_meta"] = pclassMeta{TypeHash: nil}
		return out, nil
	}
	th := uint32(object.Type().Hash)
	out["_pclass_meta"] = pclassMeta{TypeHash: &th}

	for _, p := range object.Properties().All() {
		if p.IsArray() {
			arr := make([]interface{}, p.ElementCount())
			for i := 0; i < p.ElementCount(); i++ {
				v, err := f.encodeJSONElement(p, i)
				if err != nil {
					return nil, err
				}
				arr[i] = v
			}
			out[p.Name] = arr
			continue
		}
		v, err := f.encodeJSONElement(p, 0)
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

func (f *FileSerializer) encodeJSONElement(p *Property, i int) (interface{}, error) {
	if p.Type.Kind == KindClass {
		obj, err := p.GetObject(i)
		if err != nil {
			return nil, err
		}
		return f.encodeJSONObject(obj)
	}
	return p.GetValue(i)
}

// xmlClass models the <Class Name="..."> wire shape; members are kept
// generic ([]xmlProp) rather than reflected Go struct fields since the
// member set is only known at runtime.
type xmlObjects struct {
	XMLName xml.Name   `xml:"Objects"`
	Classes []xmlClass `xml:"Class"`
}

type xmlClass struct {
	Name  string    `xml:"Name,attr"`
	Props []xmlProp `xml:",any"`
}

// xmlProp is one property element: scalar values travel as character
// data, nested objects as a single <Class> child. A nil Class with no
// character data is a null pointer.
type xmlProp struct {
	XMLName xml.Name
	Key     string    `xml:"key,attr,omitempty"`
	Value   string    `xml:",chardata"`
	Class   *xmlClass `xml:"Class"`
}

// SaveXML writes object as an "<Objects><Class Name=...>" document;
// `key` is emitted on array-valued properties as the zero-based index.
func (f *FileSerializer) SaveXML(object *PropertyClass) ([]byte, error) {
	if object == nil {
		return xml.MarshalIndent(xmlObjects{}, "", "  ")
	}
	cls, err := f.encodeXMLClass(object)
	if err != nil {
		return nil, err
	}
	return xml.MarshalIndent(xmlObjects{Classes: []xmlClass{cls}}, "", "  ")
}

func (f *FileSerializer) encodeXMLClass(object *PropertyClass) (xmlClass, error) {
	cls := xmlClass{Name: object.Type().Name}
	for _, p := range object.Properties().All() {
		if p.IsArray() {
			for i := 0; i < p.ElementCount(); i++ {
				prop, err := f.encodeXMLProp(p, i, true)
				if err != nil {
					return xmlClass{}, err
				}
				cls.Props = append(cls.Props, prop)
			}
			continue
		}
		prop, err := f.encodeXMLProp(p, 0, false)
		if err != nil {
			return xmlClass{}, err
		}
		cls.Props = append(cls.Props, prop)
	}
	return cls, nil
}

func (f *FileSerializer) encodeXMLProp(p *Property, i int, withKey bool) (xmlProp, error) {
	prop := xmlProp{XMLName: xml.Name{Local: p.Name}}
	if withKey {
		prop.Key = strconv.Itoa(i)
	}
	if p.Type.Kind == KindClass {
		obj, err := p.GetObject(i)
		if err != nil {
			return xmlProp{}, err
		}
		if obj == nil {
			return prop, nil
		}
		nested, err := f.encodeXMLClass(obj)
		if err != nil {
			return xmlProp{}, err
		}
		prop.Class = &nested
		return prop, nil
	}
	v, err := p.GetValue(i)
	if err != nil {
		return xmlProp{}, err
	}
	if p.Type.Kind == KindEnum {
		iv, _ := v.(int32)
		name, ok := p.Type.EnumValueToName(iv)
		if !ok {
			return xmlProp{}, neterr.NewRuntimeError("enum %s has no element for value %d", p.Type.Name, iv)
		}
		prop.Value = name
		return prop, nil
	}
	prop.Value = toDisplayString(v)
	return prop, nil
}

// Load dispatches on the leading bytes of data: "BINd" -> binary,
// "JSON" -> JSON, anything else -> XML. The JSON and XML paths need a
// fallback destination Type for a root object whose meta/name doesn't
// resolve a more specific one; callers that already know the concrete
// root type should prefer LoadJSON/LoadXML directly.
func (f *FileSerializer) Load(data []byte, fallback *Type) (*PropertyClass, error) {
	if hasPrefix(data, binMagic) {
		s := NewBinarySerializer(f.ts, true, WriteSerializerFlags)
		return s.Load(data[len(binMagic):])
	}
	if hasPrefix(data, jsonMagic) {
		return f.LoadJSON(data, fallback)
	}
	return f.LoadXML(data, fallback)
}

// LoadJSON decodes a "JSON"-prefixed container produced by SaveJSON. The
// `_pclass_meta.type_hash` member picks the concrete registered Type when
// present and non-null; fallback is used otherwise (and for decoding
// nested objects whose property declares a base class type).
func (f *FileSerializer) LoadJSON(data []byte, fallback *Type) (*PropertyClass, error) {
	body := data
	if hasPrefix(data, jsonMagic) {
		body = data[len(jsonMagic):]
	}
	var raw jsonObject
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, neterr.NewParseError(neterr.ParseInvalidMessageData, "decoding JSON container: %v", err)
	}
	return f.decodeJSONObject(raw, fallback)
}

func (f *FileSerializer) decodeJSONObject(raw jsonObject, fallback *Type) (*PropertyClass, error) {
	t := fallback
	if metaRaw, ok := raw["_pclass_meta"]; ok {
		meta, _ := metaRaw.(map[string]interface{})
		if v, exists := meta["type_hash"]; exists {
			if v == nil {
				return nil, nil
			}
			if f64, ok := v.(float64); ok {
				if resolved, err := f.ts.GetTypeByHash(Hash(uint32(f64))); err == nil {
					t = resolved
				}
			}
		}
	}
	if t == nil {
		return nil, neterr.NewRuntimeError("decodeJSONObject: no type_hash in meta and no fallback Type given")
	}
	object, err := t.Instantiate()
	if err != nil {
		return nil, err
	}

	for _, p := range object.Properties().All() {
		raw, exists := raw[p.Name]
		if !exists {
			continue
		}
		if p.IsArray() {
			arr, _ := raw.([]interface{})
			if p.IsDynamic() {
				if err := p.SetElementCount(len(arr)); err != nil {
					return nil, err
				}
			}
			n := p.ElementCount()
			if len(arr) < n {
				n = len(arr)
			}
			for i := 0; i < n; i++ {
				if err := f.decodeJSONElement(p, i, arr[i]); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := f.decodeJSONElement(p, 0, raw); err != nil {
			return nil, err
		}
	}
	return object, nil
}

func (f *FileSerializer) decodeJSONElement(p *Property, i int, raw interface{}) error {
	if p.Type.Kind == KindClass {
		if raw == nil {
			return p.SetObject(nil, i)
		}
		nested, _ := raw.(map[string]interface{})
		obj, err := f.decodeJSONObject(jsonObject(nested), p.Type)
		if err != nil {
			return err
		}
		return p.SetObject(obj, i)
	}
	v, err := decodeJSONScalar(p.Type, raw)
	if err != nil {
		return err
	}
	return p.SetValue(v, i)
}

func decodeJSONScalar(t *Type, raw interface{}) (interface{}, error) {
	if t.Kind == KindEnum {
		// Accept either form: the element name, or the numeric value the
		// encoder emits.
		if name, ok := raw.(string); ok {
			v, known := t.EnumNameToValue(name)
			if !known {
				return nil, neterr.NewRuntimeError("enum %s has no element named %q", t.Name, name)
			}
			return v, nil
		}
		f, _ := raw.(float64)
		v := int32(f)
		if _, known := t.EnumValueToName(v); !known {
			return nil, neterr.NewRuntimeError("enum %s has no element for value %d", t.Name, v)
		}
		return v, nil
	}
	switch c := t.Codec.(type) {
	case *intCodec:
		f, _ := raw.(float64)
		if c.signed {
			return int64(f), nil
		}
		return uint64(f), nil
	case *floatCodec:
		f, _ := raw.(float64)
		if c.bits == 32 {
			return float32(f), nil
		}
		return f, nil
	case *boolCodec:
		b, _ := raw.(bool)
		return b, nil
	default:
		s, _ := raw.(string)
		return s, nil
	}
}

// LoadXML decodes the "<Objects><Class Name=...>" document of SaveXML.
// fallback is used when the root element's Name attribute doesn't resolve
// to a registered Type.
func (f *FileSerializer) LoadXML(data []byte, fallback *Type) (*PropertyClass, error) {
	var doc xmlObjects
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, neterr.NewParseError(neterr.ParseInvalidXml, "decoding XML container: %v", err)
	}
	if len(doc.Classes) == 0 {
		return nil, nil
	}
	return f.decodeXMLClass(doc.Classes[0], fallback)
}

func (f *FileSerializer) decodeXMLClass(cls xmlClass, fallback *Type) (*PropertyClass, error) {
	t := fallback
	if cls.Name != "" {
		if resolved, err := f.ts.GetType(cls.Name); err == nil {
			t = resolved
		}
	}
	if t == nil {
		return nil, neterr.NewRuntimeError("decodeXMLClass: Class Name %q not registered and no fallback Type given", cls.Name)
	}
	object, err := t.Instantiate()
	if err != nil {
		return nil, err
	}

	grouped := map[string][]xmlProp{}
	for _, e := range cls.Props {
		grouped[e.XMLName.Local] = append(grouped[e.XMLName.Local], e)
	}

	for _, p := range object.Properties().All() {
		entries, ok := grouped[p.Name]
		if !ok {
			continue
		}
		if p.IsArray() {
			ordered := make([]xmlProp, len(entries))
			for _, e := range entries {
				idx, err := strconv.Atoi(e.Key)
				if err != nil || idx < 0 || idx >= len(ordered) {
					continue
				}
				ordered[idx] = e
			}
			if p.IsDynamic() {
				if err := p.SetElementCount(len(ordered)); err != nil {
					return nil, err
				}
			}
			n := p.ElementCount()
			if len(ordered) < n {
				n = len(ordered)
			}
			for i := 0; i < n; i++ {
				if err := f.decodeXMLElement(p, i, ordered[i]); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := f.decodeXMLElement(p, 0, entries[0]); err != nil {
			return nil, err
		}
	}
	return object, nil
}

func (f *FileSerializer) decodeXMLElement(p *Property, i int, e xmlProp) error {
	if p.Type.Kind == KindClass {
		if e.Class == nil {
			return p.SetObject(nil, i)
		}
		obj, err := f.decodeXMLClass(*e.Class, p.Type)
		if err != nil {
			return err
		}
		return p.SetObject(obj, i)
	}
	v, err := parseScalarString(p.Type, e.Value)
	if err != nil {
		return err
	}
	return p.SetValue(v, i)
}

func parseScalarString(t *Type, s string) (interface{}, error) {
	if t.Kind == KindEnum {
		// The element name, or "" for the always-accepted zero value.
		if s == "" {
			return int32(0), nil
		}
		if v, ok := t.EnumNameToValue(s); ok {
			return v, nil
		}
		if n, err := strconv.ParseInt(s, 10, 32); err == nil {
			if _, ok := t.EnumValueToName(int32(n)); ok {
				return int32(n), nil
			}
		}
		return nil, neterr.NewRuntimeError("enum %s has no element named %q", t.Name, s)
	}
	switch c := t.Codec.(type) {
	case *intCodec:
		if c.signed {
			n, err := strconv.ParseInt(s, 10, 64)
			return n, wrapParseErr(err, s)
		}
		n, err := strconv.ParseUint(s, 10, 64)
		return n, wrapParseErr(err, s)
	case *floatCodec:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, wrapParseErr(err, s)
		}
		if c.bits == 32 {
			return float32(f), nil
		}
		return f, nil
	case *boolCodec:
		b, err := strconv.ParseBool(s)
		return b, wrapParseErr(err, s)
	default:
		return s, nil
	}
}

func wrapParseErr(err error, s string) error {
	if err == nil {
		return nil
	}
	return neterr.NewParseError(neterr.ParseInvalidMessageData, "parsing %q: %v", s, err)
}

func hasPrefix(data []byte, magic string) bool {
	if len(data) < len(magic) {
		return false
	}
	return string(data[:len(magic)]) == magic
}

func toDisplayString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	// Strip quotes json.Marshal adds around scalars we don't special-case.
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return string(b[1 : len(b)-1])
	}
	return string(b)
}

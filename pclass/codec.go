package pclass

import (
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/kingsisle/netcore/neterr"
)

// PrimitiveCodec reads and writes one primitive's wire representation to
// and from a BitStream. Bits is the field width used when the property
// doesn't override it (e.g. a bi<N>/bui<N> integer); ByteSize is the
// natural byte width recorded as the primitive Type's ByteSize (0 for
// variable-width primitives like strings).
type PrimitiveCodec interface {
	Write(s *BitStream, v interface{}, bits int)
	Read(s *BitStream, bits int) (interface{}, error)
	DefaultBits() int
	ByteSize() int
}

// intCodec handles bi<N>/bui<N> integers, 1 <= N <= 64, two's complement
// when signed.
type intCodec struct {
	bits     int
	signed   bool
	byteSize int
}

// NewIntCodec builds a codec for a signed or unsigned integer of the
// given bit width (the DML/PClass primitive's natural width).
func NewIntCodec(bits int, signed bool) PrimitiveCodec {
	return &intCodec{bits: bits, signed: signed, byteSize: (bits + 7) / 8}
}

func (c *intCodec) DefaultBits() int { return c.bits }
func (c *intCodec) ByteSize() int    { return c.byteSize }

func (c *intCodec) Write(s *BitStream, v interface{}, bits int) {
	if bits <= 0 {
		bits = c.bits
	}
	var u uint64
	if c.signed {
		u = uint64(toInt64(v))
	} else {
		u = toUint64(v)
	}
	mask := uint64(math.MaxUint64)
	if bits < 64 {
		mask = (uint64(1) << uint(bits)) - 1
	}
	s.WriteBits(u&mask, bits)
}

func (c *intCodec) Read(s *BitStream, bits int) (interface{}, error) {
	if bits <= 0 {
		bits = c.bits
	}
	u := s.ReadBits(bits)
	if c.signed {
		return signExtend(u, bits), nil
	}
	return u, nil
}

func signExtend(u uint64, bits int) int64 {
	if bits >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << uint(bits-1)
	if u&signBit != 0 {
		return int64(u - (uint64(1) << uint(bits)))
	}
	return int64(u)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	default:
		return 0
	}
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	case int64:
		return uint64(n)
	case int32:
		return uint64(n)
	case int16:
		return uint64(n)
	case int8:
		return uint64(n)
	case int:
		return uint64(n)
	default:
		return 0
	}
}

// floatCodec handles IEEE floats, written as their bit-pattern at the
// corresponding integer width.
type floatCodec struct {
	bits int
}

// NewFloatCodec builds a codec for a 32- or 64-bit IEEE float.
func NewFloatCodec(bits int) PrimitiveCodec {
	return &floatCodec{bits: bits}
}

func (c *floatCodec) DefaultBits() int { return c.bits }
func (c *floatCodec) ByteSize() int    { return c.bits / 8 }

func (c *floatCodec) Write(s *BitStream, v interface{}, bits int) {
	if bits <= 0 {
		bits = c.bits
	}
	if c.bits == 32 {
		f := toFloat32(v)
		s.WriteBits(uint64(math.Float32bits(f)), bits)
	} else {
		f, _ := toFloat64(v)
		s.WriteBits(math.Float64bits(f), bits)
	}
}

func (c *floatCodec) Read(s *BitStream, bits int) (interface{}, error) {
	if bits <= 0 {
		bits = c.bits
	}
	u := s.ReadBits(bits)
	if c.bits == 32 {
		return math.Float32frombits(uint32(u)), nil
	}
	return math.Float64frombits(u), nil
}

func toFloat32(v interface{}) float32 {
	f, _ := toFloat64(v)
	return float32(f)
}

// boolCodec writes one bit, or one byte when byte alignment was
// explicitly requested on the owning property.
type boolCodec struct{}

// NewBoolCodec builds the bool primitive codec.
func NewBoolCodec() PrimitiveCodec { return &boolCodec{} }

func (c *boolCodec) DefaultBits() int { return 1 }
func (c *boolCodec) ByteSize() int    { return 1 }

func (c *boolCodec) Write(s *BitStream, v interface{}, bits int) {
	if bits <= 0 {
		bits = 1
	}
	b, _ := v.(bool)
	var u uint64
	if b {
		u = 1
	}
	s.WriteBits(u, bits)
}

func (c *boolCodec) Read(s *BitStream, bits int) (interface{}, error) {
	if bits <= 0 {
		bits = 1
	}
	return s.ReadBits(bits) != 0, nil
}

// stringCodec writes a u16 length prefix followed by UTF-8 code units.
type stringCodec struct{}

// NewStringCodec builds the STR primitive codec.
func NewStringCodec() PrimitiveCodec { return &stringCodec{} }

func (c *stringCodec) DefaultBits() int { return 0 }
func (c *stringCodec) ByteSize() int    { return 0 }

func (c *stringCodec) Write(s *BitStream, v interface{}, _ int) {
	str, _ := v.(string)
	b := []byte(str)
	s.WriteBits(uint64(len(b)), 16)
	s.WriteCopy(b)
}

func (c *stringCodec) Read(s *BitStream, _ int) (interface{}, error) {
	n := int(s.ReadBits(16))
	return string(s.ReadCopy(n)), nil
}

// wstringCodec writes a u16 length prefix (of UTF-16 code units),
// followed by UTF-16LE code units.
type wstringCodec struct{}

// NewWStringCodec builds the WSTR primitive codec.
func NewWStringCodec() PrimitiveCodec { return &wstringCodec{} }

func (c *wstringCodec) DefaultBits() int { return 0 }
func (c *wstringCodec) ByteSize() int    { return 0 }

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func (c *wstringCodec) Write(s *BitStream, v interface{}, _ int) {
	str, _ := v.(string)
	enc := utf16le.NewEncoder()
	b, err := enc.Bytes([]byte(str))
	if err != nil {
		b = nil
	}
	s.WriteBits(uint64(len(b)/2), 16)
	s.WriteCopy(b)
}

func (c *wstringCodec) Read(s *BitStream, _ int) (interface{}, error) {
	n := int(s.ReadBits(16))
	raw := s.ReadCopy(n * 2)
	dec := utf16le.NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return nil, neterr.NewParseError(neterr.ParseInvalidMessageData, "decoding wide string: %v", err)
	}
	return string(out), nil
}

// enumCodec writes/reads an enum property: the element name in file mode,
// else the underlying u32 value. The file/network distinction can't be
// threaded through PrimitiveCodec's shared Write/Read signature, so
// file-mode enum encoding is handled separately by WriteEnum/ReadEnum
// below rather than by this codec's own Write/Read.
type enumCodec struct {
	t *Type
}

// NewEnumCodec builds the codec for an already-defined enum Type.
func NewEnumCodec(t *Type) PrimitiveCodec { return &enumCodec{t: t} }

func (c *enumCodec) DefaultBits() int { return 32 }
func (c *enumCodec) ByteSize() int    { return 4 }

func (c *enumCodec) Write(s *BitStream, v interface{}, bits int) {
	// Network-mode fallback: write the raw u32 value. File-mode enum
	// writing is handled specially in serializer.go (WriteEnum), which
	// needs the is_file flag to pick name-vs-value encoding.
	if bits <= 0 {
		bits = 32
	}
	s.WriteBits(uint64(uint32(toInt64(v))), bits)
}

func (c *enumCodec) Read(s *BitStream, bits int) (interface{}, error) {
	if bits <= 0 {
		bits = 32
	}
	return int32(s.ReadBits(bits)), nil
}

// WriteEnum writes an enum value: the element name as a string when
// writing a file, else it delegates to the u32 codec.
func WriteEnum(s *BitStream, t *Type, v int32, isFile bool) error {
	if isFile {
		name, ok := t.EnumValueToName(v)
		if !ok {
			return neterr.NewRuntimeError("enum %s has no element for value %d", t.Name, v)
		}
		strCodec := stringCodec{}
		strCodec.Write(s, name, 0)
		return nil
	}
	s.WriteBits(uint64(uint32(v)), 32)
	return nil
}

// ReadEnum is the is_file-aware counterpart of WriteEnum.
func ReadEnum(s *BitStream, t *Type, isFile bool) (int32, error) {
	if isFile {
		strCodec := stringCodec{}
		raw, err := strCodec.Read(s, 0)
		if err != nil {
			return 0, err
		}
		name := raw.(string)
		v, ok := t.EnumNameToValue(name)
		if !ok {
			// WriteEnum writes the always-accepted value 0 as an empty name.
			if name == "" {
				return 0, nil
			}
			return 0, neterr.NewRuntimeError("enum %s has no element named %q", t.Name, name)
		}
		return v, nil
	}
	v := int32(s.ReadBits(32))
	if _, ok := t.EnumValueToName(v); !ok {
		return 0, neterr.NewRuntimeError("enum %s has no element for value %d", t.Name, v)
	}
	return v, nil
}

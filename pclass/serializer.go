package pclass

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/kingsisle/netcore/neterr"
)

// SerializerFlag is the optional u32 header bit set either mode can
// prefix a stream with, describing how the rest of the stream was written.
type SerializerFlag uint32

const (
	// WriteSerializerFlags, when set at construction, causes the flags
	// word itself to be written/read as the first thing in the stream.
	WriteSerializerFlags SerializerFlag = 0x01
	// Compressed causes a compression header + zlib-or-raw body to wrap
	// the object payload.
	Compressed SerializerFlag = 0x08
	// WritePublicOnly skips properties without the Public flag.
	WritePublicOnly SerializerFlag = 0x02
)

func flagSet(flags SerializerFlag, bit SerializerFlag) bool { return flags&bit != 0 }

// BinarySerializer walks a PropertyClass graph producing/consuming the
// bit-packed wire format in one of two modes: a compact positional
// network encoding, or a self-describing file encoding keyed by property
// hash.
type BinarySerializer struct {
	ts     *TypeSystem
	isFile bool
	flags  SerializerFlag
}

// NewBinarySerializer builds a serializer bound to ts. isFile selects
// self-describing file mode over positional network mode; flags control
// the optional header/compression/public-only behaviors, which apply in
// both modes.
func NewBinarySerializer(ts *TypeSystem, isFile bool, flags SerializerFlag) *BinarySerializer {
	return &BinarySerializer{ts: ts, isFile: isFile, flags: flags}
}

// Save serializes object (nil meaning a null root pointer) into a byte
// slice.
func (s *BinarySerializer) Save(object *PropertyClass) ([]byte, error) {
	stream := NewBitStream(16)

	if flagSet(s.flags, WriteSerializerFlags) {
		stream.WriteBits(uint64(s.flags), 32)
	}

	compressionHeaderPos := stream.Tell()
	if flagSet(s.flags, Compressed) {
		if s.isFile {
			stream.WriteBits(0, 1) // placeholder bool, byte-realigned below
			stream.Realign()
		}
		stream.WriteBits(0, 32) // placeholder uncompressed size
	}

	startPos := stream.Tell()
	if err := s.saveObject(object, stream); err != nil {
		return nil, err
	}

	if flagSet(s.flags, Compressed) {
		endPos := stream.Tell()
		sizeBytes := endPos.Byte - startPos.Byte
		if endPos.Bit != 0 {
			sizeBytes++
		}
		uncompressed := make([]byte, sizeBytes)
		stream.Seek(startPos, false)
		copy(uncompressed, stream.ReadCopy(int(sizeBytes)))

		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write(uncompressed)
		_ = zw.Close()
		compressed := buf.Bytes()

		useCompression := len(compressed) < len(uncompressed)

		stream.Seek(compressionHeaderPos, true)
		if s.isFile {
			var b uint64
			if useCompression {
				b = 1
			}
			stream.WriteBits(b, 1)
			stream.Realign()
		}
		stream.WriteBits(uint64(len(uncompressed)), 32)
		if useCompression {
			stream.WriteCopy(compressed)
		} else {
			stream.Seek(endPos, true)
		}
	}

	return stream.Data(), nil
}

// Load deserializes data (produced by a Save call with the same mode) and
// returns the root object, or nil for a null root pointer.
func (s *BinarySerializer) Load(data []byte) (*PropertyClass, error) {
	stream := NewBitStreamFromBytes(data)

	if flagSet(s.flags, WriteSerializerFlags) {
		s.flags = SerializerFlag(stream.ReadBits(32))
	}

	if flagSet(s.flags, Compressed) {
		useCompression := true
		if s.isFile {
			useCompression = stream.ReadBits(1) != 0
			stream.Realign()
		}
		uncompressedSize := int(stream.ReadBits(32))

		rest := stream.Data()[stream.Tell().Byte:]
		if useCompression {
			zr, err := zlib.NewReader(bytes.NewReader(rest))
			if err != nil {
				return nil, neterr.NewParseError(neterr.ParseInvalidHeaderData, "opening zlib stream: %v", err)
			}
			defer zr.Close()
			out := make([]byte, uncompressedSize)
			if _, err := io.ReadFull(zr, out); err != nil {
				return nil, neterr.NewParseError(neterr.ParseInvalidHeaderData, "inflating stream: %v", err)
			}
			stream = NewBitStreamFromBytes(out)
		} else {
			stream = NewBitStreamFromBytes(rest[:uncompressedSize])
		}
	}

	return s.loadObject(stream)
}

func (s *BinarySerializer) saveObject(object *PropertyClass, stream *BitStream) error {
	if object == nil {
		stream.WriteBits(0, 32)
		return nil
	}
	stream.WriteBits(uint64(object.Type().Hash), 32)

	startPos := stream.Tell()
	if s.isFile {
		stream.WriteBits(0, 32) // placeholder object_size_in_bits
	}

	for _, p := range object.Properties().All() {
		if err := s.saveProperty(p, stream); err != nil {
			return err
		}
	}

	if s.isFile {
		endPos := stream.Tell()
		sizeBits := endPos.BitOffset() - startPos.BitOffset()
		stream.Seek(startPos, true)
		stream.WriteBits(uint64(sizeBits), 32)
		stream.Seek(endPos, true)
	}
	return nil
}

func (s *BinarySerializer) saveProperty(p *Property, stream *BitStream) error {
	if flagSet(s.flags, WritePublicOnly) && !p.Public {
		return nil
	}

	if p.IsDynamic() || s.isFile {
		stream.Realign()
	}

	startPos := stream.Tell()
	if s.isFile {
		stream.WriteBits(0, 32) // placeholder property_size_in_bits
		stream.WriteBits(uint64(p.FullHash), 32)
	}

	if p.IsDynamic() {
		if s.isFile {
			stream.WriteBits(uint64(p.ElementCount()*2), 8)
		} else {
			stream.WriteBits(uint64(p.ElementCount()), 32)
		}
	}

	for i := 0; i < p.ElementCount(); i++ {
		if p.ByteAligned {
			stream.Realign()
		}
		if p.Type.Kind == KindClass {
			obj, err := p.GetObject(i)
			if err != nil {
				return err
			}
			if err := s.saveObject(obj, stream); err != nil {
				return err
			}
			continue
		}
		v, err := p.GetValue(i)
		if err != nil {
			return err
		}
		if err := s.writeElement(stream, p.Type, v); err != nil {
			return err
		}
	}

	if s.isFile {
		endPos := stream.Tell()
		sizeBits := endPos.BitOffset() - startPos.BitOffset()
		stream.Seek(startPos, true)
		stream.WriteBits(uint64(sizeBits), 32)
		stream.Seek(endPos, true)
	}
	return nil
}

func (s *BinarySerializer) writeElement(stream *BitStream, t *Type, v interface{}) error {
	if t.Kind == KindEnum {
		return WriteEnum(stream, t, int32(toInt64(v)), s.isFile)
	}
	if t.Codec == nil {
		return neterr.NewRuntimeError("type %q has no primitive codec", t.Name)
	}
	t.Codec.Write(stream, v, t.Codec.DefaultBits())
	return nil
}

func (s *BinarySerializer) readElement(stream *BitStream, t *Type) (interface{}, error) {
	if t.Kind == KindEnum {
		v, err := ReadEnum(stream, t, s.isFile)
		return v, err
	}
	if t.Codec == nil {
		return nil, neterr.NewRuntimeError("type %q has no primitive codec", t.Name)
	}
	return t.Codec.Read(stream, t.Codec.DefaultBits())
}

func (s *BinarySerializer) loadObject(stream *BitStream) (*PropertyClass, error) {
	typeHash := Hash(stream.ReadBits(32))
	if typeHash == 0 {
		return nil, nil
	}
	t, err := s.ts.GetTypeByHash(typeHash)
	if err != nil {
		return nil, neterr.NewRuntimeError("load_object: unknown type hash 0x%08X", typeHash)
	}
	object, err := t.Instantiate()
	if err != nil {
		return nil, err
	}

	if s.isFile {
		objectSizeBits := int64(stream.ReadBits(32)) - 32
		objectStart := stream.Tell()
		readBits := int64(0)
		for readBits < objectSizeBits {
			stream.Realign()
			propertySizeBits := int64(stream.ReadBits(32)) - 32
			propertyEnd := stream.Tell().AddBits(int(propertySizeBits))
			fullHash := Hash(stream.ReadBits(32))

			prop, ok := object.Properties().ByFullHash(fullHash)
			if !ok {
				// Unknown property hash: skip the record by its declared size.
				stream.Seek(propertyEnd, true)
			} else if err := s.loadProperty(prop, stream); err != nil {
				return nil, err
			}
			stream.Seek(propertyEnd, true)
			readBits = stream.Tell().BitOffset() - objectStart.BitOffset()
		}
	} else {
		for _, p := range object.Properties().All() {
			if err := s.loadProperty(p, stream); err != nil {
				return nil, err
			}
		}
	}
	return object, nil
}

func (s *BinarySerializer) loadProperty(p *Property, stream *BitStream) error {
	if flagSet(s.flags, WritePublicOnly) && !p.Public {
		return nil
	}

	if p.IsDynamic() {
		// Dynamic vectors are always byte-prefixed: the writer realigns
		// before the element-count field, so the reader must too. In file
		// mode the caller already realigned ahead of the property record
		// header, so this is a no-op in that case.
		stream.Realign()
		var n int
		if s.isFile {
			n = int(stream.ReadBits(8)) / 2
		} else {
			n = int(stream.ReadBits(32))
		}
		if err := p.SetElementCount(n); err != nil {
			return err
		}
	}

	for i := 0; i < p.ElementCount(); i++ {
		if p.ByteAligned {
			stream.Realign()
		}
		if p.Type.Kind == KindClass {
			obj, err := s.loadObject(stream)
			if err != nil {
				return err
			}
			if err := p.SetObject(obj, i); err != nil {
				return err
			}
			continue
		}
		v, err := s.readElement(stream, p.Type)
		if err != nil {
			return err
		}
		if err := p.SetValue(v, i); err != nil {
			return err
		}
	}
	return nil
}

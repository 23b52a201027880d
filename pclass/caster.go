package pclass

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kingsisle/netcore/neterr"
)

// CastFunc converts a value known to be of the source Type's underlying
// Go representation into the destination Type's representation.
type CastFunc func(src interface{}) (interface{}, error)

// casterKey pairs a source and destination Type by hash. Using Type
// hashes (rather than a language-level type identity, e.g. reflect.Type)
// keeps the registry keyed by the same handles the wire format already
// uses, per the "Global caster registry" design note.
type casterKey struct {
	src, dst Hash
}

// declareCaster registers a cast from srcType to dstType on this
// TypeSystem. Re-declaring the same pair overwrites the previous entry.
func (ts *TypeSystem) declareCaster(srcType, dstType *Type, fn CastFunc) {
	if ts.casters == nil {
		ts.casters = make(map[casterKey]CastFunc)
	}
	ts.casters[casterKey{srcType.Hash, dstType.Hash}] = fn
}

// Cast converts v (a value of srcType) into a value of dstType using a
// registered caster. Casting to the same type is always a no-op copy.
func (ts *TypeSystem) Cast(v interface{}, srcType, dstType *Type) (interface{}, error) {
	if srcType.Hash == dstType.Hash {
		return v, nil
	}
	fn, ok := ts.casters[casterKey{srcType.Hash, dstType.Hash}]
	if !ok {
		return nil, neterr.NewCastError(srcType.Name, dstType.Name)
	}
	return fn(v)
}

// declareDefaultCasters wires up the caster families every primitive
// registration auto-declares: numeric<->numeric in both directions, and
// primitive->string and primitive->JSON in one direction only (no caster
// from string or JSON back to the primitive is declared). Numeric casters
// against types registered later are added when those types declare
// themselves.
func (ts *TypeSystem) declareDefaultCasters(t *Type, codec PrimitiveCodec) {
	// Every primitive can render itself as a string.
	ts.declareCaster(t, stringType(ts), func(src interface{}) (interface{}, error) {
		return fmt.Sprintf("%v", src), nil
	})

	// Every primitive can marshal itself to/through JSON text.
	ts.declareCaster(t, jsonType(ts), func(src interface{}) (interface{}, error) {
		b, err := json.Marshal(src)
		if err != nil {
			return nil, neterr.NewRuntimeError("marshaling %s to json: %v", t.Name, err)
		}
		return string(b), nil
	})

	if isNumericCodec(codec) {
		for _, other := range ts.types {
			if other.Codec == nil || !isNumericCodec(other.Codec) {
				continue
			}
			src, dst := t, other
			ts.declareCaster(src, dst, numericCastFunc(dst.Codec))
			ts.declareCaster(dst, src, numericCastFunc(src.Codec))
		}
	}
}

func isNumericCodec(c PrimitiveCodec) bool {
	switch c.(type) {
	case *intCodec, *floatCodec:
		return true
	default:
		return false
	}
}

// numericCastFunc builds a CastFunc that converts any Go numeric value
// into the representation the destination codec expects.
func numericCastFunc(dst PrimitiveCodec) CastFunc {
	return func(src interface{}) (interface{}, error) {
		f, err := toFloat64(src)
		if err != nil {
			return nil, err
		}
		switch d := dst.(type) {
		case *intCodec:
			if d.signed {
				return int64(f), nil
			}
			return uint64(f), nil
		case *floatCodec:
			if d.bits == 32 {
				return float32(f), nil
			}
			return f, nil
		default:
			return nil, neterr.NewRuntimeError("unsupported numeric cast destination")
		}
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, neterr.NewRuntimeError("value of type %T is not numeric", v)
	}
}

// stringType / jsonType lazily register the two well-known pseudo-
// primitive destination types every caster family targets, so declaring
// the first real primitive doesn't require the caller to pre-register
// "string"/"json" by hand.
func stringType(ts *TypeSystem) *Type {
	if t, err := ts.GetType("string"); err == nil {
		return t
	}
	t, _ := ts.DefinePrimitive("string", NewStringCodec())
	return t
}

func jsonType(ts *TypeSystem) *Type {
	if t, err := ts.GetType("json"); err == nil {
		return t
	}
	t := newType("json", KindPrimitive, ts)
	t.Codec = NewStringCodec()
	_ = ts.defineType(t)
	return t
}

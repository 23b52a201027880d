package pclass

import "github.com/kingsisle/netcore/neterr"

// Value is a type-erased cell carrying a single primitive or object
// reference along with the hash of its held type, so a caller can check
// identity before extracting the payload. Go's garbage collector removes
// the need for an owned-vs-referenced distinction (there is no
// destructor to run either way); what remains load-bearing is the
// identity check in Get and the caster-mediated conversion in
// Dereference.
type Value struct {
	data     interface{}
	typeHash Hash
	system   *TypeSystem
	t        *Type
}

// NewValue wraps v, which must be an instance of t's Go representation.
func NewValue(ts *TypeSystem, t *Type, v interface{}) Value {
	return Value{data: v, typeHash: t.Hash, system: ts, t: t}
}

// TypeHash returns the hash of the type this Value was constructed with.
func (v Value) TypeHash() Hash { return v.typeHash }

// Type returns the Type this Value was constructed with.
func (v Value) Type() *Type { return v.t }

// Get returns the held data, requiring the caller-supplied type to match
// the one the Value was constructed with.
func (v Value) Get(t *Type) (interface{}, error) {
	if t.Hash != v.typeHash {
		return nil, neterr.NewRuntimeError(
			"value holds type %q (hash 0x%08X), not %q (hash 0x%08X)",
			v.t.Name, v.typeHash, t.Name, t.Hash)
	}
	return v.data, nil
}

// Dereference returns a new Value of type dst: a copy if dst is already
// the held type, otherwise the result of a registered cast.
func (v Value) Dereference(dst *Type) (Value, error) {
	if dst.Hash == v.typeHash {
		return v, nil
	}
	converted, err := v.system.Cast(v.data, v.t, dst)
	if err != nil {
		return Value{}, err
	}
	return NewValue(v.system, dst, converted), nil
}

package pclass

import (
	"fmt"

	"github.com/kingsisle/netcore/neterr"
)

// Kind discriminates the three categories a Type can describe.
type Kind int

const (
	KindPrimitive Kind = iota
	KindClass
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "Primitive"
	case KindClass:
		return "Class"
	case KindEnum:
		return "Enum"
	default:
		return "Unknown"
	}
}

// Factory constructs a fresh PropertyClass instance of the Type it is
// attached to. Only class-kind Types carry one.
type Factory func(ts *TypeSystem, t *Type) *PropertyClass

// Type is an immutable descriptor for a registered primitive, class, or
// enum. Name and Hash are unique within the owning TypeSystem; a class's
// Base, if present, is itself a class Type.
type Type struct {
	Name        string
	Hash        Hash
	Kind        Kind
	Base        *Type
	ByteSize    int            // natural width in bytes, for fixed-width primitives (0 if n/a)
	Codec       PrimitiveCodec // non-nil iff Kind == KindPrimitive
	instantiate Factory
	system      *TypeSystem

	// Enum bookkeeping: bidirectional name<->value mapping.
	enumNames  map[int32]string
	enumValues map[string]int32
}

func newType(name string, kind Kind, ts *TypeSystem) *Type {
	return &Type{
		Name:   name,
		Hash:   TypeHash(name),
		Kind:   kind,
		system: ts,
	}
}

// Instantiate builds a new instance of a class Type. Returns a
// RuntimeError if the Type has no factory (i.e. is not a class).
func (t *Type) Instantiate() (*PropertyClass, error) {
	if t.Kind != KindClass || t.instantiate == nil {
		return nil, neterr.NewRuntimeError("type %q is not instantiable", t.Name)
	}
	return t.instantiate(t.system, t), nil
}

// IsDescendantOf reports whether t is other or inherits from it,
// transitively through Base. Used to enforce the pointer-property
// inheritance rule.
func (t *Type) IsDescendantOf(other *Type) bool {
	for cur := t; cur != nil; cur = cur.Base {
		if cur == other || cur.Hash == other.Hash {
			return true
		}
	}
	return false
}

// EnumValueToName resolves an enum's underlying u32 value to its element
// name. The special value 0 is always accepted even if undeclared.
func (t *Type) EnumValueToName(v int32) (string, bool) {
	if name, ok := t.enumNames[v]; ok {
		return name, true
	}
	if v == 0 {
		return "", true
	}
	return "", false
}

// EnumNameToValue resolves an enum element name to its underlying value.
func (t *Type) EnumNameToValue(name string) (int32, bool) {
	v, ok := t.enumValues[name]
	return v, ok
}

// AddEnumElement registers a name/value pair on an enum Type.
func (t *Type) AddEnumElement(name string, value int32) {
	if t.enumNames == nil {
		t.enumNames = make(map[int32]string)
		t.enumValues = make(map[string]int32)
	}
	t.enumNames[value] = name
	t.enumValues[name] = value
}

func (t *Type) String() string {
	return fmt.Sprintf("%s (%s, hash=0x%08X)", t.Name, t.Kind, t.Hash)
}

// TypeSystem provides run-time type definition and lookup: primitives,
// enums, and classes registered by name, with hash-based lookup for the
// binary serializer's wire format.
type TypeSystem struct {
	types        []*Type
	byName       map[string]*Type
	byHash       map[Hash]*Type
	rootClass    *Type
	rootClassSet bool
	casters      map[casterKey]CastFunc
}

// NewTypeSystem creates an empty registry.
func NewTypeSystem() *TypeSystem {
	return &TypeSystem{
		byName: make(map[string]*Type),
		byHash: make(map[Hash]*Type),
	}
}

// HasType reports whether a type with the given name is registered.
func (ts *TypeSystem) HasType(name string) bool {
	_, ok := ts.byName[name]
	return ok
}

// HasTypeHash reports whether a type with the given hash is registered.
func (ts *TypeSystem) HasTypeHash(hash Hash) bool {
	_, ok := ts.byHash[hash]
	return ok
}

// GetType looks up a registered Type by name.
func (ts *TypeSystem) GetType(name string) (*Type, error) {
	t, ok := ts.byName[name]
	if !ok {
		return nil, neterr.NewRuntimeError("no type registered with name %q", name)
	}
	return t, nil
}

// GetTypeByHash looks up a registered Type by hash.
func (ts *TypeSystem) GetTypeByHash(hash Hash) (*Type, error) {
	t, ok := ts.byHash[hash]
	if !ok {
		return nil, neterr.NewRuntimeError("no type registered with hash 0x%08X", hash)
	}
	return t, nil
}

func (ts *TypeSystem) defineType(t *Type) error {
	if _, exists := ts.byName[t.Name]; exists {
		return neterr.NewValueError(neterr.ValueOverwritesLookup,
			"a type named %q is already registered", t.Name)
	}
	if _, exists := ts.byHash[t.Hash]; exists {
		return neterr.NewValueError(neterr.ValueOverwritesLookup,
			"a type with hash 0x%08X is already registered (name %q)", t.Hash, t.Name)
	}
	ts.types = append(ts.types, t)
	ts.byName[t.Name] = t
	ts.byHash[t.Hash] = t
	if t.Name == "class PropertyClass" {
		ts.rootClass = t
		ts.rootClassSet = true
	}
	return nil
}

// DefinePrimitive registers a primitive type backed by the given codec,
// and declares its default family of casters (string, JSON, and
// cross-numeric conversions to/from every other registered numeric type).
func (ts *TypeSystem) DefinePrimitive(name string, codec PrimitiveCodec) (*Type, error) {
	t := newType(name, KindPrimitive, ts)
	t.ByteSize = codec.ByteSize()
	t.Codec = codec
	if err := ts.defineType(t); err != nil {
		return nil, err
	}
	ts.declareDefaultCasters(t, codec)
	return t, nil
}

// DefineEnum registers a dynamic enum type whose name/value table is
// populated afterward with AddEnumElement. Its codec covers the
// network-mode u32 encoding; file mode's name encoding is selected by
// the serializer.
func (ts *TypeSystem) DefineEnum(name string) (*Type, error) {
	t := newType(name, KindEnum, ts)
	t.Codec = NewEnumCodec(t)
	t.ByteSize = t.Codec.ByteSize()
	if err := ts.defineType(t); err != nil {
		return nil, err
	}
	return t, nil
}

// DefineClass registers a class type with an optional explicit base. If
// base is nil and "class PropertyClass" has already been registered, that
// becomes the implicit base (unless name itself is "class PropertyClass").
func (ts *TypeSystem) DefineClass(name string, base *Type, factory Factory) (*Type, error) {
	if base == nil && ts.rootClassSet && name != "class PropertyClass" {
		base = ts.rootClass
	}
	t := newType(name, KindClass, ts)
	t.Base = base
	t.instantiate = factory
	if err := ts.defineType(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Instantiate constructs a new PropertyClass instance of the named class
// type by invoking its factory.
func (ts *TypeSystem) Instantiate(name string) (*PropertyClass, error) {
	t, err := ts.GetType(name)
	if err != nil {
		return nil, err
	}
	return t.Instantiate()
}

// Types returns every registered Type in registration order.
func (ts *TypeSystem) Types() []*Type {
	out := make([]*Type, len(ts.types))
	copy(out, ts.types)
	return out
}

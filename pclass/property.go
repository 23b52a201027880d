package pclass

import "github.com/kingsisle/netcore/neterr"

// PropertyKind discriminates the three shapes a Property's storage can
// take: a single value, a fixed-size array, or a resizable vector.
type PropertyKind int

const (
	StaticScalar PropertyKind = iota
	StaticArray
	DynamicVector
)

// Property is bound to an owning PropertyClass instance at construction.
// It covers all four combinations of {StaticScalar, StaticArray,
// DynamicVector} x {value, pointer}: the variant is expressed as data
// (Kind + IsPointer) and dispatched on with a switch, rather than as a
// type hierarchy with virtual calls.
type Property struct {
	Name        string
	NameHash    Hash
	FullHash    Hash
	Type        *Type
	Public      bool
	ByteAligned bool
	Kind        PropertyKind
	IsPointer   bool

	values  []interface{}    // primitive/enum storage
	objects []*PropertyClass // class-typed storage; nil entry means a null pointer
}

// NewProperty constructs a Property bound to t with the given static
// element count (1 for a scalar, N for a fixed array; ignored for
// DynamicVector, which starts empty).
func NewProperty(name string, t *Type, kind PropertyKind, isPointer bool, staticCount int) *Property {
	p := &Property{
		Name:      name,
		NameHash:  PropertyHash(name),
		Type:      t,
		Kind:      kind,
		IsPointer: isPointer,
		Public:    true,
	}
	p.FullHash = p.NameHash + t.Hash
	n := staticCount
	if kind == DynamicVector {
		n = 0
	} else if kind == StaticScalar {
		n = 1
	}
	if t.Kind == KindClass {
		p.objects = make([]*PropertyClass, n)
	} else {
		p.values = make([]interface{}, n)
	}
	return p
}

// IsDynamic reports whether this property is a resizable vector.
func (p *Property) IsDynamic() bool { return p.Kind == DynamicVector }

// IsArray reports whether this property holds more than a single element
// (static array or dynamic vector).
func (p *Property) IsArray() bool { return p.Kind != StaticScalar }

// ElementCount returns the current number of elements.
func (p *Property) ElementCount() int {
	if p.Type.Kind == KindClass {
		return len(p.objects)
	}
	return len(p.values)
}

// SetElementCount resizes a dynamic vector. Returns a RuntimeError for
// static scalar/array properties.
func (p *Property) SetElementCount(n int) error {
	if p.Kind != DynamicVector {
		return neterr.NewRuntimeError("SetElementCount called on a non-dynamic property %q", p.Name)
	}
	if p.Type.Kind == KindClass {
		grown := make([]*PropertyClass, n)
		copy(grown, p.objects)
		p.objects = grown
		return nil
	}
	grown := make([]interface{}, n)
	copy(grown, p.values)
	p.values = grown
	return nil
}

func (p *Property) checkIndex(i int) error {
	if i < 0 || i >= p.ElementCount() {
		return neterr.NewRuntimeError("property %q index %d out of bounds (count=%d)", p.Name, i, p.ElementCount())
	}
	return nil
}

// GetValue returns the i'th element's raw value. Not valid for
// pointer-to-class properties; use GetObject instead.
func (p *Property) GetValue(i int) (interface{}, error) {
	if p.Type.Kind == KindClass {
		return nil, neterr.NewRuntimeError("property %q holds objects; use GetObject", p.Name)
	}
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	return p.values[i], nil
}

// SetValue assigns the i'th element's raw value.
func (p *Property) SetValue(v interface{}, i int) error {
	if p.Type.Kind == KindClass {
		return neterr.NewRuntimeError("property %q holds objects; use SetObject", p.Name)
	}
	if err := p.checkIndex(i); err != nil {
		return err
	}
	p.values[i] = v
	return nil
}

// GetObject returns the i'th element's nested object. Only valid when the
// property's element type is a class. A nil result means a null pointer.
func (p *Property) GetObject(i int) (*PropertyClass, error) {
	if p.Type.Kind != KindClass {
		return nil, neterr.NewRuntimeError("property %q element type is not a class", p.Name)
	}
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	return p.objects[i], nil
}

// SetObject assigns the i'th element's nested object. obj may be nil only
// when the property is a pointer (representing a null class pointer).
// The assigned object's type must equal the property's type, or descend
// from it when the property is a pointer (inheritance allowed only for
// pointer properties).
func (p *Property) SetObject(obj *PropertyClass, i int) error {
	if p.Type.Kind != KindClass {
		return neterr.NewRuntimeError("property %q element type is not a class", p.Name)
	}
	if err := p.checkIndex(i); err != nil {
		return err
	}
	if obj == nil {
		if !p.IsPointer {
			return neterr.NewRuntimeError("property %q is not a pointer; cannot be null", p.Name)
		}
		p.objects[i] = nil
		return nil
	}
	objType := obj.Type()
	if p.IsPointer {
		if !objType.IsDescendantOf(p.Type) {
			return neterr.NewRuntimeError(
				"cannot assign object of type %q to pointer property %q of type %q",
				objType.Name, p.Name, p.Type.Name)
		}
	} else if objType.Hash != p.Type.Hash {
		return neterr.NewRuntimeError(
			"cannot assign object of type %q to non-pointer property %q of type %q",
			objType.Name, p.Name, p.Type.Name)
	}
	p.objects[i] = obj
	return nil
}

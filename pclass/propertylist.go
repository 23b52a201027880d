package pclass

import "github.com/kingsisle/netcore/neterr"

// PropertyList is the ordered sequence of properties a PropertyClass owns,
// plus name and full-hash lookup maps. Declaration order is the canonical
// network-mode serialization order.
type PropertyList struct {
	properties []*Property
	byName     map[string]*Property
	byFullHash map[Hash]*Property
}

// NewPropertyList creates an empty PropertyList.
func NewPropertyList() *PropertyList {
	return &PropertyList{
		byName:     make(map[string]*Property),
		byFullHash: make(map[Hash]*Property),
	}
}

// Add appends p to the list. Both the name and the full hash must be
// unique within the list; a collision rejects the incoming property and
// returns an error, and the caller simply never retains it.
func (l *PropertyList) Add(p *Property) error {
	if _, exists := l.byName[p.Name]; exists {
		return neterr.NewValueError(neterr.ValueOverwritesLookup,
			"a property named %q is already declared", p.Name)
	}
	if _, exists := l.byFullHash[p.FullHash]; exists {
		return neterr.NewValueError(neterr.ValueOverwritesLookup,
			"a property with full hash 0x%08X is already declared (name %q)", p.FullHash, p.Name)
	}
	l.properties = append(l.properties, p)
	l.byName[p.Name] = p
	l.byFullHash[p.FullHash] = p
	return nil
}

// Len returns the number of declared properties.
func (l *PropertyList) Len() int { return len(l.properties) }

// At returns the property at declaration-order index i.
func (l *PropertyList) At(i int) *Property { return l.properties[i] }

// All returns every property in declaration order.
func (l *PropertyList) All() []*Property {
	out := make([]*Property, len(l.properties))
	copy(out, l.properties)
	return out
}

// ByName looks up a property by its declared name.
func (l *PropertyList) ByName(name string) (*Property, bool) {
	p, ok := l.byName[name]
	return p, ok
}

// ByFullHash looks up a property by its file-mode wire key.
func (l *PropertyList) ByFullHash(hash Hash) (*Property, bool) {
	p, ok := l.byFullHash[hash]
	return p, ok
}

// PropertyClass is the user-facing base of every reflective class. It
// owns its PropertyList and knows its own Type, so an instance can be
// serialized without any external type lookup.
type PropertyClass struct {
	t          *Type
	properties *PropertyList
}

// NewPropertyClass constructs the PropertyClass base; concrete generated
// classes embed this and then declare their properties in their
// constructor via Declare, in the same order for every instance --
// network mode depends on that order being stable across instances of
// the same type.
func NewPropertyClass(t *Type) *PropertyClass {
	return &PropertyClass{t: t, properties: NewPropertyList()}
}

// Type returns the instance's registered Type.
func (c *PropertyClass) Type() *Type { return c.t }

// Properties returns the instance's PropertyList.
func (c *PropertyClass) Properties() *PropertyList { return c.properties }

// Declare registers a new property on this instance and returns it, or
// panics on a name/hash collision -- a collision here is a programming
// error in the generated class's constructor, not a runtime condition a
// caller can recover from.
func (c *PropertyClass) Declare(name string, t *Type, kind PropertyKind, isPointer bool, staticCount int) *Property {
	p := NewProperty(name, t, kind, isPointer, staticCount)
	if err := c.properties.Add(p); err != nil {
		panic(err)
	}
	return p
}

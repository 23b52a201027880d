package pclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newIntTestSystem(t *testing.T) (*TypeSystem, *Type) {
	ts := NewTypeSystem()
	intT, err := ts.DefinePrimitive("int", NewIntCodec(32, true))
	require.NoError(t, err)
	return ts, intT
}

func TestPropertyFullHashInvariant(t *testing.T) {
	_, intT := newIntTestSystem(t)
	p := NewProperty("m_value", intT, StaticScalar, false, 1)
	require.Equal(t, PropertyHash("m_value")+intT.Hash, p.FullHash)
}

func TestStaticArrayFixedCount(t *testing.T) {
	_, intT := newIntTestSystem(t)
	p := NewProperty("m_arr", intT, StaticArray, false, 5)
	require.Equal(t, 5, p.ElementCount())
	require.True(t, p.IsArray())
	require.False(t, p.IsDynamic())
	require.Error(t, p.SetElementCount(10))
}

func TestDynamicVectorResizes(t *testing.T) {
	_, intT := newIntTestSystem(t)
	p := NewProperty("m_vec", intT, DynamicVector, false, 0)
	require.Equal(t, 0, p.ElementCount())
	require.NoError(t, p.SetElementCount(100))
	require.Equal(t, 100, p.ElementCount())
	require.True(t, p.IsDynamic())
}

func TestValueOutOfBoundsIndex(t *testing.T) {
	_, intT := newIntTestSystem(t)
	p := NewProperty("m_value", intT, StaticScalar, false, 1)
	_, err := p.GetValue(5)
	require.Error(t, err)
}

func TestPropertyListOrderAndLookups(t *testing.T) {
	_, intT := newIntTestSystem(t)
	list := NewPropertyList()
	a := NewProperty("a", intT, StaticScalar, false, 1)
	b := NewProperty("b", intT, StaticScalar, false, 1)
	require.NoError(t, list.Add(a))
	require.NoError(t, list.Add(b))

	require.Equal(t, []*Property{a, b}, list.All())
	got, ok := list.ByName("b")
	require.True(t, ok)
	require.Same(t, b, got)
	got, ok = list.ByFullHash(a.FullHash)
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestPropertyListRejectsDuplicateName(t *testing.T) {
	_, intT := newIntTestSystem(t)
	list := NewPropertyList()
	require.NoError(t, list.Add(NewProperty("a", intT, StaticScalar, false, 1)))
	require.Error(t, list.Add(NewProperty("a", intT, StaticScalar, false, 1)))
}

func setupClassHierarchy(t *testing.T) (*TypeSystem, *Type, *Type) {
	ts := NewTypeSystem()
	root, err := ts.DefineClass("class PropertyClass", nil, func(ts *TypeSystem, t *Type) *PropertyClass {
		return NewPropertyClass(t)
	})
	require.NoError(t, err)

	other, err := ts.DefineClass("class Other", nil, func(ts *TypeSystem, t *Type) *PropertyClass {
		return NewPropertyClass(t)
	})
	require.NoError(t, err)
	return ts, root, other
}

func TestSetObjectEnforcesInheritanceForPointerProperties(t *testing.T) {
	ts, root, other := setupClassHierarchy(t)
	p := NewProperty("m_obj", root, StaticScalar, true, 1)

	rootInstance, err := root.Instantiate()
	require.NoError(t, err)
	require.NoError(t, p.SetObject(rootInstance, 0))

	otherInstance, err := other.Instantiate()
	require.NoError(t, err)
	// Other implicitly descends from the root class, so a root-typed
	// pointer accepts it; a pointer typed as Other rejects a plain root
	// instance, which is not a descendant of Other.
	require.NoError(t, p.SetObject(otherInstance, 0))
	q := NewProperty("m_other", other, StaticScalar, true, 1)
	require.Error(t, q.SetObject(rootInstance, 0))

	require.NoError(t, p.SetObject(nil, 0))
	got, err := p.GetObject(0)
	require.NoError(t, err)
	require.Nil(t, got)

	_ = ts
}

func TestSetObjectRejectsNullOnNonPointer(t *testing.T) {
	_, root, _ := setupClassHierarchy(t)
	p := NewProperty("m_obj", root, StaticScalar, false, 1)
	instance, err := root.Instantiate()
	require.NoError(t, err)
	require.NoError(t, p.SetObject(instance, 0))
	require.Error(t, p.SetObject(nil, 0))
}

package pclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveBinaryCarriesMagic(t *testing.T) {
	ts, testObjT := buildObjectRoundTripFixture(t)
	obj := populateFixture(t, ts, testObjT)

	fs := NewFileSerializer(ts)
	data, err := fs.SaveBinary(obj)
	require.NoError(t, err)
	require.Equal(t, []byte("BINd"), data[:4])

	loaded, err := fs.Load(data, nil)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assertFixtureEqual(t, loaded)
}

func TestJSONContainerRoundTrip(t *testing.T) {
	ts, testObjT := buildObjectRoundTripFixture(t)
	obj := populateFixture(t, ts, testObjT)

	fs := NewFileSerializer(ts)
	data, err := fs.SaveJSON(obj)
	require.NoError(t, err)
	require.Equal(t, []byte("JSON"), data[:4])

	loaded, err := fs.Load(data, nil)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assertFixtureEqual(t, loaded)
}

func TestJSONContainerNullRoot(t *testing.T) {
	ts, _ := buildObjectRoundTripFixture(t)
	fs := NewFileSerializer(ts)
	data, err := fs.SaveJSON(nil)
	require.NoError(t, err)

	loaded, err := fs.Load(data, nil)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestXMLContainerRoundTrip(t *testing.T) {
	ts, testObjT := buildObjectRoundTripFixture(t)
	obj := populateFixture(t, ts, testObjT)

	fs := NewFileSerializer(ts)
	data, err := fs.SaveXML(obj)
	require.NoError(t, err)
	require.Contains(t, string(data), `<Objects>`)
	require.Contains(t, string(data), `Name="class TestObject"`)
	require.Contains(t, string(data), `key="0"`)

	// XML has no magic; Load falls through to the XML path.
	loaded, err := fs.Load(data, nil)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assertFixtureEqual(t, loaded)
}

func TestTextCodecAdapters(t *testing.T) {
	ts, testObjT := buildObjectRoundTripFixture(t)
	obj := populateFixture(t, ts, testObjT)

	for _, codec := range []TextCodec{NewJSONCodec(ts), NewXMLCodec(ts)} {
		data, err := codec.Encode(obj)
		require.NoError(t, err)
		loaded, err := codec.Decode(data, testObjT)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assertFixtureEqual(t, loaded)
	}
}

func TestXMLNestedClassEmbedsClassElement(t *testing.T) {
	ts, testObjT := buildObjectRoundTripFixture(t)
	obj := populateFixture(t, ts, testObjT)

	fs := NewFileSerializer(ts)
	data, err := fs.SaveXML(obj)
	require.NoError(t, err)
	require.Contains(t, string(data), `Name="class Inner"`)
}

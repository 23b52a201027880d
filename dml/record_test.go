package dml

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSTRFieldBinaryFixture verifies that a record with a single STR
// field "TestStr" = "TEST" encodes to a u16 length prefix followed by
// the raw bytes.
func TestSTRFieldBinaryFixture(t *testing.T) {
	r := NewRecord()
	AddField[STR](r, "TestStr").SetValue(STR("TEST"))

	var buf bytes.Buffer
	require.NoError(t, r.WriteBinary(&buf))
	require.Equal(t, []byte{0x04, 0x00, 'T', 'E', 'S', 'T'}, buf.Bytes())
}

func TestRecordBinaryRoundTrip(t *testing.T) {
	r := NewRecord()
	AddField[INT](r, "m_value").SetValue(INT(-12345))
	AddField[UINT](r, "m_flags").SetValue(UINT(0xDEADBEEF))
	AddField[STR](r, "m_name").SetValue(STR("hello"))
	AddField[WSTR](r, "m_wide").SetValue(WSTR("wide"))
	AddField[GID](r, "m_id").SetValue(GID(0x0102030405060708))
	AddField[DBL](r, "m_ratio").SetValue(DBL(3.25))

	data, err := r.MarshalBinary()
	require.NoError(t, err)

	out := r.Clone()
	require.NoError(t, out.ReadBinary(bytes.NewReader(data)))

	f, ok := out.Field("m_value")
	require.True(t, ok)
	require.Equal(t, INT(-12345), f.(*fieldT[INT]).Value())

	f, ok = out.Field("m_name")
	require.True(t, ok)
	require.Equal(t, STR("hello"), f.(*fieldT[STR]).Value())

	f, ok = out.Field("m_wide")
	require.True(t, ok)
	require.Equal(t, WSTR("wide"), f.(*fieldT[WSTR]).Value())

	f, ok = out.Field("m_id")
	require.True(t, ok)
	require.Equal(t, GID(0x0102030405060708), f.(*fieldT[GID]).Value())
}

func TestAddFieldIdempotent(t *testing.T) {
	r := NewRecord()
	a := AddField[INT](r, "x")
	a.SetValue(INT(7))
	b := AddField[INT](r, "x")
	require.Same(t, a, b)
	require.Equal(t, INT(7), b.Value())
}

func TestAddFieldTypeConflictPanics(t *testing.T) {
	r := NewRecord()
	AddField[INT](r, "x")
	require.Panics(t, func() {
		AddField[STR](r, "x")
	})
}

func TestRecordXMLRoundTrip(t *testing.T) {
	r := NewRecord()
	AddField[STR](r, "Name").SetValue(STR("alice"))
	count := AddField[INT](r, "Count")
	count.SetValue(INT(42))
	count.SetTransferable(false)

	data, err := r.WriteXML()
	require.NoError(t, err)
	require.Contains(t, string(data), `NOXFER="true"`)

	out := NewRecord()
	AddField[STR](out, "Name")
	AddField[INT](out, "Count")
	require.NoError(t, out.ReadXML(data))

	f, _ := out.Field("Name")
	require.Equal(t, STR("alice"), f.(*fieldT[STR]).Value())
	f, _ = out.Field("Count")
	require.Equal(t, INT(42), f.(*fieldT[INT]).Value())
}

// TestNonTransferableFieldSkipsBinaryWire confirms a NOXFER field never
// reaches the binary encoding on either side: only "b" is written, and
// a reader with the same shape leaves "a" untouched while still
// decoding "b" from the right offset.
func TestNonTransferableFieldSkipsBinaryWire(t *testing.T) {
	r := NewRecord()
	a := AddField[INT](r, "a")
	a.SetValue(INT(1))
	a.SetTransferable(false)
	AddField[INT](r, "b").SetValue(INT(2))

	data, err := r.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 4)

	out := NewRecord()
	AddField[INT](out, "a").SetTransferable(false)
	AddField[INT](out, "b")
	require.NoError(t, out.ReadBinary(bytes.NewReader(data)))

	f, _ := out.Field("a")
	require.Equal(t, INT(0), f.(*fieldT[INT]).Value())
	f, _ = out.Field("b")
	require.Equal(t, INT(2), f.(*fieldT[INT]).Value())
}

// TestReadXMLCreatesFieldsFromTypeAttribute checks the create-from-XML
// path: an element with a TYPE attribute declares a new field on a
// record that never declared it ahead of time.
func TestReadXMLCreatesFieldsFromTypeAttribute(t *testing.T) {
	doc := []byte(`<RECORD>
  <Name TYPE="STR">bob</Name>
  <Score TYPE="UINT">900</Score>
  <Secret TYPE="INT" NOXFER="true">5</Secret>
</RECORD>`)

	r := NewRecord()
	require.NoError(t, r.ReadXML(doc))

	f, ok := r.Field("Name")
	require.True(t, ok)
	require.Equal(t, STR("bob"), f.(*fieldT[STR]).Value())

	f, ok = r.Field("Score")
	require.True(t, ok)
	require.Equal(t, UINT(900), f.(*fieldT[UINT]).Value())

	f, ok = r.Field("Secret")
	require.True(t, ok)
	require.Equal(t, INT(5), f.(*fieldT[INT]).Value())
	require.False(t, f.Transferable())
}

func TestReadXMLMissingTypeAttributeFails(t *testing.T) {
	r := NewRecord()
	err := r.ReadXML([]byte(`<RECORD><Mystery>1</Mystery></RECORD>`))
	require.Error(t, err)
}

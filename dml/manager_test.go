package dml

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildGreetingModule(t *testing.T) *MessageModule {
	m := NewMessageModule(2, "Greeting")
	r := NewRecord()
	AddField[STR](r, "Text")
	tmpl, err := m.AddMessageTemplate("Hello", r, true)
	require.NoError(t, err)
	require.Equal(t, uint8(1), tmpl.Type)
	return m
}

func TestManagerRegisterRejectsDuplicateServiceID(t *testing.T) {
	mgr := NewMessageManager()
	require.NoError(t, mgr.Register(buildGreetingModule(t)))
	require.Error(t, mgr.Register(buildGreetingModule(t)))
}

func TestManagerWriteThenFromBinaryRoundTrip(t *testing.T) {
	mgr := NewMessageManager()
	mod := buildGreetingModule(t)
	require.NoError(t, mgr.Register(mod))

	msg, err := mgr.BuildMessageByName(2, "Hello")
	require.NoError(t, err)
	f, ok := msg.Record().Field("Text")
	require.True(t, ok)
	f.(*fieldT[STR]).SetValue(STR("hi there"))

	var buf bytes.Buffer
	require.NoError(t, msg.WriteBinary(&buf))

	got, err := mgr.FromBinary(&buf)
	require.NoError(t, err)
	require.Equal(t, uint8(2), got.ServiceID())
	require.Equal(t, uint8(1), got.Type())
	gf, ok := got.Record().Field("Text")
	require.True(t, ok)
	require.Equal(t, STR("hi there"), gf.(*fieldT[STR]).Value())
}

func TestManagerFromBinaryUnknownTypeReturnsRaw(t *testing.T) {
	mgr := NewMessageManager()
	require.NoError(t, mgr.Register(buildGreetingModule(t)))

	var buf bytes.Buffer
	require.NoError(t, writeHeader(&buf, 2, 99, 3))
	buf.Write([]byte{1, 2, 3})

	got, err := mgr.FromBinary(&buf)
	require.NoError(t, err)
	require.Nil(t, got.Template())
	require.Nil(t, got.Record())
	require.Equal(t, []byte{1, 2, 3}, got.Raw())
	require.Equal(t, uint8(2), got.ServiceID())
	require.Equal(t, uint8(99), got.Type())
}

func TestManagerFromBinaryRejectsShortHeaderSize(t *testing.T) {
	mgr := NewMessageManager()
	require.NoError(t, mgr.Register(buildGreetingModule(t)))

	var buf bytes.Buffer
	require.NoError(t, writeHeader(&buf, 2, 1, 0))
	b := buf.Bytes()
	b[2] = 1
	b[3] = 0

	_, err := mgr.FromBinary(bytes.NewReader(b))
	require.Error(t, err)
}

func TestManagerBuildMessageUnknownServiceFails(t *testing.T) {
	mgr := NewMessageManager()
	_, err := mgr.BuildMessage(9, 1)
	require.Error(t, err)
}

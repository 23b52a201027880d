package neterr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueErrorFormatsCodeAndMessage(t *testing.T) {
	err := NewValueError(ValueExceedsLimit, "module %q has %d messages", "Game", 300)
	require.Equal(t, "value error [ExceedsLimit]: module \"Game\" has 300 messages", err.Error())
	require.Equal(t, ValueExceedsLimit, err.Code)
}

func TestParseErrorFormatsCodeAndMessage(t *testing.T) {
	err := NewParseError(ParseInvalidHeaderData, "short read")
	require.Equal(t, "parse error [InvalidHeaderData]: short read", err.Error())
}

func TestRuntimeErrorHasNoSubCode(t *testing.T) {
	err := NewRuntimeError("index %d out of range", 5)
	require.Equal(t, "runtime error: index 5 out of range", err.Error())
}

func TestCastErrorNamesBothTypes(t *testing.T) {
	err := NewCastError("int", "class Foo")
	require.Equal(t, `no caster registered from "int" to "class Foo"`, err.Error())
}

func TestUnknownCodesStringToNone(t *testing.T) {
	require.Equal(t, "None", ValueCode(-1).String())
	require.Equal(t, "None", ParseCode(-1).String())
	require.Equal(t, "None", SessionCloseReason(-1).String())
	require.Equal(t, "None", InvalidMessageReason(-1).String())
}

func TestSessionCloseReasonStrings(t *testing.T) {
	require.Equal(t, "SessionOfferTimedOut", CloseSessionOfferTimedOut.String())
	require.Equal(t, "OversizedPacket", CloseOversizedPacket.String())
}

func TestInvalidMessageReasonStrings(t *testing.T) {
	require.Equal(t, "InsufficientAccess", InvalidInsufficientAccess.String())
	require.Equal(t, "UnknownMessage", InvalidUnknownMessage.String())
}

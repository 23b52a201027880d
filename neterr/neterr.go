// Package neterr defines the typed errors shared by pclass, dml, and
// session. Each kind is a plain struct rather than a wrapped stdlib error;
// callers branch on the error's kind and, where the kind carries one, on
// its machine-checkable code. RuntimeError carries only a message, and
// CastError carries the source and destination type names.
package neterr

import "fmt"

// ValueCode enumerates the causes of a ValueError.
type ValueCode int

const (
	ValueNone ValueCode = iota
	ValueMissingFile
	ValueOverwritesLookup
	ValueExceedsLimit
	ValueDmlInvalidService
	ValueDmlInvalidProtocolType
	ValueDmlInvalidMessageType
	ValueDmlInvalidMessageName
)

func (c ValueCode) String() string {
	switch c {
	case ValueMissingFile:
		return "MissingFile"
	case ValueOverwritesLookup:
		return "OverwritesLookup"
	case ValueExceedsLimit:
		return "ExceedsLimit"
	case ValueDmlInvalidService:
		return "DmlInvalidService"
	case ValueDmlInvalidProtocolType:
		return "DmlInvalidProtocolType"
	case ValueDmlInvalidMessageType:
		return "DmlInvalidMessageType"
	case ValueDmlInvalidMessageName:
		return "DmlInvalidMessageName"
	default:
		return "None"
	}
}

// ValueError reports a registry or limit violation (duplicate type name,
// more than 254 DML messages in a module, an unresolvable service id, ...).
type ValueError struct {
	Message string
	Code    ValueCode
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("value error [%s]: %s", e.Code, e.Message)
}

// NewValueError builds a ValueError with the given code.
func NewValueError(code ValueCode, format string, args ...interface{}) *ValueError {
	return &ValueError{Message: fmt.Sprintf(format, args...), Code: code}
}

// ParseCode enumerates the causes of a ParseError.
type ParseCode int

const (
	ParseNone ParseCode = iota
	ParseInvalidXml
	ParseInvalidHeaderData
	ParseInsufficientMessageData
	ParseInvalidMessageData
)

func (c ParseCode) String() string {
	switch c {
	case ParseInvalidXml:
		return "InvalidXml"
	case ParseInvalidHeaderData:
		return "InvalidHeaderData"
	case ParseInsufficientMessageData:
		return "InsufficientMessageData"
	case ParseInvalidMessageData:
		return "InvalidMessageData"
	default:
		return "None"
	}
}

// ParseError reports malformed wire data: truncated records, XML that
// doesn't match the message-module schema, a header that fails validation.
type ParseError struct {
	Message string
	Code    ParseCode
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s]: %s", e.Code, e.Message)
}

// NewParseError builds a ParseError with the given code.
func NewParseError(code ParseCode, format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Code: code}
}

// RuntimeError reports a registry lookup miss, a type mismatch, an
// out-of-bounds property index, or a dynamic-only operation attempted on a
// static property. It has no sub-code; the message carries the detail.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Message)
}

// NewRuntimeError builds a RuntimeError.
func NewRuntimeError(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// CastError reports a ValueCaster lookup miss between two named types.
type CastError struct {
	SrcType string
	DstType string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("no caster registered from %q to %q", e.SrcType, e.DstType)
}

// NewCastError builds a CastError for the given source/destination type names.
func NewCastError(srcType, dstType string) *CastError {
	return &CastError{SrcType: srcType, DstType: dstType}
}

// SessionCloseReason is surfaced to a session's owner via a close callback;
// it is never raised across the I/O boundary as an error value.
type SessionCloseReason int

const (
	CloseNone SessionCloseReason = iota
	CloseUnhandledControlMessage
	CloseInvalidMessage
	CloseSessionOfferTimedOut
	CloseFramingError
	CloseOversizedPacket
)

func (r SessionCloseReason) String() string {
	switch r {
	case CloseUnhandledControlMessage:
		return "UnhandledControlMessage"
	case CloseInvalidMessage:
		return "InvalidMessage"
	case CloseSessionOfferTimedOut:
		return "SessionOfferTimedOut"
	case CloseFramingError:
		return "FramingError"
	case CloseOversizedPacket:
		return "OversizedPacket"
	default:
		return "None"
	}
}

// InvalidMessageReason is passed to a session's OnInvalidMessage hook; unlike
// SessionCloseReason it never closes the session.
type InvalidMessageReason int

const (
	InvalidNone InvalidMessageReason = iota
	InvalidInsufficientAccess
	InvalidUnknownMessage
	InvalidMalformedPayload
)

func (r InvalidMessageReason) String() string {
	switch r {
	case InvalidInsufficientAccess:
		return "InsufficientAccess"
	case InvalidUnknownMessage:
		return "UnknownMessage"
	case InvalidMalformedPayload:
		return "MalformedPayload"
	default:
		return "None"
	}
}

package session

import (
	"bytes"

	"github.com/kingsisle/netcore/dml"
	"github.com/kingsisle/netcore/neterr"
)

// Opcode identifies a control-plane message; application messages never
// reach this type (control == false routes straight to the DML message
// manager instead).
type Opcode uint8

const (
	OpSessionOffer  Opcode = 0
	OpUDPHello      Opcode = 1
	OpPing          Opcode = 3
	OpPingResponse  Opcode = 4
	OpSessionAccept Opcode = 5
	OpKeepAlive     Opcode = 6
	OpKeepAliveResp Opcode = 7
)

// packetHeader is the 4-byte header in front of every framed payload:
// a control flag, an opcode byte, and two reserved bytes.
type packetHeader struct {
	Control bool
	Opcode  uint8
}

func (h packetHeader) encode() []byte {
	control := byte(0)
	if h.Control {
		control = 1
	}
	return []byte{control, h.Opcode, 0, 0}
}

func decodePacketHeader(data []byte) (packetHeader, []byte, error) {
	if len(data) < 4 {
		return packetHeader{}, nil, neterr.NewParseError(neterr.ParseInsufficientMessageData,
			"packet shorter than the 4-byte packet header")
	}
	return packetHeader{Control: data[0] != 0, Opcode: data[1]}, data[4:], nil
}

// sessionOfferBody builds the SESSION_OFFER record: u16 session_id, u32
// reserved, i32 timestamp, u32 ms.
func sessionOfferBody(sessionID uint16, timestamp int32, ms uint32) *dml.Record {
	r := dml.NewRecord()
	dml.AddField[dml.USHRT](r, "session_id").SetValue(dml.USHRT(sessionID))
	dml.AddField[dml.UINT](r, "reserved")
	dml.AddField[dml.INT](r, "timestamp").SetValue(dml.INT(timestamp))
	dml.AddField[dml.UINT](r, "ms").SetValue(dml.UINT(ms))
	return r
}

func newSessionOfferRecord() *dml.Record { return sessionOfferBody(0, 0, 0) }

// sessionAcceptBody builds the SESSION_ACCEPT record: u16 zero, u32
// reserved, i32 timestamp, u32 ms, u16 session_id -- note the session id
// trails the body here, unlike SESSION_OFFER.
func sessionAcceptBody(sessionID uint16, timestamp int32, ms uint32) *dml.Record {
	r := dml.NewRecord()
	dml.AddField[dml.USHRT](r, "zero")
	dml.AddField[dml.UINT](r, "reserved")
	dml.AddField[dml.INT](r, "timestamp").SetValue(dml.INT(timestamp))
	dml.AddField[dml.UINT](r, "ms").SetValue(dml.UINT(ms))
	dml.AddField[dml.USHRT](r, "session_id").SetValue(dml.USHRT(sessionID))
	return r
}

func newSessionAcceptRecord() *dml.Record { return sessionAcceptBody(0, 0, 0) }

// pingBody builds the PING/PING_RSP record: u16 session_id, u16 ms, u8
// minutes.
func pingBody(sessionID, ms uint16, minutes uint8) *dml.Record {
	r := dml.NewRecord()
	dml.AddField[dml.USHRT](r, "session_id").SetValue(dml.USHRT(sessionID))
	dml.AddField[dml.USHRT](r, "ms").SetValue(dml.USHRT(ms))
	dml.AddField[dml.UBYT](r, "minutes").SetValue(dml.UBYT(minutes))
	return r
}

func newPingRecord() *dml.Record { return pingBody(0, 0, 0) }

// serverKeepAliveBody builds the server-originated KEEP_ALIVE/_RSP
// record: u32 timestamp.
func serverKeepAliveBody(timestamp uint32) *dml.Record {
	r := dml.NewRecord()
	dml.AddField[dml.UINT](r, "timestamp").SetValue(dml.UINT(timestamp))
	return r
}

func newServerKeepAliveRecord() *dml.Record { return serverKeepAliveBody(0) }

// clientKeepAliveBody builds the client-originated KEEP_ALIVE/_RSP
// record: u16 session_id, u16 ms, u16 minutes.
func clientKeepAliveBody(sessionID, ms, minutes uint16) *dml.Record {
	r := dml.NewRecord()
	dml.AddField[dml.USHRT](r, "session_id").SetValue(dml.USHRT(sessionID))
	dml.AddField[dml.USHRT](r, "ms").SetValue(dml.USHRT(ms))
	dml.AddField[dml.USHRT](r, "minutes").SetValue(dml.USHRT(minutes))
	return r
}

func newClientKeepAliveRecord() *dml.Record { return clientKeepAliveBody(0, 0, 0) }

// encodeControlFrame assembles a full frame -- start signal, length,
// packet header, and the record body -- ready to hand to a transport
// writer.
func encodeControlFrame(opcode Opcode, body *dml.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(packetHeader{Control: true, Opcode: uint8(opcode)}.encode())
	if err := body.WriteBinary(&buf); err != nil {
		return nil, err
	}
	return Encode(buf.Bytes()), nil
}

func fieldUint16(r *dml.Record, name string) uint16 {
	f, ok := r.Field(name)
	if !ok {
		return 0
	}
	if uf, ok := f.(interface{ Value() dml.USHRT }); ok {
		return uint16(uf.Value())
	}
	return 0
}

func fieldUint32(r *dml.Record, name string) uint32 {
	f, ok := r.Field(name)
	if !ok {
		return 0
	}
	if uf, ok := f.(interface{ Value() dml.UINT }); ok {
		return uint32(uf.Value())
	}
	return 0
}

func fieldInt32(r *dml.Record, name string) int32 {
	f, ok := r.Field(name)
	if !ok {
		return 0
	}
	if uf, ok := f.(interface{ Value() dml.INT }); ok {
		return int32(uf.Value())
	}
	return 0
}

func fieldUint8(r *dml.Record, name string) uint8 {
	f, ok := r.Field(name)
	if !ok {
		return 0
	}
	if uf, ok := f.(interface{ Value() dml.UBYT }); ok {
		return uint8(uf.Value())
	}
	return 0
}

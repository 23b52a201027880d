// Package session implements the packet-framed transport that sits on
// top of a byte stream: the Participant framer, the control-plane
// handshake/heartbeat state machine, and the access-gated dispatch into
// application (DML) messages.
package session

import (
	"bytes"
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/kingsisle/netcore/neterr"
)

const (
	startSignal      = 0xF00D
	defaultMaxPacket = 0x2000
	frameHeaderSize  = 4 // u16 start_signal + u16 length
)

type receiveState int

const (
	waitingForStartSignal receiveState = iota
	waitingForLength
	waitingForPacket
)

// Framer implements the byte-at-a-time packet assembly for a
// [start signal][length][payload] frame: a little-endian start signal, a
// little-endian length, then that many bytes of payload. It holds no
// socket of its own -- callers feed it bytes as they arrive and it
// invokes onPacket with each assembled payload.
type Framer struct {
	maxPacketSize uint16
	log           *logrus.Entry

	state          receiveState
	shift          uint
	startSignalAcc uint16
	incomingSize   uint16
	buf            bytes.Buffer
	dead           bool

	onPacket func([]byte)
	onAbort  func(neterr.SessionCloseReason)
}

// NewFramer returns a Framer with the default 0x2000 maximum packet
// size; onPacket is invoked once per fully assembled payload, onAbort
// once if framing fails (a bad start signal or an oversized length),
// after which the Framer must not be fed further data.
func NewFramer(log *logrus.Entry, onPacket func([]byte), onAbort func(neterr.SessionCloseReason)) *Framer {
	return &Framer{
		maxPacketSize: defaultMaxPacket,
		log:           log,
		onPacket:      onPacket,
		onAbort:       onAbort,
	}
}

// SetMaxPacketSize overrides the default 0x2000 cap.
func (f *Framer) SetMaxPacketSize(n uint16) { f.maxPacketSize = n }

// Feed processes newly received bytes, invoking onPacket for each
// payload it completes and onAbort (at most once) if framing breaks.
// After an abort every further byte is ignored.
func (f *Framer) Feed(data []byte) {
	if f.dead {
		return
	}
	pos := 0
	for pos < len(data) {
		switch f.state {
		case waitingForStartSignal:
			f.startSignalAcc |= uint16(data[pos]) << f.shift
			if f.shift == 0 {
				f.shift = 8
			} else {
				if f.startSignalAcc != startSignal {
					f.log.WithField("got", f.startSignalAcc).Warn("session: bad start signal, aborting framer")
					f.dead = true
					f.onAbort(neterr.CloseFramingError)
					return
				}
				f.shift = 0
				f.incomingSize = 0
				f.state = waitingForLength
			}
			pos++

		case waitingForLength:
			f.incomingSize |= uint16(data[pos]) << f.shift
			if f.shift == 0 {
				f.shift = 8
			} else {
				if f.incomingSize > f.maxPacketSize {
					f.log.WithField("size", f.incomingSize).Warn("session: oversized packet, aborting framer")
					f.dead = true
					f.onAbort(neterr.CloseOversizedPacket)
					return
				}
				f.buf.Reset()
				f.state = waitingForPacket
			}
			pos++

		case waitingForPacket:
			available := len(data) - pos
			remaining := int(f.incomingSize) - f.buf.Len()
			readSize := remaining
			if available < readSize {
				readSize = available
			}
			f.buf.Write(data[pos : pos+readSize])
			pos += readSize

			if f.buf.Len() == int(f.incomingSize) {
				payload := make([]byte, f.buf.Len())
				copy(payload, f.buf.Bytes())
				f.onPacket(payload)

				f.shift = 0
				f.startSignalAcc = 0
				f.state = waitingForStartSignal
			}
		}
	}
}

// Encode wraps payload in the `[u16 start_signal][u16 length]` frame
// header.
func Encode(payload []byte) []byte {
	out := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], startSignal)
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[4:], payload)
	return out
}

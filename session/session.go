package session

import (
	"bytes"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kingsisle/netcore/dml"
	"github.com/kingsisle/netcore/neterr"
	"github.com/kingsisle/netcore/netconfig"
)

// Role distinguishes a session's side of the handshake: a Server
// initiates with SESSION_OFFER and waits for SESSION_ACCEPT; a Client
// waits for SESSION_OFFER and replies with SESSION_ACCEPT. One Session
// type carries both behaviors behind this enum (rather than the
// virtual-inheritance split of ClientSession/ServerSession), since Go
// has no multiple inheritance and the two roles share every field.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// State is the session's position in the handshake state machine.
type State int

const (
	StateUnconnected State = iota
	StateAwaitingOffer
	StateAwaitingAccept
	StateEstablished
	StateClosed
)

// Writer sends one already-framed chunk of bytes to the peer. A Session
// never owns a socket directly; it is handed a Writer (typically
// backed by a net.Conn) so it can be tested and reused across
// transports (TCP today, nothing stops a UDP-backed Writer tomorrow).
type Writer func(data []byte) error

// Hooks are the callbacks a Session's owner supplies; all are optional.
type Hooks struct {
	OnEstablished    func()
	OnApplicationMsg func(msg *dml.Message)
	OnInvalidMessage func(reason neterr.InvalidMessageReason)
	OnClose          func(reason neterr.SessionCloseReason)
}

// Session implements the handshake, heartbeat, and access-gated
// application dispatch, on top of a Framer for byte-stream packet
// assembly. It is safe for concurrent use: Feed is expected to be
// called from one reader goroutine while SendKeepAlive may be driven by
// a separate ticker goroutine, so all mutable state is guarded by a
// mutex.
type Session struct {
	role   Role
	cfg    netconfig.Config
	log    *logrus.Entry
	write  Writer
	hooks  Hooks
	framer *Framer

	manager *dml.MessageManager

	mu                      sync.Mutex
	id                      uint16
	state                   State
	accessLevel             uint8
	latency                 time.Duration
	creationTime            time.Time
	connectionTime          time.Time
	establishTime           time.Time
	lastReceivedHeartbeat   time.Time
	lastSentHeartbeat       time.Time
	waitingForKeepAliveResp bool
}

// New constructs a Session bound to write (the outbound transport) and
// manager (the DML catalog used to interpret application-plane
// payloads once established). cfg supplies the heartbeat intervals and
// connection timeout used for liveness and handshake checks, and the
// framer's maximum packet size.
func New(role Role, id uint16, cfg netconfig.Config, manager *dml.MessageManager, write Writer, hooks Hooks, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		role:         role,
		cfg:          cfg,
		log:          log,
		write:        write,
		hooks:        hooks,
		manager:      manager,
		id:           id,
		state:        StateUnconnected,
		accessLevel:  0,
		creationTime: now(),
	}
	s.framer = NewFramer(log, s.onPacket, s.abort)
	s.framer.SetMaxPacketSize(cfg.MaxPacketSize)
	return s
}

// now is the Session package's single clock access point, so tests can
// observe it deterministically if ever needed.
func now() time.Time { return time.Now() }

// Feed passes newly received transport bytes into the framer.
func (s *Session) Feed(data []byte) { s.framer.Feed(data) }

// ID returns the session's 16-bit identifier.
func (s *Session) ID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the session's current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latency returns the most recent latency measurement: set from the
// timestamp in the handshake's offer/accept and updated by later
// keep-alive traffic.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// AccessLevel returns the session's current access level.
func (s *Session) AccessLevel() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessLevel
}

// SetAccessLevel updates the session's access level, which gates which
// application messages onApplicationMessage will accept.
func (s *Session) SetAccessLevel(level uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessLevel = level
}

// IsAlive reports the session's liveness: before establishment, creation
// age bounded by 2x connection_timeout; afterward, time since the last
// received heartbeat bounded by 2x the peer's expected heartbeat
// interval.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEstablished {
		return now().Sub(s.creationTime) <= 2*s.cfg.ConnectionTimeout
	}
	peerInterval := s.cfg.ServerHeartbeatInterval
	if s.role == RoleServer {
		peerInterval = s.cfg.ClientHeartbeatInterval
	}
	return now().Sub(s.lastReceivedHeartbeat) <= 2*peerInterval
}

// OnConnected begins the handshake: a server immediately sends
// SESSION_OFFER and moves to AwaitingAccept; a client moves to
// AwaitingOffer and waits.
func (s *Session) OnConnected() error {
	s.mu.Lock()
	s.connectionTime = now()
	role := s.role
	id := s.id
	s.mu.Unlock()

	if role == RoleServer {
		s.setState(StateAwaitingAccept)
		ts, ms := splitTimestamp(now())
		return s.sendControl(OpSessionOffer, sessionOfferBody(id, ts, ms))
	}
	s.setState(StateAwaitingOffer)
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func splitTimestamp(t time.Time) (int32, uint32) {
	return int32(t.Unix()), uint32(t.Nanosecond() / int(time.Millisecond))
}

// SendKeepAlive sends a KEEP_ALIVE if one isn't already in flight.
// Discipline: only one outstanding keep-alive at a time.
func (s *Session) SendKeepAlive() error {
	s.mu.Lock()
	if s.waitingForKeepAliveResp {
		s.mu.Unlock()
		return nil
	}
	s.waitingForKeepAliveResp = true
	role := s.role
	id := s.id
	establishTime := s.establishTime
	s.mu.Unlock()

	var body *dml.Record
	if role == RoleServer {
		_, ms := splitTimestamp(now())
		body = serverKeepAliveBody(ms)
	} else {
		elapsed := now().Sub(establishTime)
		minutes := uint16(elapsed / time.Minute)
		ms := uint16((elapsed % time.Minute) / time.Millisecond)
		body = clientKeepAliveBody(id, ms, minutes)
	}

	s.mu.Lock()
	s.lastSentHeartbeat = now()
	s.mu.Unlock()
	return s.sendControl(OpKeepAlive, body)
}

func (s *Session) sendControl(opcode Opcode, body *dml.Record) error {
	frame, err := encodeControlFrame(opcode, body)
	if err != nil {
		return err
	}
	return s.write(frame)
}

// SendApplicationMessage transmits msg as a non-control framed packet.
// The packet-level opcode is always 0 for a DML body; the message's own
// service id and type travel in the DML message header msg.WriteBinary
// writes, not in the packet header.
func (s *Session) SendApplicationMessage(msg *dml.Message) error {
	var buf bytes.Buffer
	buf.Write(packetHeader{Control: false, Opcode: 0}.encode())
	if err := msg.WriteBinary(&buf); err != nil {
		return err
	}
	return s.write(Encode(buf.Bytes()))
}

func (s *Session) abort(reason neterr.SessionCloseReason) {
	s.setState(StateClosed)
	if s.hooks.OnClose != nil {
		s.hooks.OnClose(reason)
	}
}

func (s *Session) onPacket(payload []byte) {
	header, body, err := decodePacketHeader(payload)
	if err != nil {
		s.abort(neterr.CloseFramingError)
		return
	}
	if header.Control {
		s.onControlMessage(Opcode(header.Opcode), body)
		return
	}
	s.onApplicationMessage(body)
}

func (s *Session) onControlMessage(opcode Opcode, body []byte) {
	role := s.roleSnapshot()
	if role == RoleClient {
		switch opcode {
		case OpSessionOffer:
			s.onSessionOffer(body)
		case OpPing:
			s.onPing(body)
		case OpPingResponse:
			s.onPingResponse(body)
		case OpKeepAlive:
			s.onKeepAlive(body)
		case OpKeepAliveResp:
			s.onKeepAliveResponse(body)
		default:
			s.abort(neterr.CloseUnhandledControlMessage)
		}
		return
	}
	switch opcode {
	case OpSessionAccept:
		s.onSessionAccept(body)
	case OpPing:
		s.onPing(body)
	case OpPingResponse:
		s.onPingResponse(body)
	case OpKeepAlive:
		s.onKeepAlive(body)
	case OpKeepAliveResp:
		s.onKeepAliveResponse(body)
	default:
		s.abort(neterr.CloseUnhandledControlMessage)
	}
}

func (s *Session) roleSnapshot() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) onSessionOffer(body []byte) {
	r := newSessionOfferRecord()
	if err := r.ReadBinary(bytes.NewReader(body)); err != nil {
		s.abort(neterr.CloseInvalidMessage)
		return
	}

	s.mu.Lock()
	if now().Sub(s.connectionTime) > s.cfg.ConnectionTimeout {
		s.mu.Unlock()
		s.abort(neterr.CloseSessionOfferTimedOut)
		return
	}
	s.id = fieldUint16(r, "session_id")
	id := s.id
	s.latency = latencySince(fieldInt32(r, "timestamp"), fieldUint32(r, "ms"))
	s.mu.Unlock()

	ts, ms := splitTimestamp(now())
	if err := s.sendControl(OpSessionAccept, sessionAcceptBody(id, ts, ms)); err != nil {
		s.log.WithError(err).Warn("session: failed to send SESSION_ACCEPT")
		return
	}
	s.establish()
}

// latencySince derives an initial latency estimate from the peer's
// stamped wall-clock send time.
func latencySince(timestamp int32, ms uint32) time.Duration {
	sendTime := time.Unix(int64(timestamp), 0).Add(time.Duration(ms) * time.Millisecond)
	d := now().Sub(sendTime)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Session) onSessionAccept(body []byte) {
	r := newSessionAcceptRecord()
	if err := r.ReadBinary(bytes.NewReader(body)); err != nil {
		s.abort(neterr.CloseInvalidMessage)
		return
	}

	s.mu.Lock()
	if now().Sub(s.connectionTime) > s.cfg.ConnectionTimeout {
		s.mu.Unlock()
		s.abort(neterr.CloseSessionOfferTimedOut)
		return
	}
	expected := s.id
	s.latency = latencySince(fieldInt32(r, "timestamp"), fieldUint32(r, "ms"))
	s.mu.Unlock()

	if fieldUint16(r, "session_id") != expected {
		s.abort(neterr.CloseInvalidMessage)
		return
	}
	s.establish()
}

func (s *Session) establish() {
	s.mu.Lock()
	s.state = StateEstablished
	s.establishTime = now()
	s.lastReceivedHeartbeat = s.establishTime
	s.mu.Unlock()
	if s.hooks.OnEstablished != nil {
		s.hooks.OnEstablished()
	}
}

// SendPing sends a PING carrying the time elapsed since establishment,
// split into whole minutes and leftover milliseconds.
func (s *Session) SendPing() error {
	s.mu.Lock()
	id := s.id
	elapsed := now().Sub(s.establishTime)
	s.mu.Unlock()

	minutes := uint8(elapsed / time.Minute)
	ms := uint16((elapsed % time.Minute) / time.Millisecond)
	return s.sendControl(OpPing, pingBody(id, ms, minutes))
}

// onPing echoes the ping body back as PING_RSP. A server additionally
// derives the peer's send time from the elapsed minutes/ms the body
// carries and updates the measured latency.
func (s *Session) onPing(body []byte) {
	r := newPingRecord()
	if err := r.ReadBinary(bytes.NewReader(body)); err != nil {
		s.abort(neterr.CloseInvalidMessage)
		return
	}

	s.mu.Lock()
	if s.role == RoleServer {
		sendTime := s.establishTime.
			Add(time.Duration(fieldUint16(r, "ms")) * time.Millisecond).
			Add(time.Duration(fieldUint8(r, "minutes")) * time.Minute)
		s.latency = now().Sub(sendTime)
	}
	s.mu.Unlock()

	if err := s.sendControl(OpPingResponse, r); err != nil {
		s.log.WithError(err).Warn("session: failed to send PING_RSP")
	}
}

func (s *Session) onPingResponse(body []byte) {
	r := newPingRecord()
	if err := r.ReadBinary(bytes.NewReader(body)); err != nil {
		s.abort(neterr.CloseInvalidMessage)
	}
}

func (s *Session) onKeepAlive(body []byte) {
	role := s.roleSnapshot()
	var r *dml.Record
	if role == RoleClient {
		r = newServerKeepAliveRecord()
	} else {
		r = newClientKeepAliveRecord()
	}
	if err := r.ReadBinary(bytes.NewReader(body)); err != nil {
		s.abort(neterr.CloseInvalidMessage)
		return
	}

	s.mu.Lock()
	s.lastReceivedHeartbeat = now()
	s.mu.Unlock()

	if err := s.sendControl(OpKeepAliveResp, r); err != nil {
		s.log.WithError(err).Warn("session: failed to send KEEP_ALIVE_RSP")
	}
}

func (s *Session) onKeepAliveResponse(body []byte) {
	role := s.roleSnapshot()
	var r *dml.Record
	if role == RoleClient {
		r = newClientKeepAliveRecord()
	} else {
		r = newServerKeepAliveRecord()
	}
	if err := r.ReadBinary(bytes.NewReader(body)); err != nil {
		s.abort(neterr.CloseInvalidMessage)
		return
	}

	s.mu.Lock()
	s.latency = now().Sub(s.lastSentHeartbeat)
	s.waitingForKeepAliveResp = false
	s.mu.Unlock()
}

// onApplicationMessage decodes a non-control packet's payload as a
// header-framed DML message: the body itself carries the service id and
// type (dml.Message.WriteBinary / MessageManager.FromBinary), so there is
// nothing left in the packet header to reconstruct.
func (s *Session) onApplicationMessage(body []byte) {
	if s.State() != StateEstablished {
		s.abort(neterr.CloseInvalidMessage)
		return
	}

	msg, err := s.manager.FromBinary(bytes.NewReader(body))
	if err != nil {
		if s.hooks.OnInvalidMessage != nil {
			s.hooks.OnInvalidMessage(neterr.InvalidMalformedPayload)
		}
		return
	}
	if msg.Template() == nil {
		if s.hooks.OnInvalidMessage != nil {
			s.hooks.OnInvalidMessage(neterr.InvalidUnknownMessage)
		}
		return
	}
	if s.AccessLevel() < msg.AccessLevel() {
		if s.hooks.OnInvalidMessage != nil {
			s.hooks.OnInvalidMessage(neterr.InvalidInsufficientAccess)
		}
		return
	}
	if s.hooks.OnApplicationMsg != nil {
		s.hooks.OnApplicationMsg(msg)
	}
}

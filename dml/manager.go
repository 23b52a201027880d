package dml

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spaolacci/murmur3"

	"github.com/kingsisle/netcore/neterr"
)

// dispatchKey buckets a (service_id, type) pair into a single murmur3
// hash for the manager's FromBinary fast path, so a busy server
// dispatching many message kinds does one map probe per packet instead
// of two (service lookup, then type lookup within that service).
func dispatchKey(serviceID, msgType uint8) uint32 {
	return murmur3.Sum32([]byte{serviceID, msgType})
}

// headerSize is the wire width of a message header: service id, type,
// and total size.
const headerSize = 4

// readHeader decodes the four-byte message header from r: service id,
// type, and the u16 total size field, which counts itself -- the
// returned payload length is size-4.
func readHeader(r io.Reader) (serviceID, msgType uint8, payloadLen uint16, err error) {
	header := NewRecord()
	serviceField := AddField[UBYT](header, "m_service_id")
	typeField := AddField[UBYT](header, "m_type")
	sizeField := AddField[USHRT](header, "m_size")

	if err := header.ReadBinary(r); err != nil {
		return 0, 0, 0, neterr.NewParseError(neterr.ParseInvalidHeaderData, "reading message header: %v", err)
	}
	size := uint16(sizeField.Value())
	if size < headerSize {
		return 0, 0, 0, neterr.NewParseError(neterr.ParseInvalidHeaderData, "message header declares size %d, smaller than the header itself", size)
	}
	return uint8(serviceField.Value()), uint8(typeField.Value()), size - headerSize, nil
}

// writeHeader encodes the four-byte message header for a payload of
// payloadLen bytes.
func writeHeader(w io.Writer, serviceID, msgType uint8, payloadLen int) error {
	header := NewRecord()
	AddField[UBYT](header, "m_service_id").SetValue(UBYT(serviceID))
	AddField[UBYT](header, "m_type").SetValue(UBYT(msgType))
	AddField[USHRT](header, "m_size").SetValue(USHRT(payloadLen + headerSize))
	return header.WriteBinary(w)
}

// MessageManager is the registry of loaded MessageModules, keyed by
// both service id and protocol type name, that a session consults to
// interpret application-plane traffic.
type MessageManager struct {
	modules        []*MessageModule
	byServiceID    map[uint8]*MessageModule
	byProtocolType map[string]*MessageModule
	dispatch       map[uint32]*MessageTemplate
}

// NewMessageManager returns an empty manager.
func NewMessageManager() *MessageManager {
	return &MessageManager{
		byServiceID:    make(map[uint8]*MessageModule),
		byProtocolType: make(map[string]*MessageModule),
		dispatch:       make(map[uint32]*MessageTemplate),
	}
}

// Register adds module to the manager. It is an error for two modules
// to share a service id or a protocol type.
func (m *MessageManager) Register(module *MessageModule) error {
	if _, exists := m.byServiceID[module.ServiceID]; exists {
		return neterr.NewValueError(neterr.ValueDmlInvalidService,
			"a module is already registered with service id %d", module.ServiceID)
	}
	if _, exists := m.byProtocolType[module.ProtocolType]; exists {
		return neterr.NewValueError(neterr.ValueDmlInvalidProtocolType,
			"a module is already registered with protocol type %q", module.ProtocolType)
	}
	m.modules = append(m.modules, module)
	m.byServiceID[module.ServiceID] = module
	m.byProtocolType[module.ProtocolType] = module
	for _, tmpl := range module.all {
		m.dispatch[dispatchKey(module.ServiceID, tmpl.Type)] = tmpl
	}
	return nil
}

// Module looks up a registered module by service id.
func (m *MessageManager) Module(serviceID uint8) (*MessageModule, bool) {
	mod, ok := m.byServiceID[serviceID]
	return mod, ok
}

// ModuleByProtocolType looks up a registered module by protocol type
// name.
func (m *MessageManager) ModuleByProtocolType(protocolType string) (*MessageModule, bool) {
	mod, ok := m.byProtocolType[protocolType]
	return mod, ok
}

// BuildMessage returns a fresh Message of the given type within the
// given service.
func (m *MessageManager) BuildMessage(serviceID, messageType uint8) (*Message, error) {
	mod, ok := m.Module(serviceID)
	if !ok {
		return nil, neterr.NewValueError(neterr.ValueDmlInvalidService, "no service exists with id %d", serviceID)
	}
	return mod.BuildMessageByType(messageType)
}

// BuildMessageByName returns a fresh Message of the named type within
// the given service.
func (m *MessageManager) BuildMessageByName(serviceID uint8, name string) (*Message, error) {
	mod, ok := m.Module(serviceID)
	if !ok {
		return nil, neterr.NewValueError(neterr.ValueDmlInvalidService, "no service exists with id %d", serviceID)
	}
	return mod.BuildMessage(name)
}

// FromBinary reads one header-framed message from r. If the message's
// service id or type has no matching registered template the returned
// Message carries its raw payload (Template/Record nil, Raw non-nil)
// rather than failing outright -- only a malformed header is an error.
func (m *MessageManager) FromBinary(r io.Reader) (*Message, error) {
	serviceID, msgType, payloadLen, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, neterr.NewParseError(neterr.ParseInsufficientMessageData, "reading %d byte message payload: %v", payloadLen, err)
	}

	tmpl, ok := m.dispatch[dispatchKey(serviceID, msgType)]
	if !ok {
		return &Message{serviceID: serviceID, msgType: msgType, raw: payload}, nil
	}

	msg := tmpl.NewMessage()
	if err := msg.record.ReadBinary(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("dml: decoding message %q: %w", tmpl.Name, err)
	}
	return msg, nil
}

// WriteBinary encodes msg as a header-framed message: a message built
// from a template writes its Record; a raw message (Template nil)
// writes its undecoded payload back out unchanged.
func (m *Message) WriteBinary(w io.Writer) error {
	var buf bytes.Buffer
	if m.record != nil {
		if err := m.record.WriteBinary(&buf); err != nil {
			return err
		}
	} else {
		buf.Write(m.raw)
	}
	if err := writeHeader(w, m.ServiceID(), m.Type(), buf.Len()); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

package dml

import (
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/kingsisle/netcore/neterr"
)

// MessageTemplate binds a message name and wire type byte to the Record
// shape new Message instances of that type are built from.
type MessageTemplate struct {
	Name        string
	Type        uint8
	ServiceID   uint8
	AccessLevel uint8 // required session access level; 0 gates nothing
	record      *Record
}

// Record returns the template's field shape. Callers clone it (via
// NewMessage) rather than mutate it directly.
func (t *MessageTemplate) Record() *Record { return t.record }

// NewMessage returns a fresh Message bound to this template, with a
// clone of the template's Record so concurrent messages of the same
// type never alias field storage.
func (t *MessageTemplate) NewMessage() *Message {
	return &Message{template: t, record: t.record.Clone()}
}

// Message pairs a MessageTemplate with the live Record instance carrying
// its field values; it's what callers actually populate and serialize.
// A Message decoded from the wire whose service id or type has no
// registered template carries its raw payload instead, with Template
// and Record both nil -- the header stays readable even when the body
// can't be interpreted.
type Message struct {
	template  *MessageTemplate
	record    *Record
	serviceID uint8
	msgType   uint8
	raw       []byte
}

// Template returns the MessageTemplate this message was built from, or
// nil if the message's type is unrecognized.
func (m *Message) Template() *MessageTemplate { return m.template }

// Record returns the message's field values, or nil if the message's
// type is unrecognized (see Raw).
func (m *Message) Record() *Record { return m.record }

// Raw returns the undecoded payload bytes for a message whose type
// could not be resolved to a template.
func (m *Message) Raw() []byte { return m.raw }

func (m *Message) ServiceID() uint8 {
	if m.template != nil {
		return m.template.ServiceID
	}
	return m.serviceID
}

func (m *Message) Type() uint8 {
	if m.template != nil {
		return m.template.Type
	}
	return m.msgType
}

// AccessLevel returns the access level a session must hold to have this
// message dispatched to a handler. A message with no resolved template
// requires no particular level; the unknown-message check upstream
// already rejects it before access is ever consulted.
func (m *Message) AccessLevel() uint8 {
	if m.template != nil {
		return m.template.AccessLevel
	}
	return 0
}

// MessageModule is the XML-loaded catalog of message templates for one
// service (one DML protocol): a service id, a protocol name/description,
// and up to 254 numbered message templates (type 0 is reserved).
type MessageModule struct {
	ServiceID           uint8
	ProtocolType        string
	ProtocolDescription string

	byName map[string]*MessageTemplate
	byType map[uint8]*MessageTemplate
	all    []*MessageTemplate
}

// NewMessageModule returns an empty module for the given service id and
// protocol type; callers typically populate one via LoadMessageModuleXML
// instead of constructing templates by hand.
func NewMessageModule(serviceID uint8, protocolType string) *MessageModule {
	return &MessageModule{
		ServiceID:    serviceID,
		ProtocolType: protocolType,
		byName:       make(map[string]*MessageTemplate),
		byType:       make(map[uint8]*MessageTemplate),
	}
}

// AddMessageTemplate registers a message template backed by record. The
// message's type comes from the record's own "_MsgOrder" field if
// present (never 0), otherwise templates are alphabetically numbered
// 1..254 the next time autoSort runs. The record's "_MsgName" field, if
// present, overrides the name argument. Re-adding an already-registered
// name is a no-op returning the existing template (matches the XML
// loader's idempotent re-parse behavior).
func (m *MessageModule) AddMessageTemplate(name string, record *Record, autoSort bool) (*MessageTemplate, error) {
	if f, ok := record.Field("_MsgName"); ok {
		if sf, ok := f.(*fieldT[STR]); ok {
			name = string(sf.Value())
		}
	}

	if existing, ok := m.byName[name]; ok {
		return existing, nil
	}

	var accessLevel uint8
	if f, ok := record.Field("_MsgAccessLevel"); ok {
		if uf, ok := f.(*fieldT[UBYT]); ok {
			accessLevel = uint8(uf.Value())
		}
	}

	var msgType uint8
	if f, ok := record.Field("_MsgOrder"); ok {
		if uf, ok := f.(*fieldT[UBYT]); ok {
			msgType = uint8(uf.Value())
			if msgType == 0 {
				return nil, neterr.NewValueError(neterr.ValueDmlInvalidMessageType,
					"message %q declares _MsgOrder of 0, which is reserved", name)
			}
			if _, exists := m.byType[msgType]; exists {
				return nil, neterr.NewValueError(neterr.ValueDmlInvalidMessageType,
					"message type %d is already registered in service %d", msgType, m.ServiceID)
			}
		}
	}

	tmpl := &MessageTemplate{Name: name, Type: msgType, ServiceID: m.ServiceID, AccessLevel: accessLevel, record: record}
	m.all = append(m.all, tmpl)
	m.byName[name] = tmpl
	if msgType != 0 {
		m.byType[msgType] = tmpl
	} else if autoSort {
		if err := m.sortLookup(); err != nil {
			return nil, err
		}
	}
	return tmpl, nil
}

// sortLookup renumbers every template in the module alphabetically by
// name, starting at 1, replacing any type already assigned. It runs
// whenever a template without an explicit type is added to a module that
// sorts automatically, and once after an unordered module is loaded.
func (m *MessageModule) sortLookup() error {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	m.byType = make(map[uint8]*MessageTemplate)
	msgType := 1
	for _, name := range names {
		if msgType > 254 {
			return neterr.NewValueError(neterr.ValueExceedsLimit, "module %q has more than 254 messages", m.ProtocolType)
		}
		tmpl := m.byName[name]
		tmpl.Type = uint8(msgType)
		m.byType[uint8(msgType)] = tmpl
		msgType++
	}
	return nil
}

// TemplateByType looks up a message template by its wire type byte.
func (m *MessageModule) TemplateByType(t uint8) (*MessageTemplate, bool) {
	tmpl, ok := m.byType[t]
	return tmpl, ok
}

// TemplateByName looks up a message template by its declared name.
func (m *MessageModule) TemplateByName(name string) (*MessageTemplate, bool) {
	tmpl, ok := m.byName[name]
	return tmpl, ok
}

// BuildMessage returns a fresh Message of the named type.
func (m *MessageModule) BuildMessage(name string) (*Message, error) {
	tmpl, ok := m.TemplateByName(name)
	if !ok {
		return nil, neterr.NewValueError(neterr.ValueDmlInvalidMessageName,
			"no message exists with name %q (service=%s)", name, m.ProtocolType)
	}
	return tmpl.NewMessage(), nil
}

// BuildMessageByType returns a fresh Message of the given wire type.
func (m *MessageModule) BuildMessageByType(t uint8) (*Message, error) {
	tmpl, ok := m.TemplateByType(t)
	if !ok {
		return nil, neterr.NewValueError(neterr.ValueDmlInvalidMessageType,
			"no message exists with type %d (service=%s)", t, m.ProtocolType)
	}
	return tmpl.NewMessage(), nil
}

// xmlMessageDoc and xmlMessageNode model the generic shape a message
// module XML file takes: a root element whose children are named
// message (or "_ProtocolInfo") elements, each wrapping exactly one
// RECORD element describing its fields.
type xmlMessageDoc struct {
	Nodes []xmlMessageNode `xml:",any"`
}

type xmlMessageNode struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

// LoadMessageModuleXML parses a message catalog document into a new
// MessageModule. Each child element of the document root becomes a
// message template (or, for the reserved "_ProtocolInfo" element, the
// module's service id/protocol type/description). The field shape of
// each template comes from the document itself: every field element
// declares its kind in a TYPE attribute, and ReadXML creates the fields
// accordingly.
func LoadMessageModuleXML(data []byte) (*MessageModule, error) {
	var doc xmlMessageDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, neterr.NewParseError(neterr.ParseInvalidXml, "parsing message module: %v", err)
	}

	module := NewMessageModule(0, "")
	for _, node := range doc.Nodes {
		name := node.XMLName.Local
		record := NewRecord()
		// node.Inner is the message element's inner XML, which per the
		// catalog format is exactly one RECORD child -- no extra
		// wrapping needed before handing it to ReadXML.
		if err := record.ReadXML(node.Inner); err != nil {
			return nil, fmt.Errorf("dml: parsing %q: %w", name, err)
		}

		if name == "_ProtocolInfo" {
			if f, ok := record.Field("ServiceID"); ok {
				if uf, ok := f.(*fieldT[UBYT]); ok {
					module.ServiceID = uint8(uf.Value())
				}
			}
			if f, ok := record.Field("ProtocolType"); ok {
				if sf, ok := f.(*fieldT[STR]); ok {
					module.ProtocolType = string(sf.Value())
				}
			}
			if f, ok := record.Field("ProtocolDescription"); ok {
				if sf, ok := f.(*fieldT[STR]); ok {
					module.ProtocolDescription = string(sf.Value())
				}
			}
			continue
		}

		if _, err := module.AddMessageTemplate(name, record, false); err != nil {
			return nil, err
		}
	}

	// A module with any _MsgOrder is "ordered" and every message must
	// declare one; a module with none is numbered alphabetically once the
	// whole document is in.
	ordered, unordered := 0, 0
	for _, tmpl := range module.all {
		if tmpl.Type == 0 {
			unordered++
		} else {
			ordered++
		}
	}
	if ordered > 0 && unordered > 0 {
		return nil, neterr.NewValueError(neterr.ValueDmlInvalidMessageType,
			"module %q mixes _MsgOrder and unordered messages", module.ProtocolType)
	}
	if unordered > 0 {
		if err := module.sortLookup(); err != nil {
			return nil, err
		}
	}
	return module, nil
}

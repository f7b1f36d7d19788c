package packet

import (
	"fmt"

	"github.com/danmuck/vicictl/internal/protocol"
	"github.com/danmuck/vicictl/internal/protocol/wire"
)

// Type is the packet type byte at the start of every frame body.
type Type uint8

// Packet type codes from the protocol contract.
const (
	CmdRequest      Type = 0 // named, client -> daemon
	CmdResponse     Type = 1
	CmdUnknown      Type = 2
	EventRegister   Type = 3 // named, client -> daemon
	EventUnregister Type = 4 // named, client -> daemon
	EventConfirm    Type = 5
	EventUnknown    Type = 6
	Event           Type = 7 // named, daemon -> client
)

var (
	ErrEmptyPacket   = fmt.Errorf("%w: packet: empty body", protocol.ErrProtocol)
	ErrUnknownType   = fmt.Errorf("%w: packet: unknown packet type", protocol.ErrProtocol)
	ErrNameMismatch  = fmt.Errorf("%w: packet: name presence does not match type", protocol.ErrProtocol)
	ErrMissingFields = fmt.Errorf("%w: packet: event without message", protocol.ErrProtocol)
)

func (t Type) Valid() bool {
	return t <= Event
}

// Named reports whether packets of this type carry a name after the type byte.
func (t Type) Named() bool {
	switch t {
	case CmdRequest, EventRegister, EventUnregister, Event:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	switch t {
	case CmdRequest:
		return "CmdRequest"
	case CmdResponse:
		return "CmdResponse"
	case CmdUnknown:
		return "CmdUnknown"
	case EventRegister:
		return "EventRegister"
	case EventUnregister:
		return "EventUnregister"
	case EventConfirm:
		return "EventConfirm"
	case EventUnknown:
		return "EventUnknown"
	case Event:
		return "Event"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Packet is one parsed protocol unit. Named types always carry their name
// on the wire, and a zero-length name is a valid name, not an absent one.
// Unnamed types must leave Name empty. A nil Message means the body carried
// no message bytes.
type Packet struct {
	Type    Type
	Name    string
	Message *wire.Message
}

func Request(command string, msg *wire.Message) Packet {
	return Packet{Type: CmdRequest, Name: command, Message: msg}
}

func Register(event string) Packet {
	return Packet{Type: EventRegister, Name: event}
}

func Unregister(event string) Packet {
	return Packet{Type: EventUnregister, Name: event}
}

func NewEvent(name string, msg *wire.Message) Packet {
	return Packet{Type: Event, Name: name, Message: msg}
}

func Response(msg *wire.Message) Packet {
	return Packet{Type: CmdResponse, Message: msg}
}

// Control builds an unnamed, message-less packet such as EventConfirm.
func Control(t Type) Packet {
	return Packet{Type: t}
}

// EventFields returns the name and message of an Event packet, failing if
// the message is missing.
func (p Packet) EventFields() (string, *wire.Message, error) {
	if p.Message == nil {
		return "", nil, fmt.Errorf("%w: %q", ErrMissingFields, p.Name)
	}
	return p.Name, p.Message, nil
}

// Encode serialises the packet body (without the frame length prefix).
func Encode(p Packet) ([]byte, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(p.Type))
	}
	out := []byte{byte(p.Type)}
	var err error
	if p.Type.Named() {
		if out, err = wire.AppendName(out, p.Name); err != nil {
			return nil, fmt.Errorf("packet name: %w", err)
		}
	} else if p.Name != "" {
		return nil, fmt.Errorf("%w: %s", ErrNameMismatch, p.Type)
	}
	if p.Message != nil {
		body, err := p.Message.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, body...)
	}
	return out, nil
}

// Decode parses a frame body into a packet.
func Decode(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	p := Packet{Type: Type(b[0])}
	if !p.Type.Valid() {
		return Packet{}, fmt.Errorf("%w: %d", ErrUnknownType, b[0])
	}
	rest := b[1:]
	if p.Type.Named() {
		name, r, err := wire.ReadName(rest)
		if err != nil {
			return Packet{}, fmt.Errorf("packet name: %w", err)
		}
		p.Name = name
		rest = r
	}
	if len(rest) > 0 {
		msg, err := wire.Decode(rest)
		if err != nil {
			return Packet{}, err
		}
		p.Message = msg
	}
	return p, nil
}

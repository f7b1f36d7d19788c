package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/danmuck/vicictl/internal/protocol"
)

var (
	ErrNameTooLong  = fmt.Errorf("%w: wire: name longer than %d bytes", protocol.ErrSizeLimit, MaxNameLen)
	ErrValueTooLong = fmt.Errorf("%w: wire: value longer than %d bytes", protocol.ErrSizeLimit, MaxValueLen)
	ErrInvalidName  = fmt.Errorf("%w: wire: name is not valid UTF-8", protocol.ErrTextEncoding)
	ErrTruncated    = fmt.Errorf("%w: wire: truncated element", protocol.ErrProtocol)
	ErrUnknownTag   = fmt.Errorf("%w: wire: unknown element tag", protocol.ErrProtocol)
)

// Encode serialises the message. Nothing is returned on error.
func (m *Message) Encode() ([]byte, error) {
	if m == nil {
		return []byte{}, nil
	}
	out := make([]byte, 0, len(m.elements)*8)
	var err error
	for i, el := range m.elements {
		out, err = appendElement(out, el)
		if err != nil {
			return nil, fmt.Errorf("%w (element %d)", err, i)
		}
	}
	return out, nil
}

func appendElement(out []byte, el Element) ([]byte, error) {
	if !el.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(el.Kind))
	}
	out = append(out, byte(el.Kind))
	var err error
	if el.Kind.Named() {
		if out, err = AppendName(out, el.Name); err != nil {
			return nil, err
		}
	}
	if el.Kind.Valued() {
		if out, err = appendValue(out, el.Value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AppendName appends a u8 length-prefixed name.
func AppendName(out []byte, name string) ([]byte, error) {
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	if !utf8.ValidString(name) {
		return nil, ErrInvalidName
	}
	out = append(out, byte(len(name)))
	return append(out, name...), nil
}

func appendValue(out []byte, value []byte) ([]byte, error) {
	if len(value) > MaxValueLen {
		return nil, ErrValueTooLong
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(value)))
	return append(out, value...), nil
}

// Decode parses a complete message. It checks structure only; use
// DecodeStrict to also require balanced sections and lists.
func Decode(b []byte) (*Message, error) {
	m := &Message{elements: make([]Element, 0, 8)}
	for offset := 0; offset < len(b); {
		el, n, err := decodeElement(b[offset:])
		if err != nil {
			return nil, fmt.Errorf("%w (offset %d)", err, offset)
		}
		m.elements = append(m.elements, el)
		offset += n
	}
	return m, nil
}

// DecodeStrict decodes b and validates section/list nesting.
func DecodeStrict(b []byte) (*Message, error) {
	m, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeElement(b []byte) (Element, int, error) {
	if len(b) < 1 {
		return Element{}, 0, ErrTruncated
	}
	kind := Kind(b[0])
	if !kind.Valid() {
		return Element{}, 0, fmt.Errorf("%w: %d", ErrUnknownTag, b[0])
	}
	el := Element{Kind: kind}
	n := 1
	if kind.Named() {
		name, used, err := readName(b[n:])
		if err != nil {
			return Element{}, 0, err
		}
		el.Name = name
		n += used
	}
	if kind.Valued() {
		value, used, err := readValue(b[n:])
		if err != nil {
			return Element{}, 0, err
		}
		el.Value = value
		n += used
	}
	return el, n, nil
}

// ReadName decodes a u8 length-prefixed name from the front of b and returns
// the rest.
func ReadName(b []byte) (string, []byte, error) {
	name, n, err := readName(b)
	if err != nil {
		return "", nil, err
	}
	return name, b[n:], nil
}

func readName(b []byte) (string, int, error) {
	if len(b) < 1 {
		return "", 0, fmt.Errorf("%w: missing name length", ErrTruncated)
	}
	l := int(b[0])
	if len(b)-1 < l {
		return "", 0, fmt.Errorf("%w: name wants %d bytes, have %d", ErrTruncated, l, len(b)-1)
	}
	raw := b[1 : 1+l]
	if !utf8.Valid(raw) {
		return "", 0, ErrInvalidName
	}
	return string(raw), 1 + l, nil
}

func readValue(b []byte) ([]byte, int, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("%w: missing value length", ErrTruncated)
	}
	l := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b)-2 < l {
		return nil, 0, fmt.Errorf("%w: value wants %d bytes, have %d", ErrTruncated, l, len(b)-2)
	}
	val := make([]byte, l)
	copy(val, b[2:2+l])
	return val, 2 + l, nil
}

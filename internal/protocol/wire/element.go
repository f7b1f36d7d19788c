package wire

import (
	"bytes"
	"fmt"
)

const (
	MaxNameLen  = 255
	MaxValueLen = 65535
)

// Kind is the element tag byte on the wire.
type Kind uint8

// Element tags from the message contract.
const (
	KindSectionStart Kind = 1
	KindSectionEnd   Kind = 2
	KindKeyValue     Kind = 3
	KindListStart    Kind = 4
	KindListItem     Kind = 5
	KindListEnd      Kind = 6
)

// Valid reports whether k is one of the six element tags.
func (k Kind) Valid() bool {
	return k >= KindSectionStart && k <= KindListEnd
}

// Named reports whether elements of this kind carry a name field.
func (k Kind) Named() bool {
	switch k {
	case KindSectionStart, KindKeyValue, KindListStart:
		return true
	default:
		return false
	}
}

// Valued reports whether elements of this kind carry a value field.
func (k Kind) Valued() bool {
	return k == KindKeyValue || k == KindListItem
}

func (k Kind) String() string {
	switch k {
	case KindSectionStart:
		return "SectionStart"
	case KindSectionEnd:
		return "SectionEnd"
	case KindKeyValue:
		return "KeyValue"
	case KindListStart:
		return "ListStart"
	case KindListItem:
		return "ListItem"
	case KindListEnd:
		return "ListEnd"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Element is one wire-level unit of a message. Name is only meaningful for
// named kinds and Value only for valued kinds; use the constructors below.
type Element struct {
	Kind  Kind
	Name  string
	Value []byte
}

func SectionStart(name string) Element {
	return Element{Kind: KindSectionStart, Name: name}
}

func SectionEnd() Element {
	return Element{Kind: KindSectionEnd}
}

// KeyValue copies value so later mutation by the caller does not leak in.
func KeyValue(name string, value []byte) Element {
	return Element{Kind: KindKeyValue, Name: name, Value: cloneBytes(value)}
}

func ListStart(name string) Element {
	return Element{Kind: KindListStart, Name: name}
}

func ListItem(value []byte) Element {
	return Element{Kind: KindListItem, Value: cloneBytes(value)}
}

func ListEnd() Element {
	return Element{Kind: KindListEnd}
}

// Equal compares kind, name and value bytes. A nil and an empty value are equal.
func (e Element) Equal(o Element) bool {
	return e.Kind == o.Kind && e.Name == o.Name && bytes.Equal(e.Value, o.Value)
}

func (e Element) String() string {
	switch {
	case e.Kind.Named() && e.Kind.Valued():
		return fmt.Sprintf("%s(%q, %q)", e.Kind, e.Name, e.Value)
	case e.Kind.Named():
		return fmt.Sprintf("%s(%q)", e.Kind, e.Name)
	case e.Kind.Valued():
		return fmt.Sprintf("%s(%q)", e.Kind, e.Value)
	default:
		return e.Kind.String()
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

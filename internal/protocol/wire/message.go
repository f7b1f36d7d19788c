package wire

// Message is an ordered element sequence. The order linearises the nested
// section/list structure, so it is significant for equality.
type Message struct {
	elements []Element
}

func NewMessage() *Message {
	return &Message{}
}

// FromElements builds a message from a copy of els.
func FromElements(els ...Element) *Message {
	m := &Message{elements: make([]Element, 0, len(els))}
	for _, el := range els {
		m.Append(el)
	}
	return m
}

// Append adds a raw element. Values are copied.
func (m *Message) Append(el Element) *Message {
	el.Value = cloneBytes(el.Value)
	m.elements = append(m.elements, el)
	return m
}

func (m *Message) AddSection(name string) *Message {
	return m.Append(SectionStart(name))
}

func (m *Message) EndSection() *Message {
	return m.Append(SectionEnd())
}

func (m *Message) AddKeyValue(name string, value []byte) *Message {
	return m.Append(KeyValue(name, value))
}

func (m *Message) AddString(name, value string) *Message {
	return m.Append(KeyValue(name, []byte(value)))
}

func (m *Message) AddList(name string) *Message {
	return m.Append(ListStart(name))
}

func (m *Message) AddListItem(value []byte) *Message {
	return m.Append(ListItem(value))
}

func (m *Message) AddListString(value string) *Message {
	return m.Append(ListItem([]byte(value)))
}

func (m *Message) EndList() *Message {
	return m.Append(ListEnd())
}

// Elements returns a copy of the element sequence.
func (m *Message) Elements() []Element {
	if m == nil {
		return nil
	}
	out := make([]Element, len(m.elements))
	for i, el := range m.elements {
		el.Value = cloneBytes(el.Value)
		out[i] = el
	}
	return out
}

func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.elements)
}

// Equal reports element-wise equality. A nil message equals an empty one.
func (m *Message) Equal(o *Message) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i := 0; i < m.Len(); i++ {
		if !m.elements[i].Equal(o.elements[i]) {
			return false
		}
	}
	return true
}

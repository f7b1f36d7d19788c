package wire

import (
	"fmt"

	"github.com/danmuck/vicictl/internal/protocol"
)

var ErrUnbalanced = fmt.Errorf("%w: wire: unbalanced message", protocol.ErrProtocol)

// Validate checks that sections and lists are properly nested: every start
// has a matching end, ends close the innermost open container of their own
// kind, and lists contain only items.
func Validate(m *Message) error {
	var open []Kind
	for i, el := range m.Elements() {
		inList := len(open) > 0 && open[len(open)-1] == KindListStart
		if inList && el.Kind != KindListItem && el.Kind != KindListEnd {
			return fmt.Errorf("%w: %s inside list (element %d)", ErrUnbalanced, el.Kind, i)
		}
		switch el.Kind {
		case KindSectionStart, KindListStart:
			open = append(open, el.Kind)
		case KindSectionEnd:
			if len(open) == 0 || open[len(open)-1] != KindSectionStart {
				return fmt.Errorf("%w: unexpected section end (element %d)", ErrUnbalanced, i)
			}
			open = open[:len(open)-1]
		case KindListEnd:
			if !inList {
				return fmt.Errorf("%w: unexpected list end (element %d)", ErrUnbalanced, i)
			}
			open = open[:len(open)-1]
		case KindListItem:
			if !inList {
				return fmt.Errorf("%w: list item outside list (element %d)", ErrUnbalanced, i)
			}
		}
	}
	if len(open) != 0 {
		return fmt.Errorf("%w: %d container(s) left open", ErrUnbalanced, len(open))
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/vicictl/internal/protocol/wire"
)

var ErrInvalidArgument = errors.New("vicictl: invalid argument")

// argSection collects request arguments in first-seen order so the encoded
// message keeps the order the user typed.
type argSection struct {
	entries []*argEntry
	byName  map[string]*argEntry
}

type argEntry struct {
	name    string
	value   string
	items   []string
	list    bool
	section *argSection
}

func newArgSection() *argSection {
	return &argSection{byName: make(map[string]*argEntry)}
}

// parseRequestArgs builds a request message from key=value, list[]=item and
// dotted section.key=value arguments. Repeating list[]= appends to the list.
func parseRequestArgs(args []string) (*wire.Message, error) {
	root := newArgSection()
	for _, arg := range args {
		if err := root.add(arg); err != nil {
			return nil, err
		}
	}
	msg := wire.NewMessage()
	root.emit(msg)
	return msg, nil
}

func (s *argSection) add(arg string) error {
	key, value, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("%w: %q: expected key=value", ErrInvalidArgument, arg)
	}
	list := strings.HasSuffix(key, "[]")
	key = strings.TrimSuffix(key, "[]")

	path := strings.Split(key, ".")
	for _, part := range path {
		if part == "" {
			return fmt.Errorf("%w: %q: empty name in key", ErrInvalidArgument, arg)
		}
		if len(part) > wire.MaxNameLen {
			return fmt.Errorf("%w: %q: name longer than %d bytes", ErrInvalidArgument, arg, wire.MaxNameLen)
		}
	}

	cur := s
	for _, name := range path[:len(path)-1] {
		next, err := cur.child(name, arg)
		if err != nil {
			return err
		}
		cur = next
	}

	leaf := path[len(path)-1]
	existing, seen := cur.byName[leaf]
	switch {
	case !seen:
		e := &argEntry{name: leaf, list: list}
		if list {
			e.items = []string{value}
		} else {
			e.value = value
		}
		cur.entries = append(cur.entries, e)
		cur.byName[leaf] = e
	case list && existing.list:
		existing.items = append(existing.items, value)
	default:
		return fmt.Errorf("%w: %q: %q is already set", ErrInvalidArgument, arg, leaf)
	}
	return nil
}

func (s *argSection) child(name, arg string) (*argSection, error) {
	if e, ok := s.byName[name]; ok {
		if e.section == nil {
			return nil, fmt.Errorf("%w: %q: %q is not a section", ErrInvalidArgument, arg, name)
		}
		return e.section, nil
	}
	e := &argEntry{name: name, section: newArgSection()}
	s.entries = append(s.entries, e)
	s.byName[name] = e
	return e.section, nil
}

func (s *argSection) emit(msg *wire.Message) {
	for _, e := range s.entries {
		switch {
		case e.section != nil:
			msg.AddSection(e.name)
			e.section.emit(msg)
			msg.EndSection()
		case e.list:
			msg.AddList(e.name)
			for _, item := range e.items {
				msg.AddListString(item)
			}
			msg.EndList()
		default:
			msg.AddString(e.name, e.value)
		}
	}
}

package main

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/danmuck/vicictl/internal/protocol/wire"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

var ErrUnknownFormat = errors.New("vicictl: unknown output format")

// printer renders responses and events in one output format. YAML output is
// a stream of documents, one per response or event.
type printer struct {
	w      io.Writer
	format string
	enc    *yaml.Encoder
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	p := &printer{w: w, format: strings.ToLower(strings.TrimSpace(format))}
	switch p.format {
	case "", formatText:
		p.format = formatText
	case formatYAML:
		p.enc = yaml.NewEncoder(w)
		p.enc.SetIndent(2)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return p, nil
}

func (p *printer) Response(msg *wire.Message) error {
	if p.enc == nil {
		return writeText(p.w, msg, 0)
	}
	node, err := messageNode(msg)
	if err != nil {
		return err
	}
	return p.enc.Encode(node)
}

func (p *printer) Event(name string, msg *wire.Message) error {
	if p.enc == nil {
		if _, err := fmt.Fprintf(p.w, "event %s {\n", name); err != nil {
			return err
		}
		if err := writeText(p.w, msg, 1); err != nil {
			return err
		}
		_, err := fmt.Fprintln(p.w, "}")
		return err
	}
	body, err := messageNode(msg)
	if err != nil {
		return err
	}
	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content,
		scalar("event"), scalar(name),
		scalar("message"), body,
	)
	return p.enc.Encode(doc)
}

func (p *printer) Close() error {
	if p.enc == nil {
		return nil
	}
	return p.enc.Close()
}

// writeText prints msg one element per line. It follows the element stream
// directly, so unbalanced messages still print.
func writeText(w io.Writer, msg *wire.Message, depth int) error {
	for _, el := range msg.Elements() {
		var line string
		switch el.Kind {
		case wire.KindSectionStart:
			line = el.Name + " {"
		case wire.KindListStart:
			line = el.Name + " ["
		case wire.KindSectionEnd:
			depth = max(depth-1, 0)
			line = "}"
		case wire.KindListEnd:
			depth = max(depth-1, 0)
			line = "]"
		case wire.KindKeyValue:
			line = el.Name + " = " + renderValue(el.Value)
		case wire.KindListItem:
			line = renderValue(el.Value)
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), line); err != nil {
			return err
		}
		if el.Kind == wire.KindSectionStart || el.Kind == wire.KindListStart {
			depth++
		}
	}
	return nil
}

func renderValue(v []byte) string {
	if printable(v) {
		return string(v)
	}
	return "0x" + hex.EncodeToString(v)
}

func printable(v []byte) bool {
	if !utf8.Valid(v) {
		return false
	}
	for _, r := range string(v) {
		if !unicode.IsPrint(r) && r != ' ' {
			return false
		}
	}
	return true
}

// messageNode converts a balanced message into an ordered YAML mapping.
// Binary values become !!binary scalars. A section that repeats a name
// becomes a sequence of one-entry mappings, since YAML keys must be unique.
func messageNode(msg *wire.Message) (*yaml.Node, error) {
	if err := wire.Validate(msg); err != nil {
		return nil, err
	}
	root := &yaml.Node{Kind: yaml.MappingNode}
	stack := []*yaml.Node{root}
	for _, el := range msg.Elements() {
		top := stack[len(stack)-1]
		switch el.Kind {
		case wire.KindSectionStart:
			child := &yaml.Node{Kind: yaml.MappingNode}
			top.Content = append(top.Content, scalar(el.Name), child)
			stack = append(stack, child)
		case wire.KindListStart:
			child := &yaml.Node{Kind: yaml.SequenceNode}
			top.Content = append(top.Content, scalar(el.Name), child)
			stack = append(stack, child)
		case wire.KindSectionEnd:
			unfoldDuplicates(top)
			stack = stack[:len(stack)-1]
		case wire.KindListEnd:
			stack = stack[:len(stack)-1]
		case wire.KindKeyValue:
			top.Content = append(top.Content, scalar(el.Name), valueNode(el.Value))
		case wire.KindListItem:
			top.Content = append(top.Content, valueNode(el.Value))
		}
	}
	unfoldDuplicates(root)
	return root, nil
}

func unfoldDuplicates(m *yaml.Node) {
	seen := make(map[string]bool, len(m.Content)/2)
	dup := false
	for i := 0; i < len(m.Content); i += 2 {
		key := m.Content[i].Value
		if seen[key] {
			dup = true
			break
		}
		seen[key] = true
	}
	if !dup {
		return
	}
	pairs := make([]*yaml.Node, 0, len(m.Content)/2)
	for i := 0; i < len(m.Content); i += 2 {
		pairs = append(pairs, &yaml.Node{Kind: yaml.MappingNode, Content: m.Content[i : i+2 : i+2]})
	}
	m.Kind = yaml.SequenceNode
	m.Content = pairs
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func valueNode(v []byte) *yaml.Node {
	if printable(v) {
		return scalar(string(v))
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(v)}
}

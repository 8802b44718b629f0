package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
)

type Kind uint8

const (
	KindBool Kind = iota + 1
	KindGroup
	// KindRaw is any other JSON scalar/array. It is kept verbatim and can't be toggled.
	KindRaw
)

// Node is either a boolean leaf, a group of named children, or an opaque raw value.
type Node struct {
	kind Kind

	b   bool
	raw []byte

	keys     []string
	children map[string]*Node
}

func (n *Node) Kind() Kind { return n.kind }

func (n *Node) IsGroup() bool { return n != nil && n.kind == KindGroup }

func (n *Node) IsBool() bool { return n != nil && n.kind == KindBool }

// BoolValue reports the leaf value; false for anything that isn't a boolean leaf.
func (n *Node) BoolValue() bool { return n != nil && n.kind == KindBool && n.b }

// Keys returns child names in document order.
func (n *Node) Keys() []string {
	if n == nil || n.kind != KindGroup {
		return nil
	}
	return append([]string(nil), n.keys...)
}

func (n *Node) Child(name string) (*Node, bool) {
	if n == nil || n.kind != KindGroup {
		return nil, false
	}
	c, ok := n.children[name]
	return c, ok
}

// Document is a parsed settings file. The root is always a group.
type Document struct {
	root *Node
}

func (d *Document) Root() *Node { return d.root }

// Get resolves a dotted path ("issues.opened").
func (d *Document) Get(path string) (*Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	cur := d.root
	for i, seg := range segs {
		next, ok := cur.Child(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %q (missing %q)", ErrPathNotFound, path, strings.Join(segs[:i+1], "."))
		}
		cur = next
	}
	return cur, nil
}

// Bool returns the boolean leaf at path.
func (d *Document) Bool(path string) (bool, error) {
	n, err := d.Get(path)
	if err != nil {
		return false, err
	}
	if !n.IsBool() {
		return false, fmt.Errorf("%w: %q is not a boolean leaf", ErrPathNotFound, path)
	}
	return n.b, nil
}

// set overwrites an existing boolean leaf. A nil value negates it.
// Nothing is mutated unless the whole path checks out.
func (d *Document) set(path string, value *bool) (prev bool, err error) {
	segs, err := splitPath(path)
	if err != nil {
		return false, err
	}
	cur := d.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur.Child(seg)
		if !ok || !next.IsGroup() {
			return false, fmt.Errorf("%w: %q (%q is not a group)", ErrPathNotFound, path, seg)
		}
		cur = next
	}
	last := segs[len(segs)-1]
	leaf, ok := cur.Child(last)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrPathNotFound, path)
	}
	if !leaf.IsBool() {
		return false, fmt.Errorf("%w: %q is not a boolean leaf", ErrPathNotFound, path)
	}
	prev = leaf.b
	if value != nil {
		leaf.b = *value
	} else {
		leaf.b = !leaf.b
	}
	return prev, nil
}

func (d *Document) restore(path string, v bool) {
	if n, err := d.Get(path); err == nil && n.IsBool() {
		n.b = v
	}
}

func splitPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrPathNotFound)
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrPathNotFound, path)
		}
	}
	return segs, nil
}

// Parse decodes a settings document, keeping key order.
func Parse(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return nil, ErrStoreCorrupt
	}
	root, err := parseObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	return &Document{root: root}, nil
}

func parseObject(data []byte) (*Node, error) {
	n := &Node{kind: KindGroup, children: map[string]*Node{}}
	err := jsonparser.ObjectEach(data, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		if _, dup := n.children[name]; dup {
			return fmt.Errorf("duplicate key %q", name)
		}
		var child *Node
		switch vt {
		case jsonparser.Boolean:
			b, err := jsonparser.ParseBoolean(value)
			if err != nil {
				return err
			}
			child = &Node{kind: KindBool, b: b}
		case jsonparser.Object:
			child, err = parseObject(value)
			if err != nil {
				return err
			}
		case jsonparser.String:
			// jsonparser strips the quotes but leaves escapes intact.
			raw := make([]byte, 0, len(value)+2)
			raw = append(raw, '"')
			raw = append(raw, value...)
			raw = append(raw, '"')
			child = &Node{kind: KindRaw, raw: raw}
		default:
			child = &Node{kind: KindRaw, raw: append([]byte(nil), value...)}
		}
		n.keys = append(n.keys, name)
		n.children[name] = child
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// MarshalJSON encodes the document with keys in document order and a
// 4-space indent. Same document, same bytes.
func (d *Document) MarshalJSON() ([]byte, error) {
	var compact bytes.Buffer
	if err := writeNode(&compact, d.root); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "    "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *Node) error {
	switch n.kind {
	case KindBool:
		if n.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindRaw:
		buf.Write(n.raw)
	case KindGroup:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeNode(buf, n.children[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("settings: unknown node kind %d", n.kind)
	}
	return nil
}

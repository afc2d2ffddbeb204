// Package gpx parses GPX documents and splits their waypoint, track and
// route subtrees into standalone files.
package gpx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// ParseError wraps a malformed-XML failure from the decoder.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse gpx: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Node is one element of a parsed document tree. Children keep document
// order; Text holds the element's character data.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Node
	Text     string
}

// Document is a read-only parsed GPX tree plus its detected default
// namespace URI (empty when the document is unnamespaced).
type Document struct {
	Root      *Node
	Namespace string

	scope *nsScope
}

// nsScope maps namespace URIs back to the prefixes the source document
// declared for them, so serialized subtrees keep their qualification.
type nsScope struct {
	defaultNS string
	prefixes  map[string]string
}

// Load parses a GPX byte stream into a Document. A malformed stream yields a
// *ParseError and never a partially populated Document.
func Load(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)

	var root *Node
	var stack []*Node
	prefixes := map[string]string{}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name, Attrs: copyAttrs(t.Attr)}
			for _, attr := range t.Attr {
				if attr.Name.Space == "xmlns" {
					if _, declared := prefixes[attr.Value]; !declared {
						prefixes[attr.Value] = attr.Name.Local
					}
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &ParseError{Err: fmt.Errorf("multiple root elements")}
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, &ParseError{Err: fmt.Errorf("unexpected end element %s", t.Name.Local)}
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, &ParseError{Err: fmt.Errorf("empty document")}
	}
	if len(stack) != 0 {
		return nil, &ParseError{Err: fmt.Errorf("unclosed element %s", stack[len(stack)-1].Name.Local)}
	}

	doc := &Document{
		Root:      root,
		Namespace: root.Name.Space,
		scope:     &nsScope{defaultNS: root.Name.Space, prefixes: prefixes},
	}
	return doc, nil
}

func copyAttrs(attrs []xml.Attr) []xml.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]xml.Attr, len(attrs))
	copy(out, attrs)
	return out
}

// FindAll returns every descendant element whose local name matches,
// regardless of namespace.
func (n *Node) FindAll(local string) []*Node {
	var matches []*Node
	for _, child := range n.Children {
		if child.Name.Local == local {
			matches = append(matches, child)
		}
		matches = append(matches, child.FindAll(local)...)
	}
	return matches
}

// Find returns the first descendant with the given local name, or nil.
func (n *Node) Find(local string) *Node {
	for _, child := range n.Children {
		if child.Name.Local == local {
			return child
		}
		if found := child.Find(local); found != nil {
			return found
		}
	}
	return nil
}

// Child returns the first direct child with the given local name, or nil.
func (n *Node) Child(local string) *Node {
	for _, child := range n.Children {
		if child.Name.Local == local {
			return child
		}
	}
	return nil
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(local string) string {
	for _, attr := range n.Attrs {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// TrimmedText returns the element's character data without surrounding
// whitespace.
func (n *Node) TrimmedText() string {
	return strings.TrimSpace(n.Text)
}

// FindAll is a convenience over the document root.
func (d *Document) FindAll(local string) []*Node {
	return d.Root.FindAll(local)
}

// Serialize renders the subtree as markup without any namespace context:
// every name is written with its local part only. Use Document.SerializeNode
// when the subtree may contain prefixed elements.
func (n *Node) Serialize(indent string) string {
	var buf bytes.Buffer
	n.write(&buf, indent, 0, nil)
	return buf.String()
}

// SerializeNode renders a subtree with the document's namespace declarations
// in scope: elements and attributes outside the default namespace keep the
// prefix the source declared for their URI.
func (d *Document) SerializeNode(n *Node, indent string) string {
	var buf bytes.Buffer
	n.write(&buf, indent, 0, d.scope)
	return buf.String()
}

func (n *Node) write(buf *bytes.Buffer, indent string, depth int, scope *nsScope) {
	prefix := strings.Repeat(indent, depth)
	name := scope.elementName(n.Name)
	buf.WriteString(prefix)
	buf.WriteByte('<')
	buf.WriteString(name)
	for _, attr := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(scope.attrName(attr.Name))
		buf.WriteString(`="`)
		buf.WriteString(escape(attr.Value))
		buf.WriteByte('"')
	}

	text := n.TrimmedText()
	if len(n.Children) == 0 && text == "" {
		buf.WriteString(" />")
		return
	}

	buf.WriteByte('>')
	if len(n.Children) == 0 {
		buf.WriteString(escape(text))
		buf.WriteString("</")
		buf.WriteString(name)
		buf.WriteByte('>')
		return
	}

	if text != "" {
		buf.WriteString(escape(text))
	}
	for _, child := range n.Children {
		buf.WriteByte('\n')
		child.write(buf, indent, depth+1, scope)
	}
	buf.WriteByte('\n')
	buf.WriteString(prefix)
	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteByte('>')
}

func (s *nsScope) elementName(name xml.Name) string {
	if name.Space == "" || s == nil || name.Space == s.defaultNS {
		return name.Local
	}
	if prefix, ok := s.prefixes[name.Space]; ok {
		return prefix + ":" + name.Local
	}
	return name.Local
}

func (s *nsScope) attrName(name xml.Name) string {
	switch {
	case name.Space == "" && name.Local == "xmlns":
		return "xmlns"
	case name.Space == "xmlns":
		return "xmlns:" + name.Local
	}
	if s != nil && name.Space != s.defaultNS {
		if prefix, ok := s.prefixes[name.Space]; ok {
			return prefix + ":" + name.Local
		}
	}
	if name.Space == xsiNamespace {
		return "xsi:" + name.Local
	}
	return name.Local
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string {
	return escaper.Replace(s)
}

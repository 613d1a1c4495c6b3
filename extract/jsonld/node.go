package jsonld

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind discriminates the JSON shapes that appear in schema.org markup.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// Node is a small tagged union over a decoded JSON-LD value. Field probing
// on real-world recipe markup constantly flips between scalars, lists, and
// wrapper objects; matching on Kind keeps that explicit instead of
// scattering type assertions.
type Node struct {
	Kind Kind
	Str  string // KindString, and the literal text for KindNumber
	Bool bool
	List []Node
	Obj  map[string]Node
}

// parseNode decodes a JSON document into a Node tree. Numbers keep their
// literal form so "4" and 4 yield the same text.
func parseNode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Node{}, err
	}
	return fromValue(v), nil
}

func fromValue(v any) Node {
	switch val := v.(type) {
	case nil:
		return Node{Kind: KindNull}
	case string:
		return Node{Kind: KindString, Str: val}
	case json.Number:
		return Node{Kind: KindNumber, Str: val.String()}
	case bool:
		return Node{Kind: KindBool, Bool: val}
	case []any:
		list := make([]Node, 0, len(val))
		for _, el := range val {
			list = append(list, fromValue(el))
		}
		return Node{Kind: KindList, List: list}
	case map[string]any:
		obj := make(map[string]Node, len(val))
		for k, el := range val {
			obj[k] = fromValue(el)
		}
		return Node{Kind: KindObject, Obj: obj}
	default:
		return Node{Kind: KindNull}
	}
}

// Field returns the named member of an object node.
func (n Node) Field(name string) (Node, bool) {
	if n.Kind != KindObject {
		return Node{}, false
	}
	v, ok := n.Obj[name]
	return v, ok
}

// Text returns the scalar text of a node: the string itself, a number's
// literal form, or the first element's text for a list. Objects, booleans,
// and nulls have no text.
func (n Node) Text() string {
	switch n.Kind {
	case KindString:
		return n.Str
	case KindNumber:
		return n.Str
	case KindList:
		if len(n.List) > 0 {
			return n.List[0].Text()
		}
	}
	return ""
}

// FieldText returns the trimmed text of a named member.
func (n Node) FieldText(name string) string {
	v, ok := n.Field(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.Text())
}

// Elements normalizes a value to a list: lists yield their members, every
// other non-null kind yields itself. Schema.org producers emit scalars and
// single-element arrays interchangeably.
func (n Node) Elements() []Node {
	switch n.Kind {
	case KindNull:
		return nil
	case KindList:
		return n.List
	default:
		return []Node{n}
	}
}

// HasType reports whether the node's declared @type matches name, accepting
// the bare literal, the schema.org URL forms, and membership in an
// array-valued type.
func (n Node) HasType(name string) bool {
	typ, ok := n.Field("@type")
	if !ok {
		return false
	}
	for _, el := range typ.Elements() {
		if typeNameMatches(el.Text(), name) {
			return true
		}
	}
	return false
}

func typeNameMatches(declared, name string) bool {
	declared = strings.TrimSpace(declared)
	if strings.EqualFold(declared, name) {
		return true
	}
	for _, prefix := range []string{"http://schema.org/", "https://schema.org/"} {
		if strings.EqualFold(declared, prefix+name) {
			return true
		}
	}
	return false
}

// Package template defines the static template model a shadow node resolves
// to. The synchronizer consumes it read-only through a Catalog.
package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Kind identifies a template node variant.
type Kind string

const (
	KindTag       Kind = "tag"
	KindComponent Kind = "component"
	KindSlot      Kind = "slot"
)

// Node is a template node addressed by uuid.
type Node interface {
	UUID() string
	Kind() Kind
}

// Tag is a plain element template.
type Tag struct {
	ID      string `json:"uuid" yaml:"uuid"`
	TagName string `json:"tag" yaml:"tag"`
	Text    bool   `json:"text,omitempty" yaml:"text,omitempty"`
}

// UUID implements Node.
func (t *Tag) UUID() string { return t.ID }

// Kind implements Node.
func (t *Tag) Kind() Kind { return KindTag }

// Param is a declared component parameter.
type Param struct {
	UUID string `json:"uuid" yaml:"uuid"`
	Name string `json:"name" yaml:"name"`
	Slot bool   `json:"slot,omitempty" yaml:"slot,omitempty"`
}

// PropType describes what a code component expects for one prop.
type PropType struct {
	// Type is one of string, number, boolean, object, array. Empty skips the check.
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	// Validator names a validator registered by a plugin.
	Validator string `json:"validator,omitempty" yaml:"validator,omitempty"`
	// Options feeds validators that check against a fixed set.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	// Check is an in-process validator; it returns an empty string when the
	// value is valid.
	Check func(value any, props map[string]any, contextData any) string `json:"-" yaml:"-"`
}

// CodeMeta carries the prop metadata of a code component.
type CodeMeta struct {
	Props map[string]PropType `json:"props,omitempty" yaml:"props,omitempty"`
}

// Component is a component instantiation template.
type Component struct {
	ID     string    `json:"uuid" yaml:"uuid"`
	Name   string    `json:"name" yaml:"name"`
	Params []Param   `json:"params,omitempty" yaml:"params,omitempty"`
	Code   bool      `json:"code,omitempty" yaml:"code,omitempty"`
	Meta   *CodeMeta `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// UUID implements Node.
func (c *Component) UUID() string { return c.ID }

// Kind implements Node.
func (c *Component) Kind() Kind { return KindComponent }

// Param returns the declared parameter with the given uuid.
func (c *Component) Param(uuid string) (Param, bool) {
	for _, p := range c.Params {
		if p.UUID == uuid {
			return p, true
		}
	}
	return Param{}, false
}

// Slot is a content projection point of a component definition.
type Slot struct {
	ID    string `json:"uuid" yaml:"uuid"`
	Param Param  `json:"param" yaml:"param"`
}

// UUID implements Node.
func (s *Slot) UUID() string { return s.ID }

// Kind implements Node.
func (s *Slot) Kind() Kind { return KindSlot }

// Catalog resolves template nodes by uuid.
type Catalog interface {
	Lookup(uuid string) (Node, bool)
}

// Document groups template nodes by variant for file and row storage.
type Document struct {
	Tags       []*Tag       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Components []*Component `json:"components,omitempty" yaml:"components,omitempty"`
	Slots      []*Slot      `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// Nodes flattens the document.
func (d Document) Nodes() []Node {
	out := make([]Node, 0, len(d.Tags)+len(d.Components)+len(d.Slots))
	for _, t := range d.Tags {
		out = append(out, t)
	}
	for _, c := range d.Components {
		out = append(out, c)
	}
	for _, s := range d.Slots {
		out = append(out, s)
	}
	return out
}

// Record is the row form of a template node.
type Record struct {
	UUID    string
	Kind    Kind
	Payload []byte
}

// Encode converts a node to its row form.
func Encode(n Node) (Record, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return Record{}, fmt.Errorf("encode template %s: %w", n.UUID(), err)
	}
	return Record{UUID: n.UUID(), Kind: n.Kind(), Payload: payload}, nil
}

// Decode converts a row back into a node.
func Decode(rec Record) (Node, error) {
	var n Node
	switch rec.Kind {
	case KindTag:
		n = &Tag{}
	case KindComponent:
		n = &Component{}
	case KindSlot:
		n = &Slot{}
	default:
		return nil, fmt.Errorf("decode template %s: unknown kind %q", rec.UUID, rec.Kind)
	}
	if err := json.Unmarshal(rec.Payload, n); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", rec.UUID, err)
	}
	if n.UUID() != rec.UUID {
		return nil, fmt.Errorf("decode template %s: payload uuid %q does not match", rec.UUID, n.UUID())
	}
	return n, nil
}

// MemoryCatalog is a process-wide uuid → template table.
type MemoryCatalog struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog returns a catalog seeded with nodes.
func NewMemoryCatalog(nodes ...Node) *MemoryCatalog {
	c := &MemoryCatalog{nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		c.Add(n)
	}
	return c
}

// Add registers or replaces a node.
func (c *MemoryCatalog) Add(n Node) {
	if n == nil || n.UUID() == "" {
		return
	}
	c.mu.Lock()
	c.nodes[n.UUID()] = n
	c.mu.Unlock()
}

// AddDocument registers every node of the document.
func (c *MemoryCatalog) AddDocument(doc Document) {
	for _, n := range doc.Nodes() {
		c.Add(n)
	}
}

// Remove drops a node. Shadow nodes created from it afterwards fail to
// resolve, as after a template edit mid-session.
func (c *MemoryCatalog) Remove(uuid string) {
	c.mu.Lock()
	delete(c.nodes, uuid)
	c.mu.Unlock()
}

// Lookup implements Catalog.
func (c *MemoryCatalog) Lookup(uuid string) (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[uuid]
	return n, ok
}

// Nodes returns all nodes ordered by uuid.
func (c *MemoryCatalog) Nodes() []Node {
	c.mu.RLock()
	out := make([]Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UUID() < out[j].UUID() })
	return out
}

// Len returns the number of nodes.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

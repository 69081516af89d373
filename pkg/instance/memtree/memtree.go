// Package memtree is a small in-memory rendering engine that produces
// instance.Node trees from element descriptions. Unchanged subtrees are
// reused by reference between commits and changed nodes point at their
// previous version through Alternate, which is the contract the
// synchronizer's incremental walker relies on.
package memtree

import (
	"context"
	"maps"
	"reflect"
	"sort"

	"valsync/pkg/instance"
)

// Element describes one node to render.
type Element struct {
	Key      string            `json:"key,omitempty" yaml:"key,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Props    map[string]any    `json:"props,omitempty" yaml:"props,omitempty"`
	SlotEnv  *instance.SlotEnv `json:"slot_env,omitempty" yaml:"slot_env,omitempty"`
	Children []Element         `json:"children,omitempty" yaml:"children,omitempty"`
}

// Node implements instance.Node.
type Node struct {
	key      string
	attrs    map[string]string
	props    map[string]any
	env      *instance.SlotEnv
	children []*Node
	alt      *Node
	dirty    bool
}

var (
	_ instance.Node            = (*Node)(nil)
	_ instance.SlotEnvProvider = (*Node)(nil)
)

// Key returns the reconciliation key of the node.
func (n *Node) Key() string { return n.key }

// Children implements instance.Node.
func (n *Node) Children() []instance.Node {
	out := make([]instance.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

// Alternate implements instance.Node.
func (n *Node) Alternate() instance.Node {
	if n.alt == nil {
		return nil
	}
	return n.alt
}

// Dirty implements instance.Node.
func (n *Node) Dirty() bool { return n.dirty }

// Annotation implements instance.Node.
func (n *Node) Annotation(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// Props implements instance.Node.
func (n *Node) Props() map[string]any { return n.props }

// SlotEnv implements instance.SlotEnvProvider.
func (n *Node) SlotEnv() (instance.SlotEnv, bool) {
	if n.env == nil {
		return instance.SlotEnv{}, false
	}
	return *n.env, true
}

// Find returns the first node in depth-first order satisfying pred.
func (n *Node) Find(pred func(*Node) bool) *Node {
	if n == nil {
		return nil
	}
	if pred(n) {
		return n
	}
	for _, c := range n.children {
		if found := c.Find(pred); found != nil {
			return found
		}
	}
	return nil
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.children {
		total += c.Count()
	}
	return total
}

// Root is one named tree rendered by an Engine.
type Root struct {
	name     string
	current  *Node
	previous *Node
}

var _ instance.Root = (*Root)(nil)

// Name returns the root name.
func (r *Root) Name() string { return r.name }

// Current implements instance.Root.
func (r *Root) Current() instance.Node {
	if r.current == nil {
		return nil
	}
	return r.current
}

// Previous implements instance.Root.
func (r *Root) Previous() instance.Node {
	if r.previous == nil {
		return nil
	}
	return r.previous
}

// Tree returns the current tree as a concrete node.
func (r *Root) Tree() *Node { return r.current }

// Engine renders named roots and reports commits to its installed hook.
type Engine struct {
	hook  instance.Hook
	roots map[string]*Root
}

var _ instance.Engine = (*Engine)(nil)

// NewEngine returns an engine without a hook.
func NewEngine() *Engine {
	return &Engine{roots: make(map[string]*Root)}
}

// Hook implements instance.Engine.
func (e *Engine) Hook() instance.Hook { return e.hook }

// SetHook implements instance.Engine.
func (e *Engine) SetHook(h instance.Hook) { e.hook = h }

// Roots returns the names of the mounted roots in sorted order.
func (e *Engine) Roots() []string {
	out := make([]string, 0, len(e.roots))
	for name := range e.roots {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render commits a new version of the named root. Removed nodes are reported
// through OnUnmount before OnCommit runs.
func (e *Engine) Render(ctx context.Context, name string, el Element) *Root {
	r, ok := e.roots[name]
	if !ok {
		r = &Root{name: name}
		e.roots[name] = r
	}
	var removed []*Node
	next := build(r.current, el, &removed)
	r.previous, r.current = r.current, next
	if e.hook != nil {
		for _, n := range removed {
			e.hook.OnUnmount(ctx, n)
		}
		e.hook.OnCommit(ctx, r)
	}
	return r
}

// Unmount discards the named root and reports its tree through OnUnmount.
func (e *Engine) Unmount(ctx context.Context, name string) bool {
	r, ok := e.roots[name]
	if !ok {
		return false
	}
	delete(e.roots, name)
	if e.hook != nil && r.current != nil {
		e.hook.OnUnmount(ctx, r.current)
	}
	return true
}

func build(prev *Node, el Element, removed *[]*Node) *Node {
	var prevKids []*Node
	if prev != nil {
		prevKids = prev.children
	}
	used := make([]bool, len(prevKids))
	kids := make([]*Node, len(el.Children))
	for i, child := range el.Children {
		kids[i] = build(match(prevKids, used, child, i), child, removed)
	}
	for j, pk := range prevKids {
		if !used[j] {
			*removed = append(*removed, pk)
		}
	}
	if prev != nil && sameContent(prev, el) && sameNodes(prev.children, kids) {
		prev.dirty = false
		prev.alt = nil
		return prev
	}
	n := &Node{
		key:      el.Key,
		attrs:    maps.Clone(el.Attrs),
		props:    maps.Clone(el.Props),
		env:      el.SlotEnv,
		children: kids,
		alt:      prev,
		dirty:    true,
	}
	if prev != nil {
		// only two generations are kept alive
		prev.alt = nil
	}
	return n
}

func match(prevKids []*Node, used []bool, el Element, idx int) *Node {
	if el.Key != "" {
		for j, pk := range prevKids {
			if !used[j] && pk.key == el.Key {
				used[j] = true
				return pk
			}
		}
		return nil
	}
	if idx < len(prevKids) && !used[idx] && prevKids[idx].key == "" {
		used[idx] = true
		return prevKids[idx]
	}
	return nil
}

func sameContent(n *Node, el Element) bool {
	if n.key != el.Key || !maps.Equal(n.attrs, el.Attrs) {
		return false
	}
	if len(n.props) != len(el.Props) || (len(n.props) > 0 && !reflect.DeepEqual(n.props, el.Props)) {
		return false
	}
	return reflect.DeepEqual(n.env, el.SlotEnv)
}

func sameNodes(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Package instance describes the render-instance tree an embedded rendering
// engine exposes to the synchronizer. The synchronizer only reads these nodes;
// ownership and mutation stay with the engine.
package instance

import "context"

// Annotation names stamped on render-instance nodes by the template rendering
// pipeline. Values are opaque strings.
const (
	AttrValKey           = "val-key"
	AttrOwner            = "val-owner"
	AttrCloneIndex       = "clone-index"
	AttrSlotArgComponent = "slot-arg-component"
	AttrSlotArgParam     = "slot-arg-param"
	AttrSlotPlaceholder  = "slot-placeholder"
	AttrFrameID          = "frame-id"
	AttrClassName        = "class-name"
)

// Node is one node of the engine's live instance tree for a single commit.
// Implementations must be comparable (typically pointers) because nodes are
// used as keys of the synchronizer's side tables.
type Node interface {
	// Children returns the child nodes in render order.
	Children() []Node
	// Alternate returns the previous-commit counterpart, or nil.
	Alternate() Node
	// Dirty reports whether the node or anything below it rendered in the
	// current commit.
	Dirty() bool
	// Annotation reads an annotation stamped by the template pipeline.
	Annotation(name string) (string, bool)
	// Props returns the props the node rendered with. May be nil.
	Props() map[string]any
}

// SlotEnv is a data-context snapshot visible to the content rendered into
// one slot of a component instance.
type SlotEnv struct {
	ComponentKey string         `json:"component_key" yaml:"component_key"`
	ParamUUID    string         `json:"param_uuid" yaml:"param_uuid"`
	Env          map[string]any `json:"env,omitempty" yaml:"env,omitempty"`
}

// SlotEnvProvider is implemented by nodes that wrap slot content of a
// data-providing component.
type SlotEnvProvider interface {
	SlotEnv() (SlotEnv, bool)
}

// Root is one committed tree.
type Root interface {
	Current() Node
	// Previous returns the tree of the previous commit, or nil when the root
	// was just mounted.
	Previous() Node
}

// Hook observes engine commits. The engine calls OnUnmount for nodes it
// discards and OnCommit once per finished commit, never concurrently.
type Hook interface {
	OnCommit(ctx context.Context, root Root)
	OnUnmount(ctx context.Context, n Node)
}

// Engine is an engine instance that accepts one installed Hook.
type Engine interface {
	Hook() Hook
	SetHook(h Hook)
}

// Value returns the annotation value or "" when absent.
func Value(n Node, name string) string {
	if n == nil {
		return ""
	}
	v, _ := n.Annotation(name)
	return v
}

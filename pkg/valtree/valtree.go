// Package valtree defines the shadow nodes ("Val nodes") that mirror rendered
// component instances on the canvas.
//
// A Val node is addressed by its full key, which is stable across commits for
// the same logical instance. Back-references (owner, parent, slot) are full
// keys resolved through the frame registry; only forward references
// (children, contents, slot arguments) point at nodes directly, and those
// always point at the canonical cached node of a full key.
package valtree

import (
	"fmt"
	"maps"
	"slices"

	"valsync/pkg/instance"
	"valsync/pkg/template"
)

// Kind identifies a Val variant.
type Kind uint8

const (
	KindTag Kind = iota + 1
	KindComponent
	KindSlot
)

func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindComponent:
		return "component"
	case KindSlot:
		return "slot"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Env is a data-context snapshot. Values are replaced, never mutated.
type Env map[string]any

// SlotInfo records which component parameter a slot argument satisfies.
type SlotInfo struct {
	ParamUUID string
	// SlotKey is the full key of the ValSlot the argument rendered into, when
	// the owning component is not a code component.
	SlotKey      string
	ComponentKey string
}

// ValidationType classifies an invalid code-component argument.
type ValidationType int

const (
	ValidationRequired ValidationType = iota + 1
	ValidationCustom
)

// InvalidArg is a non-fatal prop validation diagnostic.
type InvalidArg struct {
	Param   template.Param
	Type    ValidationType
	Message string
}

// Base holds the attributes common to every variant.
type Base struct {
	Key       string
	FullKey   string
	FrameID   string
	OwnerKey  string
	ParentKey string
	ClassName string
	Instances []instance.Node
	Slot      *SlotInfo
}

// Val is a shadow node.
type Val interface {
	Common() *Base
	Kind() Kind
	Template() template.Node
	// Merge folds other (a working node of the same full key and kind) into
	// the receiver.
	Merge(other Val)
	// CopyFrom replaces the receiver's contents with other's while keeping
	// the receiver's identity.
	CopyFrom(other Val)
	Clone() Val
}

func (b *Base) copyFrom(other *Base, merge bool) {
	if b.FullKey != "" && b.FullKey != other.FullKey {
		panic(fmt.Sprintf("valtree: full key mismatch %q vs %q", b.FullKey, other.FullKey))
	}
	b.FullKey = other.FullKey
	b.Key = other.Key
	b.FrameID = other.FrameID
	b.OwnerKey = other.OwnerKey
	b.ClassName = other.ClassName
	if merge {
		for _, inst := range other.Instances {
			if !slices.Contains(b.Instances, inst) {
				b.Instances = append(b.Instances, inst)
			}
		}
	} else {
		b.Instances = slices.Clone(other.Instances)
	}
	if !merge || other.ParentKey != "" {
		b.ParentKey = other.ParentKey
	}
	switch {
	case other.Slot != nil:
		s := *other.Slot
		b.Slot = &s
	case !merge:
		b.Slot = nil
	}
}

func (b Base) clone() Base {
	out := b
	out.Instances = slices.Clone(b.Instances)
	if b.Slot != nil {
		s := *b.Slot
		out.Slot = &s
	}
	return out
}

// ValTag mirrors a tag template.
type ValTag struct {
	Base
	Tpl      *template.Tag
	Children []Val
}

// Common implements Val.
func (v *ValTag) Common() *Base { return &v.Base }

// Kind implements Val.
func (v *ValTag) Kind() Kind { return KindTag }

// Template implements Val.
func (v *ValTag) Template() template.Node { return v.Tpl }

// Merge implements Val.
func (v *ValTag) Merge(other Val) { v.copyTag(other, true) }

// CopyFrom implements Val.
func (v *ValTag) CopyFrom(other Val) { v.copyTag(other, false) }

func (v *ValTag) copyTag(other Val, merge bool) {
	v.Base.copyFrom(other.Common(), merge)
	if o, ok := other.(*ValTag); ok {
		v.Tpl = o.Tpl
		v.Children = slices.Clone(o.Children)
	}
}

// Clone implements Val.
func (v *ValTag) Clone() Val {
	return &ValTag{Base: v.Base.clone(), Tpl: v.Tpl, Children: slices.Clone(v.Children)}
}

// ValComponent mirrors a component instance.
type ValComponent struct {
	Base
	Tpl *template.Component
	// Contents is nil until the rendered children were gathered at least once.
	Contents    []Val
	SlotArgs    map[string][]Val
	SlotEnvs    map[string]Env
	Props       map[string]any
	InvalidArgs []InvalidArg
	// Synthetic marks a placeholder owner created while recovering from an
	// owner that was never visited.
	Synthetic bool
}

// Common implements Val.
func (v *ValComponent) Common() *Base { return &v.Base }

// Kind implements Val.
func (v *ValComponent) Kind() Kind { return KindComponent }

// Template implements Val.
func (v *ValComponent) Template() template.Node { return v.Tpl }

// Merge implements Val.
func (v *ValComponent) Merge(other Val) {
	v.Base.copyFrom(other.Common(), true)
	o, ok := other.(*ValComponent)
	if !ok {
		return
	}
	v.Tpl = o.Tpl
	if v.SlotArgs == nil {
		v.SlotArgs = make(map[string][]Val, len(o.SlotArgs))
	}
	maps.Copy(v.SlotArgs, o.SlotArgs)
	if v.SlotEnvs == nil {
		v.SlotEnvs = make(map[string]Env, len(o.SlotEnvs))
	}
	maps.Copy(v.SlotEnvs, o.SlotEnvs)
	v.copyRest(o)
}

// CopyFrom implements Val.
func (v *ValComponent) CopyFrom(other Val) {
	v.Base.copyFrom(other.Common(), false)
	o, ok := other.(*ValComponent)
	if !ok {
		return
	}
	v.Tpl = o.Tpl
	v.SlotArgs = cloneSlotArgs(o.SlotArgs)
	v.SlotEnvs = maps.Clone(o.SlotEnvs)
	if v.SlotEnvs == nil {
		v.SlotEnvs = make(map[string]Env)
	}
	v.copyRest(o)
}

func (v *ValComponent) copyRest(o *ValComponent) {
	v.Props = o.Props
	v.InvalidArgs = slices.Clone(o.InvalidArgs)
	v.Synthetic = o.Synthetic
	if o.Contents != nil {
		v.Contents = slices.Clone(o.Contents)
	}
}

// Clone implements Val.
func (v *ValComponent) Clone() Val {
	envs := maps.Clone(v.SlotEnvs)
	if envs == nil {
		envs = make(map[string]Env)
	}
	return &ValComponent{
		Base:        v.Base.clone(),
		Tpl:         v.Tpl,
		Contents:    slices.Clone(v.Contents),
		SlotArgs:    cloneSlotArgs(v.SlotArgs),
		SlotEnvs:    envs,
		Props:       v.Props,
		InvalidArgs: slices.Clone(v.InvalidArgs),
		Synthetic:   v.Synthetic,
	}
}

// Param returns the declared parameter of the component template.
func (v *ValComponent) Param(uuid string) (template.Param, bool) {
	if v.Tpl == nil {
		return template.Param{}, false
	}
	return v.Tpl.Param(uuid)
}

func cloneSlotArgs(in map[string][]Val) map[string][]Val {
	out := make(map[string][]Val, len(in))
	for k, vs := range in {
		out[k] = slices.Clone(vs)
	}
	return out
}

// ValSlot mirrors a slot template rendered inside a component.
type ValSlot struct {
	Base
	Tpl      *template.Slot
	Contents []Val
}

// Common implements Val.
func (v *ValSlot) Common() *Base { return &v.Base }

// Kind implements Val.
func (v *ValSlot) Kind() Kind { return KindSlot }

// Template implements Val.
func (v *ValSlot) Template() template.Node { return v.Tpl }

// Merge implements Val.
func (v *ValSlot) Merge(other Val) { v.copySlot(other, true) }

// CopyFrom implements Val.
func (v *ValSlot) CopyFrom(other Val) { v.copySlot(other, false) }

func (v *ValSlot) copySlot(other Val, merge bool) {
	v.Base.copyFrom(other.Common(), merge)
	if o, ok := other.(*ValSlot); ok {
		v.Tpl = o.Tpl
		v.Contents = slices.Clone(o.Contents)
	}
}

// Clone implements Val.
func (v *ValSlot) Clone() Val {
	return &ValSlot{Base: v.Base.clone(), Tpl: v.Tpl, Contents: slices.Clone(v.Contents)}
}

// Children returns the navigable children of v. Code components expose their
// slot arguments, in parameter order, since their rendered contents are
// opaque.
func Children(v Val) []Val {
	switch n := v.(type) {
	case *ValTag:
		return slices.Clone(n.Children)
	case *ValSlot:
		return slices.Clone(n.Contents)
	case *ValComponent:
		if n.Tpl == nil || !n.Tpl.Code {
			return slices.Clone(n.Contents)
		}
		var out []Val
		for _, p := range n.Tpl.Params {
			out = append(out, n.SlotArgs[p.UUID]...)
		}
		return out
	}
	return nil
}

// Flatten lists v and its descendants in pre-order. Nodes reachable more
// than once are listed once.
func Flatten(v Val) []Val {
	var out []Val
	seen := make(map[Val]struct{})
	var rec func(Val)
	rec = func(n Val) {
		if n == nil {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
		for _, c := range Children(n) {
			rec(c)
		}
	}
	rec(v)
	return out
}

// SlotSelection addresses one slot parameter of a component instance.
type SlotSelection struct {
	Component *ValComponent
	Param     template.Param
}

// Key returns the selection key, `<component full key>~<param uuid>`.
func (s SlotSelection) Key() string {
	if s.Component == nil {
		return "~" + s.Param.UUID
	}
	return s.Component.FullKey + "~" + s.Param.UUID
}

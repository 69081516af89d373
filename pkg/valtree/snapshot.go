package valtree

import "sort"

// Snapshot is a serialisable view of a Val subtree. Slot arguments are
// recorded by full key since their nodes also appear under the slots they
// render into.
type Snapshot struct {
	Kind        string              `json:"kind" yaml:"kind"`
	Key         string              `json:"key" yaml:"key"`
	FullKey     string              `json:"full_key" yaml:"full_key"`
	Template    string              `json:"template,omitempty" yaml:"template,omitempty"`
	Owner       string              `json:"owner,omitempty" yaml:"owner,omitempty"`
	Synthetic   bool                `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	InvalidArgs []string            `json:"invalid_args,omitempty" yaml:"invalid_args,omitempty"`
	SlotArgs    map[string][]string `json:"slot_args,omitempty" yaml:"slot_args,omitempty"`
	Children    []Snapshot          `json:"children,omitempty" yaml:"children,omitempty"`
}

// Snap captures v and its descendants. A node reachable from itself is cut
// at the second visit.
func Snap(v Val) Snapshot {
	return snap(v, make(map[Val]bool))
}

func snap(v Val, onPath map[Val]bool) Snapshot {
	b := v.Common()
	s := Snapshot{Kind: v.Kind().String(), Key: b.Key, FullKey: b.FullKey, Owner: b.OwnerKey}
	if tpl := v.Template(); tpl != nil {
		s.Template = tpl.UUID()
	}
	if c, ok := v.(*ValComponent); ok {
		s.Synthetic = c.Synthetic
		for _, ia := range c.InvalidArgs {
			s.InvalidArgs = append(s.InvalidArgs, ia.Param.Name+": "+ia.Message)
		}
		if len(c.SlotArgs) > 0 {
			s.SlotArgs = make(map[string][]string, len(c.SlotArgs))
			for param, args := range c.SlotArgs {
				keys := make([]string, 0, len(args))
				for _, a := range args {
					keys = append(keys, a.Common().FullKey)
				}
				s.SlotArgs[param] = keys
			}
		}
		sort.Strings(s.InvalidArgs)
	}
	onPath[v] = true
	defer delete(onPath, v)
	for _, c := range Children(v) {
		if c == nil || onPath[c] {
			continue
		}
		s.Children = append(s.Children, snap(c, onPath))
	}
	return s
}

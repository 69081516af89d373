package core

import (
	"fmt"
	"maps"

	"valsync/pkg/instance"
	"valsync/pkg/template"
	"valsync/pkg/valtree"
)

// newVal builds the unlinked working node for n. The template node is
// resolved by the last segment of the instance key.
func (s *Synchronizer) newVal(n instance.Node, instanceKey, fullKey, frameID string, owner *valtree.ValComponent) (valtree.Val, error) {
	uuid := lastSegment(instanceKey)
	tpl, ok := s.catalog.Lookup(uuid)
	if !ok || tpl == nil {
		return nil, &MissingTemplateError{InstanceKey: instanceKey, UUID: uuid}
	}
	base := valtree.Base{
		Key:       instanceKey,
		FullKey:   fullKey,
		FrameID:   frameID,
		ClassName: instance.Value(n, instance.AttrClassName),
		Instances: []instance.Node{n},
	}
	if owner != nil {
		base.OwnerKey = owner.FullKey
	}
	switch t := tpl.(type) {
	case *template.Tag:
		return &valtree.ValTag{Base: base, Tpl: t}, nil
	case *template.Slot:
		return &valtree.ValSlot{Base: base, Tpl: t}, nil
	case *template.Component:
		v := &valtree.ValComponent{
			Base:     base,
			Tpl:      t,
			SlotArgs: make(map[string][]valtree.Val),
			SlotEnvs: make(map[string]valtree.Env),
		}
		if t.Code {
			v.Props = maps.Clone(n.Props())
			if t.Meta != nil {
				v.InvalidArgs = s.validateProps(t, v.Props, s.contextData[contextKey(frameID, instanceKey)])
			}
		}
		return v, nil
	default:
		return nil, fmt.Errorf("template node %s has unsupported type %T", uuid, tpl)
	}
}

// validateProps checks code-component props against the component metadata.
// Violations are diagnostics on the node, never errors.
func (s *Synchronizer) validateProps(tpl *template.Component, props map[string]any, contextData any) []valtree.InvalidArg {
	var out []valtree.InvalidArg
	for _, p := range tpl.Params {
		pt, ok := tpl.Meta.Props[p.Name]
		if !ok {
			continue
		}
		value := props[p.Name]
		if pt.Required && value == nil {
			out = append(out, valtree.InvalidArg{Param: p, Type: valtree.ValidationRequired})
			continue
		}
		if value != nil && !typeMatches(pt.Type, value) {
			out = append(out, valtree.InvalidArg{
				Param:   p,
				Type:    valtree.ValidationCustom,
				Message: fmt.Sprintf("expected %s, got %T", pt.Type, value),
			})
			continue
		}
		if pt.Check != nil {
			if msg := runCheck(func() string { return pt.Check(value, props, contextData) }); msg != "" {
				out = append(out, valtree.InvalidArg{Param: p, Type: valtree.ValidationCustom, Message: msg})
				continue
			}
		}
		if pt.Validator == "" {
			continue
		}
		validate, ok := s.opts.validators[pt.Validator]
		if !ok {
			s.opts.logger.Warn("unknown prop validator", "validator", pt.Validator, "component", tpl.Name, "prop", p.Name)
			continue
		}
		in := ValidationInput{Value: value, Props: props, Options: pt.Options, ContextData: contextData, Path: []string{p.Name}}
		if msg := runCheck(func() string { return validate(in) }); msg != "" {
			out = append(out, valtree.InvalidArg{Param: p, Type: valtree.ValidationCustom, Message: msg})
		}
	}
	return out
}

// runCheck turns a panicking validator into a message.
func runCheck(check func() string) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("validator panicked: %v", r)
		}
	}()
	return check()
}

func typeMatches(want string, value any) bool {
	switch want {
	case "":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

func contextKey(frameID, instanceKey string) string {
	return frameID + "\x00" + instanceKey
}

package core

import (
	"slices"

	"valsync/internal/renderstate"
	"valsync/pkg/instance"
	"valsync/pkg/valtree"
)

// valPair ties the canonical node of a full key to the working node one
// instance contributed to it.
type valPair struct {
	cached  valtree.Val
	working valtree.Val
}

// argTable maps component instance key -> param uuid -> slot-argument roots.
// Tables stored in side tables are shared with later commits and are never
// mutated in place.
type argTable map[string]map[string][]valPair

// envTable maps component instance key -> param uuid -> slot env.
type envTable map[string]map[string]valtree.Env

// mergeArgs concatenates tables in order into a fresh table.
func mergeArgs(tables ...argTable) argTable {
	out := make(argTable)
	for _, t := range tables {
		for comp, params := range t {
			dst, ok := out[comp]
			if !ok {
				dst = make(map[string][]valPair, len(params))
				out[comp] = dst
			}
			for param, pairs := range params {
				merged := slices.Grow([]valPair(nil), len(dst[param])+len(pairs))
				merged = append(merged, dst[param]...)
				dst[param] = append(merged, pairs...)
			}
		}
	}
	return out
}

// withArg returns a copy of t with pair appended to comp/param.
func (t argTable) withArg(comp, param string, pair valPair) argTable {
	return mergeArgs(t, argTable{comp: {param: {pair}}})
}

// without returns t minus comp, copying only when comp is present.
func (t argTable) without(comp string) argTable {
	if _, ok := t[comp]; !ok {
		return t
	}
	out := make(argTable, len(t))
	for k, v := range t {
		if k != comp {
			out[k] = v
		}
	}
	return out
}

// mergeEnvs shallow-merges tables; a later table overrides an earlier one
// per component and param.
func mergeEnvs(tables ...envTable) envTable {
	out := make(envTable)
	for _, t := range tables {
		for comp, params := range t {
			dst, ok := out[comp]
			if !ok {
				dst = make(map[string]valtree.Env, len(params))
				out[comp] = dst
			}
			for param, env := range params {
				dst[param] = env
			}
		}
	}
	return out
}

func (t envTable) without(comp string) envTable {
	if _, ok := t[comp]; !ok {
		return t
	}
	out := make(envTable, len(t))
	for k, v := range t {
		if k != comp {
			out[k] = v
		}
	}
	return out
}

func cachedOf(pairs []valPair) []valtree.Val {
	out := make([]valtree.Val, len(pairs))
	for i, p := range pairs {
		out[i] = p.cached
	}
	return out
}

// gather merges what the children of n contributed in the last commit that
// touched them.
func (s *Synchronizer) gather(n instance.Node) ([]valPair, argTable, envTable) {
	var vals []valPair
	var args []argTable
	var envs []envTable
	for _, c := range n.Children() {
		vals = append(vals, s.subtrees[c]...)
		if t := s.args[c]; len(t) > 0 {
			args = append(args, t)
		}
		if t := s.envs[c]; len(t) > 0 {
			envs = append(envs, t)
		}
	}
	merged := mergeEnvs(envs...)
	if p, ok := n.(instance.SlotEnvProvider); ok {
		if env, ok := p.SlotEnv(); ok && env.ComponentKey != "" && env.ParamUUID != "" {
			merged = mergeEnvs(merged, envTable{env.ComponentKey: {env.ParamUUID: valtree.Env(env.Env)}})
		}
	}
	return vals, mergeArgs(args...), merged
}

// linkComponent attaches the slot arguments and slot envs addressed to comp
// and returns the tables with comp's entries removed.
func linkComponent(rs *renderstate.RenderState, comp *valtree.ValComponent, cachedKey string, args argTable, envs envTable) (argTable, envTable) {
	for param, pairs := range args[comp.Key] {
		p, ok := comp.Param(param)
		if !ok {
			continue
		}
		comp.SlotArgs[p.UUID] = cachedOf(pairs)
		for _, pair := range pairs {
			w := pair.working.Common()
			info := &valtree.SlotInfo{ParamUUID: p.UUID, ComponentKey: cachedKey}
			if comp.Tpl != nil && !comp.Tpl.Code && w.ParentKey != "" {
				if parent, ok := rs.FullKeyToVal(w.ParentKey); ok && parent.Kind() == valtree.KindSlot {
					info.SlotKey = w.ParentKey
				}
			}
			w.Slot = info
			_, _ = rs.RecomputeCachedVal(w.FullKey)
		}
	}
	for param, env := range envs[comp.Key] {
		if _, ok := comp.Param(param); ok {
			comp.SlotEnvs[param] = env
		}
	}
	return args.without(comp.Key), envs.without(comp.Key)
}

// link wires the gathered children into the working node of n, refreshes
// every affected cached node and returns what n propagates upward.
func (p *commitPass) link(n instance.Node, vals []valPair, args argTable, envs envTable) ([]valPair, argTable, envTable, error) {
	s := p.s
	cached, working := s.cached[n], s.working[n]
	if cached == nil || working == nil {
		return nil, nil, nil, invariantf("instance with key %q has no shadow node", instance.Value(n, instance.AttrValKey))
	}
	rs := s.frameState(working.Common().FrameID)
	fullKey := working.Common().FullKey

	for _, child := range vals {
		child.working.Common().ParentKey = fullKey
		if _, err := rs.RecomputeCachedVal(child.working.Common().FullKey); err != nil {
			return nil, nil, nil, err
		}
	}
	switch w := working.(type) {
	case *valtree.ValComponent:
		w.Contents = cachedOf(vals)
		args, envs = linkComponent(rs, w, fullKey, args, envs)
	case *valtree.ValTag:
		w.Children = cachedOf(vals)
	case *valtree.ValSlot:
		w.Contents = cachedOf(vals)
	}
	fresh, err := rs.RecomputeCachedVal(fullKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if fresh != nil && fresh != cached {
		cached = fresh
		s.cached[n] = fresh
	}

	self := valPair{cached: cached, working: working}
	comp := instance.Value(n, instance.AttrSlotArgComponent)
	param := instance.Value(n, instance.AttrSlotArgParam)
	if comp != "" && param != "" {
		args = args.withArg(comp, param, self)
	}
	if frameID := instance.Value(n, instance.AttrFrameID); frameID != "" {
		s.frame(frameID).root = cached
	}
	return []valPair{self}, args, envs, nil
}

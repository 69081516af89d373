package core

import (
	"valsync/pkg/instance"
	"valsync/pkg/template"
	"valsync/pkg/valtree"
)

// syntheticOwner is a placeholder owner created for a node whose declared
// owner was never visited. It lives on the stacks for the extent of that
// node only.
type syntheticOwner struct {
	ownerKey string
	// scope is the instance key of the innermost real owner, or "" at the top.
	scope   string
	working *valtree.ValComponent
	cached  valtree.Val
	pushed  bool
}

// synthesizeOwner recovers from an owner missing on the stack. The result is
// best effort: it keeps linkage going and yields a stable key for the same
// malformed shape, but it is not a reconstruction of the real owner.
func (p *commitPass) synthesizeOwner(n instance.Node, instanceKey, ownerKey string, rec *entryRecord) (*valtree.ValComponent, error) {
	s := p.s
	p.report(&UnexpectedOwnerError{InstanceKey: instanceKey, OwnerKey: ownerKey})
	if p.frameID == "" {
		return nil, invariantf("no frame id while synthesizing owner %q", ownerKey)
	}
	uuid := lastSegment(ownerKey)
	node, ok := s.catalog.Lookup(uuid)
	if !ok {
		return nil, &MissingTemplateError{InstanceKey: ownerKey, UUID: uuid}
	}
	tpl, ok := node.(*template.Component)
	if !ok {
		return nil, &MissingTemplateError{InstanceKey: ownerKey, UUID: uuid}
	}

	scope := ""
	var outer string
	if len(p.owners) > 0 {
		top := p.owners[len(p.owners)-1]
		scope = top.key
		outer = top.val.Common().FullKey
	}
	cloneIndex := p.counts.next(scope, SyntheticParam, ownerKey)
	p.counted[n] = append(p.counted[n], cloneRecord{comp: scope, param: SyntheticParam, key: ownerKey, index: cloneIndex})
	p.keys.push(ownerKey, cloneIndex)
	sy := &syntheticOwner{ownerKey: ownerKey, scope: scope, pushed: true}
	rec.synthetic = sy

	working := &valtree.ValComponent{
		Base: valtree.Base{
			Key:       ownerKey,
			FullKey:   p.keys.fullKey(ownerKey),
			FrameID:   p.frameID,
			OwnerKey:  outer,
			Instances: []instance.Node{n},
		},
		Tpl:       tpl,
		SlotArgs:  make(map[string][]valtree.Val),
		SlotEnvs:  make(map[string]valtree.Env),
		Synthetic: true,
	}
	s.synthetic[n] = working
	sy.working = working
	cached, err := s.frameState(p.frameID).RegisterVal(working)
	if err != nil {
		return nil, err
	}
	sy.cached = cached
	p.owners = append(p.owners, ownerFrame{node: n, key: ownerKey, val: cached})
	s.opts.logger.Warn("synthesized owner", "owner", ownerKey, "full_key", working.FullKey, "instance", instanceKey)
	comp, _ := cached.(*valtree.ValComponent)
	return comp, nil
}

// leaveSynthetic links what the node propagates into its synthetic owner and
// propagates the owner instead.
func (p *commitPass) leaveSynthetic(sy *syntheticOwner, vals []valPair, args argTable, envs envTable) ([]valPair, argTable, envTable, error) {
	rs := p.s.frameState(sy.working.FrameID)
	for _, child := range vals {
		child.working.Common().ParentKey = sy.working.FullKey
		if _, err := rs.RecomputeCachedVal(child.working.Common().FullKey); err != nil {
			return nil, nil, nil, err
		}
	}
	sy.working.Contents = cachedOf(vals)
	args, envs = linkComponent(rs, sy.working, sy.working.FullKey, args, envs)
	cached, err := rs.RecomputeCachedVal(sy.working.FullKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if cached == nil {
		return nil, nil, nil, invariantf("synthetic owner %s vanished", sy.working.FullKey)
	}
	self := valPair{cached: cached, working: sy.working}
	return []valPair{self}, args, envs, nil
}

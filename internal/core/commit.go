package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"valsync/internal/traverse"
	"valsync/pkg/instance"
	"valsync/pkg/valtree"
)

type ownerFrame struct {
	node instance.Node
	key  string
	val  valtree.Val
}

// entryRecord remembers what enter pushed for one node so leave pops exactly
// that, and a failed enter can undo it.
type entryRecord struct {
	instanceKey string
	pushedKey   bool
	pushedOwner bool
	synthetic   *syntheticOwner
	failed      bool
}

// commitPass is the traversal state of one commit. It implements
// traverse.Observer.
type commitPass struct {
	s        *Synchronizer
	ctx      context.Context
	seq      uint64
	frameID  string
	ancestor map[string]instance.Node
	keys     keyStack
	owners   []ownerFrame
	counts   cloneCounter
	entries  map[instance.Node]*entryRecord
	counted  map[instance.Node][]cloneRecord
	reported map[errorCategory]bool
	diags    []error
}

var _ traverse.Observer = (*commitPass)(nil)

func newCommitPass(ctx context.Context, s *Synchronizer, seq uint64, frameID string) *commitPass {
	return &commitPass{
		s:        s,
		ctx:      ctx,
		seq:      seq,
		frameID:  frameID,
		ancestor: make(map[string]instance.Node),
		counts:   make(cloneCounter),
		entries:  make(map[instance.Node]*entryRecord),
		counted:  make(map[instance.Node][]cloneRecord),
		reported: make(map[errorCategory]bool),
	}
}

// report surfaces err once per category and commit.
func (p *commitPass) report(err error) {
	cat := categorize(err)
	if p.reported[cat] {
		p.s.opts.logger.Debug("suppressed duplicate diagnostic", "error", err)
		return
	}
	p.reported[cat] = true
	p.diags = append(p.diags, err)
}

// Enter implements traverse.Observer.
func (p *commitPass) Enter(n instance.Node) {
	s := p.s
	s.commitOf[n] = p.seq
	s.keySigs[n] = p.keys.signature()
	if p.frameID == "" {
		p.frameID = instance.Value(n, instance.AttrFrameID)
	}
	s.cleanupInstance(n)
	if alt := n.Alternate(); alt != nil {
		s.cleanupInstance(alt)
	}

	valKey := instance.Value(n, instance.AttrValKey)
	instanceKey := ""
	if valKey != "" {
		if _, dup := p.ancestor[valKey]; !dup {
			instanceKey = valKey
		}
	}
	placeholderKey := instance.Value(n, instance.AttrSlotPlaceholder)
	if instanceKey == "" && placeholderKey == "" {
		return
	}
	cloneIndex, counted := countClone(n, valKey, p.counts)
	if counted != nil {
		p.counted[n] = append(p.counted[n], *counted)
	}

	rec := &entryRecord{}
	p.entries[n] = rec
	defer func() {
		if r := recover(); r != nil {
			p.failEnter(n, rec, panicError(r))
		}
	}()
	var err error
	if instanceKey != "" {
		err = p.enterVal(n, instanceKey, cloneIndex, rec)
	} else {
		err = p.enterPlaceholder(n, placeholderKey, cloneIndex)
	}
	if err != nil {
		p.failEnter(n, rec, err)
	}
}

func (p *commitPass) enterVal(n instance.Node, instanceKey string, cloneIndex int, rec *entryRecord) error {
	s := p.s
	p.ancestor[instanceKey] = n
	rec.instanceKey = instanceKey

	var owner *valtree.ValComponent
	if ownerKey := instance.Value(n, instance.AttrOwner); ownerKey != "" {
		found, ok, err := p.findOwner(ownerKey)
		if err != nil {
			return err
		}
		if !ok {
			found, err = p.synthesizeOwner(n, instanceKey, ownerKey, rec)
			if err != nil {
				return err
			}
		}
		owner = found
	}

	p.keys.push(instanceKey, cloneIndex)
	rec.pushedKey = true
	fullKey := p.keys.fullKey(instanceKey)
	if p.frameID == "" {
		return fmt.Errorf("%w for %q", ErrNoFrame, instanceKey)
	}

	working, err := s.newVal(n, instanceKey, fullKey, p.frameID, owner)
	if err != nil {
		return err
	}
	s.working[n] = working
	cached, err := s.frameState(p.frameID).RegisterVal(working)
	if err != nil {
		return err
	}
	if cached == nil {
		return invariantf("registering %s yielded no cached node", fullKey)
	}
	s.cached[n] = cached
	p.owners = append(p.owners, ownerFrame{node: n, key: instanceKey, val: cached})
	rec.pushedOwner = true
	return nil
}

// findOwner returns the innermost owner frame with key ownerKey.
func (p *commitPass) findOwner(ownerKey string) (*valtree.ValComponent, bool, error) {
	for i := len(p.owners) - 1; i >= 0; i-- {
		if p.owners[i].key != ownerKey {
			continue
		}
		comp, ok := p.owners[i].val.(*valtree.ValComponent)
		if !ok {
			return nil, false, fmt.Errorf("owner %q is a %s, not a component", ownerKey, p.owners[i].val.Kind())
		}
		return comp, true, nil
	}
	return nil, false, nil
}

func (p *commitPass) enterPlaceholder(n instance.Node, placeholderKey string, cloneIndex int) error {
	compKey, param, ok := strings.Cut(placeholderKey, "~")
	if !ok || compKey == "" || param == "" {
		return fmt.Errorf("%w: %q", ErrBadPlaceholder, placeholderKey)
	}
	if p.frameID == "" {
		return fmt.Errorf("%w for placeholder %q", ErrNoFrame, placeholderKey)
	}
	compFullKey := p.keys.fullKey(compKey)
	fullKey := fmt.Sprintf("%s~%s[%d]", compFullKey, param, cloneIndex)
	p.s.frameState(p.frameID).RegisterSlotPlaceholder(fullKey, n, compFullKey, param)
	p.s.placeholders[n] = placeholderRecord{frameID: p.frameID, fullKey: fullKey}
	return nil
}

// failEnter cleans n up, undoes its pushes and reports err.
func (p *commitPass) failEnter(n instance.Node, rec *entryRecord, err error) {
	p.s.cleanupInstance(n)
	p.unwind(n, rec)
	if rec.instanceKey != "" && p.ancestor[rec.instanceKey] == n {
		delete(p.ancestor, rec.instanceKey)
	}
	rec.failed = true
	p.report(err)
}

// unwind pops whatever rec pushed, innermost first.
func (p *commitPass) unwind(n instance.Node, rec *entryRecord) {
	if rec.pushedOwner {
		p.popOwner(n, rec.instanceKey)
		rec.pushedOwner = false
	}
	if rec.pushedKey {
		p.popKey(rec.instanceKey)
		rec.pushedKey = false
	}
	if sy := rec.synthetic; sy != nil && sy.pushed {
		p.popOwner(n, sy.ownerKey)
		p.popKey(sy.ownerKey)
		p.counts.reset(sy.ownerKey)
		sy.pushed = false
	}
}

func (p *commitPass) popKey(key string) {
	if !p.keys.pop(key) {
		p.report(invariantf("expected %q on top of the instance key stack", key))
	}
}

func (p *commitPass) popOwner(n instance.Node, key string) {
	last := len(p.owners) - 1
	if last >= 0 && p.owners[last].node == n && p.owners[last].key == key {
		p.owners = p.owners[:last]
		return
	}
	for i := last; i >= 0; i-- {
		if p.owners[i].node == n && p.owners[i].key == key {
			p.owners = append(p.owners[:i], p.owners[i+1:]...)
			break
		}
	}
	p.report(invariantf("expected %q on top of the owner stack", key))
}

// Leave implements traverse.Observer.
func (p *commitPass) Leave(n instance.Node) {
	s := p.s
	rec := p.entries[n]
	delete(p.entries, n)

	vals, args, envs := s.gather(n)
	s.envs[n] = envs
	clones := p.gatherClones(n)

	if rec != nil && rec.failed {
		var scopes []string
		if rec.instanceKey != "" {
			scopes = append(scopes, rec.instanceKey)
		}
		if rec.synthetic != nil {
			scopes = append(scopes, rec.synthetic.ownerKey)
		}
		for _, scope := range scopes {
			p.counts.reset(scope)
		}
		s.clones[n] = dropScopes(clones, scopes...)
		s.removeChildren(n)
		s.abandon(n)
		return
	}
	if rec == nil || rec.instanceKey == "" || p.ancestor[rec.instanceKey] != n {
		s.subtrees[n] = vals
		s.args[n] = args
		s.clones[n] = clones
		return
	}
	delete(p.ancestor, rec.instanceKey)
	p.counts.reset(rec.instanceKey)
	sy := rec.synthetic
	if sy != nil {
		clones = dropScopes(clones, rec.instanceKey, sy.ownerKey)
	} else {
		clones = dropScopes(clones, rec.instanceKey)
	}
	s.clones[n] = clones
	p.unwind(n, rec)

	out, outArgs, outEnvs, err := p.safeLink(n, vals, args, envs)
	if err == nil && sy != nil {
		out, outArgs, outEnvs, err = p.leaveSynthetic(sy, out, outArgs, outEnvs)
	}
	if err != nil {
		s.cleanupInstance(n)
		s.abandon(n)
		p.report(err)
		return
	}
	s.subtrees[n] = out
	s.args[n] = outArgs
	s.envs[n] = outEnvs
}

// gatherClones returns the clone counts n and its children took, in the
// order they were taken.
func (p *commitPass) gatherClones(n instance.Node) []cloneRecord {
	out := p.counted[n]
	delete(p.counted, n)
	for _, c := range n.Children() {
		out = append(out, p.s.clones[c]...)
	}
	return out
}

func (p *commitPass) safeLink(n instance.Node, vals []valPair, args argTable, envs envTable) (out []valPair, outArgs argTable, outEnvs envTable, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return p.link(n, vals, args, envs)
}

// EnterUnchanged implements traverse.Observer. It replays the clone counts
// recorded under n so later siblings get the indices a full traversal would
// give them. When n would now derive different keys, because it moved to
// another clone index or its ancestors' indices changed, the subtree is
// dropped and entered again.
func (p *commitPass) EnterUnchanged(n instance.Node) {
	s := p.s
	recs := s.clones[n]
	if sig, ok := s.keySigs[n]; ok && sig == p.keys.signature() && p.counts.matches(recs) {
		p.counts.replay(recs)
		return
	}
	s.opts.logger.Debug("re-entering moved subtree", "key", instance.Value(n, instance.AttrValKey))
	s.removeSubtree(n)
	traverse.Tree(n, p)
}

// Remove implements traverse.Observer.
func (p *commitPass) Remove(n instance.Node) {
	p.s.removeSubtree(n)
}

// finish checks the traversal stacks and returns the commit diagnostics.
func (p *commitPass) finish() []error {
	if len(p.keys) > 0 || len(p.owners) > 0 || len(p.ancestor) > 0 {
		p.report(invariantf("traversal stacks not empty at commit end: %d keys, %d owners, %d ancestors",
			len(p.keys), len(p.owners), len(p.ancestor)))
		p.keys, p.owners = nil, nil
		clear(p.ancestor)
	}
	return p.diags
}

func joinDiagnostics(diags []error) error {
	if len(diags) == 0 {
		return nil
	}
	return errors.Join(diags...)
}

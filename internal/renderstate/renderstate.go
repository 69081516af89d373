// Package renderstate holds the per-frame registry that maps full keys to
// canonical shadow nodes.
//
// Several working nodes may be registered under one full key within a
// commit (wrapper components forwarding the same identity marker). The
// registry merges them into one cached node whose object identity is stable
// for as long as the key stays registered, so consumers holding a reference
// keep seeing updates.
package renderstate

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"valsync/pkg/instance"
	"valsync/pkg/template"
	"valsync/pkg/valtree"
)

// ErrKindMismatch reports working nodes of different variants registered
// under one full key.
var ErrKindMismatch = errors.New("working vals of mixed kinds")

type entry struct {
	working []valtree.Val
	cached  valtree.Val
	tpl     string
}

func (e *entry) live() bool { return len(e.working) > 0 }

type placeholder struct {
	key          string
	inst         instance.Node
	componentKey string
	paramUUID    string
}

// RenderState is the registry of one frame. It is safe for concurrent use,
// although the synchronizer only touches it from within a commit.
type RenderState struct {
	mu      sync.RWMutex
	frameID string
	vals    map[string]*entry
	// template uuid -> full keys, live entries only
	tplKeys map[string]map[string]struct{}

	placeholders map[string]placeholder
	// placeholder key (`<component key>~<param>`) -> full placeholder keys
	placeholderKeys map[string][]string
}

// New returns an empty registry for frameID.
func New(frameID string) *RenderState {
	rs := &RenderState{frameID: frameID}
	rs.reset()
	return rs
}

func (rs *RenderState) reset() {
	rs.vals = make(map[string]*entry)
	rs.tplKeys = make(map[string]map[string]struct{})
	rs.placeholders = make(map[string]placeholder)
	rs.placeholderKeys = make(map[string][]string)
}

// FrameID returns the frame the registry belongs to.
func (rs *RenderState) FrameID() string { return rs.frameID }

// RegisterVal adds a working node and returns the canonical cached node for
// its full key. Registering the same node twice is a no-op.
func (rs *RenderState) RegisterVal(v valtree.Val) (valtree.Val, error) {
	if v == nil {
		return nil, fmt.Errorf("register val: nil node")
	}
	fullKey := v.Common().FullKey
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.vals[fullKey]
	if !ok {
		e = &entry{}
		rs.vals[fullKey] = e
	}
	if !slices.Contains(e.working, v) {
		e.working = append(e.working, v)
	}
	if tpl := v.Template(); tpl != nil {
		rs.indexTemplate(e, fullKey, tpl.UUID())
	}
	return rs.recompute(fullKey)
}

func (rs *RenderState) indexTemplate(e *entry, fullKey, uuid string) {
	if e.tpl != "" && e.tpl != uuid {
		rs.dropTemplate(e.tpl, fullKey)
	}
	e.tpl = uuid
	keys, ok := rs.tplKeys[uuid]
	if !ok {
		keys = make(map[string]struct{})
		rs.tplKeys[uuid] = keys
	}
	keys[fullKey] = struct{}{}
}

func (rs *RenderState) dropTemplate(uuid, fullKey string) {
	keys := rs.tplKeys[uuid]
	delete(keys, fullKey)
	if len(keys) == 0 {
		delete(rs.tplKeys, uuid)
	}
}

// UnregisterVal removes one working node. The cached node is recomputed from
// the remaining working nodes. When none remain the key stops resolving, but
// the cached object is kept until Sweep so a re-registration within the same
// commit keeps its identity.
func (rs *RenderState) UnregisterVal(v valtree.Val) {
	if v == nil {
		return
	}
	fullKey := v.Common().FullKey
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.vals[fullKey]
	if !ok {
		return
	}
	idx := slices.Index(e.working, v)
	if idx < 0 {
		return
	}
	e.working = slices.Delete(e.working, idx, idx+1)
	if !e.live() {
		rs.dropTemplate(e.tpl, fullKey)
		e.tpl = ""
		return
	}
	// remaining working nodes share a kind, so this cannot fail
	_, _ = rs.recompute(fullKey)
}

// UnregisterFromKey drops every working node and the cached node of fullKey.
func (rs *RenderState) UnregisterFromKey(fullKey string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.vals[fullKey]
	if !ok {
		return
	}
	if e.tpl != "" {
		rs.dropTemplate(e.tpl, fullKey)
	}
	delete(rs.vals, fullKey)
}

// RecomputeCachedVal rebuilds the cached node of fullKey from its working
// nodes: the first working node is cloned and every working node is merged
// into the clone in registration order. The result is copied into the
// existing cached object when the variant matches and replaces it otherwise.
// It returns nil when nothing is registered under fullKey.
func (rs *RenderState) RecomputeCachedVal(fullKey string) (valtree.Val, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.recompute(fullKey)
}

func (rs *RenderState) recompute(fullKey string) (valtree.Val, error) {
	e, ok := rs.vals[fullKey]
	if !ok || !e.live() {
		return nil, nil
	}
	kind := e.working[0].Kind()
	for _, w := range e.working[1:] {
		if w.Kind() != kind {
			return nil, fmt.Errorf("recompute %s: %s and %s: %w", fullKey, kind, w.Kind(), ErrKindMismatch)
		}
	}
	merged := e.working[0].Clone()
	for _, w := range e.working {
		merged.Merge(w)
	}
	if e.cached != nil && e.cached.Kind() == merged.Kind() {
		e.cached.CopyFrom(merged)
	} else {
		e.cached = merged
	}
	return e.cached, nil
}

// FullKeyToVal returns the cached node of a registered full key.
func (rs *RenderState) FullKeyToVal(fullKey string) (valtree.Val, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	e, ok := rs.vals[fullKey]
	if !ok || !e.live() || e.cached == nil {
		return nil, false
	}
	return e.cached, true
}

// Working returns the working nodes registered under fullKey.
func (rs *RenderState) Working(fullKey string) []valtree.Val {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if e, ok := rs.vals[fullKey]; ok {
		return slices.Clone(e.working)
	}
	return nil
}

// Len returns the number of registered full keys.
func (rs *RenderState) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	n := 0
	for _, e := range rs.vals {
		if e.live() {
			n++
		}
	}
	return n
}

// FullKeys returns the registered full keys in sorted order.
func (rs *RenderState) FullKeys() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, 0, len(rs.vals))
	for k, e := range rs.vals {
		if e.live() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep forgets cached nodes whose full key has no working node left. The
// synchronizer calls it once at the end of every commit.
func (rs *RenderState) Sweep() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	n := 0
	for k, e := range rs.vals {
		if !e.live() {
			delete(rs.vals, k)
			n++
		}
	}
	return n
}

// RegisterSlotPlaceholder records the placeholder rendered by inst for the
// slot param of the component at componentKey. fullKey is
// `<component full key>~<param>[<clone index>]`.
func (rs *RenderState) RegisterSlotPlaceholder(fullKey string, inst instance.Node, componentKey, paramUUID string) {
	key := componentKey + "~" + paramUUID
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.placeholders[fullKey] = placeholder{key: key, inst: inst, componentKey: componentKey, paramUUID: paramUUID}
	if !slices.Contains(rs.placeholderKeys[key], fullKey) {
		rs.placeholderKeys[key] = append(rs.placeholderKeys[key], fullKey)
	}
}

// UnregisterSlotPlaceholder removes the record at fullKey, but only when inst
// is still the instance that registered it.
func (rs *RenderState) UnregisterSlotPlaceholder(fullKey string, inst instance.Node) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	p, ok := rs.placeholders[fullKey]
	if !ok || p.inst != inst {
		return
	}
	delete(rs.placeholders, fullKey)
	keys := slices.DeleteFunc(rs.placeholderKeys[p.key], func(k string) bool { return k == fullKey })
	if len(keys) == 0 {
		delete(rs.placeholderKeys, p.key)
		return
	}
	rs.placeholderKeys[p.key] = keys
}

// SlotPlaceholderLen returns the number of placeholder records.
func (rs *RenderState) SlotPlaceholderLen() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.placeholders)
}

// ResolveSlotPlaceholder turns the placeholder at fullKey into a selection of
// the owning component's slot param. The component is looked up at call
// time, so the selection always reflects the current registry.
func (rs *RenderState) ResolveSlotPlaceholder(fullKey string) (valtree.SlotSelection, bool) {
	rs.mu.RLock()
	p, ok := rs.placeholders[fullKey]
	rs.mu.RUnlock()
	if !ok {
		return valtree.SlotSelection{}, false
	}
	v, ok := rs.FullKeyToVal(p.componentKey)
	if !ok {
		return valtree.SlotSelection{}, false
	}
	comp, ok := v.(*valtree.ValComponent)
	if !ok {
		return valtree.SlotSelection{}, false
	}
	param, ok := comp.Param(p.paramUUID)
	if !ok {
		return valtree.SlotSelection{}, false
	}
	return valtree.SlotSelection{Component: comp, Param: param}, true
}

// TplToFullKeys returns the registered full keys rendered from the template
// node uuid, sorted.
func (rs *RenderState) TplToFullKeys(uuid string) []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, 0, len(rs.tplKeys[uuid]))
	for k := range rs.tplKeys[uuid] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BestVal returns the node rendered from tpl that lies along anchor's
// branch, or the first one in key order when anchor is empty.
func (rs *RenderState) BestVal(tpl template.Node, anchor string) (valtree.Val, bool) {
	if tpl == nil {
		return nil, false
	}
	best := BestFullKey(rs.TplToFullKeys(tpl.UUID()), anchor)
	if best == "" {
		return nil, false
	}
	return rs.FullKeyToVal(best)
}

// BestSlotPlaceholder picks the placeholder full key registered for key
// (`<component key>~<param>`) whose component lies along anchor's branch.
func (rs *RenderState) BestSlotPlaceholder(key, anchor string) (string, bool) {
	rs.mu.RLock()
	fullKeys := slices.Clone(rs.placeholderKeys[key])
	rs.mu.RUnlock()
	comps := make([]string, 0, len(fullKeys))
	params := make(map[string]string, len(fullKeys))
	for _, fk := range fullKeys {
		comp, param, ok := strings.Cut(fk, "~")
		if !ok {
			continue
		}
		comps = append(comps, comp)
		if _, seen := params[comp]; !seen {
			params[comp] = param
		}
	}
	anchorComp, _, _ := strings.Cut(anchor, "~")
	best := BestFullKey(comps, anchorComp)
	if best == "" {
		return "", false
	}
	return best + "~" + params[best], true
}

// BestFullKey selects, among fullKeys, the one sharing the longest
// dot-separated prefix with anchor. An exact match wins; with an empty anchor
// the smallest key wins; ties go to the earliest candidate.
func BestFullKey(fullKeys []string, anchor string) string {
	if len(fullKeys) == 0 {
		return ""
	}
	if anchor == "" {
		return slices.Min(fullKeys)
	}
	if slices.Contains(fullKeys, anchor) {
		return anchor
	}
	anchorParts := strings.Split(anchor, ".")
	best, bestN := "", -1
	for _, fk := range fullKeys {
		n := matchingParts(strings.Split(fk, "."), anchorParts)
		if n > bestN {
			best, bestN = fk, n
		}
	}
	return best
}

func matchingParts(parts, anchor []string) int {
	for i, p := range parts {
		if i >= len(anchor) || p != anchor[i] {
			return i
		}
	}
	return len(parts)
}

// Dispose empties the registry.
func (rs *RenderState) Dispose() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.reset()
}

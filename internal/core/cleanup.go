package core

import "valsync/pkg/instance"

type placeholderRecord struct {
	frameID string
	fullKey string
}

// cleanupInstance drops the shadow nodes and placeholder record n
// contributed. The side tables n propagated upward are left alone; they
// describe the last commit that touched n.
func (s *Synchronizer) cleanupInstance(n instance.Node) {
	if w, ok := s.working[n]; ok {
		if f, ok := s.frames[w.Common().FrameID]; ok {
			f.state.UnregisterVal(w)
		}
		delete(s.working, n)
	}
	delete(s.cached, n)
	if w, ok := s.synthetic[n]; ok {
		if f, ok := s.frames[w.FrameID]; ok {
			f.state.UnregisterVal(w)
		}
		delete(s.synthetic, n)
	}
	if ph, ok := s.placeholders[n]; ok {
		if f, ok := s.frames[ph.frameID]; ok {
			f.state.UnregisterSlotPlaceholder(ph.fullKey, n)
		}
		delete(s.placeholders, n)
	}
}

// evict forgets every side-table entry of n.
func (s *Synchronizer) evict(n instance.Node) {
	s.cleanupInstance(n)
	delete(s.subtrees, n)
	delete(s.args, n)
	delete(s.envs, n)
	delete(s.commitOf, n)
	delete(s.clones, n)
	delete(s.keySigs, n)
}

// abandon leaves n contributing nothing upward.
func (s *Synchronizer) abandon(n instance.Node) {
	s.subtrees[n] = nil
	s.args[n] = nil
	s.envs[n] = nil
}

// removeSubtree cleans n, its descendants and their previous-commit
// counterparts.
func (s *Synchronizer) removeSubtree(n instance.Node) int {
	removed := 0
	seen := make(map[instance.Node]struct{})
	var walk func(instance.Node)
	walk = func(m instance.Node) {
		if m == nil {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		if _, ok := s.working[m]; ok {
			removed++
		}
		s.evict(m)
		if alt := m.Alternate(); alt != nil {
			walk(alt)
		}
		for _, c := range m.Children() {
			walk(c)
		}
	}
	walk(n)
	return removed
}

func (s *Synchronizer) removeChildren(n instance.Node) {
	for _, c := range n.Children() {
		s.removeSubtree(c)
	}
}

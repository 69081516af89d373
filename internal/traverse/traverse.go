// Package traverse drives depth-first walks over render-instance trees,
// either over a whole tree or scoped to what changed since the previous
// commit.
package traverse

import "valsync/pkg/instance"

// Observer receives traversal callbacks.
type Observer interface {
	// Enter runs before the node's children are visited.
	Enter(n instance.Node)
	// Leave runs after all of the node's children were visited.
	Leave(n instance.Node)
	// EnterUnchanged runs instead of Enter/Leave for a subtree that is
	// identical to the previous commit. The subtree is not descended into.
	EnterUnchanged(n instance.Node)
	// Remove reports a previous-commit subtree with no counterpart in the
	// current commit.
	Remove(n instance.Node)
}

// Tree visits every node under root in pre/post order, children in render
// order.
func Tree(root instance.Node, obs Observer) {
	if root == nil {
		return
	}
	obs.Enter(root)
	for _, c := range root.Children() {
		Tree(c, obs)
	}
	obs.Leave(root)
}

// Updates walks next against its previous-commit counterpart prev. Children
// identical to a previous child and not dirty are reported through
// EnterUnchanged; new children are walked fully; matched children that
// changed are walked incrementally; previous children left unmatched are
// reported through Remove after the current children were visited.
func Updates(next, prev instance.Node, obs Observer) {
	if next == nil {
		if prev != nil {
			obs.Remove(prev)
		}
		return
	}
	if prev == nil {
		Tree(next, obs)
		return
	}
	obs.Enter(next)
	prevKids := prev.Children()
	used := make([]bool, len(prevKids))
	for _, c := range next.Children() {
		idx := counterpart(c, prevKids, used)
		switch {
		case idx < 0:
			Tree(c, obs)
		case prevKids[idx] == c && !c.Dirty():
			used[idx] = true
			obs.EnterUnchanged(c)
		default:
			used[idx] = true
			Updates(c, prevKids[idx], obs)
		}
	}
	for i, pk := range prevKids {
		if !used[i] {
			obs.Remove(pk)
		}
	}
	obs.Leave(next)
}

// counterpart finds the previous child c replaced or reused: the identical
// node first, then the node recorded as c's alternate.
func counterpart(c instance.Node, prevKids []instance.Node, used []bool) int {
	for i, pk := range prevKids {
		if !used[i] && pk == c {
			return i
		}
	}
	alt := c.Alternate()
	if alt == nil {
		return -1
	}
	for i, pk := range prevKids {
		if !used[i] && pk == alt {
			return i
		}
	}
	return -1
}

package core

import (
	"slices"
	"strconv"
	"strings"

	"valsync/pkg/instance"
)

// SyntheticParam is the reserved param id synthetic owners are counted
// under.
const SyntheticParam = "__synthetic_owner"

// placeholderValKey counts slot placeholders that carry no identity marker.
const placeholderValKey = "placeholder"

// cloneCounter counts slot-argument roots per (component key, param,
// instance key). Counts for a component are dropped when traversal leaves it.
type cloneCounter map[string]map[string]map[string]int

// next returns the number of roots seen so far and counts one more.
func (c cloneCounter) next(componentKey, param, instanceKey string) int {
	params, ok := c[componentKey]
	if !ok {
		params = make(map[string]map[string]int)
		c[componentKey] = params
	}
	keys, ok := params[param]
	if !ok {
		keys = make(map[string]int)
		params[param] = keys
	}
	n := keys[instanceKey]
	keys[instanceKey] = n + 1
	return n
}

func (c cloneCounter) reset(componentKey string) {
	delete(c, componentKey)
}

// cloneRecord is one clone index handed out by the counter.
type cloneRecord struct {
	comp  string
	param string
	key   string
	index int
}

// matches reports whether replaying recs from the current counts would hand
// out the recorded indices again.
func (c cloneCounter) matches(recs []cloneRecord) bool {
	pending := make(map[[3]string]int)
	for _, r := range recs {
		id := [3]string{r.comp, r.param, r.key}
		if c[r.comp][r.param][r.key]+pending[id] != r.index {
			return false
		}
		pending[id]++
	}
	return true
}

func (c cloneCounter) replay(recs []cloneRecord) {
	for _, r := range recs {
		c.next(r.comp, r.param, r.key)
	}
}

// dropScopes returns recs without the records counted under the given
// component keys. recs is modified in place.
func dropScopes(recs []cloneRecord, scopes ...string) []cloneRecord {
	if len(scopes) == 0 {
		return recs
	}
	return slices.DeleteFunc(recs, func(r cloneRecord) bool {
		return slices.Contains(scopes, r.comp)
	})
}

type keyFrame struct {
	key   string
	clone int
}

// keyStack is the instance-key / clone-index stack of one commit.
type keyStack []keyFrame

func (s *keyStack) push(key string, clone int) {
	*s = append(*s, keyFrame{key: key, clone: clone})
}

// pop removes the topmost frame for key. It reports false when key was not
// on top, in which case the most recent frame for key (if any) is removed.
func (s *keyStack) pop(key string) bool {
	st := *s
	if n := len(st); n > 0 && st[n-1].key == key {
		*s = st[:n-1]
		return true
	}
	for i := len(st) - 1; i >= 0; i-- {
		if st[i].key == key {
			*s = append(st[:i], st[i+1:]...)
			break
		}
	}
	return false
}

// fullKey qualifies every dot-separated prefix of instanceKey with the clone
// index most recently pushed for that exact prefix.
func (s keyStack) fullKey(instanceKey string) string {
	var b strings.Builder
	prefix := ""
	for i, seg := range strings.Split(instanceKey, ".") {
		if i == 0 {
			prefix = seg
		} else {
			prefix += "." + seg
			b.WriteByte('.')
		}
		b.WriteString(seg)
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(s.cloneOf(prefix)))
		b.WriteByte(']')
	}
	return b.String()
}

// signature identifies the stack contents. Two nodes entered under equal
// signatures derive equal full keys for equal instance keys.
func (s keyStack) signature() string {
	var b strings.Builder
	for _, f := range s {
		b.WriteString(f.key)
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(f.clone))
		b.WriteString("]/")
	}
	return b.String()
}

func (s keyStack) cloneOf(prefix string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].key == prefix {
			return s[i].clone
		}
	}
	return 0
}

// deriveCloneIndex computes the clone index of n. Slot-argument roots are
// numbered by the counter; otherwise the explicit repetition index applies.
func deriveCloneIndex(n instance.Node, valKey string, counts cloneCounter) int {
	idx, _ := countClone(n, valKey, counts)
	return idx
}

// countClone is deriveCloneIndex that also returns the record of the count
// it took, if any.
func countClone(n instance.Node, valKey string, counts cloneCounter) (int, *cloneRecord) {
	comp := instance.Value(n, instance.AttrSlotArgComponent)
	param := instance.Value(n, instance.AttrSlotArgParam)
	if comp != "" && param != "" {
		if valKey == "" {
			valKey = placeholderValKey
		}
		idx := counts.next(comp, param, valKey)
		return idx, &cloneRecord{comp: comp, param: param, key: valKey, index: idx}
	}
	if raw, ok := n.Annotation(instance.AttrCloneIndex); ok {
		if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 {
			return idx, nil
		}
	}
	return 0, nil
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

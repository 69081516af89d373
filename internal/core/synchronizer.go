package core

import (
	"context"
	"sort"
	"sync"

	"valsync/internal/renderstate"
	"valsync/internal/traverse"
	"valsync/pkg/instance"
	"valsync/pkg/template"
	"valsync/pkg/valtree"
)

// Metric and span names.
const (
	OpCommitFull        = "commit.full"
	OpCommitIncremental = "commit.incremental"
	OpUnmount           = "unmount"
)

type frame struct {
	id    string
	state *renderstate.RenderState
	root  valtree.Val
}

// Synchronizer keeps a shadow Val tree per frame in sync with the commits of
// a rendering engine. It implements instance.Hook.
type Synchronizer struct {
	mu      sync.Mutex
	catalog template.Catalog
	opts    options
	plugins map[string]PluginMetadata

	engine   instance.Engine
	prevHook instance.Hook
	disposed bool

	frames     map[string]*frame
	knownRoots map[instance.Root]string
	seq        uint64

	cached       map[instance.Node]valtree.Val
	working      map[instance.Node]valtree.Val
	synthetic    map[instance.Node]*valtree.ValComponent
	placeholders map[instance.Node]placeholderRecord
	subtrees     map[instance.Node][]valPair
	args         map[instance.Node]argTable
	envs         map[instance.Node]envTable
	commitOf     map[instance.Node]uint64
	clones       map[instance.Node][]cloneRecord
	keySigs      map[instance.Node]string
	contextData  map[string]any
}

var _ instance.Hook = (*Synchronizer)(nil)

// New constructs a synchronizer resolving templates through catalog.
func New(catalog template.Catalog, opts ...Option) *Synchronizer {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.reporter == nil {
		o.reporter = logReporter{logger: o.logger}
	}
	if catalog == nil {
		catalog = template.NewMemoryCatalog()
	}
	s := &Synchronizer{
		catalog: catalog,
		opts:    o,
		plugins: make(map[string]PluginMetadata),
	}
	s.resetTables()
	return s
}

func (s *Synchronizer) resetTables() {
	s.frames = make(map[string]*frame)
	s.knownRoots = make(map[instance.Root]string)
	s.cached = make(map[instance.Node]valtree.Val)
	s.working = make(map[instance.Node]valtree.Val)
	s.synthetic = make(map[instance.Node]*valtree.ValComponent)
	s.placeholders = make(map[instance.Node]placeholderRecord)
	s.subtrees = make(map[instance.Node][]valPair)
	s.args = make(map[instance.Node]argTable)
	s.envs = make(map[instance.Node]envTable)
	s.commitOf = make(map[instance.Node]uint64)
	s.clones = make(map[instance.Node][]cloneRecord)
	s.keySigs = make(map[instance.Node]string)
	s.contextData = make(map[string]any)
}

// Install attaches a new synchronizer to engine. A synchronizer installed
// earlier is disposed and replaced; any other hook keeps receiving events
// after the synchronizer handled them.
func Install(engine instance.Engine, catalog template.Catalog, opts ...Option) *Synchronizer {
	s := New(catalog, opts...)
	prev := engine.Hook()
	if old, ok := prev.(*Synchronizer); ok {
		old.mu.Lock()
		chained := old.prevHook
		old.mu.Unlock()
		old.Dispose()
		s.prevHook = chained
	} else if prev != nil {
		s.prevHook = prev
	}
	s.engine = engine
	engine.SetHook(s)
	s.opts.logger.Info("synchronizer installed", "chained", s.prevHook != nil)
	return s
}

func (s *Synchronizer) frame(id string) *frame {
	f, ok := s.frames[id]
	if !ok {
		f = &frame{id: id, state: renderstate.New(id)}
		s.frames[id] = f
	}
	return f
}

func (s *Synchronizer) frameState(id string) *renderstate.RenderState {
	return s.frame(id).state
}

// OnCommit implements instance.Hook. It never panics.
func (s *Synchronizer) OnCommit(ctx context.Context, root instance.Root) {
	next := s.commit(ctx, root)
	if next != nil {
		next.OnCommit(ctx, root)
	}
}

func (s *Synchronizer) commit(ctx context.Context, root instance.Root) instance.Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || root == nil {
		return s.prevHook
	}
	current := root.Current()
	if current == nil {
		return s.prevHook
	}
	frameID, known := s.knownRoots[root]
	previous := root.Previous()
	full := !known || previous == nil
	op := OpCommitIncremental
	if full {
		op = OpCommitFull
	}

	start := s.opts.clock.Now()
	ctx, span := s.opts.tracer.Start(ctx, op)
	s.seq++
	pass := newCommitPass(ctx, s, s.seq, frameID)
	func() {
		defer func() {
			if r := recover(); r != nil {
				pass.report(invariantf("commit aborted").withCause(panicError(r)))
			}
		}()
		if full {
			traverse.Tree(current, pass)
		} else {
			traverse.Updates(current, previous, pass)
		}
	}()
	diags := pass.finish()
	if pass.frameID != "" {
		s.knownRoots[root] = pass.frameID
	} else if !known {
		s.knownRoots[root] = ""
	}
	for _, f := range s.frames {
		f.state.Sweep()
	}
	for _, err := range diags {
		s.opts.reporter.ReportError(ctx, err)
	}
	err := joinDiagnostics(diags)
	duration := s.opts.clock.Now().Sub(start)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	s.opts.logger.Debug("commit synchronized", "op", op, "seq", s.seq, "frame", pass.frameID, "diagnostics", len(diags), "duration", duration)
	return s.prevHook
}

// OnUnmount implements instance.Hook. The whole subtree under n is cleaned
// up, including previous-commit counterparts.
func (s *Synchronizer) OnUnmount(ctx context.Context, n instance.Node) {
	next := s.unmount(ctx, n)
	if next != nil {
		next.OnUnmount(ctx, n)
	}
}

func (s *Synchronizer) unmount(ctx context.Context, n instance.Node) instance.Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || n == nil {
		return s.prevHook
	}
	start := s.opts.clock.Now()
	ctx, span := s.opts.tracer.Start(ctx, OpUnmount)
	var err error
	removed := 0
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		removed = s.removeSubtree(n)
	}()
	if err != nil {
		s.opts.reporter.ReportError(ctx, err)
	}
	s.opts.metrics.Observe(ctx, OpUnmount, err == nil, s.opts.clock.Now().Sub(start))
	span.End(err)
	s.opts.logger.Debug("instance unmounted", "removed", removed)
	return s.prevHook
}

// Root returns the current root Val of a frame.
func (s *Synchronizer) Root(frameID string) (valtree.Val, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[frameID]
	if !ok || f.root == nil {
		return nil, false
	}
	live, ok := f.state.FullKeyToVal(f.root.Common().FullKey)
	if !ok || live != f.root {
		return nil, false
	}
	return f.root, true
}

// Lookup returns the canonical node registered at fullKey in a frame.
func (s *Synchronizer) Lookup(frameID, fullKey string) (valtree.Val, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[frameID]
	if !ok {
		return nil, false
	}
	return f.state.FullKeyToVal(fullKey)
}

// ValOf returns the canonical node an instance maps to.
func (s *Synchronizer) ValOf(n instance.Node) (valtree.Val, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cached[n]
	return v, ok
}

// Owner resolves the owner of v through its frame registry.
func (s *Synchronizer) Owner(v valtree.Val) (*valtree.ValComponent, bool) {
	if v == nil || v.Common().OwnerKey == "" {
		return nil, false
	}
	owner, ok := s.Lookup(v.Common().FrameID, v.Common().OwnerKey)
	if !ok {
		return nil, false
	}
	comp, ok := owner.(*valtree.ValComponent)
	return comp, ok
}

// Parent resolves the parent of v through its frame registry.
func (s *Synchronizer) Parent(v valtree.Val) (valtree.Val, bool) {
	if v == nil || v.Common().ParentKey == "" {
		return nil, false
	}
	return s.Lookup(v.Common().FrameID, v.Common().ParentKey)
}

// ResolveSlotPlaceholder resolves a placeholder full key into a slot
// selection.
func (s *Synchronizer) ResolveSlotPlaceholder(frameID, fullKey string) (valtree.SlotSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[frameID]
	if !ok {
		return valtree.SlotSelection{}, false
	}
	return f.state.ResolveSlotPlaceholder(fullKey)
}

// RenderState exposes the registry of a frame.
func (s *Synchronizer) RenderState(frameID string) (*renderstate.RenderState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[frameID]
	if !ok {
		return nil, false
	}
	return f.state, true
}

// Frames lists the known frame ids.
func (s *Synchronizer) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for id := range s.frames {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MostRecent returns whichever of n and its alternate was visited by the
// later commit.
func (s *Synchronizer) MostRecent(n instance.Node) instance.Node {
	if n == nil {
		return nil
	}
	alt := n.Alternate()
	if alt == nil {
		return n
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitOf[alt] > s.commitOf[n] {
		return alt
	}
	return n
}

// SetContextData stores the data handed to prop validators of the code
// component with instanceKey in frameID. A nil value clears it.
func (s *Synchronizer) SetContextData(frameID, instanceKey string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contextKey(frameID, instanceKey)
	if data == nil {
		delete(s.contextData, key)
		return
	}
	s.contextData[key] = data
}

// Dispose tears down every registry and detaches from the engine. It is
// idempotent.
func (s *Synchronizer) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	for _, f := range s.frames {
		f.state.Dispose()
	}
	s.resetTables()
	engine, prev := s.engine, s.prevHook
	s.engine = nil
	s.mu.Unlock()

	if engine != nil {
		if current, ok := engine.Hook().(*Synchronizer); ok && current == s {
			engine.SetHook(prev)
		}
	}
	s.opts.logger.Info("synchronizer disposed")
}

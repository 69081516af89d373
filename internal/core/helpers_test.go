package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"valsync/pkg/instance"
	"valsync/pkg/instance/memtree"
	"valsync/pkg/template"
	"valsync/pkg/valtree"
)

const (
	testFrame = "main"
	testRoot  = "canvas"
)

type captureLogger struct {
	mu     sync.Mutex
	debugs int
	infos  int
	warns  []string
	errors int
}

func (l *captureLogger) Debug(string, ...any) { l.mu.Lock(); l.debugs++; l.mu.Unlock() }
func (l *captureLogger) Info(string, ...any)  { l.mu.Lock(); l.infos++; l.mu.Unlock() }
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *captureLogger) Error(string, ...any) { l.mu.Lock(); l.errors++; l.mu.Unlock() }

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureReporter struct {
	errs []error
}

func (r *captureReporter) ReportError(_ context.Context, err error) {
	r.errs = append(r.errs, err)
}

type captureHook struct {
	commits   int
	unmounted int
}

func (h *captureHook) OnCommit(context.Context, instance.Root) { h.commits++ }
func (h *captureHook) OnUnmount(context.Context, instance.Node) { h.unmounted++ }

// fakeNode is a hand-built instance node for unit tests that do not need an
// engine.
type fakeNode struct {
	attrs    map[string]string
	children []instance.Node
	alt      instance.Node
	dirty    bool
}

func (n *fakeNode) Children() []instance.Node { return n.children }
func (n *fakeNode) Alternate() instance.Node  { return n.alt }
func (n *fakeNode) Dirty() bool               { return n.dirty }
func (n *fakeNode) Props() map[string]any     { return nil }
func (n *fakeNode) Annotation(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

var itemsParam = template.Param{UUID: "items", Name: "items", Slot: true}

func testCatalog() *template.MemoryCatalog {
	return template.NewMemoryCatalog(
		&template.Component{ID: "Root", Name: "Root"},
		&template.Component{ID: "List", Name: "List", Params: []template.Param{itemsParam}},
		&template.Component{ID: "Card", Name: "Card"},
		&template.Component{ID: "Ghost", Name: "Ghost"},
		&template.Slot{ID: "ListSlot", Param: itemsParam},
		&template.Tag{ID: "Box", TagName: "div"},
		&template.Tag{ID: "Txt", TagName: "span", Text: true},
		&template.Tag{ID: "Title", TagName: "h3"},
	)
}

type harness struct {
	t        *testing.T
	engine   *memtree.Engine
	sync     *Synchronizer
	reporter *captureReporter
	metrics  *captureMetricsRecorder
	tracer   *captureTracer
	logger   *captureLogger
}

func newHarness(t *testing.T, catalog template.Catalog, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		engine:   memtree.NewEngine(),
		reporter: &captureReporter{},
		metrics:  &captureMetricsRecorder{},
		tracer:   &captureTracer{},
		logger:   &captureLogger{},
	}
	if catalog == nil {
		catalog = testCatalog()
	}
	base := []Option{
		WithErrorReporter(h.reporter),
		WithMetricsRecorder(h.metrics),
		WithTracer(h.tracer),
		WithLogger(h.logger),
	}
	h.sync = Install(h.engine, catalog, append(base, opts...)...)
	t.Cleanup(h.sync.Dispose)
	return h
}

func (h *harness) render(el memtree.Element) *memtree.Root {
	return h.engine.Render(context.Background(), testRoot, el)
}

func (h *harness) lookup(fullKey string) valtree.Val {
	h.t.Helper()
	v, ok := h.sync.Lookup(testFrame, fullKey)
	if !ok {
		h.t.Fatalf("full key %s not registered", fullKey)
	}
	return v
}

func (h *harness) component(fullKey string) *valtree.ValComponent {
	h.t.Helper()
	c, ok := h.lookup(fullKey).(*valtree.ValComponent)
	if !ok {
		h.t.Fatalf("%s is not a component", fullKey)
	}
	return c
}

func attrs(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func rootEl(children ...memtree.Element) memtree.Element {
	return memtree.Element{
		Key:      "root",
		Attrs:    attrs(instance.AttrValKey, "Root", instance.AttrFrameID, testFrame),
		Children: children,
	}
}

func listEl(children ...memtree.Element) memtree.Element {
	return memtree.Element{
		Key:   "list",
		Attrs: attrs(instance.AttrValKey, "List"),
		Children: []memtree.Element{
			{Key: "wrap", Children: children},
		},
	}
}

func cardEl(key string, props map[string]any) memtree.Element {
	return memtree.Element{
		Key: key,
		Attrs: attrs(
			instance.AttrValKey, "List.Card",
			instance.AttrSlotArgComponent, "List",
			instance.AttrSlotArgParam, "items",
		),
		Props: props,
	}
}

func titledCardEl(key string, props map[string]any) memtree.Element {
	el := cardEl(key, props)
	el.Children = []memtree.Element{tagEl(key+"-title", "List.Card.Title")}
	return el
}

func placeholderEl(key string, props map[string]any) memtree.Element {
	return memtree.Element{
		Key: key,
		Attrs: attrs(
			instance.AttrSlotPlaceholder, "List~items",
			instance.AttrSlotArgComponent, "List",
			instance.AttrSlotArgParam, "items",
		),
		Props: props,
	}
}

func tagEl(key, valKey string, children ...memtree.Element) memtree.Element {
	return memtree.Element{Key: key, Attrs: attrs(instance.AttrValKey, valKey), Children: children}
}

func fullKeys(vals []valtree.Val) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.Common().FullKey
	}
	return out
}

func findNode(r *memtree.Root, key string) *memtree.Node {
	return r.Tree().Find(func(n *memtree.Node) bool { return n.Key() == key })
}

// Command valsync-replay replays a YAML scenario of canvas commits through a
// synchronizer and prints the resulting Val trees.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"

	"valsync/internal/blob"
	"valsync/internal/catalog"
	"valsync/internal/core"
	"valsync/pkg/instance/memtree"
	"valsync/plugins/builtin"
)

const (
	exitOK          = 0
	exitDiagnostics = 1
	exitUsage       = 2
)

var (
	exitFunc = os.Exit
	isTTY    = func(f *os.File) bool { return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) }
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type replayConfig struct {
	scenario  string
	strict    bool
	snapshots bool
	metrics   bool
	trace     bool
	logLevel  string
	color     string
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("valsync-replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfg replayConfig
	fs.StringVar(&cfg.scenario, "scenario", "", "path to the scenario yaml")
	fs.BoolVar(&cfg.strict, "strict", false, "exit non-zero when diagnostics were reported")
	fs.BoolVar(&cfg.snapshots, "snapshots", false, "export a snapshot of every frame after each commit (VALSYNC_BLOB_* selects the store)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "print operation counters after the replay")
	fs.BoolVar(&cfg.trace, "trace", false, "write spans as JSON lines to stderr")
	fs.StringVar(&cfg.logLevel, "log-level", "warn", "debug|info|warn|error")
	fs.StringVar(&cfg.color, "color", "auto", "auto|always|never")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if cfg.scenario == "" {
		fmt.Fprintln(stderr, "valsync-replay: -scenario is required")
		fs.Usage()
		return exitUsage
	}
	color, err := resolveColor(cfg.color, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "valsync-replay: %v\n", err)
		return exitUsage
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		fmt.Fprintf(stderr, "valsync-replay: invalid log level %q\n", cfg.logLevel)
		return exitUsage
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	sc, err := loadScenario(cfg.scenario)
	if err != nil {
		fmt.Fprintf(stderr, "valsync-replay: %v\n", err)
		return exitUsage
	}
	diags, err := replay(context.Background(), sc, cfg, printer{w: stdout, color: color}, stderr, logger)
	if err != nil {
		fmt.Fprintf(stderr, "valsync-replay: %v\n", err)
		return exitUsage
	}
	if diags > 0 {
		fmt.Fprintf(stdout, "%d diagnostic(s) reported\n", diags)
		if cfg.strict {
			return exitDiagnostics
		}
	}
	return exitOK
}

func resolveColor(mode string, stdout io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		f, ok := stdout.(*os.File)
		return ok && isTTY(f), nil
	default:
		return false, fmt.Errorf("invalid color mode %q", mode)
	}
}

func replay(ctx context.Context, sc Scenario, cfg replayConfig, out printer, stderr io.Writer, logger *slog.Logger) (int, error) {
	store, err := catalog.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = store.Close() }()
	if err := catalog.Seed(ctx, store, sc.Templates); err != nil {
		return 0, err
	}

	var snapshots blob.Store
	if cfg.snapshots {
		if snapshots, err = blob.Open(ctx); err != nil {
			return 0, err
		}
	}

	diags := 0
	reg := prometheus.NewRegistry()
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)),
		core.WithErrorReporter(core.ErrorReporterFunc(func(_ context.Context, err error) {
			diags++
			logger.Warn("diagnostic", "error", err)
		})),
	}
	if cfg.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	engine := memtree.NewEngine()
	synchronizer := core.Install(engine, store, opts...)
	defer synchronizer.Dispose()
	if _, err := synchronizer.InstallPlugin(builtin.New()); err != nil {
		return 0, err
	}
	for _, c := range sc.Context {
		synchronizer.SetContextData(c.Frame, c.InstanceKey, c.Data)
	}

	for i, c := range sc.Commits {
		engine.Render(ctx, c.Root, c.Tree)
		fmt.Fprintf(out.w, "== %d %s (%s)\n", i+1, c.Name, c.Root)
		if err := dumpFrames(ctx, synchronizer, out, snapshots); err != nil {
			return diags, err
		}
	}
	for _, root := range sc.Unmount {
		if !engine.Unmount(ctx, root) {
			return diags, fmt.Errorf("unmount: unknown root %q", root)
		}
		fmt.Fprintf(out.w, "== unmount %s\n", root)
		if err := dumpFrames(ctx, synchronizer, out, nil); err != nil {
			return diags, err
		}
	}
	if cfg.metrics {
		if err := printMetrics(out.w, reg); err != nil {
			return diags, err
		}
	}
	return diags, nil
}

func dumpFrames(ctx context.Context, s *core.Synchronizer, out printer, snapshots blob.Store) error {
	for _, frame := range s.Frames() {
		if _, ok := s.Root(frame); !ok {
			fmt.Fprintf(out.w, "frame %s: empty\n", frame)
			continue
		}
		snap, err := s.TakeSnapshot(frame)
		if err != nil {
			return err
		}
		fmt.Fprintf(out.w, "frame %s: %d node(s)\n", frame, snap.Nodes)
		out.tree(snap.Root, 1)
		if snapshots != nil {
			info, err := s.ExportSnapshot(ctx, snapshots, frame)
			if err != nil {
				return err
			}
			fmt.Fprintf(out.w, "snapshot %s (%d bytes)\n", info.Key, info.Size)
		}
	}
	return nil
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		if mf.GetName() != "valsync_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"valsync/pkg/valtree"
)

const (
	ansiReset   = "\x1b[0m"
	ansiCyan    = "\x1b[36m"
	ansiGreen   = "\x1b[32m"
	ansiMagenta = "\x1b[35m"
	ansiYellow  = "\x1b[33m"
)

type printer struct {
	w     io.Writer
	color bool
}

func (p printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p printer) kindColor(kind string) string {
	switch kind {
	case "component":
		return ansiCyan
	case "slot":
		return ansiMagenta
	default:
		return ansiGreen
	}
}

// tree writes one line per node, children indented by two spaces.
func (p printer) tree(s valtree.Snapshot, depth int) {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(p.paint(p.kindColor(s.Kind), s.Kind))
	b.WriteByte(' ')
	b.WriteString(s.FullKey)
	if s.Owner != "" {
		fmt.Fprintf(&b, " owner=%s", s.Owner)
	}
	if s.Synthetic {
		b.WriteString(" " + p.paint(ansiYellow, "synthetic"))
	}
	if len(s.SlotArgs) > 0 {
		params := make([]string, 0, len(s.SlotArgs))
		for param := range s.SlotArgs {
			params = append(params, param)
		}
		sort.Strings(params)
		for _, param := range params {
			fmt.Fprintf(&b, " %s=[%s]", param, strings.Join(s.SlotArgs[param], ","))
		}
	}
	for _, msg := range s.InvalidArgs {
		b.WriteString(" " + p.paint(ansiYellow, "invalid("+msg+")"))
	}
	fmt.Fprintln(p.w, b.String())
	for _, c := range s.Children {
		p.tree(c, depth+1)
	}
}

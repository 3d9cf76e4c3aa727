package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RenderASCII renders a Model as rows of boxes, one row per level, followed
// by the list of connections.
func RenderASCII(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, level := range model.Levels {
		var boxes []asciiBox
		for _, id := range level {
			if node := model.Node(id); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if i < len(model.Levels)-1 && len(boxes) > 0 {
			b.WriteString("       │\n")
			b.WriteString("       ▼\n")
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\nconnections:\n")
		for _, e := range model.Edges {
			fmt.Fprintf(&b, "  %s ─→ %s  (%s)\n", e.From, e.To, e.Label)
		}
	}
	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

// makeBox draws a node's label lines in a box. A selected node gets a
// double border.
func makeBox(node *Node) asciiBox {
	content := strings.Split(node.Label, "\n")
	inner := 0
	for _, line := range content {
		inner = max(inner, utf8.RuneCountInString(line))
	}

	h, v, tl, tr, bl, br := "─", "│", "┌", "┐", "└", "┘"
	if node.Selected {
		h, v, tl, tr, bl, br = "═", "║", "╔", "╗", "╚", "╝"
	}

	lines := []string{tl + strings.Repeat(h, inner+2) + tr}
	for _, line := range content {
		pad := inner - utf8.RuneCountInString(line)
		lines = append(lines, v+" "+line+strings.Repeat(" ", pad)+" "+v)
	}
	lines = append(lines, bl+strings.Repeat(h, inner+2)+br)
	return asciiBox{lines: lines, width: inner + 4}
}

// renderBoxRow writes boxes side by side, top aligned.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box.lines))
	}
	for row := range height {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

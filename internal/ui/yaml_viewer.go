package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"
)

// scroller is a scrollable window over rendered lines.
type scroller struct {
	content []string
	width   int
	height  int
	offset  int
}

func (v *scroller) SetContent(text string) {
	v.content = strings.Split(strings.TrimRight(text, "\n"), "\n")
	v.offset = min(v.offset, v.maxOffset())
}

func (v *scroller) SetDimensions(w, h int) {
	v.width, v.height = w, h
	v.offset = min(v.offset, v.maxOffset())
}

func (v *scroller) maxOffset() int { return max(0, len(v.content)-v.height) }

// HandleKey scrolls on navigation keys and reports whether it consumed key.
func (v *scroller) HandleKey(key tea.KeyMsg) bool {
	switch key.String() {
	case "up", "k":
		if v.offset > 0 {
			v.offset--
		}
	case "down", "j":
		if v.offset < v.maxOffset() {
			v.offset++
		}
	case "pgup":
		v.offset = max(0, v.offset-(v.height-1))
	case "pgdown", "space":
		v.offset = min(v.maxOffset(), v.offset+(v.height-1))
	case "home", "g":
		v.offset = 0
	case "end", "G":
		v.offset = v.maxOffset()
	default:
		return false
	}
	return true
}

func (v *scroller) View() string {
	if v.height <= 0 || v.width <= 0 {
		return ""
	}
	end := min(len(v.content), v.offset+v.height)
	lines := make([]string, 0, v.height)
	for _, ln := range v.content[v.offset:end] {
		lines = append(lines, ansi.Truncate(ln, v.width, ""))
	}
	for len(lines) < v.height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

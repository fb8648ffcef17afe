package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss/v2"
	lgtable "github.com/charmbracelet/lipgloss/v2/table"
	"github.com/charmbracelet/x/ansi"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/duration"
	"sigs.k8s.io/yaml"

	"github.com/sttts/kcwatch/internal/watch"
)

const maxCellWidth = 40

// RenderSnapshot renders a snapshot: a table for lists, highlighted YAML for
// singletons, and a state line while loading or failed.
func RenderSnapshot(s watch.Snapshot, isList bool, width int, theme string, now time.Time) string {
	var b strings.Builder
	if line := stateLine(s); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if isList {
		if items := s.Items(); len(items) > 0 || s.Loaded {
			b.WriteString(RenderList(items, width, now))
		}
		return b.String()
	}
	if obj := s.Object(); len(obj) > 0 {
		b.WriteString(RenderObject(obj, theme))
	} else if s.Loaded && s.LoadError == nil {
		b.WriteString(LoadingStyle.Render("not found"))
	}
	return b.String()
}

func stateLine(s watch.Snapshot) string {
	switch {
	case s.LoadError != nil:
		return ErrorStyle.Render("Error: " + s.LoadError.Error())
	case !s.Loaded:
		return LoadingStyle.Render("Loading…")
	}
	return ""
}

// RenderList renders objects as a table. The namespace column is shown only
// if some object has a namespace, the status column only if some object has a
// status phase.
func RenderList(items []map[string]any, width int, now time.Time) string {
	if len(items) == 0 {
		return ContentStyle.Render("No resources found.")
	}

	var showNS, showPhase bool
	for _, item := range items {
		u := unstructured.Unstructured{Object: item}
		if u.GetNamespace() != "" {
			showNS = true
		}
		if phase, _, _ := unstructured.NestedString(item, "status", "phase"); phase != "" {
			showPhase = true
		}
	}

	var headers []string
	if showNS {
		headers = append(headers, "NAMESPACE")
	}
	headers = append(headers, "NAME")
	if showPhase {
		headers = append(headers, "STATUS")
	}
	headers = append(headers, "AGE")

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		u := unstructured.Unstructured{Object: item}
		var row []string
		if showNS {
			row = append(row, cell(u.GetNamespace()))
		}
		row = append(row, cell(u.GetName()))
		if showPhase {
			phase, _, _ := unstructured.NestedString(item, "status", "phase")
			row = append(row, cell(phase))
		}
		row = append(row, age(u.GetCreationTimestamp().Time, now))
		rows = append(rows, row)
	}

	tb := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(BorderStyle).
		BorderRow(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return TableHeaderStyle.Padding(0, 1)
			}
			return TableCellStyle.Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	if width > 0 {
		tb = tb.Width(width)
	}
	return tb.Render()
}

func cell(s string) string {
	return ansi.Truncate(s, maxCellWidth, "…")
}

func age(created, now time.Time) string {
	if created.IsZero() {
		return "<unknown>"
	}
	return duration.HumanDuration(now.Sub(created))
}

// RenderObject renders obj as YAML without managed fields, highlighted with
// the given chroma theme. Highlighting failures fall back to plain YAML.
func RenderObject(obj map[string]any, theme string) string {
	u := (&unstructured.Unstructured{Object: obj}).DeepCopy()
	unstructured.RemoveNestedField(u.Object, "metadata", "managedFields")
	yb, err := yaml.Marshal(u.Object)
	if err != nil {
		return ErrorStyle.Render(fmt.Sprintf("cannot render object: %v", err))
	}
	if theme == "" {
		return string(yb)
	}
	var b strings.Builder
	if err := quick.Highlight(&b, string(yb), "yaml", "terminal256", validTheme(theme)); err != nil {
		return string(yb)
	}
	return b.String()
}

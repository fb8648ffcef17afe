package ui

import (
	"maps"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/watch"
)

// MultiModel shows several named watches, one section per key in key order.
// Each section carries its own loading and error state.
type MultiModel struct {
	svc     *watch.Service
	descs   map[string]*descriptor.Descriptor
	opts    Options
	agg     *watch.Aggregator
	changes changeSignal

	snaps  map[string]watch.Snapshot
	body   scroller
	width  int
	height int
}

// NewMultiModel returns a model for descs. Nothing is watched before Init.
func NewMultiModel(svc *watch.Service, descs map[string]*descriptor.Descriptor, opts Options) *MultiModel {
	if opts.Title == "" {
		opts.Title = strings.Join(slices.Sorted(maps.Keys(descs)), ", ")
	}
	return &MultiModel{svc: svc, descs: descs, opts: opts, changes: newChangeSignal()}
}

// Init binds all descriptors and starts listening for changes.
func (m *MultiModel) Init() tea.Cmd {
	if m.agg == nil {
		m.agg = m.svc.WatchMany(m.descs, m.changes.notify)
	}
	m.refresh()
	return m.changes.wait()
}

// Snapshots returns the snapshots currently shown.
func (m *MultiModel) Snapshots() map[string]watch.Snapshot { return m.snaps }

// Close unbinds all descriptors.
func (m *MultiModel) Close() {
	if m.agg != nil {
		m.agg.Unbind()
	}
}

func (m *MultiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ChangedMsg:
		m.refresh()
		return m, m.changes.wait()
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.body.SetDimensions(msg.Width, max(0, msg.Height-2))
		m.render()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.Close()
			return m, tea.Quit
		case "t":
			m.opts.Theme = nextTheme(m.opts.Theme)
			m.render()
		default:
			m.body.HandleKey(msg)
		}
	}
	return m, nil
}

func (m *MultiModel) View() string {
	header := HeaderStyle.Width(m.width).Render(m.opts.Title)
	footer := FooterStyle.Width(m.width).Render(footerText(m.opts.Theme))
	return strings.Join([]string{header, m.body.View(), footer}, "\n")
}

func (m *MultiModel) refresh() {
	if m.agg == nil {
		return
	}
	snaps := m.agg.Snapshots()
	if m.snaps != nil && sameSnapshots(m.snaps, snaps) {
		return
	}
	m.snaps = snaps
	m.render()
}

func (m *MultiModel) render() {
	now := m.opts.now()
	var b strings.Builder
	for i, key := range slices.Sorted(maps.Keys(m.snaps)) {
		if i > 0 {
			b.WriteString("\n")
		}
		d := m.descs[key]
		heading := key
		if d != nil {
			heading += " (" + title(d) + ")"
		}
		b.WriteString(SectionTitleStyle.Render(heading))
		b.WriteString("\n")
		b.WriteString(RenderSnapshot(m.snaps[key], d != nil && d.IsList, m.width, m.opts.Theme, now))
		b.WriteString("\n")
	}
	m.body.SetContent(b.String())
}

func sameSnapshots(a, b map[string]watch.Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for k, s := range a {
		o, ok := b[k]
		if !ok || !s.Same(o) {
			return false
		}
	}
	return true
}

package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/watch"
)

// ChangedMsg tells a model that its watched state may have changed.
type ChangedMsg struct{}

// Options configure the watch models.
type Options struct {
	Title string
	// Theme is the chroma style for YAML, empty disables highlighting.
	Theme string
	// Now is the clock used for ages, time.Now if nil.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// changeSignal collapses notifications from backend goroutines into at most
// one pending ChangedMsg.
type changeSignal chan struct{}

func newChangeSignal() changeSignal { return make(changeSignal, 1) }

func (c changeSignal) notify() {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (c changeSignal) wait() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-c; !ok {
			return nil
		}
		return ChangedMsg{}
	}
}

// WatchModel shows one watched resource.
type WatchModel struct {
	svc     *watch.Service
	desc    *descriptor.Descriptor
	opts    Options
	binder  *watch.Binder
	changes changeSignal

	snap     watch.Snapshot
	rendered bool
	body     scroller
	width    int
	height   int
}

// NewWatchModel returns a model for d. Nothing is watched before Init.
func NewWatchModel(svc *watch.Service, d *descriptor.Descriptor, opts Options) *WatchModel {
	if opts.Title == "" && d != nil {
		opts.Title = title(d)
	}
	return &WatchModel{svc: svc, desc: d, opts: opts, changes: newChangeSignal()}
}

// Init binds the descriptor and starts listening for changes.
func (m *WatchModel) Init() tea.Cmd {
	if m.binder == nil {
		m.binder = m.svc.Watch(m.desc, m.changes.notify)
	}
	m.refresh()
	return m.changes.wait()
}

// Snapshot returns the snapshot currently shown.
func (m *WatchModel) Snapshot() watch.Snapshot { return m.snap }

// Close unbinds the descriptor.
func (m *WatchModel) Close() {
	if m.binder != nil {
		m.binder.Unbind()
	}
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

func (m *WatchModel) View() string {
	header := HeaderStyle.Width(m.width).Render(m.opts.Title)
	footer := FooterStyle.Width(m.width).Render(footerText(m.opts.Theme))
	return strings.Join([]string{header, m.body.View(), footer}, "\n")
}

func (m *WatchModel) refresh() {
	if m.binder == nil {
		return
	}
	snap := m.binder.Snapshot()
	if m.rendered && snap.Same(m.snap) {
		return
	}
	m.snap = snap
	m.render()
}

func (m *WatchModel) render() {
	isList := m.desc != nil && m.desc.IsList
	m.body.SetContent(RenderSnapshot(m.snap, isList, m.width, m.opts.Theme, m.opts.now()))
	m.rendered = true
}

func footerText(theme string) string {
	if theme == "" {
		return " q quit  ↑/↓ scroll"
	}
	return fmt.Sprintf(" q quit  ↑/↓ scroll  t theme (%s)", theme)
}

func title(d *descriptor.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Kind)
	if d.Namespace != "" {
		b.WriteString(" -n " + d.Namespace)
	}
	if d.Name != "" {
		b.WriteString(" " + d.Name)
	}
	if d.FieldSelector != "" {
		b.WriteString(" --field-selector " + d.FieldSelector)
	}
	if d.Selector != nil {
		b.WriteString(" -l " + selectorString(d))
	}
	return b.String()
}

func selectorString(d *descriptor.Descriptor) string {
	sel, err := metav1.LabelSelectorAsSelector(d.Selector)
	if err != nil {
		return metav1.FormatLabelSelector(d.Selector)
	}
	return sel.String()
}

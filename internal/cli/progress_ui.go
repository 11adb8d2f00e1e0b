package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"kbsync/internal/model"
	"kbsync/internal/registry"
)

const maxEventLines = 5

type uploadTickMsg time.Time
type uploadDoneMsg struct{}
type uploadEventMsg model.Event

// uploadModel renders live per-document progress during `kbsync up`. The
// registry is the source of truth; the model only reads snapshots on a
// timer.
type uploadModel struct {
	reg    *registry.Registry
	sp     spinner.Model
	bar    progress.Model
	sty    styles
	events []string
	done   bool
}

func newUploadModel(reg *registry.Registry, sty styles) uploadModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30
	return uploadModel{reg: reg, sp: sp, bar: bar, sty: sty}
}

func uploadTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return uploadTickMsg(t)
	})
}

func (m uploadModel) Init() tea.Cmd {
	return tea.Batch(m.sp.Tick, uploadTick())
}

func (m uploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.sp, cmd = m.sp.Update(msg)
		return m, cmd
	case uploadTickMsg:
		if m.done {
			return m, tea.Quit
		}
		return m, uploadTick()
	case uploadEventMsg:
		ev := model.Event(msg)
		name := ev.Name
		if name == "" {
			name = ev.DocumentID
		}
		line := name + ": " + ev.Message
		if ev.Kind == model.EventError {
			line = m.sty.Red.Render(line)
		} else {
			line = m.sty.Dim.Render(line)
		}
		m.events = append(m.events, line)
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
		return m, nil
	case uploadDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m uploadModel) View() string {
	var b strings.Builder
	b.WriteString(m.sty.Header.Render("kbsync") + " uploading\n\n")
	for _, entry := range m.reg.List() {
		name := entry.Name
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		switch entry.Status {
		case model.StatusSuccess:
			b.WriteString(fmt.Sprintf("  %-28s %s\n", name, m.sty.Success.Render("indexed")))
		case model.StatusError:
			b.WriteString(fmt.Sprintf("  %-28s %s %s\n", name, m.sty.Error.Render("error"), m.sty.Dim.Render(entry.ErrorMessage)))
		case model.StatusPaused:
			b.WriteString(fmt.Sprintf("  %-28s %s\n", name, m.sty.Dim.Render("paused")))
		default:
			phase := "uploading"
			if entry.Progress >= model.ProgressTransferDone {
				phase = "indexing"
			}
			b.WriteString(fmt.Sprintf("  %-28s %s %s %s\n",
				name,
				m.bar.ViewAs(float64(entry.Progress)/100),
				m.sp.View(),
				m.sty.Dim.Render(phase),
			))
		}
	}
	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, line := range m.events {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

// runProgressUI attaches a bubbletea program to the orchestrator for the
// duration of the in-flight uploads. It reports whether the user quit the
// view while tasks were still running.
func runProgressUI(a *app) (interrupted bool, err error) {
	m := newUploadModel(a.registry, a.styles)
	p := tea.NewProgram(m)

	a.orch.SetNotify(func(ev model.Event) {
		p.Send(uploadEventMsg(ev))
	})
	go func() {
		a.orch.Wait()
		p.Send(uploadDoneMsg{})
	}()

	final, err := p.Run()
	a.orch.SetNotify(a.printEvent)
	if err != nil {
		return false, err
	}
	fm, ok := final.(uploadModel)
	return !ok || !fm.done, nil
}

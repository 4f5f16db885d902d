package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/embercef/bridge/foreignsim"
	"github.com/embercef/bridge/refcount"
	"github.com/embercef/bridge/registry"
	"github.com/embercef/bridge/wrap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const eventLogDepth = 8

type inspectModel struct {
	err    error
	driver *foreignsim.Driver
	guest  *foreignsim.GuestSim
	pins   *registry.Table
	events chan registry.Event

	tbl    table.Model
	log    []string
	status string
	stormN int

	// anchor stays pinned for the lifetime of the session so storms have
	// a stable target.
	anchor       refcount.Ptr[wrap.ClientObject]
	anchorHandle registry.Handle

	extras []pinnedExtra
	busy   bool
}

type pinnedExtra struct {
	handle  registry.Handle
	release func()
}

// quietClient carries the full capability set without writing to stdout,
// which belongs to the TUI while it is running.
type quietClient struct {
	complete int
	bytes    int
}

func (c *quietClient) OnComplete(req wrap.Request) { c.complete++ }

func (c *quietClient) OnUploadProgress(req wrap.Request, current, total int64) {}

func (c *quietClient) OnDownloadProgress(req wrap.Request, current, total int64) {}

func (c *quietClient) OnData(req wrap.Request, data []byte) { c.bytes += len(data) }

type chanObserver struct {
	ch chan registry.Event
}

func (o *chanObserver) OnObjectEvent(e registry.Event) {
	select {
	case o.ch <- e:
	default:
	}
}

type eventMsg registry.Event

type tickMsg time.Time

type opDoneMsg struct {
	err    error
	status string
}

func newInspectModel(stormN int) (*inspectModel, error) {
	ctx := context.Background()

	pins := registry.NewTable()
	events := make(chan registry.Event, 64)
	pins.Subscribe(&chanObserver{ch: events})

	driver := foreignsim.NewDriver(foreignsim.WithRegistry(pins))
	guest, err := foreignsim.NewGuestSim(ctx, foreignsim.WithGuestRegistry(pins))
	if err != nil {
		return nil, err
	}

	anchor := wrap.WrapClient(&quietClient{})
	anchorHandle, err := driver.Export(wrap.KindClient, anchor.Base())
	if err != nil {
		guest.Close(ctx)
		anchor.Release()
		return nil, err
	}

	columns := []table.Column{
		{Title: "Handle", Width: 8},
		{Title: "Kind", Width: 20},
		{Title: "Age", Width: 10},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
		table.WithFocused(true),
	)

	m := &inspectModel{
		driver:       driver,
		guest:        guest,
		pins:         pins,
		events:       events,
		tbl:          tbl,
		stormN:       stormN,
		anchor:       anchor,
		anchorHandle: anchorHandle,
		status:       "ready",
	}
	m.refreshTable()
	return m, nil
}

func (m *inspectModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent, tick())
}

func (m *inspectModel) waitForEvent() tea.Msg {
	return eventMsg(<-m.events)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.teardown()
			return m, tea.Quit

		case "p":
			if !m.busy {
				return m, m.pinExtra()
			}

		case "u":
			if !m.busy {
				return m, m.unpinExtra()
			}

		case "d":
			if !m.busy {
				m.busy = true
				m.status = "driving guest..."
				return m, m.driveDemo()
			}

		case "s":
			if !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("storming %d rounds...", m.stormN)
				return m, m.stormAnchor()
			}
		}

	case eventMsg:
		line := fmt.Sprintf("%s  %-9s handle=%d kind=%s",
			msg.Time.Format("15:04:05"), msg.Type, msg.Handle, msg.Kind)
		m.log = append(m.log, line)
		if len(m.log) > eventLogDepth {
			m.log = m.log[len(m.log)-eventLogDepth:]
		}
		m.refreshTable()
		return m, m.waitForEvent

	case tickMsg:
		m.refreshTable()
		return m, tick()

	case opDoneMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		m.refreshTable()
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func (m *inspectModel) pinExtra() tea.Cmd {
	return func() tea.Msg {
		client := wrap.WrapClient(&quietClient{})
		h, err := m.driver.Export(wrap.KindClient, client.Base())
		if err != nil {
			client.Release()
			return opDoneMsg{err: err}
		}
		m.extras = append(m.extras, pinnedExtra{handle: h, release: client.Release})
		return opDoneMsg{status: fmt.Sprintf("pinned handle %d", h)}
	}
}

func (m *inspectModel) unpinExtra() tea.Cmd {
	return func() tea.Msg {
		if len(m.extras) == 0 {
			return opDoneMsg{status: "nothing extra to unpin"}
		}
		last := m.extras[len(m.extras)-1]
		m.extras = m.extras[:len(m.extras)-1]
		if err := m.driver.Withdraw(last.handle); err != nil {
			return opDoneMsg{err: err}
		}
		last.release()
		return opDoneMsg{status: fmt.Sprintf("withdrew handle %d", last.handle)}
	}
}

func (m *inspectModel) driveDemo() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		rec := &quietClient{}
		client := wrap.WrapClient(rec)
		defer client.Release()
		req := m.driver.NewRequest("https://example.com/inspect-demo")
		defer req.Release()

		fired := 0
		comp := wrap.WrapCompletion(func(path string, ok bool) { fired++ })
		defer comp.Release()

		hClient, err := m.driver.Export(wrap.KindClient, client.Base())
		if err != nil {
			return opDoneMsg{err: err}
		}
		hReq, err := m.driver.Export(wrap.KindRequest, req.Base())
		if err != nil {
			m.driver.Withdraw(hClient)
			return opDoneMsg{err: err}
		}
		hComp, err := m.driver.Export(wrap.KindCompletion, comp.Base())
		if err != nil {
			m.driver.Withdraw(hClient)
			m.driver.Withdraw(hReq)
			return opDoneMsg{err: err}
		}

		err = m.guest.Drive(ctx, hClient, hReq, hComp)
		for _, h := range []registry.Handle{hClient, hReq, hComp} {
			m.driver.Withdraw(h)
		}
		if err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: fmt.Sprintf("drive done: %d completion(s)", fired)}
	}
}

func (m *inspectModel) stormAnchor() tea.Cmd {
	return func() tea.Msg {
		if err := m.guest.Storm(context.Background(), m.anchorHandle, uint32(m.stormN)); err != nil {
			return opDoneMsg{err: err}
		}
		balanced := m.anchor.HasAtLeastOneRef() && !m.anchor.HasOneRef()
		return opDoneMsg{status: fmt.Sprintf("storm done, balanced=%v", balanced)}
	}
}

func (m *inspectModel) refreshTable() {
	snap := m.pins.Snapshot()
	rows := make([]table.Row, 0, len(snap))
	now := time.Now()
	for _, p := range snap {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", p.Handle),
			p.Kind,
			now.Sub(p.PinnedAt).Truncate(time.Second).String(),
		})
	}
	m.tbl.SetRows(rows)
}

func (m *inspectModel) teardown() {
	ctx := context.Background()
	for _, e := range m.extras {
		m.driver.Withdraw(e.handle)
		e.release()
	}
	m.driver.Withdraw(m.anchorHandle)
	m.anchor.Release()
	m.guest.Close(ctx)
	m.pins.Close()
}

func (m *inspectModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bridge Inspector"))
	b.WriteString(fmt.Sprintf("  %d live pin(s)\n\n", m.pins.Len()))

	b.WriteString(m.tbl.View())
	b.WriteString("\n\n")

	if len(m.log) > 0 {
		b.WriteString("Recent events:\n")
		for _, line := range m.log {
			b.WriteString(eventStyle.Render("  " + line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("p pin • u unpin • d drive • s storm • q quit"))

	return b.String()
}

func runInteractive(stormN int) error {
	m, err := newInspectModel(stormN)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

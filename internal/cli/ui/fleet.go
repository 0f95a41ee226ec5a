package ui

import (
	"fmt"

	"asactl/internal/domain"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	docStyle    = lipgloss.NewStyle().Margin(1, 2)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"})
)

// ServerLister supplies the fleet contents.
type ServerLister interface {
	ListServers() ([]domain.ServerConfig, error)
}

// Controller is the slice of the supervisor the dashboard drives.
type Controller interface {
	Start(name string) error
	Stop(name string) error
}

type item struct {
	server domain.ServerConfig
}

func (i item) Title() string { return i.server.Name }
func (i item) Description() string {
	statusIcon := "🔴"
	switch i.server.Status {
	case domain.StatusRunning:
		statusIcon = "🟢"
	case domain.StatusStarting:
		statusIcon = "🟡"
	case domain.StatusStopping:
		statusIcon = "🟠"
	case domain.StatusCrashed:
		statusIcon = "💥"
	}
	clusterNote := ""
	if i.server.ClusterID != nil {
		clusterNote = " | Cluster: " + *i.server.ClusterID
	}
	return fmt.Sprintf("%s %s | %s | Port: %d | RCON: %d%s",
		statusIcon, i.server.Status, i.server.Map, i.server.GamePort, i.server.RconPort, clusterNote)
}
func (i item) FilterValue() string { return i.server.Name + " " + i.server.Status }

type listKeyMap struct {
	start   key.Binding
	stop    key.Binding
	refresh key.Binding
}

func newListKeyMap() *listKeyMap {
	return &listKeyMap{
		start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start"),
		),
		stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop"),
		),
		refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

type fleetModel struct {
	list    list.Model
	lister  ServerLister
	control Controller
	keys    *listKeyMap
	choice  *domain.ServerConfig
}

func (m fleetModel) Init() tea.Cmd {
	return nil
}

type statusMsg string
type serverListMsg []domain.ServerConfig

func (m fleetModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.start):
			i, ok := m.list.SelectedItem().(item)
			if ok {
				return m, tea.Batch(
					func() tea.Msg {
						if err := m.control.Start(i.server.Name); err != nil {
							return statusMsg(fmt.Sprintf("Error starting %s: %v", i.server.Name, err))
						}
						return statusMsg(fmt.Sprintf("Launched %s", i.server.Name))
					},
					m.list.NewStatusMessage(statusStyle.Render(fmt.Sprintf("Starting %s...", i.server.Name))),
				)
			}
		case key.Matches(msg, m.keys.stop):
			i, ok := m.list.SelectedItem().(item)
			if ok {
				return m, tea.Batch(
					func() tea.Msg {
						if err := m.control.Stop(i.server.Name); err != nil {
							return statusMsg(fmt.Sprintf("Error stopping %s: %v", i.server.Name, err))
						}
						return statusMsg(fmt.Sprintf("Stopped %s", i.server.Name))
					},
					m.list.NewStatusMessage(statusStyle.Render(fmt.Sprintf("Stopping %s...", i.server.Name))),
				)
			}
		case key.Matches(msg, m.keys.refresh):
			return m, refreshList(m.lister)
		case msg.String() == "enter":
			i, ok := m.list.SelectedItem().(item)
			if ok {
				m.choice = &i.server
				return m, tea.Quit
			}
		}
	case statusMsg:
		cmd := m.list.NewStatusMessage(statusStyle.Render(string(msg)))
		return m, tea.Batch(cmd, refreshList(m.lister))
	case serverListMsg:
		var items []list.Item
		for _, s := range msg {
			items = append(items, item{server: s})
		}
		cmd := m.list.SetItems(items)
		return m, cmd
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m fleetModel) View() string {
	return docStyle.Render(m.list.View())
}

func refreshList(lister ServerLister) tea.Cmd {
	return func() tea.Msg {
		servers, err := lister.ListServers()
		if err != nil {
			return nil
		}
		return serverListMsg(servers)
	}
}

// RunFleetDashboard shows the interactive fleet list. It returns when the
// user quits or selects a server with enter; a selection prints its details.
func RunFleetDashboard(lister ServerLister, control Controller) {
	servers, err := lister.ListServers()
	if err != nil {
		fmt.Printf("Error listing servers: %v\n", err)
		return
	}

	var items []list.Item
	for _, s := range servers {
		items = append(items, item{server: s})
	}

	keys := newListKeyMap()
	delegate := list.NewDefaultDelegate()

	l := list.New(items, delegate, 0, 0)
	l.Title = "Fleet"
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.start, keys.stop, keys.refresh}
	}
	l.AdditionalFullHelpKeys = func() []key.Binding {
		return []key.Binding{keys.start, keys.stop, keys.refresh}
	}

	m := fleetModel{
		list:    l,
		lister:  lister,
		control: control,
		keys:    keys,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		fmt.Printf("Error running dashboard: %v\n", err)
		return
	}

	if m, ok := finalModel.(fleetModel); ok && m.choice != nil {
		fmt.Println("\nSelected Server Details:")
		fmt.Printf("Name:       %s\n", m.choice.Name)
		fmt.Printf("Map:        %s\n", m.choice.Map)
		fmt.Printf("Status:     %s\n", m.choice.Status)
		fmt.Printf("Game port:  %d\n", m.choice.GamePort)
		fmt.Printf("Query port: %d\n", m.choice.QueryPort)
		fmt.Printf("RCON port:  %d\n", m.choice.RconPort)
		fmt.Printf("Players:    up to %d\n", m.choice.MaxPlayers)
		if m.choice.ClusterID != nil {
			fmt.Printf("Cluster:    %s\n", *m.choice.ClusterID)
		}
	}
}

package cmd

import (
	"asactl/internal/cli/ui"
)

func RunDashboard() {
	ui.RunFleetDashboard(Deps.Store, Deps.Supervisor)
}

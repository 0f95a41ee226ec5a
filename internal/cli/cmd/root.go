package cmd

import (
	"fmt"
	"os"

	"asactl/internal/app"
	"asactl/internal/config"
	"asactl/internal/domain"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Deps is the locally built component graph. The CLI operates the fleet
// directly on this machine; there is no remote daemon API.
var Deps *app.Container

var RootCmd = &cobra.Command{
	Use:   "asactl",
	Short: "Manage ARK: Survival Ascended dedicated servers and clusters",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.WarnLevel).
			With().Timestamp().Logger()

		configDir, err := config.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error locating config directory:", err)
			os.Exit(1)
		}
		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error loading configuration:", err)
			os.Exit(1)
		}
		Deps, err = app.Build(logger, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error initializing:", err)
			os.Exit(1)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		RunDashboard()
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// printSink writes operation progress to stdout. Percent -1 means the step
// carries no overall-progress update.
func printSink(message string, percent float64) {
	if percent >= 0 {
		fmt.Printf("[%3.0f%%] %s\n", percent, message)
	} else {
		fmt.Printf("       %s\n", message)
	}
}

func printMemberResults(results []domain.MemberResult) {
	for _, r := range results {
		if r.Success {
			fmt.Printf("- %s: ok\n", r.Name)
		} else {
			fmt.Printf("- %s: FAILED (%s)\n", r.Name, r.Error)
		}
	}
}

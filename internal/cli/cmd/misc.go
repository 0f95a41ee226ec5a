package cmd

import (
	"fmt"
	"log"

	"asactl/internal/domain"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the shared server binaries via SteamCMD",
	Run: func(cmd *cobra.Command, args []string) {
		handleBinariesJob("install-binaries", func(sink domain.ProgressSink) error {
			return Deps.Provisioner.InstallBinaries(sink)
		})
	},
}

var updateBinariesCmd = &cobra.Command{
	Use:   "update-binaries",
	Short: "Update the shared server binaries via SteamCMD",
	Run: func(cmd *cobra.Command, args []string) {
		handleBinariesJob("update-binaries", func(sink domain.ProgressSink) error {
			return Deps.Provisioner.Steam.InstallOrUpdate(sink)
		})
	},
}

var autoshutdownCmd = &cobra.Command{
	Use:   "autoshutdown",
	Short: "Manage idle auto-shutdown policies",
}

var asTimeoutMin, asSaveTimeoutSec, asPollSec int
var asWarnings []int
var asNoSave bool

var autoshutdownEnableCmd = &cobra.Command{
	Use:   "enable [server]",
	Short: "Enable auto-shutdown for a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleAutoshutdownEnable(args[0])
	},
}

var autoshutdownDisableCmd = &cobra.Command{
	Use:   "disable [server]",
	Short: "Disable auto-shutdown for a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleAutoshutdownDisable(args[0])
	},
}

var autoshutdownShowCmd = &cobra.Command{
	Use:   "show [server]",
	Short: "Show the auto-shutdown policy of a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleAutoshutdownShow(args[0])
	},
}

func init() {
	autoshutdownEnableCmd.Flags().IntVar(&asTimeoutMin, "timeout", 30, "Minutes the server must stay empty")
	autoshutdownEnableCmd.Flags().IntSliceVar(&asWarnings, "warnings", []int{10, 5, 1}, "Minutes before shutdown to broadcast warnings")
	autoshutdownEnableCmd.Flags().BoolVar(&asNoSave, "no-save", false, "Skip the world save before shutdown")
	autoshutdownEnableCmd.Flags().IntVar(&asSaveTimeoutSec, "save-timeout", 60, "Seconds to wait for the world save")
	autoshutdownEnableCmd.Flags().IntVar(&asPollSec, "poll-interval", 60, "Seconds between occupancy polls")

	autoshutdownCmd.AddCommand(autoshutdownEnableCmd, autoshutdownDisableCmd, autoshutdownShowCmd)
	RootCmd.AddCommand(installCmd, updateBinariesCmd, autoshutdownCmd)
}

func handleBinariesJob(jobType string, fn func(domain.ProgressSink) error) {
	job := Deps.Jobs.CreateJob(jobType, nil)
	Deps.Jobs.Run(job.ID, func(sink domain.ProgressSink) (any, error) {
		return nil, fn(chainSinks(sink))
	})

	finished, err := Deps.Jobs.GetJob(job.ID)
	if err != nil {
		log.Fatalf("Error reading job: %v", err)
	}
	if finished.Status == domain.JobFailed {
		log.Fatalf("Error: %s", finished.Error)
	}
	fmt.Println("Binaries are up to date.")
}

func handleAutoshutdownEnable(serverName string) {
	policy := &domain.AutoShutdownPolicy{
		ServerName:         serverName,
		Enabled:            true,
		EmptyTimeoutMin:    asTimeoutMin,
		SaveBeforeShutdown: !asNoSave,
		SaveTimeoutSec:     asSaveTimeoutSec,
		WarningMinutes:     asWarnings,
		PollIntervalSec:    asPollSec,
	}
	if err := Deps.AutoShutdown.Initialize(policy); err != nil {
		log.Fatalf("Error enabling auto-shutdown: %v", err)
	}
	fmt.Printf("Auto-shutdown enabled: stop %s after %d idle minutes.\n", serverName, asTimeoutMin)
}

func handleAutoshutdownDisable(serverName string) {
	policy, err := Deps.Store.GetPolicy(serverName)
	if err != nil {
		log.Fatalf("Error loading policy: %v", err)
	}
	if policy == nil {
		log.Fatalf("No auto-shutdown policy for %q", serverName)
	}
	policy.Enabled = false
	if err := Deps.AutoShutdown.Initialize(policy); err != nil {
		log.Fatalf("Error disabling auto-shutdown: %v", err)
	}
	fmt.Println("Auto-shutdown disabled.")
}

func handleAutoshutdownShow(serverName string) {
	policy, err := Deps.Store.GetPolicy(serverName)
	if err != nil {
		log.Fatalf("Error loading policy: %v", err)
	}
	if policy == nil {
		fmt.Printf("No auto-shutdown policy for %s.\n", serverName)
		return
	}

	fmt.Printf("Server:        %s\n", policy.ServerName)
	fmt.Printf("Enabled:       %t\n", policy.Enabled)
	fmt.Printf("Idle timeout:  %d min\n", policy.EmptyTimeoutMin)
	fmt.Printf("Warnings at:   %v min\n", policy.WarningMinutes)
	fmt.Printf("Save first:    %t (timeout %ds)\n", policy.SaveBeforeShutdown, policy.SaveTimeoutSec)
	fmt.Printf("Poll interval: %ds\n", policy.PollIntervalSec)
}

package cmd

import (
	"fmt"
	"log"
	"strings"

	"asactl/internal/domain"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backups",
}

var backupServer, backupCluster string

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup of a server or cluster",
	Run: func(cmd *cobra.Command, args []string) {
		handleBackupCreate()
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	Run: func(cmd *cobra.Command, args []string) {
		handleBackupList()
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleBackupDelete(args[0])
	},
}

var restoreServer, restoreCluster string

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Restore a backup into a server or cluster",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleBackupRestore(args[0])
	},
}

var backupInfoCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show the manifest of a backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleBackupInfo(args[0])
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupServer, "server", "", "Server to back up")
	backupCreateCmd.Flags().StringVar(&backupCluster, "cluster", "", "Cluster to back up")

	backupRestoreCmd.Flags().StringVar(&restoreServer, "server", "", "Target server")
	backupRestoreCmd.Flags().StringVar(&restoreCluster, "cluster", "", "Target cluster")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupDeleteCmd, backupRestoreCmd, backupInfoCmd)
	RootCmd.AddCommand(backupCmd)
}

func handleBackupCreate() {
	if (backupServer == "") == (backupCluster == "") {
		log.Fatal("Error: Specify exactly one of --server or --cluster")
	}

	jobType := "backup-server"
	target := backupServer
	if backupCluster != "" {
		jobType = "backup-cluster"
		target = backupCluster
	}

	job := Deps.Jobs.CreateJob(jobType, map[string]string{"target": target})
	var path string
	Deps.Jobs.Run(job.ID, func(sink domain.ProgressSink) (any, error) {
		var err error
		if backupCluster != "" {
			path, err = Deps.Backups.BackupCluster(backupCluster, chainSinks(sink))
		} else {
			path, err = Deps.Backups.BackupServer(backupServer, chainSinks(sink))
		}
		return path, err
	})

	finished, err := Deps.Jobs.GetJob(job.ID)
	if err != nil {
		log.Fatalf("Error reading job: %v", err)
	}
	if finished.Status == domain.JobFailed {
		log.Fatalf("Error creating backup: %s", finished.Error)
	}
	fmt.Printf("Backup written: %s\n", path)
}

func handleBackupList() {
	backups, err := Deps.Backups.ListBackups()
	if err != nil {
		log.Fatalf("Error listing backups: %v", err)
	}

	fmt.Println("Backups:")
	for _, b := range backups {
		fmt.Printf("- %s (%.2f MB)\n", b.Name, float64(b.Size)/1024/1024)
	}
}

func handleBackupDelete(name string) {
	if err := Deps.Backups.DeleteBackup(name); err != nil {
		log.Fatalf("Error deleting backup: %v", err)
	}
	fmt.Println("Backup deleted successfully.")
}

func handleBackupRestore(backupName string) {
	if (restoreServer == "") == (restoreCluster == "") {
		log.Fatal("Error: Specify exactly one of --server or --cluster")
	}

	jobType := "restore-server"
	target := restoreServer
	if restoreCluster != "" {
		jobType = "restore-cluster"
		target = restoreCluster
	}

	job := Deps.Jobs.CreateJob(jobType, map[string]string{"backup": backupName, "target": target})
	Deps.Jobs.Run(job.ID, func(sink domain.ProgressSink) (any, error) {
		if restoreCluster != "" {
			return nil, Deps.Backups.RestoreCluster(backupName, restoreCluster, chainSinks(sink))
		}
		return nil, Deps.Backups.RestoreServer(backupName, restoreServer, chainSinks(sink))
	})

	finished, err := Deps.Jobs.GetJob(job.ID)
	if err != nil {
		log.Fatalf("Error reading job: %v", err)
	}
	if finished.Status == domain.JobFailed {
		log.Fatalf("Error restoring backup: %s", finished.Error)
	}
	fmt.Println("Backup restored successfully.")
}

func handleBackupInfo(name string) {
	manifest, err := Deps.Backups.ReadManifest(name)
	if err != nil {
		log.Fatalf("Error reading manifest: %v", err)
	}

	fmt.Printf("Backup:   %s\n", name)
	fmt.Printf("ID:       %s\n", manifest.ID)
	if manifest.Cluster != "" {
		fmt.Printf("Cluster:  %s\n", manifest.Cluster)
	}
	fmt.Printf("Servers:  %s\n", strings.Join(manifest.Servers, ", "))
	fmt.Printf("Created:  %s\n", manifest.CreatedAt.Format("2006-01-02 15:04:05"))
}

// chainSinks forwards progress both to the terminal and to the job record.
func chainSinks(sink domain.ProgressSink) domain.ProgressSink {
	return func(message string, percent float64) {
		printSink(message, percent)
		sink(message, percent)
	}
}

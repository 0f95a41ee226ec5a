package cmd

import (
	"fmt"
	"log"

	"asactl/internal/domain"
	"asactl/internal/provision"

	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage server clusters",
}

var clusterName, clusterPass, clusterAdminPass string
var clusterBasePort, clusterMaxPlayers int
var clusterMaps, clusterMods []string
var clusterXP, clusterTaming, clusterHarvest float64
var clusterNoBattlEye bool

var clusterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a cluster with one member per map",
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterCreate()
	},
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clusters",
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterList()
	},
}

var clusterStartCmd = &cobra.Command{
	Use:   "start [name]",
	Short: "Start every member of a cluster",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterOp("start", args[0])
	},
}

var clusterStopCmd = &cobra.Command{
	Use:   "stop [name]",
	Short: "Stop every member of a cluster",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterOp("stop", args[0])
	},
}

var clusterRestartCmd = &cobra.Command{
	Use:   "restart [name]",
	Short: "Restart every member of a cluster",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterOp("restart", args[0])
	},
}

var clusterStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show live status of every member",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterStatus(args[0])
	},
}

var clusterDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a cluster and all of its members",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleClusterDelete(args[0])
	},
}

func init() {
	clusterCreateCmd.Flags().StringVar(&clusterName, "name", "", "Cluster name")
	clusterCreateCmd.Flags().StringSliceVar(&clusterMaps, "maps", nil, "Maps, one member per map (1-10)")
	clusterCreateCmd.Flags().IntVar(&clusterBasePort, "base-port", 0, "Base game port; member ports are derived sequentially")
	clusterCreateCmd.Flags().StringVar(&clusterAdminPass, "admin-password", "", "Admin and RCON password for all members")
	clusterCreateCmd.Flags().StringVar(&clusterPass, "cluster-password", "", "Cluster transfer password, also used as join password")
	clusterCreateCmd.Flags().IntVar(&clusterMaxPlayers, "max-players", 70, "Maximum players per member")
	clusterCreateCmd.Flags().StringSliceVar(&clusterMods, "mods", nil, "Mod IDs for all members")
	clusterCreateCmd.Flags().Float64Var(&clusterXP, "xp-multiplier", 0, "XP multiplier")
	clusterCreateCmd.Flags().Float64Var(&clusterTaming, "taming-speed", 0, "Taming speed multiplier")
	clusterCreateCmd.Flags().Float64Var(&clusterHarvest, "harvest-amount", 0, "Harvest amount multiplier")
	clusterCreateCmd.Flags().BoolVar(&clusterNoBattlEye, "no-battleye", false, "Disable BattlEye on all members")
	clusterCreateCmd.MarkFlagRequired("name")
	clusterCreateCmd.MarkFlagRequired("maps")
	clusterCreateCmd.MarkFlagRequired("base-port")
	clusterCreateCmd.MarkFlagRequired("admin-password")

	clusterCmd.AddCommand(clusterCreateCmd, clusterListCmd, clusterStartCmd, clusterStopCmd,
		clusterRestartCmd, clusterStatusCmd, clusterDeleteCmd)
	RootCmd.AddCommand(clusterCmd)
}

func handleClusterCreate() {
	input := provision.CreateClusterInput{
		Name:            clusterName,
		ClusterPassword: clusterPass,
		BasePort:        clusterBasePort,
		AdminPassword:   clusterAdminPass,
		MaxPlayers:      clusterMaxPlayers,
		Maps:            clusterMaps,
		Mods:            clusterMods,
		XPMultiplier:    clusterXP,
		TamingSpeed:     clusterTaming,
		HarvestAmount:   clusterHarvest,
		DisableBattlEye: clusterNoBattlEye,
	}

	job := Deps.Jobs.CreateJob("cluster-create", map[string]string{"cluster": clusterName})
	fmt.Printf("Job %s started.\n", job.ID)

	var results []domain.MemberResult
	Deps.Jobs.Run(job.ID, func(sink domain.ProgressSink) (any, error) {
		var err error
		results, err = Deps.Provisioner.CreateCluster(input, func(message string, percent float64) {
			printSink(message, percent)
			sink(message, percent)
		})
		return results, err
	})

	finished, err := Deps.Jobs.GetJob(job.ID)
	if err != nil {
		log.Fatalf("Error reading job: %v", err)
	}
	if finished.Status == domain.JobFailed {
		log.Fatalf("Error creating cluster: %s", finished.Error)
	}

	fmt.Println("Members:")
	printMemberResults(results)
}

func handleClusterList() {
	clusters, err := Deps.Store.ListClusters()
	if err != nil {
		log.Fatalf("Error listing clusters: %v", err)
	}

	fmt.Println("Clusters:")
	for _, c := range clusters {
		members, err := Deps.Store.ListClusterMembers(c.Name)
		if err != nil {
			log.Fatalf("Error listing members: %v", err)
		}
		fmt.Printf("- %s (base port %d, %d members)\n", c.Name, c.BasePort, len(members))
	}
}

func handleClusterOp(verb, name string) {
	var results []domain.MemberResult
	var err error

	switch verb {
	case "start":
		results, err = Deps.Coordinator.StartCluster(name)
	case "stop":
		results, err = Deps.Coordinator.StopCluster(name)
	case "restart":
		results, err = Deps.Coordinator.RestartCluster(name)
	}
	if err != nil {
		log.Fatalf("Error running cluster %s: %v", verb, err)
	}

	fmt.Printf("Cluster %s:\n", verb)
	printMemberResults(results)
}

func handleClusterStatus(name string) {
	statuses, err := Deps.Coordinator.ClusterStatus(name)
	if err != nil {
		log.Fatalf("Error querying cluster status: %v", err)
	}

	fmt.Printf("Cluster %s:\n", name)
	for _, s := range statuses {
		if s.RconReachable {
			fmt.Printf("- %s [%s] players=%d day=%d\n", s.Name, s.Status, s.Players, s.Day)
		} else {
			fmt.Printf("- %s [%s] rcon unreachable\n", s.Name, s.Status)
		}
	}
}

func handleClusterDelete(name string) {
	results, err := Deps.Provisioner.DeleteCluster(name)
	if err != nil {
		log.Fatalf("Error deleting cluster: %v", err)
	}
	fmt.Println("Cluster deleted. Members:")
	printMemberResults(results)
}

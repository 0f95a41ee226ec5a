package cmd

import (
	"fmt"
	"log"

	"asactl/internal/provision"
	"asactl/internal/runner"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage standalone servers",
}

var createName, createMap, createAdminPass, createServerPass, createConfigURL string
var createGamePort, createMaxPlayers int
var createMods []string
var createExcludeShared, createNoBattlEye bool

var serverCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new server",
	Run: func(cmd *cobra.Command, args []string) {
		handleServerCreate()
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all servers",
	Run: func(cmd *cobra.Command, args []string) {
		handleServerList()
	},
}

var serverStartCmd = &cobra.Command{
	Use:   "start [name]",
	Short: "Start a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerStart(args[0])
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop [name]",
	Short: "Stop a server gracefully",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerStop(args[0])
	},
}

var serverRestartCmd = &cobra.Command{
	Use:   "restart [name]",
	Short: "Restart a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerRestart(args[0])
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show live status of a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerStatus(args[0])
	},
}

var serverDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a server and its files",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerDelete(args[0])
	},
}

var updateMap, updateAdminPass, updateServerPass, updateConfigURL string
var updateMaxPlayers int
var updateMods []string
var updateExcludeShared, updateNoBattlEye bool

var serverUpdateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Update server settings and regenerate its files",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerUpdate(cmd, args[0])
	},
}

var regenCluster string

var serverRegenCmd = &cobra.Command{
	Use:   "regen-script [name]",
	Short: "Regenerate the launch script for a server",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if regenCluster != "" {
			handleRegenCluster(regenCluster)
			return
		}
		if len(args) != 1 {
			log.Fatal("Error: Specify a server name or --cluster")
		}
		handleRegenServer(args[0])
	},
}

var execCommand string

var serverExecCmd = &cobra.Command{
	Use:   "exec [name] [command]",
	Short: "Run an RCON command on a server",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		handleServerExec(args[0], args[1:])
	},
}

func init() {
	serverCreateCmd.Flags().StringVar(&createName, "name", "", "Server name")
	serverCreateCmd.Flags().StringVar(&createMap, "map", "TheIsland_WP", "Map name")
	serverCreateCmd.Flags().IntVar(&createGamePort, "game-port", 0, "Game port (query and RCON ports are derived)")
	serverCreateCmd.Flags().IntVar(&createMaxPlayers, "max-players", 70, "Maximum players")
	serverCreateCmd.Flags().StringVar(&createAdminPass, "admin-password", "", "Admin and RCON password")
	serverCreateCmd.Flags().StringVar(&createServerPass, "server-password", "", "Join password")
	serverCreateCmd.Flags().StringSliceVar(&createMods, "mods", nil, "Mod IDs")
	serverCreateCmd.Flags().BoolVar(&createExcludeShared, "exclude-shared-mods", false, "Skip policy shared mods")
	serverCreateCmd.Flags().BoolVar(&createNoBattlEye, "no-battleye", false, "Disable BattlEye")
	serverCreateCmd.Flags().StringVar(&createConfigURL, "dynamic-config-url", "", "Custom dynamic config URL")
	serverCreateCmd.MarkFlagRequired("name")
	serverCreateCmd.MarkFlagRequired("game-port")
	serverCreateCmd.MarkFlagRequired("admin-password")

	serverUpdateCmd.Flags().StringVar(&updateMap, "map", "", "Map name")
	serverUpdateCmd.Flags().IntVar(&updateMaxPlayers, "max-players", 0, "Maximum players")
	serverUpdateCmd.Flags().StringVar(&updateAdminPass, "admin-password", "", "Admin and RCON password")
	serverUpdateCmd.Flags().StringVar(&updateServerPass, "server-password", "", "Join password")
	serverUpdateCmd.Flags().StringSliceVar(&updateMods, "mods", nil, "Mod IDs (replaces the list)")
	serverUpdateCmd.Flags().BoolVar(&updateExcludeShared, "exclude-shared-mods", false, "Skip policy shared mods")
	serverUpdateCmd.Flags().BoolVar(&updateNoBattlEye, "no-battleye", false, "Disable BattlEye")
	serverUpdateCmd.Flags().StringVar(&updateConfigURL, "dynamic-config-url", "", "Custom dynamic config URL")

	serverRegenCmd.Flags().StringVar(&regenCluster, "cluster", "", "Regenerate scripts for every member of a cluster")

	serverCmd.AddCommand(serverCreateCmd, serverListCmd, serverStartCmd, serverStopCmd,
		serverRestartCmd, serverStatusCmd, serverUpdateCmd, serverDeleteCmd, serverRegenCmd, serverExecCmd)
	RootCmd.AddCommand(serverCmd)
}

func handleServerCreate() {
	input := provision.CreateServerInput{
		Name:              createName,
		Map:               createMap,
		GamePort:          createGamePort,
		MaxPlayers:        createMaxPlayers,
		AdminPassword:     createAdminPass,
		ServerPassword:    createServerPass,
		Mods:              createMods,
		ExcludeSharedMods: createExcludeShared,
		DisableBattlEye:   createNoBattlEye,
		DynamicConfigURL:  createConfigURL,
	}

	srv, err := Deps.Provisioner.CreateServer(input, printSink)
	if err != nil {
		log.Fatalf("Error creating server: %v", err)
	}
	fmt.Printf("Server %s created. Ports: game=%d query=%d rcon=%d\n",
		srv.Name, srv.GamePort, srv.QueryPort, srv.RconPort)
}

func handleServerList() {
	servers, err := Deps.Store.ListServers()
	if err != nil {
		log.Fatalf("Error listing servers: %v", err)
	}

	fmt.Println("Servers:")
	for _, s := range servers {
		clusterNote := ""
		if s.ClusterID != nil {
			clusterNote = fmt.Sprintf(" cluster=%s", *s.ClusterID)
		}
		fmt.Printf("- %s (%s) [%s] game=%d rcon=%d%s\n",
			s.Name, s.Map, s.Status, s.GamePort, s.RconPort, clusterNote)
	}
}

func handleServerStart(name string) {
	if err := Deps.Supervisor.Start(name); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
	fmt.Println("Server launched.")
}

func handleServerStop(name string) {
	outcome, err := Deps.Supervisor.StopWithOutcome(name)
	if err != nil {
		log.Fatalf("Error stopping server: %v", err)
	}
	switch outcome {
	case runner.StopNoProcess:
		fmt.Println("No running process found; status cleared.")
	case runner.StopForced:
		fmt.Println("Server did not exit in time and was killed.")
	default:
		fmt.Println("Server stopped cleanly.")
	}
}

func handleServerRestart(name string) {
	if err := Deps.Supervisor.Restart(name); err != nil {
		log.Fatalf("Error restarting server: %v", err)
	}
	fmt.Println("Server restarted.")
}

func handleServerStatus(name string) {
	status, err := Deps.Supervisor.GetStatus(name)
	if err != nil {
		log.Fatalf("Error querying status: %v", err)
	}

	fmt.Printf("Server:    %s\n", status.Name)
	fmt.Printf("Status:    %s\n", status.Status)
	if status.PID != 0 {
		fmt.Printf("PID:       %d\n", status.PID)
		fmt.Printf("Uptime:    %ds\n", status.UptimeSeconds)
	}
	if status.RconReachable {
		fmt.Printf("Players:   %d\n", status.Players)
		fmt.Printf("Game day:  %d\n", status.Day)
	} else {
		fmt.Println("RCON:      unreachable")
	}
}

func handleServerUpdate(cmd *cobra.Command, name string) {
	input := provision.UpdateServerInput{}
	if cmd.Flags().Changed("map") {
		input.Map = &updateMap
	}
	if cmd.Flags().Changed("max-players") {
		input.MaxPlayers = &updateMaxPlayers
	}
	if cmd.Flags().Changed("admin-password") {
		input.AdminPassword = &updateAdminPass
	}
	if cmd.Flags().Changed("server-password") {
		input.ServerPassword = &updateServerPass
	}
	if cmd.Flags().Changed("mods") {
		input.Mods = updateMods
		input.ModsSet = true
	}
	if cmd.Flags().Changed("exclude-shared-mods") {
		input.ExcludeSharedMods = &updateExcludeShared
	}
	if cmd.Flags().Changed("no-battleye") {
		input.DisableBattlEye = &updateNoBattlEye
	}
	if cmd.Flags().Changed("dynamic-config-url") {
		input.DynamicConfigURL = &updateConfigURL
	}

	srv, err := Deps.Provisioner.UpdateServerSettings(name, input)
	if err != nil {
		log.Fatalf("Error updating server: %v", err)
	}
	fmt.Printf("Server %s updated.\n", srv.Name)
}

func handleServerDelete(name string) {
	if err := Deps.Provisioner.DeleteServer(name); err != nil {
		log.Fatalf("Error deleting server: %v", err)
	}
	fmt.Println("Server deleted successfully.")
}

func handleRegenServer(name string) {
	path, err := Deps.Provisioner.RegenerateStartScript(name)
	if err != nil {
		log.Fatalf("Error regenerating script: %v", err)
	}
	fmt.Printf("Launch script written: %s\n", path)
}

func handleRegenCluster(name string) {
	members, err := Deps.Store.ListClusterMembers(name)
	if err != nil {
		log.Fatalf("Error listing cluster members: %v", err)
	}
	if len(members) == 0 {
		log.Fatalf("Cluster %q has no members", name)
	}
	for _, m := range members {
		path, err := Deps.Provisioner.RegenerateStartScript(m.Name)
		if err != nil {
			fmt.Printf("- %s: FAILED (%v)\n", m.Name, err)
			continue
		}
		fmt.Printf("- %s: %s\n", m.Name, path)
	}
}

func handleServerExec(name string, commandParts []string) {
	srv, err := Deps.Store.GetServerByName(name)
	if err != nil {
		log.Fatalf("Error loading server: %v", err)
	}
	if srv == nil {
		log.Fatalf("Server %q not found", name)
	}

	command := ""
	for i, part := range commandParts {
		if i > 0 {
			command += " "
		}
		command += part
	}

	response, err := Deps.Rcon.Execute("127.0.0.1", srv.RconPort, srv.AdminPassword, command)
	if err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
	fmt.Println(response)
}

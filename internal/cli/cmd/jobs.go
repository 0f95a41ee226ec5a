package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"asactl/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Observe asynchronous jobs",
}

var watchURL string

var jobsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream job-progress events from the daemon",
	Run: func(cmd *cobra.Command, args []string) {
		handleJobsWatch()
	},
}

func init() {
	jobsWatchCmd.Flags().StringVar(&watchURL, "url", "", "WebSocket URL (default ws://localhost:<port>/ws/jobs)")

	jobsCmd.AddCommand(jobsWatchCmd)
	RootCmd.AddCommand(jobsCmd)
}

func handleJobsWatch() {
	url := watchURL
	if url == "" {
		url = fmt.Sprintf("ws://localhost:%d/ws/jobs", Deps.Config.Port)
	}

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Error connecting to %s: %v", url, err)
	}
	defer c.Close()

	fmt.Println("Watching job events. Ctrl+C to stop.")
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return
		}
		var event domain.JobEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		line := fmt.Sprintf("[%s] %s %s", event.JobID, event.Type, event.Status)
		if event.Message != "" {
			line += ": " + event.Message
		}
		if event.Error != "" {
			line += " error=" + event.Error
		}
		fmt.Println(line)
	}
}

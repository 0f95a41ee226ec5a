package rcon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Commands understood by the ASA dedicated server console.
const (
	CmdSaveWorld   = "SaveWorld"
	CmdDoExit      = "DoExit"
	CmdListPlayers = "ListPlayers"
	CmdGetDayTime  = "GetTime"
)

// CmdBroadcast formats an in-game broadcast message.
func CmdBroadcast(message string) string {
	return fmt.Sprintf("ServerChat %s", message)
}

var playerLine = regexp.MustCompile(`^\d+\.\s`)

// ParsePlayerCount extracts the connected-player count from ListPlayers
// output. The server prints one numbered line per player, or a sentence when
// nobody is connected.
func ParsePlayerCount(output string) int {
	if strings.Contains(output, "No Players Connected") {
		return 0
	}

	count := 0
	for _, line := range strings.Split(output, "\n") {
		if playerLine.MatchString(strings.TrimSpace(line)) {
			count++
		}
	}
	return count
}

var dayPattern = regexp.MustCompile(`Day\s*:?\s*(\d+)`)

// ParseDay extracts the in-game day from GetTime output; 0 when absent.
func ParseDay(output string) int {
	m := dayPattern.FindStringSubmatch(output)
	if len(m) < 2 {
		return 0
	}
	day, _ := strconv.Atoi(m[1])
	return day
}

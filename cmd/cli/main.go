package main

import (
	"asactl/internal/cli/cmd"
)

func main() {
	cmd.Execute()
}

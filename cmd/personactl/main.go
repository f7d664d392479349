package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mediafirewall/persona-voice/internal/cli/commands"
	"github.com/mediafirewall/persona-voice/internal/cli/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		// Handle unknown command errors specially
		errMsg := err.Error()
		if strings.Contains(errMsg, "unknown command") {
			ui.PrintError("%s", errMsg)
			fmt.Println("\nRun 'personactl --help' for usage.")
		}
		os.Exit(1)
	}
}

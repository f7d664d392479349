package commands

import (
	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/cli/state"
	"github.com/mediafirewall/persona-voice/internal/cli/ui"
)

// logoutCmd is the logout command
var logoutCmd = &cobra.Command{
	Use:          "logout",
	Short:        "forget the local sign-in state",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := state.Remove(); err != nil {
			ui.PrintError("%v", err)
			return err
		}
		ui.PrintSuccess("Signed out")
		return nil
	},
}

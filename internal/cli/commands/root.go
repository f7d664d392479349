package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/cli/ui"
)

const version = "0.1.0"

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "personactl",
	Short:   "Persona voice chat CLI",
	Version: version,
	Long: `A terminal client for persona voice chat. Pick a persona, ask a question,
optionally attach a video, and listen to the spoken reply with its summary and
references. Administrators tune the expertise, humor and expert level used by
every persona.`,
	Example: `  # Sign in as a user
  $ personactl login -e mfw@gmail.com

  # List personas
  $ personactl personas

  # Start interactive chat with a persona
  $ personactl chat fitness

  # One-shot question with a video
  $ personactl say fitness "check my squat" --video squat.mp4

  # Tune global settings (admin)
  $ personactl admin set --humor funny`,
}

// Execute executes the root command
func Execute() error {
	rootCmd.SetVersionTemplate(formatVersion())
	return rootCmd.Execute()
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(adminCmd)

	// Set custom template with bold uppercase headers
	rootCmd.SetUsageTemplate(usageTemplate())
	rootCmd.SetHelpTemplate(usageTemplate())
}

func usageTemplate() string {
	return `{{if .Long}}{{.Long}}

{{end}}` + ui.Styles.Bold.Render("USAGE") + `
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasExample}}` + ui.Styles.Bold.Render("EXAMPLES") + `
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}` + ui.Styles.Bold.Render("COMMANDS") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableLocalFlags}}` + ui.Styles.Bold.Render("OPTIONS") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
}

// formatVersion formats the version output
func formatVersion() string {
	return fmt.Sprintf("personactl version %s\n", version)
}

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/cli/ui"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
)

// personasCmd lists the persona catalog
var personasCmd = &cobra.Command{
	Use:          "personas",
	Short:        "list the personas you can talk to",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			ui.PrintError("%v", err)
			return err
		}
		defer rt.close()

		if err := rt.requireRole(auth.RoleUser); err != nil {
			return err
		}

		items := rt.personas.List()
		fmt.Println()
		ui.PrintBold("PERSONAS (%d)", len(items))
		for _, p := range items {
			fmt.Println(ui.Styles.Card.Render(personaCard(p, rt.cfg.Media.VideoMaxBytes)))
		}
		fmt.Println()
		ui.PrintDim("Run 'personactl chat <id>' to start a conversation.")
		return nil
	},
}

func personaCard(p persona.Persona, videoMaxBytes int64) string {
	var b strings.Builder
	b.WriteString(ui.Styles.Title.Render(p.DisplayName))
	b.WriteString("  ")
	b.WriteString(ui.Styles.Dim.Render(p.ID))
	b.WriteString("\n")
	b.WriteString(p.Subtitle)
	if v, ok := p.WithVideoLimit(videoMaxBytes).AcceptsVideo(); ok {
		b.WriteString("\n")
		b.WriteString(ui.Styles.Dim.Render(fmt.Sprintf("accepts video up to %d MB", v.MaxBytes>>20)))
	}
	return b.String()
}

package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/cli/ui"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/service/admin"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
)

const updateTimeout = 30 * time.Second

var (
	setExpertise string
	setHumor     string
	setLevel     string
)

// adminCmd groups the global settings commands
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "view and change global persona settings",
	Long: `Global persona settings apply to every persona and every user. A value is
only recorded once the persona service has accepted it.`,
}

var adminShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "show the last accepted settings and their options",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runAdminShow,
}

var adminSetCmd = &cobra.Command{
	Use:   "set",
	Short: "change one or more global settings",
	Example: `  $ personactl admin set --humor funny
  $ personactl admin set --expertise fitness --level elite`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runAdminSet,
}

func init() {
	adminSetCmd.Flags().StringVar(&setExpertise, "expertise", "", "Expertise domain")
	adminSetCmd.Flags().StringVar(&setHumor, "humor", "", "Humor style")
	adminSetCmd.Flags().StringVar(&setLevel, "level", "", "Expert level")

	adminCmd.AddCommand(adminShowCmd)
	adminCmd.AddCommand(adminSetCmd)
}

func runAdminShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}
	defer rt.close()

	if err := rt.requireRole(auth.RoleAdmin); err != nil {
		return err
	}

	view := admin.NewService(rt.gateway, rt.logger).View()
	current := rt.state.Settings
	fmt.Println()
	ui.PrintBold("GLOBAL SETTINGS")
	printSetting(admin.FieldExpertise, string(current.Expertise), view.Options[admin.FieldExpertise])
	printSetting(admin.FieldHumor, string(current.Humor), view.Options[admin.FieldHumor])
	printSetting(admin.FieldExpertLevel, string(current.ExpertLevel), view.Options[admin.FieldExpertLevel])
	return nil
}

func printSetting(field admin.Field, value string, options []exchange.Option) {
	shown := "(not set)"
	if value != "" {
		shown = exchange.LabelFor(options, value)
	}
	values := make([]string, len(options))
	for i, o := range options {
		values[i] = o.Value
	}
	fmt.Printf("  %-14s %s\n", field.Label()+":", ui.Styles.Title.Render(shown))
	ui.PrintDim("                 options: %s", strings.Join(values, ", "))
}

type settingChange struct {
	field admin.Field
	value string
}

func (c settingChange) apply(s *admin.Settings) {
	switch c.field {
	case admin.FieldExpertise:
		s.Expertise = exchange.Expertise(c.value)
	case admin.FieldHumor:
		s.Humor = exchange.Humor(c.value)
	case admin.FieldExpertLevel:
		s.ExpertLevel = exchange.ExpertLevel(c.value)
	}
}

func runAdminSet(cmd *cobra.Command, args []string) error {
	var changes []settingChange
	for _, c := range []settingChange{
		{admin.FieldExpertise, setExpertise},
		{admin.FieldHumor, setHumor},
		{admin.FieldExpertLevel, setLevel},
	} {
		if c.value != "" {
			changes = append(changes, c)
		}
	}
	if len(changes) == 0 {
		ui.PrintError("nothing to change")
		return fmt.Errorf("one of --expertise, --humor or --level is required")
	}

	rt, err := newRuntime()
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}
	defer rt.close()

	if err := rt.requireRole(auth.RoleAdmin); err != nil {
		return err
	}

	svc := admin.NewService(rt.gateway, rt.logger)
	var failed error
	for _, c := range changes {
		ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
		notice, err := svc.Update(ctx, c.field, c.value)
		cancel()
		ui.PrintNotice(notice)
		if err != nil {
			failed = err
			continue
		}
		// 服务端接受后才记录，存储规范化后的值
		accepted := svc.View().Settings
		c.value = acceptedValue(accepted, c.field)
		c.apply(&rt.state.Settings)
	}

	if err := rt.state.Save(); err != nil {
		ui.PrintError("failed to save state: %v", err)
		return err
	}
	return failed
}

func acceptedValue(s admin.Settings, field admin.Field) string {
	switch field {
	case admin.FieldExpertise:
		return string(s.Expertise)
	case admin.FieldHumor:
		return string(s.Humor)
	default:
		return string(s.ExpertLevel)
	}
}

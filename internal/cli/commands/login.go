package commands

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/cli/state"
	"github.com/mediafirewall/persona-voice/internal/cli/ui"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
)

var (
	loginEmail string
	loginAdmin bool
)

// loginCmd is the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "sign in as a user or administrator",
	Long: `Sign in with email and password and remember the session locally.

The sign-in state is stored in ~/.personactl/state.yaml (or $PERSONACTL_HOME)
and used by every subsequent command until you logout.`,
	Example: `  # Sign in as a user (prompts for the password)
  $ personactl login -e mfw@gmail.com

  # Sign in as an administrator
  $ personactl login --admin`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Email for authentication")
	loginCmd.Flags().BoolVar(&loginAdmin, "admin", false, "Sign in as administrator")

	// Silence usage to avoid showing help on every error
	loginCmd.SilenceUsage = true
}

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}
	defer rt.close()

	// 1. Prompt for email if not provided
	if loginEmail == "" {
		prompt := &survey.Input{Message: "Email:"}
		if err := survey.AskOne(prompt, &loginEmail, survey.WithValidator(survey.Required)); err != nil {
			ui.PrintError("failed to read email: %v", err)
			return fmt.Errorf("input failed")
		}
	}

	// 2. Prompt for password (hidden input)
	var password string
	prompt := &survey.Password{Message: "Password:"}
	if err := survey.AskOne(prompt, &password, survey.WithValidator(survey.Required)); err != nil {
		ui.PrintError("failed to read password: %v", err)
		return fmt.Errorf("input failed")
	}

	role := auth.RoleUser
	if loginAdmin {
		role = auth.RoleAdmin
	}

	// 3. Verify credentials
	ac, err := rt.authService().Verify(role, loginEmail, password)
	if errors.Is(err, apperr.ErrAuthenticationRejected) {
		n := apperr.NoticeFor(err)
		ui.PrintErrorBox("✗ "+n.Title, n.Description)
		return fmt.Errorf("authentication failed")
	}
	if err != nil {
		return err
	}

	// 4. Save state; settings survive a re-login
	st := rt.state
	st.Authenticated = true
	st.Admin = ac.IsAdmin()
	st.Email = ac.Email
	if err := st.Save(); err != nil {
		ui.PrintError("failed to save state: %v", err)
		return fmt.Errorf("state save failed")
	}

	// 5. Display success message
	statePath, _ := state.Path()
	ui.PrintSuccessBox("✓ Login Successful", fmt.Sprintf(`Email:        %s
Role:         %s
State saved:  %s`, ac.Email, ac.Role, statePath))

	fmt.Println()
	ui.PrintInfo("Next:")
	ui.PrintBold("  %s", homeCommand(ac))
	return nil
}

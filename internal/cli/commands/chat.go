package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/cli/tui"
	"github.com/mediafirewall/persona-voice/internal/cli/ui"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
	"github.com/mediafirewall/persona-voice/internal/service/chat"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

const openTimeout = 30 * time.Second

var chatLanguage string

// chatCmd is the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [persona]",
	Short: "start interactive voice chat with a persona",
	Long: `Start an interactive chat with a persona. Every reply is spoken through the
local audio player (PLAYER_COMMAND, ffplay by default).

Features:
  • 语音回复自动播放，同一时间只播放一条
  • 摘要与参考视频可展开
  • /video 为支持视频的人设附加视频`,
	Example: `  # Pick a persona interactively
  $ personactl chat

  # Chat in Hindi
  $ personactl chat fitness --language hindi

  # Keyboard controls:
  • 输入消息按 Enter 发送
  • Ctrl+P 播放/停止最近的回复
  • /help 查看命令，Esc 退出会话`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatLanguage, "language", "l", "", "Reply language (English, Hindi)")
	chatCmd.SilenceUsage = true
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}
	defer rt.close()

	if err := rt.requireRole(auth.RoleUser); err != nil {
		return err
	}

	p, err := resolvePersona(rt, args)
	if err != nil {
		return err
	}

	svc := rt.chatService()
	defer svc.Close()

	ui.PrintInfo("Connecting to %s...", p.DisplayName)
	sess, err := openSession(cmd.Context(), rt, svc, p.ID, chatLanguage)
	if err != nil {
		return err
	}

	program := tui.NewChatProgram(sess)
	if err := program.Run(); err != nil {
		return fmt.Errorf("failed to run chat TUI: %w", err)
	}
	return nil
}

// resolvePersona takes the persona id argument or asks for one.
func resolvePersona(rt *runtime, args []string) (persona.Persona, error) {
	if len(args) > 0 {
		p, ok := rt.personas.FindByID(args[0])
		if !ok {
			ui.PrintError("unknown persona %q", args[0])
			fmt.Println("\nRun 'personactl personas' to list them.")
			return persona.Persona{}, fmt.Errorf("%w: %s", chat.ErrPersonaNotFound, args[0])
		}
		return p, nil
	}

	items := rt.personas.List()
	names := make([]string, len(items))
	for i, p := range items {
		names[i] = p.DisplayName
	}
	var index int
	prompt := &survey.Select{Message: "Choose a persona:", Options: names}
	if err := survey.AskOne(prompt, &index); err != nil {
		ui.PrintError("failed to read selection: %v", err)
		return persona.Persona{}, fmt.Errorf("input failed")
	}
	return items[index], nil
}

func openSession(parent context.Context, rt *runtime, svc *chat.Service, personaID, rawLanguage string) (*session.Session, error) {
	var language exchange.Language
	if rawLanguage != "" {
		lang, err := exchange.ParseLanguage(rawLanguage)
		if err != nil {
			ui.PrintError("%v", err)
			return nil, err
		}
		language = lang
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, openTimeout)
	defer cancel()

	sess, err := svc.CreateSession(ctx, rt.state.Email, personaID, language)
	if err != nil {
		n := apperr.ConnectionNotice()
		ui.PrintErrorBox("✗ "+n.Title, n.Description)
		return nil, err
	}
	return sess, nil
}

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mediafirewall/persona-voice/internal/apperr"
	"github.com/mediafirewall/persona-voice/internal/cli/tui"
	"github.com/mediafirewall/persona-voice/internal/cli/ui"
	"github.com/mediafirewall/persona-voice/internal/model/chat"
	"github.com/mediafirewall/persona-voice/internal/model/exchange"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
	"github.com/mediafirewall/persona-voice/internal/service/session"
)

var (
	sayVideo    string
	sayNoPlay   bool
	sayLanguage string
)

// sayCmd runs a single exchange without the TUI
var sayCmd = &cobra.Command{
	Use:   "say <persona> [text...]",
	Short: "ask one question and play the spoken reply",
	Example: `  $ personactl say life_coach "how do I stay focused?"
  $ personactl say fitness "check my squat" --video squat.mp4
  $ personactl say actor "tell me a story" --no-play`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runSay,
}

func init() {
	sayCmd.Flags().StringVar(&sayVideo, "video", "", "Attach a video file (video personas only)")
	sayCmd.Flags().BoolVar(&sayNoPlay, "no-play", false, "Do not play the voice reply")
	sayCmd.Flags().StringVarP(&sayLanguage, "language", "l", "", "Reply language (English, Hindi)")
}

func runSay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime()
	if err != nil {
		ui.PrintError("%v", err)
		return err
	}
	defer rt.close()

	if err := rt.requireRole(auth.RoleUser); err != nil {
		return err
	}

	p, err := resolvePersona(rt, args[:1])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")

	var att *exchange.Attachment
	if sayVideo != "" {
		if att, err = tui.LoadVideo(sayVideo); err != nil {
			ui.PrintNotice(apperr.NoticeFor(err))
			return err
		}
	}

	svc := rt.chatService()
	defer svc.Close()

	sess, err := openSession(ctx, rt, svc, p.ID, sayLanguage)
	if err != nil {
		return err
	}

	done, err := sess.Submit(text, att)
	if err != nil {
		ui.PrintNotice(apperr.NoticeFor(err))
		return err
	}
	ui.PrintInfo("Waiting for %s...", p.DisplayName)
	select {
	case err = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil {
		ui.PrintNotice(apperr.NoticeFor(err))
		return err
	}

	reply, ok := lastReply(sess.Snapshot())
	if !ok {
		return fmt.Errorf("no reply received")
	}
	printReply(p.DisplayName, reply)

	if sayNoPlay || !reply.HasAudio {
		return nil
	}
	return playToEnd(ctx, sess, reply.ID)
}

func lastReply(snap chat.Snapshot) (chat.MessageView, bool) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Author == chat.AuthorPersona {
			return snap.Messages[i], true
		}
	}
	return chat.MessageView{}, false
}

func printReply(name string, reply chat.MessageView) {
	fmt.Println()
	ui.PrintBold("%s: %s", name, reply.Text)
	if len(reply.SummaryBullets) > 0 {
		fmt.Println()
		ui.PrintBold("Summary")
		for _, bullet := range reply.SummaryBullets {
			fmt.Printf("  • %s\n", bullet)
		}
	}
	if len(reply.Embeds) > 0 {
		fmt.Println()
		ui.PrintBold("References")
		for _, embed := range reply.Embeds {
			fmt.Printf("  [%d] %s\n", embed.Index+1, embed.SourceURL)
		}
	}
	fmt.Println()
}

// playToEnd blocks until messageID completes, fails or is interrupted. A successful
// exchange already autoplays its reply, so the track is only started when it is neither
// playing nor finished.
func playToEnd(ctx context.Context, sess *session.Session, messageID int64) error {
	finished := make(chan *apperr.Notice, 1)
	unsub := sess.Subscribe(func(ev session.Event) {
		if ev.Snapshot.ActiveAudioMessageID == messageID {
			return
		}
		select {
		case finished <- ev.Notice:
		default:
		}
	})
	defer unsub()

	snap := sess.Snapshot()
	if snap.ActiveAudioMessageID != messageID {
		if reply, ok := snap.Find(messageID); ok && reply.HasPlayed {
			return nil
		}
		// 自动播放失败时重新播放一次
		select {
		case <-finished:
		default:
		}
		if err := sess.TogglePlayback(messageID); err != nil {
			ui.PrintNotice(apperr.NoticeFor(err))
			return err
		}
	}
	ui.PrintDim("Playing... (Ctrl+C to stop)")

	select {
	case notice := <-finished:
		if notice != nil {
			ui.PrintNotice(*notice)
		}
	case <-ctx.Done():
		sess.StopPlayback()
	}
	return nil
}

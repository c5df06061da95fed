package commands

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pixel/pkg/session"
)

var talkUser string

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Talk to Pixel from the terminal",
	Long: `Start a voice session on the local microphone and speaker and print
live transcripts. Press Ctrl-C to end the session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		fmt.Println("🎙️  Listening. Press Ctrl-C to stop.")
		err = app.Talk(ctx, talkUser, consoleCallbacks())
		if session.IsPermissionDenied(err) {
			return fmt.Errorf("microphone access denied: %w", err)
		}
		return err
	},
}

func init() {
	talkCmd.Flags().StringVarP(&talkUser, "user", "u", "", "user id for reminders and Telegram")
	rootCmd.AddCommand(talkCmd)
}

// consoleCallbacks prints transcripts, rewriting the current line as a
// turn's transcript grows.
func consoleCallbacks() session.Callbacks {
	var mu sync.Mutex
	var last string
	show := func(prefix, text string) {
		mu.Lock()
		defer mu.Unlock()
		if last != "" && last != prefix {
			fmt.Println()
		}
		last = prefix
		fmt.Printf("\r\033[K%s %s", prefix, strings.TrimSpace(text))
	}
	return session.Callbacks{
		OnUserTranscription:  func(text string) { show("you:  ", text) },
		OnModelTranscription: func(text string) { show("pixel:", text) },
		OnSessionEnd: func() {
			fmt.Println("\n👋 Session ended.")
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "\n❌ %v\n", err)
		},
	}
}

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pixel/pkg/reminder"
	"github.com/teslashibe/go-pixel/pkg/settings"
)

var (
	remindUser string
	remindIn   time.Duration
	remindWait bool
)

var remindCmd = &cobra.Command{
	Use:   "remind <message>",
	Short: "Schedule a reminder",
	Long: `Schedule a reminder for a user.

The reminder is persisted. Without --wait it fires from the next running
"pixel serve"; with --wait this process stays up and delivers it.

Example:
  pixel remind --user alice --in 10m "stretch your legs"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if remindIn <= 0 {
			return fmt.Errorf("--in must be positive")
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		fired := make(chan struct{}, 1)
		app.Reminders().AddNotifier(reminder.NotifierFunc(func(title string, r settings.Reminder) {
			fmt.Fprintf(cmd.OutOrStdout(), "🔔 %s: %s\n", title, r.Message)
			select {
			case fired <- struct{}{}:
			default:
			}
		}))

		message := strings.Join(args, " ")
		id, err := app.Reminders().Schedule(ctx, remindUser, message, remindIn)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "⏰ Reminder %s set for %s\n", id, time.Now().Add(remindIn).Format(time.Kitchen))

		if !remindWait {
			return nil
		}
		select {
		case <-fired:
		case <-ctx.Done():
		}
		return nil
	},
}

var remindListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reminders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Shutdown()

		pending, err := app.Store().Reminders(cmd.Context())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending reminders.")
			return nil
		}
		for _, r := range pending {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-12s %s\n", r.ID, r.DueAt.Local().Format(time.DateTime), r.UserID, r.Message)
		}
		return nil
	},
}

func init() {
	remindCmd.Flags().StringVarP(&remindUser, "user", "u", "", "user id (its Telegram chat receives the reminder)")
	remindCmd.Flags().DurationVar(&remindIn, "in", 0, "delay, e.g. 90s or 10m")
	remindCmd.Flags().BoolVar(&remindWait, "wait", false, "stay running until the reminder fires")
	remindCmd.AddCommand(remindListCmd)
	rootCmd.AddCommand(remindCmd)
}

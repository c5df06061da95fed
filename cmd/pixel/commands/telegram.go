package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pixel/pkg/settings"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Manage Telegram delivery",
}

var telegramSetCmd = &cobra.Command{
	Use:   "set <user> <chat-id>",
	Short: "Set a user's Telegram chat id (empty clears it)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Shutdown()

		chatID := ""
		if len(args) == 2 {
			chatID = strings.TrimSpace(args[1])
		}
		if err := app.Store().SetTelegramID(cmd.Context(), args[0], chatID); err != nil {
			return err
		}
		if chatID == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared Telegram chat for %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Telegram chat for %s set to %s\n", args[0], chatID)
		}
		return nil
	},
}

var telegramGetCmd = &cobra.Command{
	Use:   "get <user>",
	Short: "Show a user's Telegram chat id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Shutdown()

		id, err := app.Store().TelegramID(cmd.Context(), args[0])
		if errors.Is(err, settings.ErrNotFound) {
			return fmt.Errorf("no Telegram chat configured for %s", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var telegramSendUser string

var telegramSendCmd = &cobra.Command{
	Use:   "send <chat-id|--user user> <message>",
	Short: "Send a test message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Shutdown()

		var chatID string
		if telegramSendUser != "" {
			chatID, err = app.Store().TelegramID(cmd.Context(), telegramSendUser)
			if err != nil && !errors.Is(err, settings.ErrNotFound) {
				return err
			}
		} else {
			if len(args) < 2 {
				return fmt.Errorf("need a chat id and a message")
			}
			chatID, args = args[0], args[1:]
		}

		out := app.Messenger().Deliver(cmd.Context(), chatID, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), out.Message)
		if !out.OK {
			return errors.New("delivery failed")
		}
		return nil
	},
}

func init() {
	telegramSendCmd.Flags().StringVarP(&telegramSendUser, "user", "u", "", "send to this user's configured chat")
	telegramCmd.AddCommand(telegramSetCmd, telegramGetCmd, telegramSendCmd)
	rootCmd.AddCommand(telegramCmd)
}

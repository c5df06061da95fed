// Command pixel runs the Pixel AI voice assistant.
//
// Usage:
//
//	pixel [flags] <command> [args]
//
// Commands:
//
//	serve     - HTTP API and live event stream
//	talk      - one voice session in the terminal
//	remind    - schedule a reminder
//	telegram  - manage and test Telegram delivery
//
// Configuration is read from pixel.yaml (see --config), .env and the
// environment. GOOGLE_API_KEY and TELEGRAM_BOT_TOKEN are the usual minimum.
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-pixel/cmd/pixel/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package commands

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pixel/internal/log"
	"github.com/teslashibe/go-pixel/pkg/audioio"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and event stream",
	Long: `Run the HTTP API.

Routes:
  GET    /api/status
  POST   /api/session            start a voice session
  DELETE /api/session            stop it
  GET    /api/users/:id/telegram
  PUT    /api/users/:id/telegram
  POST   /api/telegram           send a message
  GET    /api/reminders
  POST   /api/reminders
  DELETE /api/reminders/:id
  GET    /ws/events              session events (websocket)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Web.Port = servePort
		}
		if err := cfg.RequireAPIKey(); err != nil {
			log.Warn("voice sessions will fail to start", "error", err)
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		log.Info("starting pixel",
			"port", cfg.Web.Port,
			"model", cfg.Gemini.Model,
			"transport", cfg.Gemini.Transport,
			"audio_backends", audioio.AvailableBackends(),
		)
		ln, err := net.Listen("tcp", ":"+cfg.Web.Port)
		if err != nil {
			return err
		}
		return app.Serve(ctx, ln)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

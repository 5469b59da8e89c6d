// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cvogel/imappush/internal/app"
	"github.com/cvogel/imappush/internal/imapclient"
	"github.com/cvogel/imappush/internal/push"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Continuously watch the configured folder via IDLE",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.InConfig("imap") {
			return fmt.Errorf(`configuration missing or incomplete.

Create a config.yaml file by running:
  imappush init

The configuration file should be in your current directory and contain:
- IMAP server settings (to read the mailbox)
- push settings (folder, displayCount, idleRefreshMinutes)
- state settings (where to persist the cursor)`)
		}

		slog.Info("Starting serve mode (watching folder via IDLE)")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	conn, err := imapclient.Dial(ctx, app.DialConfigFromViper())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	folder := imapclient.NewFolder(conn, viper.GetString("push.folder"))
	store := push.NewStateStore(afero.NewOsFs(), app.StatePath())
	receiver := app.NewReceiver(ctx, folder, store)
	config := app.NewViperStoreConfig(true)
	wakeLock := push.NewNamedWakeLock(folder.Name())

	controller := push.NewRefreshController(folder, receiver, config, wakeLock)
	if err := controller.Start(); err != nil {
		return fmt.Errorf("start pusher: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutting down pusher")
	return controller.Stop()
}

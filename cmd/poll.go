package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cvogel/imappush/internal/app"
	"github.com/cvogel/imappush/internal/imapclient"
	"github.com/cvogel/imappush/internal/push"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run the cursor check once, without starting an IDLE worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.InConfig("imap") {
			return fmt.Errorf(`configuration missing or incomplete.

Create a config.yaml file by running:
  imappush init`)
		}
		return runPoll(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func runPoll(ctx context.Context) error {
	conn, err := imapclient.Dial(ctx, app.DialConfigFromViper())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	folder := imapclient.NewFolder(conn, viper.GetString("push.folder"))
	if err := folder.Open(push.ReadWrite); err != nil {
		return fmt.Errorf("open folder: %w", err)
	}

	store := push.NewStateStore(afero.NewOsFs(), app.StatePath())
	state, err := store.Load()
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	newUidNext, ok := folder.UidNext()
	if !ok {
		fmt.Println("Server did not report UIDNEXT; nothing to compare.")
		return nil
	}

	fmt.Printf("Persisted cursor: %s\n", state.String())
	fmt.Printf("Current UIDNEXT:  %d\n", newUidNext)

	if newUidNext > state.UidNext {
		fmt.Println("A sync would be triggered right now.")
	} else {
		fmt.Println("Folder is caught up; no sync needed.")
	}

	return store.Save(push.PushState{UidNext: newUidNext})
}

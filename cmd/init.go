package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively generate a config.yaml file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := "config.yaml"

		if _, err := os.Stat(configFile); err == nil {
			fmt.Printf("config.yaml already exists. Remove it first to generate a new one.\n")
			return nil
		}

		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Let's set up your config.yaml!")

		fmt.Println("\n--- IMAP ---")
		imapServer := prompt(reader, "IMAP server (e.g. imap.strato.de): ")
		imapPort := prompt(reader, "IMAP port (e.g. 993): ")
		imapUser := prompt(reader, "IMAP username: ")
		imapPass := prompt(reader, "IMAP password: ")

		fmt.Println("\n--- PUSH ---")
		folder := prompt(reader, "Folder to watch (e.g. INBOX): ")
		displayCount := prompt(reader, "Display window size (e.g. 50): ")
		idleRefreshMinutes := prompt(reader, "IDLE refresh interval in minutes (e.g. 24): ")

		fmt.Println("\n--- STATE ---")
		statePath := prompt(reader, "Cursor state file path (e.g. ./imappush.state): ")

		content := fmt.Sprintf(`imap:
  server: %s
  port: %s
  username: %s
  password: %s

push:
  folder: %s
  displayCount: %s
  idleRefreshMinutes: %s
  pushPollOnConnect: true

state:
  path: %s
`, imapServer, imapPort, imapUser, imapPass,
			folder, displayCount, idleRefreshMinutes, statePath)

		if err := os.WriteFile(configFile, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write config.yaml: %w", err)
		}

		fmt.Println("\nconfig.yaml created successfully.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	text, _ := r.ReadString('\n')
	return strings.TrimSpace(text)
}

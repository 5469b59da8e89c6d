package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "imappush",
	Short: "Watch a single IMAP folder via IDLE and notify on change",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Setup logger after flag parsing
		setupLogger()
	},
}

func init() {
	// Add persistent flag to enable verbose logging
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose (info/debug) logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	cobra.OnInitialize(initConfig)
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("No config.yaml found in current directory.",
				"hint", "Run `imappush init` to create one interactively.")
		} else {
			slog.Error("Failed to read config", "error", err)
		}
	} else {
		validateConfig()
	}
}

func validateConfig() {
	if !viper.IsSet("push.folder") {
		slog.Warn("No push.folder configured - defaulting to INBOX")
	}
	if viper.GetInt("push.displayCount") <= 0 {
		slog.Warn("push.displayCount is unset or non-positive, defaulting to 50")
	}
	if viper.GetInt("push.idleRefreshMinutes") <= 0 {
		slog.Warn("push.idleRefreshMinutes is unset or non-positive, defaulting to 24")
	}
	if !viper.IsSet("state.path") {
		slog.Warn("No state.path configured - defaulting to ./imappush.state")
	}
}

func setupLogger() {
	var level slog.Level
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	} else {
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}

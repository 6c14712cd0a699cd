// Package commands provides the CLI commands for chatrelay.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/issacpacheco/chat-stream-gemini/internal/config"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "chatrelay - streaming chat relay for Gemini and other LLMs",
	Long: `chatrelay keeps one conversation per client and streams the model's
replies over a websocket as start, chunk and end frames.

Run 'chatrelay serve' to start the relay, or 'chatrelay chat' to talk to
a running relay from the terminal.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("chatrelay %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// setupLogging initializes the global logger. The --log-level flag wins
// over the config file. Interactive commands log to the state directory
// unless --print-logs is set, so logs do not interleave with the chat.
func setupLogging(cmd *cobra.Command, lc types.LogConfig, interactive bool) (io.Closer, error) {
	cfg := logging.FromConfig(lc)
	if cmd.Flags().Changed("log-level") || lc.Level == "" {
		cfg.Level = logging.ParseLevel(logLevel)
	}

	if interactive && !printLogs {
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			return nil, err
		}
		cfg.File = paths.LogPath()
		cfg.Pretty = false
	} else if printLogs {
		cfg.Pretty = true
	}
	return logging.Init(cfg)
}

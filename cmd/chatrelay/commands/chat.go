package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/issacpacheco/chat-stream-gemini/internal/client"
	"github.com/issacpacheco/chat-stream-gemini/internal/config"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

var (
	chatURL      string
	chatClientID string
	chatNoColor  bool
	chatName     string
	chatTimeout  time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running relay from the terminal",
	Long: `Open an interactive chat with a running chatrelay server.

Each line is sent as one message and the reply is printed as it streams.
Use /clear to start over with a new conversation and /quit to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", defaultServerURL(), "Relay base URL")
	chatCmd.Flags().StringVar(&chatClientID, "client-id", "", "Conversation identifier (default client-<unix ms>)")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().StringVar(&chatName, "name", "oak", "Label for the assistant's replies")
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", 2*time.Minute, "Maximum wait for each reply frame")
}

func defaultServerURL() string {
	return fmt.Sprintf("http://localhost:%d", config.DefaultPort)
}

func runChat(cmd *cobra.Command, args []string) error {
	logCloser, err := setupLogging(cmd, types.LogConfig{}, true)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	c, err := client.New(client.Config{
		URL:          chatURL,
		ClientID:     chatClientID,
		ReplyTimeout: chatTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	renderer := client.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), chatName, chatNoColor)
	return client.Run(ctx, cmd.InOrStdin(), c, renderer)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/issacpacheco/chat-stream-gemini/internal/client"
)

var sessionsURL string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversations on a running relay",
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <clientID>",
	Short: "Delete the conversation of a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsURL, "url", defaultServerURL(), "Relay base URL")
	sessionsCmd.AddCommand(sessionsClearCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	c, err := client.New(client.Config{URL: sessionsURL})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	msg, err := c.DeleteSession(ctx, args[0])
	if errors.Is(err, client.ErrNotFound) {
		if msg == "" {
			msg = err.Error()
		}
		return errors.New(msg)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	c, err := client.New(client.Config{URL: sessionsURL})
	if err != nil {
		return err
	}
	infos, err := c.ListSessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tCREATED\tLAST USED\tCONNECTIONS")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			info.ClientID,
			info.CreatedAt.Local().Format(time.DateTime),
			info.LastUsed.Local().Format(time.DateTime),
			info.Active)
	}
	return w.Flush()
}

package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

const helpText = `Commands:
  /help    Show this message
  /clear   Forget this conversation and start a new one
  /quit    Leave the chat`

type commandKind int

const (
	cmdNone commandKind = iota
	cmdHelp
	cmdClear
	cmdQuit
	cmdUnknown
)

func parseCommand(input string) commandKind {
	if !strings.HasPrefix(input, "/") {
		return cmdNone
	}
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return cmdUnknown
	}
	switch fields[0] {
	case "help", "?":
		return cmdHelp
	case "clear", "reset":
		return cmdClear
	case "quit", "exit":
		return cmdQuit
	default:
		return cmdUnknown
	}
}

// Run reads lines from in and sends each as one message until in ends,
// ctx is done or the user quits. Failed sends are reported and the loop
// continues; the next send reconnects.
func Run(ctx context.Context, in io.Reader, c *Client, r *Renderer) error {
	defer c.Close()
	r.Banner(c.URL(), c.ClientID())

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		r.Prompt()
		var line string
		select {
		case <-ctx.Done():
			r.End()
			return nil
		case l, ok := <-lines:
			if !ok {
				r.End()
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		switch parseCommand(line) {
		case cmdQuit:
			return nil
		case cmdHelp:
			r.Help()
			continue
		case cmdClear:
			msg, err := c.Clear(ctx)
			if err != nil {
				r.Error(err)
				continue
			}
			if msg != "" {
				r.Info("%s", msg)
			}
			r.Info("new conversation: %s", c.ClientID())
			continue
		case cmdUnknown:
			r.Info("unknown command %s", line)
			r.Help()
			continue
		}

		started := false
		_, err := c.Send(ctx, line, func(chunk string) {
			if !started {
				r.Start()
				started = true
			}
			r.Chunk(chunk)
		})
		if started {
			r.End()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.Error(err)
		}
	}
}

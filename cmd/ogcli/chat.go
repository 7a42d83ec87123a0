package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/client"
	"github.com/openground/backend/internal/infrastructure/realtime"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Conversations with buyers and sellers",
}

var chatThreadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List your conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		threads, err := newClient().Threads(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSUBJECT\tUNREAD\tLAST MESSAGE")
		for _, t := range threads {
			last := ""
			if t.LastMessage != nil {
				last = truncate(t.LastMessage.Body, 40)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.Subject, t.UnreadCount, last)
		}
		return w.Flush()
	},
}

var chatWatchCmd = &cobra.Command{
	Use:   "watch <thread-id>",
	Short: "Follow a thread live; lines typed on stdin are sent as messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	chatCmd.AddCommand(chatThreadsCmd, chatWatchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	threadID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid thread id %q", args[0])
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newClient()
	out := cmd.OutOrStdout()
	show := func(m client.Message) {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), shortID(m.SenderID), m.Body)
	}

	cache := client.NewThreadCache()
	history, err := c.Messages(ctx, threadID)
	if err != nil {
		return err
	}
	for _, m := range cache.Append(threadID, history...) {
		show(m)
	}

	stream := client.NewMessageStream(c, cache,
		client.OnMessage(show),
		client.OnEvent(func(_ uuid.UUID, ev realtime.Event) {
			if ev.Name != realtime.EventTyping {
				return
			}
			var p realtime.TypingPayload
			if err := json.Unmarshal(ev.Data, &p); err == nil && p.Typing {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s is typing...\n", shortID(p.UserID))
			}
		}),
	)
	defer stream.Close()
	stream.Subscribe(ctx, threadID)

	typing := client.NewTypingNotifier(c, threadID, client.WithTypingLogger(log))
	defer typing.Stop()

	go sendLines(ctx, cmd.InOrStdin(), c, typing, threadID)

	err = stream.Wait(ctx, threadID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendLines posts every non-empty stdin line to the thread
func sendLines(ctx context.Context, in io.Reader, c *client.Client, typing *client.TypingNotifier, threadID uuid.UUID) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		body := strings.TrimSpace(sc.Text())
		if body == "" {
			continue
		}
		typing.Keystroke()
		if _, err := c.SendMessage(ctx, threadID, body); err != nil {
			log.Warn("Send failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// ABOUTME: Command-line chat client for souk-gateway customers and sellers
// ABOUTME: Lists threads, reads history, posts messages and watches the live channel

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/souk-gateway/internal/client"
	"github.com/2389/souk-gateway/internal/wire"
)

func usage() {
	fmt.Println("Usage: souk-chat <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  me                              Show who the token belongs to")
	fmt.Println("  partners                        List people you can talk to")
	fmt.Println("  threads                         List your threads")
	fmt.Println("  open --partner ID               Find or start a thread with a partner")
	fmt.Println("  history --thread ID [--after N] Show messages in a thread")
	fmt.Println("  send --thread ID TEXT...        Post a message")
	fmt.Println("  watch [--thread ID]             Stream live messages; with --thread, stdin lines are sent")
	fmt.Println()
	fmt.Println("Auth: gateway.token in chat.toml, SOUK_TOKEN, or ~/.config/souk/token")
}

// app bundles what every command needs.
type app struct {
	cfg    *Config
	api    *client.API
	token  string
	me     *wire.Me
	logger *slog.Logger
	out    io.Writer
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	if cmd := os.Args[1]; cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	cfg, err := Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token := cfg.ResolveToken()
	if token == "" {
		return errors.New("no token configured (set SOUK_TOKEN or run `souk-gateway token --save`)")
	}

	level := slog.LevelWarn
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	a := &app{
		cfg:    cfg,
		api:    client.NewAPI(cfg.Gateway.URL, token, nil),
		token:  token,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		out:    os.Stdout,
	}

	switch cmd {
	case "me":
		return a.runMe(ctx)
	case "partners":
		return a.runPartners(ctx)
	case "threads":
		return a.runThreads(ctx)
	case "open":
		return a.runOpen(ctx, args)
	case "history":
		return a.runHistory(ctx, args)
	case "send":
		return a.runSend(ctx, args)
	case "watch":
		return a.runWatch(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// identity fetches and caches the caller's identity.
func (a *app) identity(ctx context.Context) (*wire.Me, error) {
	if a.me != nil {
		return a.me, nil
	}
	me, err := a.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	a.me = me
	return me, nil
}

func (a *app) runMe(ctx context.Context) error {
	me, err := a.identity(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%s) as %s\n", me.DisplayName, me.ID, me.Role)
	return nil
}

func (a *app) runPartners(ctx context.Context) error {
	partners, err := a.api.Participants(ctx, "")
	if err != nil {
		return err
	}
	if len(partners) == 0 {
		fmt.Fprintln(a.out, "nobody to talk to yet")
		return nil
	}
	for _, p := range partners {
		fmt.Fprintf(a.out, "%-24s %s\n", p.ID, p.DisplayName)
	}
	return nil
}

func (a *app) runThreads(ctx context.Context) error {
	threads, err := a.api.ListThreads(ctx, 0)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Fprintln(a.out, "no threads yet; start one with `souk-chat open --partner ID`")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, t := range threads {
		fmt.Fprintf(a.out, "%s  %-24s", t.ID, t.Partner.DisplayName)
		gray.Fprintf(a.out, " active %s", humanize.Time(t.LastActivityAt))
		if t.Status != "active" {
			color.New(color.FgYellow).Fprintf(a.out, " [%s]", t.Status)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func (a *app) runOpen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	partner := fs.String("partner", "", "partner participant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *partner == "" {
		return errors.New("--partner is required")
	}

	thread, created, err := a.api.OpenThread(ctx, *partner)
	if err != nil {
		return err
	}
	verb := "existing"
	if created {
		verb = "new"
	}
	fmt.Fprintf(a.out, "%s thread %s\n", verb, thread.ID)
	return nil
}

func (a *app) runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	threadID := fs.String("thread", "", "thread ID")
	after := fs.Int64("after", 0, "only messages with seq greater than this")
	limit := fs.Int("limit", a.cfg.Chat.HistoryLimit, "maximum messages to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *threadID == "" {
		return errors.New("--thread is required")
	}

	me, err := a.identity(ctx)
	if err != nil {
		return err
	}
	msgs, err := a.api.ListMessages(ctx, *threadID, *after, *limit)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		a.printMessage(me, m, "")
	}
	return nil
}

func (a *app) runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	threadID := fs.String("thread", "", "thread ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *threadID == "" {
		return errors.New("--thread is required")
	}
	content := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(content) == "" {
		return errors.New("message text is required")
	}

	msg, _, err := a.api.SendMessage(ctx, *threadID, content, uuid.New().String())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "sent #%d\n", msg.Seq)
	return nil
}

// runWatch streams live messages. After each reconnect it re-fetches what was
// missed, using the highest seq seen per thread.
func (a *app) runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	threadID := fs.String("thread", "", "thread to post stdin lines into")
	if err := fs.Parse(args); err != nil {
		return err
	}

	me, err := a.identity(ctx)
	if err != nil {
		return err
	}

	live, err := client.NewManager(client.Options{
		URL:    a.cfg.Gateway.URL,
		Token:  a.token,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		lastSeq = make(map[string]int64)
	)
	// seen records seq and reports whether the message is new to this session.
	seen := func(m wire.Message) bool {
		mu.Lock()
		defer mu.Unlock()
		if m.Seq <= lastSeq[m.ThreadID] {
			return false
		}
		lastSeq[m.ThreadID] = m.Seq
		return true
	}

	live.OnMessage(func(d wire.MessageData) {
		if seen(d.Message) {
			a.printMessage(me, d.Message, d.Sender.DisplayName)
		}
	})
	if a.cfg.Chat.ShowTyping {
		live.OnTyping(func(d wire.TypingData) {
			if d.IsTyping {
				color.New(color.FgHiBlack).Fprintf(a.out, "  %s is typing in %s\n", d.UserID, shortID(d.ThreadID))
			}
		})
	}
	live.OnReconnect(func() {
		mu.Lock()
		pending := make(map[string]int64, len(lastSeq))
		for id, seq := range lastSeq {
			pending[id] = seq
		}
		mu.Unlock()

		for id, seq := range pending {
			msgs, err := a.api.ListMessages(ctx, id, seq, 0)
			if err != nil {
				a.logger.Warn("catching up after reconnect failed", "thread_id", id, "error", err)
				continue
			}
			for _, m := range msgs {
				if seen(m) {
					a.printMessage(me, m, "")
				}
			}
		}
	})

	if *threadID != "" {
		msgs, err := a.api.ListMessages(ctx, *threadID, 0, 0)
		if err != nil {
			return err
		}
		start := 0
		if limit := a.cfg.Chat.HistoryLimit; limit > 0 && len(msgs) > limit {
			start = len(msgs) - limit
		}
		for _, m := range msgs[start:] {
			seen(m)
			a.printMessage(me, m, "")
		}
	}

	fmt.Fprintf(a.out, "watching as %s (%s). Ctrl+C to quit.\n", me.DisplayName, me.Role)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- live.Run(ctx) }()

	if *threadID != "" {
		go a.postInput(ctx, live, *threadID)
	}

	return <-errCh
}

// postInput posts each stdin line to threadID. "/typing" and "/idle" toggle
// the typing indicator instead.
func (a *app) postInput(ctx context.Context, live *client.Manager, threadID string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/typing", "/idle":
			if err := live.SendTyping(ctx, threadID, line == "/typing"); err != nil {
				a.logger.Warn("sending typing indicator failed", "error", err)
			}
			continue
		}

		if _, _, err := a.api.SendMessage(ctx, threadID, line, uuid.New().String()); err != nil {
			color.New(color.FgRed).Fprintf(a.out, "  not sent: %v\n", err)
		}
	}
}

func (a *app) printMessage(me *wire.Me, m wire.Message, senderName string) {
	who := senderName
	if who == "" {
		who = m.SenderID
	}
	nameColor := color.New(color.FgCyan)
	if m.SenderID == me.ID {
		who = "you"
		nameColor = color.New(color.FgGreen)
	}

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(a.out, "[%s #%d %s] ", shortID(m.ThreadID), m.Seq, humanize.Time(m.Timestamp))
	nameColor.Fprintf(a.out, "%s: ", who)
	fmt.Fprintln(a.out, m.Content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
